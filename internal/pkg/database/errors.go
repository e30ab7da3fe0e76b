package database

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/topology"

	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
)

// ClassifyError maps a driver error onto the application error kinds.
// op names the failed operation and is used in the error message.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) || apperrors.IsPartialWrite(err) {
		return err
	}

	switch {
	case errors.Is(err, mongo.ErrClientDisconnected):
		return apperrors.NotInitialized("mongo client").WithError(err)
	case mongo.IsDuplicateKeyError(err):
		return apperrors.DuplicateKey(op).WithError(err)
	case isTransient(err):
		return apperrors.Transient(op).WithError(err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

func isTransient(err error) bool {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	return errors.As(err, &topology.ServerSelectionError{})
}

// ErrorKind returns a short label for metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case apperrors.IsTransient(err):
		return "transient"
	case apperrors.IsDuplicateKey(err):
		return "duplicate_key"
	case apperrors.IsNotInitialized(err):
		return "not_initialized"
	case apperrors.IsNotFound(err):
		return "not_found"
	case apperrors.IsValidation(err):
		return "validation"
	case apperrors.IsPartialWrite(err):
		return "partial_write"
	}
	return "other"
}

func hasServerCode(err error, codes ...int) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, code := range codes {
		if se.HasErrorCode(code) {
			return true
		}
	}
	return false
}

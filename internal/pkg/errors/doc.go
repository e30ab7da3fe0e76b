// Package errors provides application error types for the gp-data persistence layer.
//
// This package defines:
//   - AppError type with error classification
//   - Error constructors for the persistence error kinds
//   - Error type checking helpers
//   - PartialWriteError for per-item batch failures
//
// # Error Types
//
//   - NotInitialized: a connection accessor was used before Connect
//   - ConnectionFailure: connect/ping failed (fatal at startup)
//   - Transient: timeout or network failure, safe to retry
//   - DuplicateKey: uniqueness constraint violated
//   - NotFound: update target absent
//   - Validation: entity rejected before it reached the database
//
// # Usage
//
// Check error types:
//
//	if apperrors.IsTransient(err) {
//	    // retry with backoff
//	}
//
// Batch writes return the written subset together with a PartialWriteError:
//
//	saved, err := repo.SaveMessages(ctx, msgs)
//	if pw := apperrors.GetPartialWrite(err); pw != nil {
//	    log.Warn("some messages not stored", zap.Ints("indexes", pw.FailedIndexes()))
//	}
package errors

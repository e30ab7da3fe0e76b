// Package reporting forwards background task failures to Sentry.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
)

// DefaultFlushTimeout bounds how long Flush waits for buffered events
const DefaultFlushTimeout = 5 * time.Second

// Init initializes the Sentry SDK. It returns false when no DSN is configured.
func Init(cfg config.SentryConfig, release string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return true, nil
}

// Flush flushes any buffered events to Sentry
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// TaskErrorReporter reports task failures that asynq will not retry
type TaskErrorReporter struct {
	hub *sentry.Hub
}

// NewTaskErrorReporter creates a reporter on the given hub.
// A nil hub uses the current hub.
func NewTaskErrorReporter(hub *sentry.Hub) *TaskErrorReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &TaskErrorReporter{hub: hub}
}

// Report captures err when the task has exhausted its retries or opted out
// of retrying. It returns whether an event was sent.
func (r *TaskErrorReporter) Report(ctx context.Context, task *asynq.Task, err error) bool {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if !isFinalAttempt(retried, maxRetry, err) {
		return false
	}

	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("task_type", task.Type())
		if id, ok := asynq.GetTaskID(ctx); ok {
			scope.SetTag("task_id", id)
		}
		if queue, ok := asynq.GetQueueName(ctx); ok {
			scope.SetTag("queue", queue)
		}
		scope.SetExtra("retried", retried)
		scope.SetExtra("max_retry", maxRetry)
	})
	hub.CaptureException(err)
	return true
}

func isFinalAttempt(retried, maxRetry int, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	return retried >= maxRetry
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/metrics"
)

// TypeStaleFollowupScan is the task type for the periodic stale lead scan
const TypeStaleFollowupScan = "followup:stale_scan"

// FollowupScheduler schedules follow-ups for inactive leads
type FollowupScheduler interface {
	ScheduleStaleFollowups(ctx context.Context, daysInactive, limit int, delay time.Duration) (int, error)
}

// StaleFollowupScanPayload is the payload for stale lead scans.
// Zero values fall back to the worker configuration.
type StaleFollowupScanPayload struct {
	DaysInactive int `json:"days_inactive,omitempty"`
	Limit        int `json:"limit,omitempty"`
	DelayMinutes int `json:"delay_minutes,omitempty"`
}

// NewStaleFollowupScanTask creates a stale lead scan task
func NewStaleFollowupScanTask(payload *StaleFollowupScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stale scan payload: %w", err)
	}
	return asynq.NewTask(TypeStaleFollowupScan, data, asynq.MaxRetry(1), asynq.Timeout(15*time.Minute)), nil
}

// FollowupWorker handles follow-up scheduling tasks
type FollowupWorker struct {
	logger    *zap.Logger
	scheduler FollowupScheduler
	defaults  config.FollowUpConfig
}

// NewFollowupWorker creates a new follow-up worker
func NewFollowupWorker(logger *zap.Logger, scheduler FollowupScheduler, defaults config.FollowUpConfig) *FollowupWorker {
	return &FollowupWorker{
		logger:    logger,
		scheduler: scheduler,
		defaults:  defaults,
	}
}

// ProcessTask processes a stale lead scan task
func (w *FollowupWorker) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { metrics.RecordTask(TypeStaleFollowupScan, err) }()

	var payload StaleFollowupScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal stale scan payload: %w", err)
		}
	}

	days, limit, delay := w.resolve(payload)
	w.logger.Info("processing stale lead scan",
		zap.Int("days_inactive", days),
		zap.Int("limit", limit),
		zap.Duration("delay", delay),
	)

	scheduled, err := w.scheduler.ScheduleStaleFollowups(ctx, days, limit, delay)
	metrics.RecordFollowupsScheduled(scheduled)
	if err != nil {
		return fmt.Errorf("stale lead scan finished with errors: %w", err)
	}
	return nil
}

func (w *FollowupWorker) resolve(p StaleFollowupScanPayload) (int, int, time.Duration) {
	days := w.defaults.StaleDays
	if p.DaysInactive > 0 {
		days = p.DaysInactive
	}
	limit := w.defaults.ScanLimit
	if p.Limit > 0 {
		limit = p.Limit
	}
	delay := w.defaults.Delay
	if p.DelayMinutes > 0 {
		delay = time.Duration(p.DelayMinutes) * time.Minute
	}
	return days, limit, delay
}

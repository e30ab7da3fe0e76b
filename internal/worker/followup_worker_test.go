package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
)

// MockFollowupScheduler is a mock implementation of FollowupScheduler
type MockFollowupScheduler struct {
	mock.Mock
}

func (m *MockFollowupScheduler) ScheduleStaleFollowups(ctx context.Context, daysInactive, limit int, delay time.Duration) (int, error) {
	args := m.Called(ctx, daysInactive, limit, delay)
	return args.Int(0), args.Error(1)
}

var followupDefaults = config.FollowUpConfig{StaleDays: 3, ScanLimit: 100, Delay: 24 * time.Hour}

func TestNewStaleFollowupScanTask(t *testing.T) {
	task, err := NewStaleFollowupScanTask(&StaleFollowupScanPayload{DaysInactive: 7})
	require.NoError(t, err)
	assert.Equal(t, TypeStaleFollowupScan, task.Type())

	var decoded StaleFollowupScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, 7, decoded.DaysInactive)
	assert.Zero(t, decoded.Limit)
}

func TestFollowupWorker_ProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("uses configured defaults", func(t *testing.T) {
		sched := new(MockFollowupScheduler)
		w := NewFollowupWorker(zap.NewNop(), sched, followupDefaults)
		sched.On("ScheduleStaleFollowups", ctx, 3, 100, 24*time.Hour).Return(4, nil)

		task, _ := NewStaleFollowupScanTask(&StaleFollowupScanPayload{})
		require.NoError(t, w.ProcessTask(ctx, task))
		sched.AssertExpectations(t)
	})

	t.Run("payload overrides defaults", func(t *testing.T) {
		sched := new(MockFollowupScheduler)
		w := NewFollowupWorker(zap.NewNop(), sched, followupDefaults)
		sched.On("ScheduleStaleFollowups", ctx, 10, 5, 30*time.Minute).Return(0, nil)

		task, _ := NewStaleFollowupScanTask(&StaleFollowupScanPayload{DaysInactive: 10, Limit: 5, DelayMinutes: 30})
		require.NoError(t, w.ProcessTask(ctx, task))
		sched.AssertExpectations(t)
	})

	t.Run("empty payload from scheduler", func(t *testing.T) {
		sched := new(MockFollowupScheduler)
		w := NewFollowupWorker(zap.NewNop(), sched, followupDefaults)
		sched.On("ScheduleStaleFollowups", ctx, 3, 100, 24*time.Hour).Return(0, nil)

		require.NoError(t, w.ProcessTask(ctx, asynq.NewTask(TypeStaleFollowupScan, nil)))
	})

	t.Run("reports scan errors", func(t *testing.T) {
		sched := new(MockFollowupScheduler)
		w := NewFollowupWorker(zap.NewNop(), sched, followupDefaults)
		sched.On("ScheduleStaleFollowups", ctx, 3, 100, 24*time.Hour).Return(2, errors.New("one lead failed"))

		task, _ := NewStaleFollowupScanTask(&StaleFollowupScanPayload{})
		err := w.ProcessTask(ctx, task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "one lead failed")
	})
}

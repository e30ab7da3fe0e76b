package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/metrics"
)

// TypePipelineSnapshot is the task type for exporting lead counts per stage
const TypePipelineSnapshot = "pipeline:snapshot"

// PipelineCounter counts leads per sales stage
type PipelineCounter interface {
	PipelineSnapshot(ctx context.Context) (map[domain.SalesStage]int64, error)
}

// NewPipelineSnapshotTask creates a pipeline snapshot task
func NewPipelineSnapshotTask() *asynq.Task {
	return asynq.NewTask(TypePipelineSnapshot, nil, asynq.MaxRetry(0), asynq.Timeout(time.Minute))
}

// PipelineWorker refreshes the leads-by-stage gauge
type PipelineWorker struct {
	logger  *zap.Logger
	counter PipelineCounter
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(logger *zap.Logger, counter PipelineCounter) *PipelineWorker {
	return &PipelineWorker{
		logger:  logger,
		counter: counter,
	}
}

// ProcessTask processes a pipeline snapshot task
func (w *PipelineWorker) ProcessTask(ctx context.Context, _ *asynq.Task) (err error) {
	defer func() { metrics.RecordTask(TypePipelineSnapshot, err) }()

	counts, err := w.counter.PipelineSnapshot(ctx)
	if err != nil {
		return err
	}

	stages, byName := snapshotLabels(counts)
	metrics.SetLeadsByStage(stages, byName)

	w.logger.Debug("pipeline snapshot updated", zap.Any("counts", byName))
	return nil
}

// snapshotLabels converts stage counts to gauge labels. Every known stage
// is reported so stages that emptied out drop to zero.
func snapshotLabels(counts map[domain.SalesStage]int64) ([]string, map[string]int64) {
	stages := make([]string, 0, len(domain.AllSalesStages)+len(counts))
	byName := make(map[string]int64, len(counts))
	for _, s := range domain.AllSalesStages {
		stages = append(stages, string(s))
	}
	for s, n := range counts {
		if !s.IsValid() {
			stages = append(stages, string(s))
		}
		byName[string(s)] = n
	}
	return stages, byName
}

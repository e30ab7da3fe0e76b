package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Services is the service surface the workers drive.
// *service.ConversationService satisfies it.
type Services interface {
	ConversationManager
	FollowupScheduler
	PipelineCounter
}

// Server is the worker server
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	client    *asynq.Client
}

// WorkerDependencies holds dependencies for workers
type WorkerDependencies struct {
	Redis    *redis.Client
	Services Services
	// Archive is optional; nil disables conversation archives
	Archive       ArchiveStore
	ArchiveBucket string
	// OnTaskError is called for every failed task after it is logged
	OnTaskError func(ctx context.Context, task *asynq.Task, err error)
}

// NewServer creates a new worker server on top of an existing Redis client
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	deps *WorkerDependencies,
) (*Server, error) {
	if deps == nil || deps.Redis == nil || deps.Services == nil {
		return nil, fmt.Errorf("worker dependencies are incomplete")
	}

	server := asynq.NewServerFromRedisClient(
		deps.Redis,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      queueWeights(cfg.Worker),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
				if deps.OnTaskError != nil {
					deps.OnTaskError(ctx, task, err)
				}
			}),
			Logger: &asynqLogger{logger: logger.Named("asynq")},
		},
	)

	conversationWorker := NewConversationWorker(logger, deps.Services, deps.Archive, deps.ArchiveBucket)
	followupWorker := NewFollowupWorker(logger, deps.Services, cfg.FollowUp)
	pipelineWorker := NewPipelineWorker(logger, deps.Services)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeLeadReconcile, conversationWorker.ProcessReconcileTask)
	mux.HandleFunc(TypeConversationErase, conversationWorker.ProcessEraseTask)
	mux.HandleFunc(TypeStaleFollowupScan, followupWorker.ProcessTask)
	mux.HandleFunc(TypePipelineSnapshot, pipelineWorker.ProcessTask)

	scheduler := asynq.NewSchedulerFromRedisClient(deps.Redis, &asynq.SchedulerOpts{
		Logger: &asynqLogger{logger: logger.Named("asynq.scheduler")},
		// cron specs are evaluated in UTC, matching stored timestamps
		Location: time.UTC,
	})
	client := asynq.NewClientFromRedisClient(deps.Redis)

	return &Server{
		logger:    logger,
		config:    cfg,
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		client:    client,
	}, nil
}

func queueWeights(cfg config.WorkerConfig) map[string]int {
	weight := func(v, fallback int) int {
		if v <= 0 {
			return fallback
		}
		return v
	}
	return map[string]int{
		QueueCritical: weight(cfg.CriticalWeight, 6),
		QueueDefault:  weight(cfg.DefaultWeight, 3),
		QueueLow:      weight(cfg.LowWeight, 1),
	}
}

// Start starts the worker server and blocks until it stops
func (s *Server) Start() error {
	if s.config.Worker.SchedulerEnabled {
		if err := s.registerScheduledTasks(); err != nil {
			return fmt.Errorf("failed to register scheduled tasks: %w", err)
		}
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
		zap.Bool("scheduler", s.config.Worker.SchedulerEnabled),
	)

	return s.server.Run(s.mux)
}

// Stop stops the worker server. The Redis client is owned by the caller
// and stays open.
func (s *Server) Stop() {
	s.server.Shutdown()
	if s.config.Worker.SchedulerEnabled {
		s.scheduler.Shutdown()
	}
}

// Client returns the asynq client for enqueuing tasks
func (s *Server) Client() *asynq.Client {
	return s.client
}

// registerScheduledTasks registers periodic tasks with the scheduler
func (s *Server) registerScheduledTasks() error {
	scan, err := NewStaleFollowupScanTask(&StaleFollowupScanPayload{})
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register(s.config.Worker.StaleScanCron, scan, asynq.Queue(QueueLow)); err != nil {
		return fmt.Errorf("failed to register stale scan task: %w", err)
	}

	if _, err := s.scheduler.Register(s.config.Worker.SnapshotCron, NewPipelineSnapshotTask(), asynq.Queue(QueueLow)); err != nil {
		return fmt.Errorf("failed to register pipeline snapshot task: %w", err)
	}

	return nil
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}

// EnqueueStaleFollowupScan enqueues an on-demand stale lead scan
func EnqueueStaleFollowupScan(client *asynq.Client, payload *StaleFollowupScanPayload) error {
	task, err := NewStaleFollowupScanTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueLow))
	return err
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/phone"
	"github.com/EnriquePaullada/gp-data-v4/internal/repository/mongodb"
	"github.com/EnriquePaullada/gp-data-v4/internal/service"
)

// app holds the connected stores for one command invocation
type app struct {
	cfg           *config.Config
	manager       *database.MongoManager
	leads         *mongodb.LeadRepository
	messages      *mongodb.MessageRepository
	conversations *service.ConversationService
	phones        *phone.Normalizer
}

// connect loads configuration and opens the MongoDB pool
func connect(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "console", Service: "leadctl"}); err != nil {
		return nil, err
	}

	manager := database.NewMongoManager(cfg.Mongo, cfg.Retention)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}

	leads := mongodb.NewLeadRepository(manager)
	messages := mongodb.NewMessageRepository(manager)
	phones := phone.NewNormalizer(cfg.Phone.DefaultRegion)

	return &app{
		cfg:           cfg,
		manager:       manager,
		leads:         leads,
		messages:      messages,
		conversations: service.NewConversationService(logger.Log, leads, messages, phones),
		phones:        phones,
	}, nil
}

// close disconnects from MongoDB
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.manager.Disconnect(ctx); err != nil {
		logger.Warn("disconnect failed", zap.Error(err))
	}
	_ = logger.Sync()
}

// leadID normalizes a phone argument to the stored E.164 lead id
func (a *app) leadID(raw string) (string, error) {
	id, err := a.phones.E164(raw)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	return id, nil
}

// enqueuer connects to Redis and returns an asynq client for the worker queues
func (a *app) enqueuer(ctx context.Context) (*asynq.Client, func(), error) {
	redisDB, err := database.NewRedis(ctx, a.cfg.Redis, 0)
	if err != nil {
		return nil, nil, err
	}
	return asynq.NewClientFromRedisClient(redisDB.Client), func() { _ = redisDB.Close() }, nil
}

// withApp wraps a command body with connect and close
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

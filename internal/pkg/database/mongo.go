package database

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
)

// Collection names
const (
	LeadsCollection    = "leads"
	MessagesCollection = "messages"
)

// Index names
const (
	IndexLeadIDUnique         = "idx_lead_id_unique"
	IndexStageLastInteraction = "idx_stage_last_interaction"
	IndexNextFollowup         = "idx_next_followup"
	IndexLeadMessages         = "idx_lead_messages"
	IndexTimestamp            = "idx_timestamp"
	IndexMessageTTL           = "idx_message_ttl"
)

// Server error codes returned when an index with the same name exists with different options
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeIndexNotFound         = 27
	codeNamespaceNotFound     = 26
)

// ConnectionState is the lifecycle phase of a MongoManager
type ConnectionState int

const (
	StateUninitialized ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// MongoManager owns the process-wide MongoDB connection pool.
//
// Create one per process and inject it into repositories. Accessors fail with
// a NotInitialized error until Connect succeeds and again after Disconnect.
// Disconnect keeps the configuration so Connect can be called again.
type MongoManager struct {
	cfg       config.MongoConfig
	retention config.RetentionConfig

	mu     sync.RWMutex
	state  ConnectionState
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoManager creates an unconnected manager
func NewMongoManager(cfg config.MongoConfig, retention config.RetentionConfig) *MongoManager {
	return &MongoManager{
		cfg:       cfg,
		retention: retention,
		state:     StateUninitialized,
	}
}

// Connect opens the connection pool and verifies it with a ping.
// Calling Connect on a connected manager is a no-op.
func (m *MongoManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnected {
		return nil
	}

	opts := options.Client().
		ApplyURI(m.cfg.URI).
		SetAppName("gp-data-v4")
	if m.cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(m.cfg.MaxPoolSize)
	}
	if m.cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(m.cfg.MinPoolSize)
	}
	if m.cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(m.cfg.ServerSelectionTimeout)
	}
	if m.cfg.OperationTimeout > 0 {
		opts.SetTimeout(m.cfg.OperationTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return apperrors.ConnectionFailure("failed to create mongo client").WithError(err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return apperrors.ConnectionFailure("failed to ping mongo").
			WithDetail("database", m.cfg.Database).
			WithError(err)
	}

	m.client = client
	m.db = client.Database(m.cfg.Database)
	m.state = StateConnected

	logger.Info("connected to MongoDB",
		zap.String("database", m.cfg.Database),
		zap.Uint64("max_pool_size", m.cfg.MaxPoolSize),
		zap.Uint64("min_pool_size", m.cfg.MinPoolSize),
	)

	return nil
}

// Disconnect releases the connection pool. It is safe to call repeatedly.
func (m *MongoManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return nil
	}

	client := m.client
	m.client = nil
	m.db = nil
	m.state = StateDisconnected

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongo: %w", err)
	}

	logger.Info("disconnected from MongoDB", zap.String("database", m.cfg.Database))
	return nil
}

// State returns the current lifecycle phase
func (m *MongoManager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Client returns the live client or a NotInitialized error
func (m *MongoManager) Client() (*mongo.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected {
		return nil, apperrors.NotInitialized("mongo client").WithDetail("state", m.state.String())
	}
	return m.client, nil
}

// Database returns the configured database handle or a NotInitialized error
func (m *MongoManager) Database() (*mongo.Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected {
		return nil, apperrors.NotInitialized("mongo database").WithDetail("state", m.state.String())
	}
	return m.db, nil
}

// Collection returns a collection handle or a NotInitialized error
func (m *MongoManager) Collection(name string) (*mongo.Collection, error) {
	db, err := m.Database()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping checks that the server is reachable
func (m *MongoManager) Ping(ctx context.Context) error {
	client, err := m.Client()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return ClassifyError("ping", err)
	}
	return nil
}

// IndexModels returns the index definitions for every managed collection
func (m *MongoManager) IndexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		LeadsCollection: {
			{
				Keys:    bson.D{{Key: "lead_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(IndexLeadIDUnique),
			},
			{
				Keys:    bson.D{{Key: "current_stage", Value: 1}, {Key: "last_interaction_at", Value: -1}},
				Options: options.Index().SetName(IndexStageLastInteraction),
			},
			{
				Keys:    bson.D{{Key: "next_followup_at", Value: 1}},
				Options: options.Index().SetSparse(true).SetName(IndexNextFollowup),
			},
		},
		MessagesCollection: {
			{
				Keys:    bson.D{{Key: "lead_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName(IndexLeadMessages),
			},
			{
				Keys:    bson.D{{Key: "timestamp", Value: 1}},
				Options: options.Index().SetName(IndexTimestamp),
			},
		},
	}
}

func (m *MongoManager) ttlIndexModel() (mongo.IndexModel, bool) {
	ttl := m.retention.TTLSeconds()
	if ttl <= 0 {
		return mongo.IndexModel{}, false
	}
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttl).SetName(IndexMessageTTL),
	}, true
}

// CreateIndexes provisions every required index. Safe to call repeatedly.
// The message TTL index follows the retention settings: it is created,
// rebuilt with a new expiry, or dropped when retention is disabled.
func (m *MongoManager) CreateIndexes(ctx context.Context) error {
	db, err := m.Database()
	if err != nil {
		return err
	}

	for name, models := range m.IndexModels() {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return ClassifyError("create indexes on "+name, err)
		}
		logger.Debug("indexes ensured", zap.String("collection", name), zap.Int("count", len(models)))
	}

	return m.syncTTLIndex(ctx, db.Collection(MessagesCollection))
}

func (m *MongoManager) syncTTLIndex(ctx context.Context, coll *mongo.Collection) error {
	model, enabled := m.ttlIndexModel()
	if !enabled {
		err := coll.Indexes().DropOne(ctx, IndexMessageTTL)
		if err != nil && !hasServerCode(err, codeIndexNotFound, codeNamespaceNotFound) {
			return ClassifyError("drop message ttl index", err)
		}
		return nil
	}

	_, err := coll.Indexes().CreateOne(ctx, model)
	if err == nil {
		return nil
	}
	if !hasServerCode(err, codeIndexOptionsConflict, codeIndexKeySpecsConflict) {
		return ClassifyError("create message ttl index", err)
	}

	// retention changed since the index was built
	logger.Info("rebuilding message ttl index", zap.Int("retention_days", m.retention.MessageRetentionDays))
	if err := coll.Indexes().DropOne(ctx, IndexMessageTTL); err != nil {
		return ClassifyError("drop message ttl index", err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
		return ClassifyError("create message ttl index", err)
	}
	return nil
}

// IndexNames lists the index names present on a collection
func (m *MongoManager) IndexNames(ctx context.Context, collection string) ([]string, error) {
	coll, err := m.Collection(collection)
	if err != nil {
		return nil, err
	}

	specs, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, ClassifyError("list indexes on "+collection, err)
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	return names, nil
}

package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Init(logger.Config{
		Level:  "error", // Only show errors in tests to reduce noise
		Format: "console",
	})
	os.Exit(m.Run())
}

func unreachableConfig() config.MongoConfig {
	return config.MongoConfig{
		URI:                    "mongodb://127.0.0.1:1/?directConnection=true",
		Database:               "gp-data-unreachable",
		MaxPoolSize:            2,
		ServerSelectionTimeout: 200 * time.Millisecond,
	}
}

func TestMongoManager_AccessorsBeforeConnect(t *testing.T) {
	m := NewMongoManager(unreachableConfig(), config.RetentionConfig{})

	assert.Equal(t, StateUninitialized, m.State())

	client, err := m.Client()
	assert.Nil(t, client)
	assert.True(t, apperrors.IsNotInitialized(err))

	db, err := m.Database()
	assert.Nil(t, db)
	assert.True(t, apperrors.IsNotInitialized(err))

	coll, err := m.Collection(LeadsCollection)
	assert.Nil(t, coll)
	assert.True(t, apperrors.IsNotInitialized(err))

	assert.True(t, apperrors.IsNotInitialized(m.Ping(context.Background())))
	assert.True(t, apperrors.IsNotInitialized(m.CreateIndexes(context.Background())))
}

func TestMongoManager_DisconnectBeforeConnect(t *testing.T) {
	m := NewMongoManager(unreachableConfig(), config.RetentionConfig{})

	require.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, StateUninitialized, m.State())
}

func TestMongoManager_ConnectFailure(t *testing.T) {
	m := NewMongoManager(unreachableConfig(), config.RetentionConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Connect(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectionFailure(err))
	assert.Equal(t, StateUninitialized, m.State())

	_, err = m.Database()
	assert.True(t, apperrors.IsNotInitialized(err))
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}

func TestMongoManager_IndexModels(t *testing.T) {
	m := NewMongoManager(unreachableConfig(), config.RetentionConfig{})
	models := m.IndexModels()

	require.Len(t, models[LeadsCollection], 3)
	require.Len(t, models[MessagesCollection], 2)

	_, enabled := m.ttlIndexModel()
	assert.False(t, enabled)

	withTTL := NewMongoManager(unreachableConfig(), config.RetentionConfig{MessageRetentionDays: 30, ArchivalEnabled: true})
	_, enabled = withTTL.ttlIndexModel()
	assert.True(t, enabled)
}

// newTestManager connects to MONGODB_TEST_URI using a throwaway database
func newTestManager(t *testing.T, retention config.RetentionConfig) *MongoManager {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set, skipping integration test")
	}

	m := NewMongoManager(config.MongoConfig{
		URI:                    uri,
		Database:               fmt.Sprintf("gpdata_db_test_%d", time.Now().UnixNano()),
		MaxPoolSize:            5,
		MinPoolSize:            1,
		ServerSelectionTimeout: 2 * time.Second,
		OperationTimeout:       10 * time.Second,
	}, retention)

	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() {
		ctx := context.Background()
		if db, err := m.Database(); err == nil {
			_ = db.Drop(ctx)
		}
		_ = m.Disconnect(ctx)
	})
	return m
}

func TestMongoManager_Lifecycle(t *testing.T) {
	m := newTestManager(t, config.RetentionConfig{})
	ctx := context.Background()

	assert.Equal(t, StateConnected, m.State())
	require.NoError(t, m.Ping(ctx))

	// Connected -> Connected is a no-op
	require.NoError(t, m.Connect(ctx))
	assert.Equal(t, StateConnected, m.State())

	require.NoError(t, m.Disconnect(ctx))
	assert.Equal(t, StateDisconnected, m.State())
	_, err := m.Collection(LeadsCollection)
	assert.True(t, apperrors.IsNotInitialized(err))

	// Disconnected -> Disconnected
	require.NoError(t, m.Disconnect(ctx))
	assert.Equal(t, StateDisconnected, m.State())

	// reconnect with the retained configuration
	require.NoError(t, m.Connect(ctx))
	assert.Equal(t, StateConnected, m.State())
}

func TestMongoManager_CreateIndexes(t *testing.T) {
	m := newTestManager(t, config.RetentionConfig{MessageRetentionDays: 30, ArchivalEnabled: true})
	ctx := context.Background()

	require.NoError(t, m.CreateIndexes(ctx))
	// idempotent
	require.NoError(t, m.CreateIndexes(ctx))

	leadIdx, err := m.IndexNames(ctx, LeadsCollection)
	require.NoError(t, err)
	assert.Subset(t, leadIdx, []string{IndexLeadIDUnique, IndexStageLastInteraction, IndexNextFollowup})

	msgIdx, err := m.IndexNames(ctx, MessagesCollection)
	require.NoError(t, err)
	assert.Subset(t, msgIdx, []string{IndexLeadMessages, IndexTimestamp, IndexMessageTTL})

	t.Run("retention change rebuilds ttl index", func(t *testing.T) {
		m.retention = config.RetentionConfig{MessageRetentionDays: 7, ArchivalEnabled: true}
		require.NoError(t, m.CreateIndexes(ctx))

		names, err := m.IndexNames(ctx, MessagesCollection)
		require.NoError(t, err)
		assert.Contains(t, names, IndexMessageTTL)
	})

	t.Run("disabled archival drops ttl index", func(t *testing.T) {
		m.retention = config.RetentionConfig{MessageRetentionDays: 7, ArchivalEnabled: false}
		require.NoError(t, m.CreateIndexes(ctx))

		names, err := m.IndexNames(ctx, MessagesCollection)
		require.NoError(t, err)
		assert.NotContains(t, names, IndexMessageTTL)
	})
}

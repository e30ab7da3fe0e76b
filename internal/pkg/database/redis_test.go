package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
)

func redisConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisConfig{Host: mr.Host(), Port: port}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	db, err := NewRedis(context.Background(), redisConfig(t, mr), 4)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, 4+minRedisPoolSize, db.Client.Options().PoolSize)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(t, mr)
	mr.Close()

	db, err := NewRedis(context.Background(), cfg, 0)
	assert.Nil(t, db)
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectionFailure(err))
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Host: "redis", Port: 6380, Password: "secret", DB: 2}, 0)

	assert.Equal(t, "redis:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, minRedisPoolSize, opts.PoolSize)
}

func TestRedisDB_CloseNil(t *testing.T) {
	var db *RedisDB
	assert.NoError(t, db.Close())
}

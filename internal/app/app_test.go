package app

import (
	"context"
	"testing"

	"github.com/dunamismax/pixelcache/internal/config"
	"github.com/dunamismax/pixelcache/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Storage:   config.StorageConfig{Driver: StorageDriverMemory},
		Cache:     config.CacheConfig{OriginBucket: "origin", CacheBucket: "cache"},
		Transform: config.TransformConfig{Engine: "std"},
	}
}

func TestNewBlobStoreMemory(t *testing.T) {
	blobs, err := NewBlobStore(context.Background(), testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, blobs)
}

func TestNewBlobStoreUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "ftp"

	_, err := NewBlobStore(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewJobStoreWithoutDatabaseDisablesWarming(t *testing.T) {
	cfg := testConfig()
	cfg.Database.DSN = "   "

	jobs, closeFn, err := NewJobStore(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrWarmingDisabled)
	assert.Nil(t, jobs)
	assert.Nil(t, closeFn)
}

func TestNewPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.CachePrefix = "resized/"

	p, err := NewPipeline(cfg, storage.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.Transform.Engine = "gimp"
	_, err = NewPipeline(cfg, storage.NewMemoryStore(), zerolog.Nop())
	assert.ErrorContains(t, err, "unknown transform engine")
}

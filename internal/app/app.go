// Package app wires the components shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelcache/internal/config"
	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/storage"
	"github.com/dunamismax/pixelcache/internal/store"
	"github.com/rs/zerolog"
)

const (
	StorageDriverMinio  = "minio"
	StorageDriverMemory = "memory"
)

// NewBlobStore opens the configured object store and makes sure the cache
// bucket exists. The origin bucket is never created.
func NewBlobStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (pipeline.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case StorageDriverMemory:
		logger.Warn().Msg("using in-memory blob store; origin bucket starts empty")
		return storage.NewMemoryStore(), nil
	case "", StorageDriverMinio:
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx, cfg.Cache.CacheBucket); err != nil {
			return nil, fmt.Errorf("ensure cache bucket: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// ErrWarmingDisabled is returned by NewJobStore when no database is
// configured. The api and the worker run as separate processes, so warm job
// state needs a store both of them can reach.
var ErrWarmingDisabled = errors.New("cache warming requires POSTGRES_DSN")

// NewJobStore opens the postgres job store shared by the api and the worker.
func NewJobStore(ctx context.Context, cfg config.Config) (store.JobStore, func() error, error) {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, nil, ErrWarmingDisabled
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func NewPipeline(cfg config.Config, blobs pipeline.BlobStore, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	transformer, err := pipeline.NewTransformer(pipeline.TransformerConfig{
		Engine:     cfg.Transform.Engine,
		ScratchDir: cfg.Transform.ScratchDir,
	})
	if err != nil {
		return nil, fmt.Errorf("create transformer: %w", err)
	}

	return pipeline.New(
		pipeline.Config{
			OriginBucket: cfg.Cache.OriginBucket,
			CacheBucket:  cfg.Cache.CacheBucket,
			OriginPrefix: cfg.Cache.OriginPrefix,
			CachePrefix:  cfg.Cache.CachePrefix,
		},
		blobs,
		transformer,
		pipeline.WithLogger(logger.With().Str("component", "pipeline").Logger()),
	)
}

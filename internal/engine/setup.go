package engine

import (
	"context"
	"fmt"

	"github.com/bricklore/brickengine/internal/cache"
	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/embedding"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/source"
	"github.com/bricklore/brickengine/internal/store"
)

// BuildAdapters constructs the source adapters the configuration enables.
func BuildAdapters(cfg *config.Config) ([]source.Adapter, error) {
	var adapters []source.Adapter

	if cfg.Sources.Rebrickable.Enabled {
		a, err := source.NewRebrickableAdapter(source.RebrickableConfig{
			BaseURL:  cfg.Sources.Rebrickable.BaseURL,
			APIKey:   cfg.Sources.Rebrickable.APIKey,
			PageSize: cfg.Sources.FetchLimit,
			Timeout:  cfg.Sources.FetchTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("rebrickable adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.Sources.Brickset.Enabled {
		a, err := source.NewBricksetAdapter(source.BricksetConfig{
			BaseURL:  cfg.Sources.Brickset.BaseURL,
			APIKey:   cfg.Sources.Brickset.APIKey,
			Username: cfg.Sources.Brickset.Username,
			Password: cfg.Sources.Brickset.Password,
			PageSize: cfg.Sources.FetchLimit,
			Timeout:  cfg.Sources.FetchTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("brickset adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.Sources.BrickOwl.Enabled {
		a, err := source.NewBrickOwlAdapter(source.BrickOwlConfig{
			BaseURL: cfg.Sources.BrickOwl.BaseURL,
			APIKey:  cfg.Sources.BrickOwl.APIKey,
			Limit:   cfg.Sources.FetchLimit,
			Timeout: cfg.Sources.FetchTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("brickowl adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	for _, f := range cfg.Sources.Files {
		adapters = append(adapters, source.NewFileAdapter(f.Name, f.Path))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}
	return adapters, nil
}

// BuildEmbedder constructs the configured embedding provider.
func BuildEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewClient(embedding.Config{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
			Timeout:   cfg.Embedding.Timeout,
		})
	case "local":
		return embedding.NewLocalEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// BuildCache constructs the configured cache client.
func BuildCache(cfg *config.Config) (cache.Client, error) {
	switch cfg.Cache.Driver {
	case "redis":
		return cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
	case "memory":
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// Bootstrap opens every dependency the configuration names and returns a
// ready engine with its index warmed from disk or store.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Engine, error) {
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := BuildEmbedder(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	cacheClient, err := BuildCache(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	adapters, err := BuildAdapters(cfg)
	if err != nil {
		st.Close()
		cacheClient.Close()
		return nil, err
	}

	e := New(cfg, logger, st, embedder, cacheClient, adapters)
	if err := e.EnsureIndex(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

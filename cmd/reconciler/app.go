package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/paramed/reconciler/config"
	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/infrastructure/cache"
	"github.com/paramed/reconciler/internal/infrastructure/embedding"
	"github.com/paramed/reconciler/internal/infrastructure/publisher"
	"github.com/paramed/reconciler/internal/infrastructure/store"
	"github.com/paramed/reconciler/internal/infrastructure/vectorindex"
	"github.com/paramed/reconciler/internal/usecase"
)

const redisKeyPrefix = "reconciler:"

// app owns the infrastructure shared by every command
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *store.Store
	closers []io.Closer
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", cfg.Store.Path).Msg("Record store opened")

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		closers: []io.Closer{st},
	}, nil
}

// reconciliationService wires cache, embedder, index and sinks into the engine
func (a *app) reconciliationService(ctx context.Context) (*usecase.ReconciliationService, error) {
	embeddingCache, err := a.newCache(ctx)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(a.cfg.Embedding)
	if err != nil {
		return nil, err
	}

	engineCfg := engineConfig(a.cfg.Engine)
	gateway := usecase.NewEmbeddingGateway(embedder, embeddingCache, usecase.EmbeddingGatewayConfig{
		CacheTTL: a.cfg.Cache.TTL,
		Timeout:  engineCfg.CallTimeout,
	})
	retriever := usecase.NewCandidateRetriever(vectorindex.NewBuilder(), engineCfg.CallTimeout)

	sinks := []domain.ResultSink{a.store}
	if a.cfg.Kafka.Enabled {
		kp := publisher.NewKafkaPublisher(publisher.Config{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.Topic,
		})
		a.closers = append(a.closers, kp)
		sinks = append(sinks, kp)
		a.logger.Info().Strs("brokers", a.cfg.Kafka.Brokers).Str("topic", a.cfg.Kafka.Topic).Msg("Kafka publishing enabled")
	}

	service, err := usecase.NewReconciliationService(engineCfg, gateway, retriever, sinks...)
	if err != nil {
		return nil, err
	}

	effective := service.Config()
	a.logger.Info().
		Str("mode", string(effective.Mode)).
		Str("scoring", effective.Scoring).
		Str("strategy", effective.Strategy).
		Int("k", effective.K).
		Float64("threshold", effective.AcceptanceThreshold).
		Str("model", embedder.ModelName()).
		Msg("Reconciliation engine ready")

	return service, nil
}

func (a *app) newCache(ctx context.Context) (domain.CacheRepository, error) {
	switch a.cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, a.cfg.Cache.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc)
		return rc, nil
	default:
		mc := cache.NewMemoryCache()
		a.closers = append(a.closers, mc)
		return mc, nil
	}
}

func newEmbedder(cfg config.EmbeddingConfig) (domain.Embedder, error) {
	switch cfg.Provider {
	case "cohere":
		ce, err := embedding.NewCohereEmbedder(cfg.APIKey, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return ce, nil
	case "http":
		return embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
			Burst:         cfg.Burst,
			MaxRetries:    cfg.MaxRetries,
			BatchSize:     cfg.BatchSize,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// engineConfig maps the config file section onto the engine options; zero
// values are filled by the engine so k and threshold follow the scoring mode
func engineConfig(c config.EngineConfig) usecase.EngineConfig {
	return usecase.EngineConfig{
		Mode:                domain.Mode(c.Mode),
		Scoring:             c.Scoring,
		Strategy:            c.Strategy,
		K:                   c.K,
		AcceptanceThreshold: c.AcceptanceThreshold,
		ClusteringThreshold: c.ClusteringThreshold,
		Weights: usecase.SignalWeights{
			Semantic: c.Weights.Semantic,
			Fuzzy:    c.Weights.Fuzzy,
			Price:    c.Weights.Price,
			Size:     c.Weights.Size,
		},
		PartitionKeys:   c.PartitionKeys,
		PriceGapLimit:   c.PriceGapLimit,
		ReportUnmatched: c.ReportUnmatched,
		Workers:         c.Workers,
		CallTimeout:     c.CallTimeout,
		EmbeddingText:   c.EmbeddingText,
		SourceCatalog:   c.SourceCatalog,
		TargetCatalog:   c.TargetCatalog,
	}
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/chunker"
	"github.com/notedex/notedex/internal/config"
	dbRedis "github.com/notedex/notedex/internal/db/redis"
	logpkg "github.com/notedex/notedex/internal/logger"
	"github.com/notedex/notedex/internal/metrics"
	buildstaterepo "github.com/notedex/notedex/internal/repository/buildstate"
	"github.com/notedex/notedex/internal/repository/chunkstore"
	"github.com/notedex/notedex/internal/repository/notebook"
	vecQdrant "github.com/notedex/notedex/internal/repository/vecindex/qdrant"
	vecRedis "github.com/notedex/notedex/internal/repository/vecindex/redis"
	"github.com/notedex/notedex/internal/retry"
	chiTransport "github.com/notedex/notedex/internal/transport/chi"
	openaiEmb "github.com/notedex/notedex/internal/transport/openai"
	embeddinguc "github.com/notedex/notedex/internal/usecase/embedding"
	healthuc "github.com/notedex/notedex/internal/usecase/health"
	searchuc "github.com/notedex/notedex/internal/usecase/search"
	syncuc "github.com/notedex/notedex/internal/usecase/sync"
	"github.com/notedex/notedex/internal/version"
)

// vectorIndex is the common surface of both backend adapters.
type vectorIndex interface {
	syncuc.VectorIndex
	searchuc.VectorIndex
	healthuc.IndexChecker
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting notedex server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("notebook_id", cfg.Notebook.ID),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIndexingMetrics()

	ctx := context.Background()

	index, closeIndex, err := buildIndex(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create vector index", zap.Error(err))
	}
	defer closeIndex()
	logger.Info("Vector index ready", zap.String("namespace", cfg.Index.Namespace))

	// Local persistence
	var tracker *chunkstore.Tracker
	if cfg.Storage.Manifest {
		tracker = chunkstore.NewTracker()
	}
	chunks, err := chunkstore.New(chunkstore.Config{
		Dir:          cfg.Storage.Dir,
		EmbedVersion: cfg.Embedding.Version,
		LockTimeout:  time.Duration(cfg.Storage.LockTimeoutSec) * time.Second,
	}, tracker, logger)
	if err != nil {
		logger.Fatal("Failed to create chunk store", zap.Error(err))
	}

	records, err := buildstaterepo.New(cfg.Storage.Dir)
	if err != nil {
		logger.Fatal("Failed to create build-state store", zap.Error(err))
	}

	// Embedder chain: OpenAI transport -> batching/retrying decorator
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embeddinguc.NewBatcher(base, embeddinguc.Config{
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		Dimensions:   cfg.Embedding.Dimensions,
		CallTimeout:  time.Duration(cfg.Embedding.CallTimeoutSec) * time.Second,
		Retry: retry.New(
			cfg.Embedding.Retry.MaxAttempts,
			time.Duration(cfg.Embedding.Retry.BaseDelayMs)*time.Millisecond,
			time.Duration(cfg.Embedding.Retry.MaxDelaySec)*time.Second,
		),
	}, cfg.Embedding.Provider, cfg.Embedding.Model, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	src, err := notebook.NewExportSource(cfg.Notebook.ExportPath)
	if err != nil {
		logger.Fatal("Failed to create notebook source", zap.Error(err))
	}

	// Use case services
	syncSvc, err := syncuc.New(src, index, chunks, records, embedder, syncuc.Config{
		NotebookID:   cfg.Notebook.ID,
		NotebookName: cfg.Notebook.Name,
		EmbedVersion: cfg.Embedding.Version,
		Chunking: chunker.Config{
			SizeTokens:         cfg.Chunking.SizeTokens,
			OverlapTokens:      cfg.Chunking.OverlapTokens,
			PreserveBoundaries: cfg.Chunking.PreserveBoundaries,
		},
		Parallelism:    cfg.Sync.Parallelism,
		DriftTolerance: cfg.Sync.DriftTolerance,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create sync service", zap.Error(err))
	}
	searchSvc := searchuc.New(index, embedder, logger)
	healthSvc := healthuc.New(index, base)

	server := chiTransport.NewServer(syncSvc, searchSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildIndex creates the configured vector index backend and returns a
// cleanup function.
func buildIndex(
	ctx context.Context, cfg config.Config, logger *zap.Logger,
) (vectorIndex, func(), error) {
	switch cfg.Index.Driver {
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Index.Addrs,
			Password: cfg.Index.Password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		readiness := time.Duration(cfg.Index.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("redis not ready: %w", err)
		}
		idx, err := vecRedis.New(ctx, store, vecRedis.Config{
			KeyPrefix:    cfg.Index.KeyPrefix,
			Namespace:    cfg.Index.Namespace,
			Dimensions:   cfg.Embedding.Dimensions,
			EmbedVersion: cfg.Embedding.Version,
			HNSWM:        cfg.Index.HNSWM,
			HNSWEFConst:  cfg.Index.HNSWEFConstruct,
		}, logger)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("create redis index: %w", err)
		}
		return idx, func() { store.Close() }, nil

	case "qdrant":
		idx, err := vecQdrant.New(ctx, vecQdrant.Config{
			URL:          cfg.Index.URL,
			APIKey:       cfg.Index.APIKey,
			Namespace:    cfg.Index.Namespace,
			Dimensions:   cfg.Embedding.Dimensions,
			EmbedVersion: cfg.Embedding.Version,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create qdrant index: %w", err)
		}
		return idx, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown index driver %q", cfg.Index.Driver)
	}
}

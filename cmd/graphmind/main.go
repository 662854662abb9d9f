package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mainza-ai/graphmind/internal/api"
	"github.com/mainza-ai/graphmind/internal/audit"
	"github.com/mainza-ai/graphmind/internal/config"
	"github.com/mainza-ai/graphmind/internal/embedding"
	"github.com/mainza-ai/graphmind/internal/graph"
	"github.com/mainza-ai/graphmind/internal/lifecycle"
	"github.com/mainza-ai/graphmind/internal/semantic"
	"github.com/mainza-ai/graphmind/internal/sweep"
	"github.com/mainza-ai/graphmind/internal/textanalysis"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting GraphMind...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/graphmind.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Neo4j holds the graph itself and is the one hard dependency.
	store, err := graph.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
	if err != nil {
		logger.Fatal("Neo4j unavailable", zap.Error(err))
	}
	if err := store.Ping(context.Background()); err != nil {
		logger.Fatal("Neo4j unreachable", zap.Error(err))
	}
	logger.Info("Neo4j connected", zap.String("uri", cfg.Database.Neo4j.URI))

	// PostgreSQL audit trail
	var auditStore *audit.Store
	if cfg.Database.Postgres.DSN != "" {
		as, pgErr := audit.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without audit trail", zap.Error(pgErr))
		} else {
			dir := cfg.Database.Postgres.MigrationsDir
			if dir == "" {
				dir = "migrations"
			}
			if mErr := as.Migrate(context.Background(), dir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			auditStore = as
		}
	}

	// Semantic index: embedding provider plus Qdrant. Falls back to
	// lexical similarity when either half is missing.
	var index *semantic.Index
	var qdrantClient *semantic.Client
	if cfg.Embedding.Provider != "" && cfg.Database.Qdrant.Host != "" {
		provider, embErr := embedding.New(embedding.Config(cfg.Embedding))
		if embErr != nil {
			logger.Warn("embedding provider misconfigured, using lexical similarity", zap.Error(embErr))
		} else if qc, qErr := semantic.NewClient(semantic.QdrantConfig(cfg.Database.Qdrant)); qErr != nil {
			logger.Warn("Qdrant unavailable, using lexical similarity", zap.Error(qErr))
		} else {
			collection := cfg.Database.Qdrant.Collection
			if collection == "" {
				collection = "graphmind"
			}
			idx := semantic.NewIndex(qc, provider, collection, logger)
			if rErr := idx.EnsureReady(context.Background()); rErr != nil {
				logger.Warn("semantic index not ready, using lexical similarity", zap.Error(rErr))
				qc.Close()
			} else {
				index = idx
				qdrantClient = qc
				logger.Info("Semantic index ready", zap.String("collection", collection))
			}
		}
	}

	similarity := lexicalSimilarity()
	if index != nil {
		similarity = index.Similarity
	}

	tuning := lifecycle.Tuning{
		ConsolidationThreshold:       cfg.Lifecycle.ConsolidationThreshold,
		RelationshipRemovalThreshold: cfg.Lifecycle.RemovalThreshold,
		MaxRelationshipsPerConcept:   cfg.Lifecycle.MaxRelationships,
		MaxMemoriesPerUser:           cfg.Lifecycle.MaxMemoriesPerUser,
		BatchSize:                    cfg.Lifecycle.BatchSize,
	}
	engine := lifecycle.NewEngine(store, similarity, tuning, nil, logger)
	if auditStore != nil {
		engine.SetRecorder(audit.NewRecorder(auditStore, logger))
	}
	if index != nil {
		engine.SetForgetter(index)
	}

	// Redis coordinates sweeps across replicas.
	var coordinator *sweep.Coordinator
	if cfg.Database.Redis.URL != "" {
		c, redisErr := sweep.NewCoordinator(cfg.Database.Redis.URL, cfg.Lifecycle.SweepInteractions, 10*time.Minute, logger)
		if redisErr != nil {
			logger.Warn("Redis unavailable, running without sweep coordination", zap.Error(redisErr))
		} else {
			coordinator = c
			engine.SetObserver(c)
		}
	}

	tick := time.Duration(cfg.Lifecycle.SweepTickSeconds) * time.Second
	fullInterval := time.Duration(cfg.Lifecycle.FullSweepHours) * time.Hour
	scheduler := sweep.NewScheduler(engine, coordinator, tick, fullInterval, logger)
	scheduler.Start(context.Background())
	logger.Info("Sweep scheduler started")

	// Build HTTP handler
	var indexer api.Indexer
	if index != nil {
		indexer = index
	}
	handler := api.NewHandler(engine, store, indexer, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("GraphMind listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down GraphMind...")
	scheduler.Stop()
	ctx := context.Background()
	srv.Shutdown(ctx)
	store.Close(ctx)
	if coordinator != nil {
		coordinator.Close()
	}
	if auditStore != nil {
		auditStore.Close()
	}
	if qdrantClient != nil {
		qdrantClient.Close()
	}
}

func lexicalSimilarity() lifecycle.SimilarityFunc {
	analyzer := textanalysis.NewAnalyzer()
	return func(_ context.Context, a, b string) (float64, error) {
		return analyzer.Similarity(a, b), nil
	}
}

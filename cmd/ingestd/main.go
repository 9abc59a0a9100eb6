// Command ingestd runs the trend-aggregation ingestion pipeline: the
// Scheduler polling registered collector plugins, the Ingestor dispatching
// their output through the pipeline Engine, and the control surface HTTP
// API exposing run-now, plugin toggling, run inspection, and health.
//
// Entry point shape (config load, storage backend selection, service
// start/stop, signal-driven graceful shutdown) follows the teacher's
// cmd/gateway/main.go.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/trendforge/ingest/internal/app/control"
	"github.com/trendforge/ingest/internal/app/domain/plugin"
	"github.com/trendforge/ingest/internal/app/ingestor"
	pipelinecfg "github.com/trendforge/ingest/internal/app/pipeline"
	pluginpkg "github.com/trendforge/ingest/internal/app/plugin"
	"github.com/trendforge/ingest/internal/app/recorder"
	"github.com/trendforge/ingest/internal/app/scheduler"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/internal/app/storage/memory"
	"github.com/trendforge/ingest/internal/app/storage/migrations"
	"github.com/trendforge/ingest/internal/app/storage/postgres"
	"github.com/trendforge/ingest/internal/app/storage/rediscache"
	"github.com/trendforge/ingest/internal/app/system"
	"github.com/trendforge/ingest/internal/config"
	"github.com/trendforge/ingest/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	facade, closeStorage, err := buildStorage(cfg)
	if err != nil {
		log.WithError(err).Fatal("build storage backend")
	}
	defer closeStorage()

	registry := pluginpkg.NewRegistry()
	if err := registerPlugins(registry, cfg); err != nil {
		log.WithError(err).Fatal("register plugins")
	}

	schedCfg := scheduler.Config{
		MaxConcurrency:     cfg.Scheduler.MaxConcurrency,
		DefaultTimeout:     cfg.Scheduler.DefaultTimeout(),
		TickRetryMax:       cfg.Scheduler.TickRetryMax,
		UnhealthyThreshold: cfg.Scheduler.UnhealthyThreshold,
		UnhealthyCooldown:  cfg.Scheduler.UnhealthyCooldown(),
		PollInterval:       cfg.Scheduler.PollInterval(),
		RateLimitWindow:    cfg.Scheduler.RateLimitWindow(),
		HistoryLimit:       cfg.Scheduler.HistoryLimit,
	}
	sched := scheduler.NewScheduler(registry, schedCfg, log)

	rec := recorder.New(facade.Runs, log)

	pcfg := pipelinecfg.Config{
		DedupThreshold:       cfg.Dedup.SemanticThreshold,
		DedupWindow:          time.Duration(cfg.Dedup.LookbackDays) * 24 * time.Hour,
		ClusterThreshold:     cfg.Cluster.Threshold,
		ClusterWindow:        time.Duration(cfg.Cluster.LookbackHours) * time.Hour,
		MinClusterSize:       cfg.Cluster.MinSize,
		FreshnessHalfLife:    time.Duration(cfg.Ranker.TauHours) * time.Hour,
		EngagementWeight:     cfg.Ranker.Weights.Engagement,
		VelocityWeight:       cfg.Ranker.Weights.Velocity,
		FreshnessWeight:      cfg.Ranker.Weights.Freshness,
		AgeWeight:            cfg.Ranker.Weights.Age,
		MaxPerCategoryInTopN: cfg.Ranker.DiversityCap,
	}

	ing := ingestor.New(facade, rec, nil, pcfg, log)
	sched.WithDispatcher(ing)

	ctrl := control.New(control.Config{
		ListenAddr:     cfg.Control.ListenAddr,
		IdempotencyTTL: cfg.Control.IdempotencyTTL(),
	}, sched, registry, facade, ing, log)

	services := []system.Service{sched, ctrl}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.WithField("service", svc.Name()).WithError(err).Fatal("failed to start service")
		}
	}
	log.Info("ingestd started")

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log.WithField("service", services[i].Name()).WithError(err).Warn("service did not shut down cleanly")
		}
	}
}

// buildStorage selects the in-memory or Postgres+Redis backed Storage
// Facade per storage.backend, applying migrations on the Postgres path.
func buildStorage(cfg *config.Config) (*storage.Facade, func(), error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		store := memory.New()
		facade := &storage.Facade{
			Items: store.Items(), Vectors: store.Vectors(), Cache: store.Cache(),
			Topics: store.Topics(), Trends: store.Trends(), Runs: store.Runs(),
		}
		return facade, func() {}, nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("storage.postgres_dsn is required when storage.backend=postgres")
		}
		if err := migrations.Apply(cfg.Storage.PostgresDSN); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		db, err := sqlx.Connect("postgres", cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pgStore := postgres.New(db)

		var cache storage.CacheStore
		closeFn := func() { _ = db.Close() }
		if cfg.Storage.RedisAddr != "" {
			redisCache := rediscache.New(rediscache.Config{Host: redisHost(cfg.Storage.RedisAddr), Port: redisPort(cfg.Storage.RedisAddr)})
			cache = redisCache
			prevClose := closeFn
			closeFn = func() { prevClose(); _ = redisCache.Close() }
		} else {
			cache = memory.New().Cache()
		}

		facade := &storage.Facade{
			Items: pgStore.Items(), Vectors: pgStore.Vectors(), Cache: cache,
			Topics: pgStore.Topics(), Trends: pgStore.Trends(), Runs: pgStore.Runs(),
		}
		return facade, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
}

func redisHost(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

func redisPort(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return "6379"
}

// registerPlugins builds one HTTPCollector per configured entry and
// registers it, disabling any whose config requests start_disabled.
func registerPlugins(registry *pluginpkg.Registry, cfg *config.Config) error {
	for _, pc := range cfg.Plugins {
		meta := plugin.Metadata{
			Category:         "",
			RateLimitPerHour: pc.RateLimitPerHour,
			CronExpression:   pc.Schedule,
			TimeoutSeconds:   pc.TimeoutSeconds,
			ConcurrencyHint:  pc.ConcurrencyHint,
		}
		collector, err := pluginpkg.NewHTTPCollector(pluginpkg.HTTPCollectorConfig{
			PluginName: pc.Name,
			URLs:       pc.URLs,
			AuthHeader: pc.AuthHeader,
			AuthToken:  pc.AuthToken,
			Fields: pluginpkg.FieldMap{
				ItemsPath:   pc.Fields.ItemsPath,
				SourceID:    pc.Fields.SourceID,
				Title:       pc.Fields.Title,
				Description: pc.Fields.Description,
				Content:     pc.Fields.Content,
				URL:         pc.Fields.URL,
				Author:      pc.Fields.Author,
				PublishedAt: pc.Fields.PublishedAt,
				Engagement:  pc.Fields.Engagement,
			},
			Metadata: meta,
		}, &http.Client{Timeout: time.Duration(pc.TimeoutSeconds) * time.Second})
		if err != nil {
			return fmt.Errorf("configure plugin %q: %w", pc.Name, err)
		}
		if err := registry.Register(collector); err != nil {
			return fmt.Errorf("register plugin %q: %w", pc.Name, err)
		}
		if pc.StartDisabled {
			if err := registry.SetEnabled(pc.Name, false); err != nil {
				return fmt.Errorf("disable plugin %q: %w", pc.Name, err)
			}
		}
	}
	return nil
}

// Sentinel - Fraud decisions with a model-health check.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/sentinel/internal/api"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/config"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/rules"
	"github.com/opensource-finance/sentinel/internal/scoring"
	"github.com/opensource-finance/sentinel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(logLevelName(cfg)),
	}))
	slog.SetDefault(logger)

	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"threshold", cfg.Scoring.Threshold,
		"model_path", cfg.Model.Path,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize explanation rules
	engine, err := rules.NewEngine(16)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize scoring; a missing or invalid artifact starts degraded
	svc, err := scoring.NewService(cfg.Scoring.Threshold)
	if err != nil {
		slog.Error("invalid threshold", "error", err)
		os.Exit(1)
	}
	if info, err := svc.Reload(cfg.Model.Path); err != nil {
		slog.Warn("no model loaded, scoring is degraded",
			"path", cfg.Model.Path,
			"error", err,
		)
	} else {
		slog.Info("model loaded",
			"model_version", info.Version,
			"format", info.Format,
			"expected_features", len(info.ExpectedFeatures),
		)
	}
	current := svc.Current()
	metrics.RecordModel(current.Loaded(), current.Threshold)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Scoring.AsyncWorkers {
		asyncWorker = worker.NewWorker(busImpl, scoring.NewPipeline(svc, engine, repo, busImpl))

		workerCfg := worker.Config{
			TenantIDs:   cfg.Scoring.WorkerTenants,
			WorkerCount: cfg.Scoring.WorkerCount,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(workerCfg.TenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg, api.Dependencies{
		Service: svc,
		Engine:  engine,
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("sentinel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
}

func logLevelName(cfg *domain.Config) string {
	if cfg == nil {
		return "info"
	}
	return cfg.Logging.Level
}

// loadRules loads the stored explanation rules into the engine, seeding the
// builtin set into an empty store first.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListRuleConfigs(ctx, domain.GlobalTenant)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if len(stored) == 0 {
		slog.Info("no rules in database, seeding builtin rules")
		for _, rule := range rules.BuiltinRules() {
			if err := repo.SaveRuleConfig(ctx, domain.GlobalTenant, rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
		if stored, err = repo.ListRuleConfigs(ctx, domain.GlobalTenant); err != nil {
			return fmt.Errorf("list rules: %w", err)
		}
	}

	slog.Info("loading rules from database", "count", len(stored))
	return engine.ReloadRules(stored)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SENTINEL - fraud decision & model-health engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                 - Score a transaction")
	fmt.Println("    POST /ingest                - Queue a transaction for async scoring")
	fmt.Println("    GET  /scores/{id}           - Get a stored score")
	fmt.Println("    GET  /health                - Model, threshold and drift verdict")
	fmt.Println("    GET  /ready                 - Readiness probe")
	fmt.Println("    GET  /metrics               - Prometheus metrics")
	fmt.Println("    GET  /drift/latest          - Latest drift report")
	fmt.Println("    GET  /optimizations/latest  - Latest threshold optimization")
	fmt.Println("    GET  /rules                 - List explanation rules")
	fmt.Println("    POST /rules                 - Create an explanation rule")
	fmt.Println("    POST /rules/reload          - Hot-reload rules from database")
	fmt.Println("    GET  /admin/model           - Serving model")
	fmt.Println("    POST /admin/model/reload    - Reload the model artifact")
	fmt.Println("    PUT  /admin/threshold       - Set the decision threshold")
	fmt.Println()
}

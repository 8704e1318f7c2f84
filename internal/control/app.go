package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/job"
	"github.com/vietddude/harvester/internal/health"
	"github.com/vietddude/harvester/internal/infra/cache"
	redisclient "github.com/vietddude/harvester/internal/infra/redis"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/infra/storage/memory"
	"github.com/vietddude/harvester/internal/infra/storage/postgres"
)

// QueueKeyPrefix prefixes every Redis list the app pushes to.
const QueueKeyPrefix = "harvester:"

// App owns the long-lived connections and the job runner.
type App struct {
	Runner  *Runner
	Results storage.ResultRepository
	Queue   *redisclient.ItemQueue

	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp connects to the configured stores and builds the runner.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()
	a := &App{log: log, healthMon: health.NewMonitor(0)}

	// 1. Output queue
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}
	a.redisClient = client
	a.Queue = redisclient.NewItemQueue(client, QueueKeyPrefix)
	a.healthMon.Register("redis", client)

	// 2. Result storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db.DB.DB); err != nil {
			_ = db.Close()
			_ = client.Close()
			return nil, err
		}
		a.db = db
		a.Results = postgres.NewResultRepo(db.DB)
		a.healthMon.Register("database", db)
		log.Info("Using PostgreSQL storage")
	} else {
		a.Results = memory.NewResultRepo()
		log.Info("Using Memory storage")
	}

	// 3. Runner
	var policy job.RetryPolicy = job.NoDelay{}
	if cfg.Jobs.RetryDelay > 0 {
		policy = job.ExponentialBackoff{InitialDelay: cfg.Jobs.RetryDelay, MaxDelay: cfg.Jobs.MaxDelay}
	}
	a.Runner = NewRunner(RunnerConfig{
		Queue:        a.Queue,
		Results:      a.Results,
		OpenCache:    cache.Opener,
		Policy:       policy,
		DefaultQueue: cfg.Jobs.Queue,
		CacheDir:     cfg.Cache.BaseDir,
		MaxRetries:   cfg.Jobs.MaxRetries,
		Version:      cfg.Jobs.Version,
		Logger:       log,
	})

	if cfg.Server.Port > 0 {
		a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)
	}
	return a, nil
}

// Health runs every dependency check.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Start starts the health server, if one is configured.
func (a *App) Start(ctx context.Context) error {
	if a.healthServer == nil {
		return nil
	}
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	return nil
}

// Stop releases every connection.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	return firstErr
}

// StopTimeout bounds graceful shutdown.
const StopTimeout = 5 * time.Second

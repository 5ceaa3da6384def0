// Package control wires the document-store driver, collection accessors,
// domain services and health surface into one application lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/steward-app/steward/internal/contractor"
	"github.com/steward-app/steward/internal/core/config"
	"github.com/steward-app/steward/internal/core/domain"
	"github.com/steward-app/steward/internal/docstore"
	"github.com/steward-app/steward/internal/health"
	"github.com/steward-app/steward/internal/infra/memory"
	"github.com/steward-app/steward/internal/infra/postgres"
	redisclient "github.com/steward-app/steward/internal/infra/redis"
)

// App is the assembled service: one driver, one accessor per collection,
// the contractor service and the health server.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	Contractors *docstore.Accessor[*domain.Contractor]
	Landlords   *docstore.Accessor[*domain.Landlord]
	Jobs        *docstore.Accessor[*domain.MaintenanceJob]
	JobFeed     *docstore.Manager[*domain.MaintenanceJob]
	Matching    *contractor.Service

	healthServer *health.Server
	redisClient  *redisclient.Client
	pg           *postgres.DB
}

// NewApp initializes every dependency from cfg.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	app := &App{cfg: cfg, log: slog.Default()}

	driver, err := app.initDriver(ctx)
	if err != nil {
		return nil, err
	}

	app.Contractors = docstore.NewAccessor(contractor.CollectionContractors, driver,
		docstore.JSONCodec[*domain.Contractor]{}, cfg.Cache, cfg.Retry, app.log)
	app.Landlords = docstore.NewAccessor(contractor.CollectionLandlords, driver,
		docstore.JSONCodec[*domain.Landlord]{}, cfg.Cache, cfg.Retry, app.log)
	app.Jobs = docstore.NewAccessor("maintenance_jobs", driver,
		docstore.JSONCodec[*domain.MaintenanceJob]{}, cfg.Cache, cfg.Retry, app.log)

	// Live job feed is only available on backends that can watch.
	if feed, err := docstore.NewManager("maintenance_jobs", driver,
		docstore.JSONCodec[*domain.MaintenanceJob]{}, app.log); err == nil {
		app.JobFeed = feed
	} else {
		slog.Warn("Live job feed disabled", "backend", cfg.Store.Backend, "reason", err)
	}

	var limiter contractor.UsageLimiter
	if cfg.Limits.RecommendationsPerHour > 0 {
		limiter = contractor.NewWindowLimiter(cfg.Limits.RecommendationsPerHour, time.Hour)
	}
	app.Matching = contractor.NewService(app.Contractors, app.Landlords, limiter, app.log)

	monitor := health.NewMonitor(map[string]health.Checker{
		contractor.CollectionContractors: app.Contractors,
		contractor.CollectionLandlords:   app.Landlords,
		"maintenance_jobs":               app.Jobs,
	})
	app.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return app, nil
}

func (a *App) initDriver(ctx context.Context) (docstore.Driver, error) {
	switch a.cfg.Store.Backend {
	case config.BackendRedis:
		client, err := redisclient.NewClient(a.cfg.Store.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		slog.Info("Using Redis document store")
		return redisclient.NewDriver(client), nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, a.cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.pg = db
		slog.Info("Using PostgreSQL document store")
		return postgres.NewDriver(db), nil

	default:
		slog.Info("Using in-memory document store")
		return memory.NewStore(), nil
	}
}

// Start brings up the health server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	slog.Info("Application started", "port", a.cfg.Server.Port, "backend", a.cfg.Store.Backend)
	return nil
}

// Stop shuts everything down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if err := a.healthServer.Stop(ctx); err != nil {
		slog.Warn("Health server shutdown failed", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			slog.Warn("Redis close failed", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			slog.Warn("Database close failed", "error", err)
		}
	}
	slog.Info("Application stopped")
	return nil
}

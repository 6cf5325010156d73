package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/config"
	"github.com/petnica-meteor-group/meteornet-server/pkg/database"
	"github.com/petnica-meteor-group/meteornet-server/pkg/ingest"
	"github.com/petnica-meteor-group/meteornet-server/pkg/logger"
	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/notify"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/rules"
	"github.com/petnica-meteor-group/meteornet-server/pkg/scheduler"
	"github.com/petnica-meteor-group/meteornet-server/pkg/status"
)

// App wires the services of one server process
type App struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       *database.DatabaseManager
	metrics  *metrics.Metrics
	table    models.StatusTable
	notifier notify.Notifier
	status   *status.Service
	engine   *ingest.Engine
	rules    *rules.Service
	pruner   *scheduler.Pruner
	closers  []func() error
}

// newApp connects to the database, migrates it, seeds the status table and
// builds the services on top of it.
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		cfg:     cfg,
		logger:  logger.WithComponent("app"),
		metrics: metrics.New(),
	}

	db, err := database.NewDatabaseManager(cfg.Database.DSN(), logger.WithComponent("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)
	db.OnHealthChange(app.metrics.RecordDatabaseHealth)

	if err := db.Init(ctx); err != nil {
		app.Close()
		return nil, err
	}

	table, err := repository.LoadStatusTable(ctx, db)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load status table: %w", err)
	}
	app.table = table

	if err := app.setupNotifier(); err != nil {
		app.Close()
		return nil, err
	}

	app.status = status.NewService(db, table, status.Config{
		Thresholds: status.Thresholds{
			Disconnected:  cfg.Stations.Disconnected,
			NotConnecting: cfg.Stations.NotConnecting,
		},
		Recency:  cfg.Stations.Recency,
		SiteName: cfg.Notify.SiteName,
		From:     cfg.Notify.From,
	}, app.notifier, logger.WithComponent("status"), status.WithMetrics(app.metrics))

	app.engine = ingest.NewEngine(db, table, ingest.Config{
		MaxUnapproved: cfg.Stations.MaxUnapproved,
	}, logger.WithComponent("ingest"),
		ingest.WithClassifier(app.status),
		ingest.WithMetrics(app.metrics),
	)

	app.rules = rules.NewService(db, table, rules.Limits{
		MaxExpression: cfg.Rules.MaxExpression,
		MaxMessage:    cfg.Rules.MaxMessage,
	}, logger.WithComponent("rules"))

	app.pruner = scheduler.NewPruner(db, cfg.Scheduler.RetentionAge, logger.WithComponent("retention"), app.metrics)

	return app, nil
}

func (a *App) setupNotifier() error {
	if a.cfg.Notify.NATSURL == "" {
		a.logger.Warn().Msg("NATS_URL not set, notifications are only logged")
		a.notifier = notify.NewLogNotifier(logger.WithComponent("notify"))
		return nil
	}

	n, err := notify.NewNATSNotifier(a.cfg.Notify.NATSURL, a.cfg.Notify.NATSSubject, logger.WithComponent("notify"))
	if err != nil {
		return err
	}
	a.notifier = n
	a.closers = append(a.closers, n.Close)
	return nil
}

// Close releases the notifier and the database, newest first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}

// routeDeps exposes the services to the HTTP layer
func (a *App) routeDeps() RouteDeps {
	return RouteDeps{
		Repo:    a.db,
		Table:   a.table,
		Engine:  a.engine,
		Status:  a.status,
		Rules:   a.rules,
		Users:   a.db,
		Health:  a.db,
		Metrics: a.metrics,
		Server:  a.cfg.Server,
		Recency: a.cfg.Stations.Recency,
		History: a.cfg.Stations.History,
	}
}

// withApp runs fn against a freshly wired App and closes it afterwards
func withApp(ctx context.Context, fn func(app *App) error) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

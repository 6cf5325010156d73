// Package database implements the station repository on PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
)

// DatabaseManager handles all database operations
type DatabaseManager struct {
	queries
	db            *sql.DB
	healthChecker *HealthChecker
	logger        zerolog.Logger
}

var _ repository.Repository = (*DatabaseManager)(nil)

// querier is the subset of *sql.DB and *sql.Tx the queries run on
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDatabaseManager connects to dsn and starts health checking
func NewDatabaseManager(dsn string, logger zerolog.Logger) (*DatabaseManager, error) {
	db, err := connectDatabase(dsn)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

func newManager(db *sql.DB, logger zerolog.Logger) *DatabaseManager {
	dm := &DatabaseManager{
		db:            db,
		healthChecker: NewHealthChecker(db, 30*time.Second, logger),
		logger:        logger,
	}
	dm.queries = queries{q: checkedDB{dm: dm}}

	// Start health checking
	dm.healthChecker.Start()

	return dm
}

// GetDB returns the underlying database connection
func (dm *DatabaseManager) GetDB() *sql.DB {
	return dm.db
}

// Close closes the database connection and stops health checking
func (dm *DatabaseManager) Close() error {
	if dm.healthChecker != nil {
		dm.healthChecker.Stop()
	}
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

// OnHealthChange registers fn to be called with every health check result
func (dm *DatabaseManager) OnHealthChange(fn func(healthy bool)) {
	dm.healthChecker.SetObserver(fn)
}

// QueryWithHealthCheck executes a query with connection health verification
func (dm *DatabaseManager) QueryWithHealthCheck(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.QueryContext(ctx, query, args...)
}

// QueryRowWithHealthCheck executes a query that returns a single row with health check
func (dm *DatabaseManager) QueryRowWithHealthCheck(ctx context.Context, query string, args ...any) *sql.Row {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		// Return a row that will fail on scan
		return dm.db.QueryRowContext(context.Background(), "SELECT NULL WHERE FALSE")
	}

	return dm.db.QueryRowContext(ctx, query, args...)
}

// ExecWithHealthCheck executes a statement with connection health verification
func (dm *DatabaseManager) ExecWithHealthCheck(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.ExecContext(ctx, query, args...)
}

// IsConnectionHealthy returns the current health status
func (dm *DatabaseManager) IsConnectionHealthy() bool {
	return dm.healthChecker.IsHealthy()
}

// InTx runs fn in one transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (dm *DatabaseManager) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return err
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			dm.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Init initializes the database with migrations
func (dm *DatabaseManager) Init(ctx context.Context) error {
	dm.logger.Info().Msg("Running database migrations")

	runner, err := NewMigrationsRunner(dm.db, dm.logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.logger.Info().Msg("Database initialization completed")
	return nil
}

// checkedDB runs statements outside a transaction through the health
// checked helpers
type checkedDB struct {
	dm *DatabaseManager
}

func (c checkedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.dm.ExecWithHealthCheck(ctx, query, args...)
}

func (c checkedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.dm.QueryWithHealthCheck(ctx, query, args...)
}

func (c checkedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.dm.QueryRowWithHealthCheck(ctx, query, args...)
}

// connectDatabase establishes a connection to the database
func connectDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

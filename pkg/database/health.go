package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker monitors database connection health
type HealthChecker struct {
	db            *sql.DB
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	ticker        *time.Ticker
	mu            sync.RWMutex
	isHealthy     bool
	observer      func(healthy bool)
	logger        zerolog.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, checkInterval time.Duration, logger zerolog.Logger) *HealthChecker {
	return &HealthChecker{
		db:            db,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		isHealthy:     true,
		logger:        logger,
	}
}

// SetObserver registers fn to receive every health check result
func (chc *HealthChecker) SetObserver(fn func(healthy bool)) {
	chc.mu.Lock()
	defer chc.mu.Unlock()
	chc.observer = fn
}

// Start begins monitoring the database connection
func (chc *HealthChecker) Start() {
	chc.ticker = time.NewTicker(chc.checkInterval)
	ticker := chc.ticker

	go func() {
		for {
			select {
			case <-chc.stopChan:
				ticker.Stop()
				return
			case <-ticker.C:
				chc.checkConnection()
			}
		}
	}()
}

// Stop stops monitoring the database connection
func (chc *HealthChecker) Stop() {
	chc.stopOnce.Do(func() { close(chc.stopChan) })
}

// checkConnection pings the database and records the result. The pool
// reconnects on its own, so a failed check only flips the flag.
func (chc *HealthChecker) checkConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := chc.db.PingContext(ctx)
	chc.setHealthy(err == nil, err)
}

func (chc *HealthChecker) setHealthy(healthy bool, err error) {
	chc.mu.Lock()
	was := chc.isHealthy
	chc.isHealthy = healthy
	observer := chc.observer
	chc.mu.Unlock()

	switch {
	case !healthy && was:
		chc.logger.Error().Err(err).Msg("Database connection health check failed")
	case healthy && !was:
		chc.logger.Info().Msg("Database connection restored")
	}
	if observer != nil {
		observer(healthy)
	}
}

// IsHealthy returns the current health status of the connection
func (chc *HealthChecker) IsHealthy() bool {
	chc.mu.RLock()
	defer chc.mu.RUnlock()
	return chc.isHealthy
}

// EnsureConnection fails fast while the connection is known to be down and
// otherwise verifies it with a short ping.
func (chc *HealthChecker) EnsureConnection(ctx context.Context) error {
	if !chc.IsHealthy() {
		return fmt.Errorf("database connection is not healthy")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := chc.db.PingContext(pingCtx); err != nil {
		if ctx.Err() == nil {
			chc.setHealthy(false, err)
		}
		return fmt.Errorf("database connection check failed: %w", err)
	}

	return nil
}

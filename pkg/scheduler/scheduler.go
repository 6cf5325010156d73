// Package scheduler runs the periodic status scan and retention cycles.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
)

// Cycle is one periodic task
type Cycle struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once before the first wait.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Scheduler runs cycles concurrently until its context is cancelled
type Scheduler struct {
	cycles  []Cycle
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a new scheduler
func New(logger zerolog.Logger, m *metrics.Metrics, cycles ...Cycle) *Scheduler {
	return &Scheduler{
		cycles:  cycles,
		logger:  logger,
		metrics: m,
	}
}

// Run starts every cycle and blocks until ctx is cancelled and all cycles
// have stopped. A run in progress when ctx is cancelled is finished first.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.cycles {
		c := c
		g.Go(func() error {
			s.loop(gctx, c)
			return nil
		})
	}

	s.logger.Info().Int("cycles", len(s.cycles)).Msg("Scheduler started")
	err := g.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, c Cycle) {
	logger := s.logger.With().Str("cycle", c.Name).Logger()
	logger.Info().Dur("interval", c.Interval).Msg("Cycle started")

	if c.Immediate {
		s.runOnce(ctx, c, logger)
	}

	timer := time.NewTimer(c.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Cycle stopped")
			return
		case <-timer.C:
		}

		s.runOnce(ctx, c, logger)
		timer.Reset(c.Interval)
	}
}

// runOnce executes one run of c. The run gets a context that is not
// cancelled with ctx, so shutdown never interrupts a run midway.
func (s *Scheduler) runOnce(ctx context.Context, c Cycle, logger zerolog.Logger) {
	start := time.Now()
	err := c.Run(context.WithoutCancel(ctx))
	duration := time.Since(start)

	s.metrics.RecordCycle(c.Name, duration)
	if err != nil {
		s.metrics.RecordCycleError(c.Name)
		logger.Error().Err(err).Dur("duration", duration).Msg("Cycle run failed")
		return
	}
	logger.Debug().Dur("duration", duration).Msg("Cycle run finished")
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
)

// Cycle names
const (
	ScanCycle      = "scan"
	RetentionCycle = "retention"
)

// Classifier classifies every approved station
type Classifier interface {
	ClassifyAll(ctx context.Context) (classified, failed int, err error)
}

// NewScanCycle classifies all stations right away and then every interval.
func NewScanCycle(c Classifier, interval time.Duration, logger zerolog.Logger, m *metrics.Metrics) Cycle {
	return Cycle{
		Name:      ScanCycle,
		Interval:  interval,
		Immediate: true,
		Run: func(ctx context.Context) error {
			classified, failed, err := c.ClassifyAll(ctx)
			if err != nil {
				return err
			}
			for i := 0; i < failed; i++ {
				m.RecordCycleError(ScanCycle)
			}
			logger.Info().Int("classified", classified).Int("failed", failed).Msg("Status scan finished")
			return nil
		},
	}
}

// BatchPruner deletes measurement batches older than a cutoff
type BatchPruner interface {
	DeleteBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner enforces the measurement retention window
type Pruner struct {
	store   BatchPruner
	age     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPruner creates a pruner that keeps batches younger than age
func NewPruner(store BatchPruner, age time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Pruner {
	return &Pruner{
		store:   store,
		age:     age,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Prune deletes every batch older than the retention age and returns how
// many were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.age)
	n, err := p.store.DeleteBatchesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune batches before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	p.metrics.RecordPruned(n)
	p.logger.Info().Int64("batches", n).Time("cutoff", cutoff).Msg("Old measurements pruned")
	return n, nil
}

// NewRetentionCycle prunes every interval, first after one full interval.
func NewRetentionCycle(p *Pruner, interval time.Duration) Cycle {
	return Cycle{
		Name:     RetentionCycle,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := p.Prune(ctx)
			return err
		},
	}
}

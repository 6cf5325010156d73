package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository/memory"
)

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_ImmediateAndDelayedCycles(t *testing.T) {
	var immediate, delayed atomic.Int32

	s := New(zerolog.Nop(), nil,
		Cycle{Name: "immediate", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
			immediate.Add(1)
			return nil
		}},
		Cycle{Name: "delayed", Interval: time.Hour, Run: func(context.Context) error {
			delayed.Add(1)
			return nil
		}},
	)
	runFor(t, s, 50*time.Millisecond)

	assert.Equal(t, int32(1), immediate.Load())
	assert.Equal(t, int32(0), delayed.Load())
}

func TestScheduler_RepeatsAndSurvivesErrors(t *testing.T) {
	var runs atomic.Int32
	m := metrics.New()

	s := New(zerolog.Nop(), m, Cycle{Name: "flaky", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}})
	runFor(t, s, 100*time.Millisecond)

	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestScheduler_ShutdownWaitsForRunInProgress(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	var runCtxErr atomic.Value

	s := New(zerolog.Nop(), nil, Cycle{Name: "slow", Interval: time.Hour, Immediate: true, Run: func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		runCtxErr.Store(ctx.Err() == nil)
		finished.Store(true)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)

	assert.True(t, finished.Load())
	assert.Equal(t, true, runCtxErr.Load())
}

type fakeClassifier struct {
	calls atomic.Int32
}

func (f *fakeClassifier) ClassifyAll(context.Context) (int, int, error) {
	f.calls.Add(1)
	return 3, 1, nil
}

func TestScanCycle(t *testing.T) {
	c := &fakeClassifier{}
	m := metrics.New()
	cycle := NewScanCycle(c, 15*time.Minute, zerolog.Nop(), m)

	assert.Equal(t, ScanCycle, cycle.Name)
	assert.True(t, cycle.Immediate)
	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestPruner_Retention(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	component := &models.Component{Name: "S"}
	require.NoError(t, repo.CreateComponent(ctx, component))
	for _, age := range []time.Duration{366 * 24 * time.Hour, 364 * 24 * time.Hour, time.Hour} {
		require.NoError(t, repo.CreateBatch(ctx, &models.MeasurementBatch{
			ComponentID:  component.ID,
			Timestamp:    now.Add(-age),
			Measurements: []models.Measurement{{Key: "t", Value: "1"}},
		}))
	}

	p := NewPruner(repo, 365*24*time.Hour, zerolog.Nop(), metrics.New())
	p.now = func() time.Time { return now }

	n, err := p.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := repo.ListBatches(ctx, component.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, now.Add(-364*24*time.Hour), left[0].Timestamp)

	cycle := NewRetentionCycle(p, 24*time.Hour)
	assert.False(t, cycle.Immediate)
	require.NoError(t, cycle.Run(ctx))
}

type failingPruner struct{}

func (failingPruner) DeleteBatchesBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database down")
}

func TestPruner_Error(t *testing.T) {
	p := NewPruner(failingPruner{}, time.Hour, zerolog.Nop(), nil)
	_, err := p.Prune(context.Background())
	assert.ErrorContains(t, err, "database down")
}

package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/notify"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/rules"
)

// ErrNotApproved is returned when classifying a station that is still
// awaiting approval.
var ErrNotApproved = errors.New("station is not approved")

// Config holds the classifier settings
type Config struct {
	Thresholds Thresholds
	// Recency is how far back rule evaluation looks for measurements.
	Recency  time.Duration
	SiteName string
	From     string
}

// Decision is the outcome of classifying one station
type Decision struct {
	Station   models.Station
	Previous  models.Status
	Status    models.Status
	Broken    []models.StatusRule
	Escalated bool
	// Notified is set when a notification was handed to the notifier.
	Notified bool
}

// Service classifies stored stations and writes their status back
type Service struct {
	repo     repository.Repository
	table    models.StatusTable
	cfg      Config
	notifier notify.Notifier
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records classifications and notifications on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new classification service
func NewService(repo repository.Repository, table models.StatusTable, cfg Config, notifier notify.Notifier, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		table:    table,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClassifyStation classifies one approved station and stores its new
// status. On escalation the maintainers are notified inside the same
// transaction, so a failed notification leaves the stored status as it was.
func (s *Service) ClassifyStation(ctx context.Context, networkID string) (*Decision, error) {
	var decision *Decision

	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		station, err := q.GetStationForUpdate(ctx, networkID)
		if err != nil {
			return fmt.Errorf("failed to load station %s: %w", networkID, err)
		}
		if !station.Approved {
			return ErrNotApproved
		}

		d, err := s.decide(ctx, q, *station)
		if err != nil {
			return err
		}

		if d.Escalated {
			if err := s.notify(ctx, q, d); err != nil {
				return err
			}
		}

		station.StatusID = d.Status.ID
		if err := q.UpdateStation(ctx, station); err != nil {
			return fmt.Errorf("failed to store station status: %w", err)
		}
		d.Station = *station
		decision = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClassification(decision.Status.Name)
	if decision.Status.ID != decision.Previous.ID {
		s.logger.Info().
			Str("network_id", networkID).
			Str("from", decision.Previous.Name).
			Str("to", decision.Status.Name).
			Bool("escalated", decision.Escalated).
			Msg("Station status changed")
	}
	return decision, nil
}

func (s *Service) decide(ctx context.Context, q repository.Queries, station models.Station) (*Decision, error) {
	now := s.now()

	errs, err := q.ListErrors(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list errors: %w", err)
	}

	var loadErr error
	status, broken := Classify(s.table, s.cfg.Thresholds, Inputs{
		LastUpdated: station.LastUpdated,
		Now:         now,
		HasErrors:   len(errs) > 0,
		Broken: func() []models.StatusRule {
			var b []models.StatusRule
			b, loadErr = s.brokenRules(ctx, q, station, now)
			return b
		},
	})
	if loadErr != nil {
		return nil, loadErr
	}

	previous, ok := s.table.ByID(station.StatusID)
	if !ok {
		previous = s.table.Lowest()
	}

	return &Decision{
		Station:   station,
		Previous:  previous,
		Status:    status,
		Broken:    broken,
		Escalated: Escalated(previous, status),
	}, nil
}

func (s *Service) brokenRules(ctx context.Context, q repository.Queries, station models.Station, now time.Time) ([]models.StatusRule, error) {
	stored, err := q.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	snapshot, err := s.snapshot(ctx, q, station, now)
	if err != nil {
		return nil, err
	}
	return rules.BrokenRules(stored, snapshot, s.logger.With().Str("network_id", station.NetworkID).Logger()), nil
}

// snapshot gathers the latest value of every key measured within the
// recency window.
func (s *Service) snapshot(ctx context.Context, q repository.Queries, station models.Station, now time.Time) (rules.Snapshot, error) {
	components, err := q.ListComponents(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}

	snapshot := make(rules.Snapshot)
	for _, c := range components {
		batches, err := q.ListBatches(ctx, c.ID, now.Add(-s.cfg.Recency))
		if err != nil {
			return nil, fmt.Errorf("failed to list batches of %s: %w", c.Name, err)
		}
		snapshot.Add(c.Name, batches)
	}
	return snapshot, nil
}

func (s *Service) notify(ctx context.Context, q repository.Queries, d *Decision) error {
	maintainers, err := q.ListMaintainers(ctx, d.Station.ID)
	if err != nil {
		return fmt.Errorf("failed to list maintainers: %w", err)
	}

	n, skipped := notify.Compose(s.cfg.SiteName, s.cfg.From, d.Station, d.Status, d.Broken, maintainers)
	for _, p := range skipped {
		s.logger.Warn().Str("network_id", d.Station.NetworkID).Str("email", p.Email).Msg("Skipping invalid maintainer email")
	}
	if len(n.To) == 0 {
		s.logger.Info().Str("network_id", d.Station.NetworkID).Msg("No maintainer to notify")
		return nil
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.RecordNotification(false)
		return fmt.Errorf("failed to notify maintainers: %w", err)
	}
	s.metrics.RecordNotification(true)
	d.Notified = true
	return nil
}

// ClassifyAll classifies every approved station. A failure on one station
// is logged and does not stop the others; the number of failures is
// returned.
func (s *Service) ClassifyAll(ctx context.Context) (classified, failed int, err error) {
	stations, err := s.repo.ListStations(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list stations: %w", err)
	}

	for _, station := range stations {
		if _, err := s.ClassifyStation(ctx, station.NetworkID); err != nil {
			failed++
			s.logger.Error().Err(err).Str("network_id", station.NetworkID).Msg("Failed to classify station")
			continue
		}
		classified++
	}
	return classified, failed, nil
}

// BrokenRules returns the rules a station currently breaks, for display.
func (s *Service) BrokenRules(ctx context.Context, station models.Station) ([]models.StatusRule, error) {
	return s.brokenRules(ctx, s.repo, station, s.now())
}

// Package ingest applies station registrations and telemetry updates to the
// station graph.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/status"
)

var (
	// ErrUnknownStation is returned when a network id matches no station.
	ErrUnknownStation = errors.New("unknown station")
	// ErrAlreadyApproved is returned when rejecting an approved station.
	ErrAlreadyApproved = errors.New("station is already approved")
)

// DefaultMaxUnapproved is the default cap on pending registrations
const DefaultMaxUnapproved = 30

// Classifier reclassifies a station after it reported
type Classifier interface {
	ClassifyStation(ctx context.Context, networkID string) (*status.Decision, error)
}

// Config holds the engine settings
type Config struct {
	// MaxUnapproved is the number of pending registrations at which
	// Register starts refusing.
	MaxUnapproved int
}

// Engine reconciles inbound station payloads with the stored graph
type Engine struct {
	repo       repository.Repository
	table      models.StatusTable
	cfg        Config
	classifier Classifier
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClassifier reclassifies approved stations after every accepted update
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithMetrics records request outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new reconciliation engine
func NewEngine(repo repository.Repository, table models.StatusTable, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.MaxUnapproved <= 0 {
		cfg.MaxUnapproved = DefaultMaxUnapproved
	}
	e := &Engine{
		repo:   repo,
		table:  table,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewNetworkID returns a fresh station identifier: 32 lowercase hex digits.
func NewNetworkID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register creates an unapproved station from p and returns its network id.
// It returns "" when the number of pending registrations has reached the
// cap.
func (e *Engine) Register(ctx context.Context, p Payload) (string, error) {
	var networkID string

	err := e.repo.InTx(ctx, func(q repository.Queries) error {
		pending, err := q.CountStations(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to count pending stations: %w", err)
		}
		if pending >= e.cfg.MaxUnapproved {
			return nil
		}

		station := &models.Station{
			NetworkID:   NewNetworkID(),
			LastUpdated: e.now().UTC(),
			StatusID:    e.table.Lowest().ID,
		}
		if skipped := applyStationFields(station, p); len(skipped) > 0 {
			e.logger.Debug().Strs("fields", skipped).Msg("Skipped malformed station fields")
		}
		if ts, ok := p.Timestamp(); ok {
			station.LastUpdated = ts
		}

		if err := q.CreateStation(ctx, station); err != nil {
			return fmt.Errorf("failed to create station: %w", err)
		}
		networkID = station.NetworkID
		return nil
	})
	if err != nil {
		e.metrics.RecordIngest("register", "failed")
		return "", err
	}

	if networkID == "" {
		e.metrics.RecordIngest("register", "capped")
		e.logger.Warn().Int("max_unapproved", e.cfg.MaxUnapproved).Msg("Registration refused, too many pending stations")
		return "", nil
	}

	e.metrics.RecordIngest("register", "accepted")
	e.logger.Info().Str("network_id", networkID).Msg("Station registered")
	return networkID, nil
}

// Submit applies one station update. It returns false when the station is
// unknown or an error report names no component. Updates from unapproved
// stations are accepted and discarded.
func (e *Engine) Submit(ctx context.Context, p Payload) (bool, error) {
	networkID, ok := p.String(FieldNetworkID)
	if !ok {
		e.metrics.RecordIngest("data", "unknown")
		return false, nil
	}

	station, err := e.repo.GetStation(ctx, networkID)
	if errors.Is(err, repository.ErrNotFound) {
		e.metrics.RecordIngest("data", "unknown")
		return false, nil
	}
	if err != nil {
		e.metrics.RecordIngest("data", "failed")
		return false, fmt.Errorf("failed to load station: %w", err)
	}
	if !station.Approved {
		e.metrics.RecordIngest("data", "unapproved")
		return true, nil
	}

	result := "accepted"
	if _, isError := p[FieldError]; isError {
		result = "error_report"
		err = e.recordError(ctx, networkID, p)
	} else {
		err = e.applyUpdate(ctx, networkID, p)
	}
	if errors.Is(err, ErrUnknownStation) || errors.Is(err, errMissingComponent) {
		e.metrics.RecordIngest("data", "rejected")
		e.logger.Debug().Err(err).Str("network_id", networkID).Msg("Update rejected")
		return false, nil
	}
	if err != nil {
		e.metrics.RecordIngest("data", "failed")
		return false, err
	}

	e.metrics.RecordIngest("data", result)
	e.reclassify(ctx, networkID)
	return true, nil
}

var errMissingComponent = errors.New("error report names no component")

// recordError stores an error report. A component name that matches no
// component of the station is kept as text with no component reference.
func (e *Engine) recordError(ctx context.Context, networkID string, p Payload) error {
	componentName, ok := p.String(FieldComponent)
	if !ok {
		return errMissingComponent
	}
	message, ok := p.String(FieldError)
	if !ok {
		message = fmt.Sprint(p[FieldError])
	}

	return e.repo.InTx(ctx, func(q repository.Queries) error {
		station, err := q.GetStation(ctx, networkID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownStation
		}
		if err != nil {
			return fmt.Errorf("failed to load station: %w", err)
		}

		report := &models.Error{
			StationID: station.ID,
			Component: componentName,
			Message:   message,
			Timestamp: e.now().UTC(),
		}
		if ts, ok := p.Timestamp(); ok {
			report.Timestamp = ts
		}

		components, err := q.ListComponents(ctx, station.ID)
		if err != nil {
			return fmt.Errorf("failed to list components: %w", err)
		}
		for _, c := range components {
			if c.Name == componentName {
				id := c.ID
				report.ComponentID = &id
				break
			}
		}
		if report.ComponentID == nil {
			e.logger.Warn().Str("network_id", networkID).Str("component", componentName).Msg("Error report for unknown component")
		}

		if err := q.CreateError(ctx, report); err != nil {
			return fmt.Errorf("failed to store error report: %w", err)
		}
		e.logger.Info().Str("network_id", networkID).Str("component", componentName).Msg("Station error recorded")
		return nil
	})
}

// applyUpdate merges a data update into the station graph in one
// transaction.
func (e *Engine) applyUpdate(ctx context.Context, networkID string, p Payload) error {
	return e.repo.InTx(ctx, func(q repository.Queries) error {
		station, err := q.GetStationForUpdate(ctx, networkID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownStation
		}
		if err != nil {
			return fmt.Errorf("failed to lock station: %w", err)
		}

		if skipped := applyStationFields(station, p); len(skipped) > 0 {
			e.logger.Debug().Str("network_id", networkID).Strs("fields", skipped).Msg("Skipped malformed station fields")
		}
		timestamp, hasTimestamp := p.Timestamp()
		if hasTimestamp {
			station.LastUpdated = timestamp
		}

		components, err := q.ListComponents(ctx, station.ID)
		if err != nil {
			return fmt.Errorf("failed to list components: %w", err)
		}
		byName := make(map[string]int, len(components))
		for i := range components {
			components[i].Old = true
			if _, seen := byName[components[i].Name]; !seen {
				byName[components[i].Name] = i
			}
		}

		batches := 0
		for _, entry := range p.components() {
			i, ok := byName[entry.Name]
			if ok {
				components[i].Old = false
			} else {
				c := models.Component{StationID: station.ID, Name: entry.Name}
				if err := q.CreateComponent(ctx, &c); err != nil {
					return fmt.Errorf("failed to create component %s: %w", entry.Name, err)
				}
				components = append(components, c)
				i = len(components) - 1
				byName[entry.Name] = i
			}

			if !entry.HasMeasurements || !hasTimestamp {
				continue
			}
			batch := &models.MeasurementBatch{
				ComponentID:  components[i].ID,
				Timestamp:    timestamp,
				Measurements: entry.Measurements,
			}
			if err := q.CreateBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to store measurements of %s: %w", entry.Name, err)
			}
			batches++
		}

		for i := range components {
			if err := q.UpdateComponent(ctx, &components[i]); err != nil {
				return fmt.Errorf("failed to update component %s: %w", components[i].Name, err)
			}
		}

		if records, present := p.maintainers(); present {
			if err := q.LockMaintainers(ctx); err != nil {
				return fmt.Errorf("failed to lock maintainers: %w", err)
			}
			if err := reconcileMaintainers(ctx, q, station, records); err != nil {
				return err
			}
		}

		if err := q.UpdateStation(ctx, station); err != nil {
			return fmt.Errorf("failed to update station: %w", err)
		}

		e.logger.Debug().Str("network_id", networkID).Int("batches", batches).Msg("Station updated")
		return nil
	})
}

// reclassify runs the classifier for a station that just reported. The
// update is already committed, so a failure is only logged.
func (e *Engine) reclassify(ctx context.Context, networkID string) {
	if e.classifier == nil {
		return
	}
	if _, err := e.classifier.ClassifyStation(ctx, networkID); err != nil {
		e.logger.Warn().Err(err).Str("network_id", networkID).Msg("Failed to reclassify station")
	}
}

// Approve marks a pending station approved
func (e *Engine) Approve(ctx context.Context, networkID string) error {
	err := e.repo.InTx(ctx, func(q repository.Queries) error {
		station, err := q.GetStationForUpdate(ctx, networkID)
		if err != nil {
			return err
		}
		station.Approved = true
		return q.UpdateStation(ctx, station)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownStation, networkID)
	}
	if err != nil {
		return fmt.Errorf("failed to approve station: %w", err)
	}

	e.logger.Info().Str("network_id", networkID).Msg("Station approved")
	return nil
}

// Reject deletes a pending station
func (e *Engine) Reject(ctx context.Context, networkID string) error {
	return e.deleteStation(ctx, networkID, true)
}

// DeleteStation deletes a station with its components, measurements and
// errors. Maintainers left without a station are deleted too.
func (e *Engine) DeleteStation(ctx context.Context, networkID string) error {
	return e.deleteStation(ctx, networkID, false)
}

func (e *Engine) deleteStation(ctx context.Context, networkID string, pendingOnly bool) error {
	err := e.repo.InTx(ctx, func(q repository.Queries) error {
		station, err := q.GetStationForUpdate(ctx, networkID)
		if err != nil {
			return err
		}
		if pendingOnly && station.Approved {
			return ErrAlreadyApproved
		}

		if err := q.LockMaintainers(ctx); err != nil {
			return fmt.Errorf("failed to lock maintainers: %w", err)
		}
		maintainers, err := q.ListMaintainers(ctx, station.ID)
		if err != nil {
			return fmt.Errorf("failed to list maintainers: %w", err)
		}
		if err := q.DeleteStation(ctx, station.ID); err != nil {
			return fmt.Errorf("failed to delete station: %w", err)
		}
		for _, person := range maintainers {
			if err := deleteIfOrphaned(ctx, q, person); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownStation, networkID)
	}
	if err != nil {
		return err
	}

	e.logger.Info().Str("network_id", networkID).Bool("rejected", pendingOnly).Msg("Station deleted")
	return nil
}

// ResolveError deletes a station error report
func (e *Engine) ResolveError(ctx context.Context, id uuid.UUID) error {
	if err := e.repo.DeleteError(ctx, id); err != nil {
		return fmt.Errorf("failed to resolve error %s: %w", id, err)
	}
	e.logger.Info().Str("error_id", id.String()).Msg("Station error resolved")
	return nil
}

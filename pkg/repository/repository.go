// Package repository defines the persistence contract of the station graph.
// pkg/database implements it on Postgres and pkg/repository/memory in
// process memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Queries is the set of reads and writes available both on the repository
// and inside a transaction.
type Queries interface {
	CreateStation(ctx context.Context, station *models.Station) error
	GetStation(ctx context.Context, networkID string) (*models.Station, error)
	// GetStationForUpdate reads a station and holds it locked until the
	// surrounding transaction ends.
	GetStationForUpdate(ctx context.Context, networkID string) (*models.Station, error)
	UpdateStation(ctx context.Context, station *models.Station) error
	// DeleteStation removes a station with its components, batches, errors
	// and maintainer links.
	DeleteStation(ctx context.Context, id uuid.UUID) error
	ListStations(ctx context.Context, approved bool) ([]models.Station, error)
	CountStations(ctx context.Context, approved bool) (int, error)

	ListComponents(ctx context.Context, stationID uuid.UUID) ([]models.Component, error)
	CreateComponent(ctx context.Context, component *models.Component) error
	UpdateComponent(ctx context.Context, component *models.Component) error

	CreateBatch(ctx context.Context, batch *models.MeasurementBatch) error
	// ListBatches returns the batches of a component taken after since,
	// oldest first.
	ListBatches(ctx context.Context, componentID uuid.UUID, since time.Time) ([]models.MeasurementBatch, error)
	// DeleteBatchesBefore removes batches older than cutoff together with
	// their measurements and reports how many batches were removed.
	DeleteBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateError(ctx context.Context, e *models.Error) error
	ListErrors(ctx context.Context, stationID uuid.UUID) ([]models.Error, error)
	DeleteError(ctx context.Context, id uuid.UUID) error

	// LockMaintainers takes the exclusive maintainer-pool lock for the rest
	// of the transaction.
	LockMaintainers(ctx context.Context) error
	ListMaintainers(ctx context.Context, stationID uuid.UUID) ([]models.Person, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	CreatePerson(ctx context.Context, person *models.Person) error
	AttachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error
	DetachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error
	CountPersonStations(ctx context.Context, personID uuid.UUID) (int, error)
	DeletePerson(ctx context.Context, personID uuid.UUID) error

	// SeedStatuses inserts the statuses when none exist yet.
	SeedStatuses(ctx context.Context, statuses []models.Status) error
	ListStatuses(ctx context.Context) ([]models.Status, error)

	CreateRule(ctx context.Context, rule *models.StatusRule) error
	ListRules(ctx context.Context) ([]models.StatusRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// Repository is the station graph store
type Repository interface {
	Queries
	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// LoadStatusTable seeds the default statuses if needed and returns the
// ordered status table.
func LoadStatusTable(ctx context.Context, q Queries) (models.StatusTable, error) {
	if err := q.SeedStatuses(ctx, models.DefaultStatuses()); err != nil {
		return models.StatusTable{}, err
	}
	statuses, err := q.ListStatuses(ctx)
	if err != nil {
		return models.StatusTable{}, err
	}
	return models.NewStatusTable(statuses)
}

package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

func (r *Repository) CreateStation(ctx context.Context, station *models.Station) error {
	return r.with(func(s *store) error { return s.CreateStation(ctx, station) })
}

func (r *Repository) GetStation(ctx context.Context, networkID string) (*models.Station, error) {
	var out *models.Station
	err := r.with(func(s *store) (err error) {
		out, err = s.GetStation(ctx, networkID)
		return err
	})
	return out, err
}

func (r *Repository) GetStationForUpdate(ctx context.Context, networkID string) (*models.Station, error) {
	var out *models.Station
	err := r.with(func(s *store) (err error) {
		out, err = s.GetStationForUpdate(ctx, networkID)
		return err
	})
	return out, err
}

func (r *Repository) UpdateStation(ctx context.Context, station *models.Station) error {
	return r.with(func(s *store) error { return s.UpdateStation(ctx, station) })
}

func (r *Repository) DeleteStation(ctx context.Context, id uuid.UUID) error {
	return r.with(func(s *store) error { return s.DeleteStation(ctx, id) })
}

func (r *Repository) ListStations(ctx context.Context, approved bool) ([]models.Station, error) {
	var out []models.Station
	err := r.with(func(s *store) (err error) {
		out, err = s.ListStations(ctx, approved)
		return err
	})
	return out, err
}

func (r *Repository) CountStations(ctx context.Context, approved bool) (int, error) {
	var out int
	err := r.with(func(s *store) (err error) {
		out, err = s.CountStations(ctx, approved)
		return err
	})
	return out, err
}

func (r *Repository) ListComponents(ctx context.Context, stationID uuid.UUID) ([]models.Component, error) {
	var out []models.Component
	err := r.with(func(s *store) (err error) {
		out, err = s.ListComponents(ctx, stationID)
		return err
	})
	return out, err
}

func (r *Repository) CreateComponent(ctx context.Context, component *models.Component) error {
	return r.with(func(s *store) error { return s.CreateComponent(ctx, component) })
}

func (r *Repository) UpdateComponent(ctx context.Context, component *models.Component) error {
	return r.with(func(s *store) error { return s.UpdateComponent(ctx, component) })
}

func (r *Repository) CreateBatch(ctx context.Context, batch *models.MeasurementBatch) error {
	return r.with(func(s *store) error { return s.CreateBatch(ctx, batch) })
}

func (r *Repository) ListBatches(ctx context.Context, componentID uuid.UUID, since time.Time) ([]models.MeasurementBatch, error) {
	var out []models.MeasurementBatch
	err := r.with(func(s *store) (err error) {
		out, err = s.ListBatches(ctx, componentID, since)
		return err
	})
	return out, err
}

func (r *Repository) DeleteBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var out int64
	err := r.with(func(s *store) (err error) {
		out, err = s.DeleteBatchesBefore(ctx, cutoff)
		return err
	})
	return out, err
}

func (r *Repository) CreateError(ctx context.Context, e *models.Error) error {
	return r.with(func(s *store) error { return s.CreateError(ctx, e) })
}

func (r *Repository) ListErrors(ctx context.Context, stationID uuid.UUID) ([]models.Error, error) {
	var out []models.Error
	err := r.with(func(s *store) (err error) {
		out, err = s.ListErrors(ctx, stationID)
		return err
	})
	return out, err
}

func (r *Repository) DeleteError(ctx context.Context, id uuid.UUID) error {
	return r.with(func(s *store) error { return s.DeleteError(ctx, id) })
}

func (r *Repository) LockMaintainers(ctx context.Context) error {
	return r.with(func(s *store) error { return s.LockMaintainers(ctx) })
}

func (r *Repository) ListMaintainers(ctx context.Context, stationID uuid.UUID) ([]models.Person, error) {
	var out []models.Person
	err := r.with(func(s *store) (err error) {
		out, err = s.ListMaintainers(ctx, stationID)
		return err
	})
	return out, err
}

func (r *Repository) ListPersons(ctx context.Context) ([]models.Person, error) {
	var out []models.Person
	err := r.with(func(s *store) (err error) {
		out, err = s.ListPersons(ctx)
		return err
	})
	return out, err
}

func (r *Repository) CreatePerson(ctx context.Context, person *models.Person) error {
	return r.with(func(s *store) error { return s.CreatePerson(ctx, person) })
}

func (r *Repository) AttachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error {
	return r.with(func(s *store) error { return s.AttachMaintainer(ctx, stationID, personID) })
}

func (r *Repository) DetachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error {
	return r.with(func(s *store) error { return s.DetachMaintainer(ctx, stationID, personID) })
}

func (r *Repository) CountPersonStations(ctx context.Context, personID uuid.UUID) (int, error) {
	var out int
	err := r.with(func(s *store) (err error) {
		out, err = s.CountPersonStations(ctx, personID)
		return err
	})
	return out, err
}

func (r *Repository) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	return r.with(func(s *store) error { return s.DeletePerson(ctx, personID) })
}

func (r *Repository) SeedStatuses(ctx context.Context, statuses []models.Status) error {
	return r.with(func(s *store) error { return s.SeedStatuses(ctx, statuses) })
}

func (r *Repository) ListStatuses(ctx context.Context) ([]models.Status, error) {
	var out []models.Status
	err := r.with(func(s *store) (err error) {
		out, err = s.ListStatuses(ctx)
		return err
	})
	return out, err
}

func (r *Repository) CreateRule(ctx context.Context, rule *models.StatusRule) error {
	return r.with(func(s *store) error { return s.CreateRule(ctx, rule) })
}

func (r *Repository) ListRules(ctx context.Context) ([]models.StatusRule, error) {
	var out []models.StatusRule
	err := r.with(func(s *store) (err error) {
		out, err = s.ListRules(ctx)
		return err
	})
	return out, err
}

func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return r.with(func(s *store) error { return s.DeleteRule(ctx, id) })
}

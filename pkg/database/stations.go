package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
)

// queries implements repository.Queries on a database handle or a
// transaction
type queries struct {
	q querier
}

var _ repository.Queries = queries{}

const stationColumns = `id, network_id, name, latitude, longitude, elevation, comment,
        last_updated, approved, status_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*models.Station, error) {
	var s models.Station
	err := row.Scan(
		&s.ID,
		&s.NetworkID,
		&s.Name,
		&s.Latitude,
		&s.Longitude,
		&s.Elevation,
		&s.Comment,
		&s.LastUpdated,
		&s.Approved,
		&s.StatusID,
		&s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.LastUpdated = s.LastUpdated.UTC()
	return &s, nil
}

// CreateStation inserts a station
func (q queries) CreateStation(ctx context.Context, station *models.Station) error {
	if station.ID == uuid.Nil {
		station.ID = uuid.New()
	}

	query := `
        INSERT INTO stations (id, network_id, name, latitude, longitude, elevation, comment,
                              last_updated, approved, status_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at
    `

	err := q.q.QueryRowContext(ctx, query,
		station.ID,
		station.NetworkID,
		station.Name,
		station.Latitude,
		station.Longitude,
		station.Elevation,
		station.Comment,
		station.LastUpdated,
		station.Approved,
		station.StatusID,
	).Scan(&station.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}
	return nil
}

// GetStation loads a station by network id
func (q queries) GetStation(ctx context.Context, networkID string) (*models.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE network_id = $1`
	return scanStation(q.q.QueryRowContext(ctx, query, networkID))
}

// GetStationForUpdate loads a station and locks its row until the
// transaction ends
func (q queries) GetStationForUpdate(ctx context.Context, networkID string) (*models.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE network_id = $1 FOR UPDATE`
	return scanStation(q.q.QueryRowContext(ctx, query, networkID))
}

// UpdateStation stores every mutable station field
func (q queries) UpdateStation(ctx context.Context, station *models.Station) error {
	query := `
        UPDATE stations
        SET name = $1, latitude = $2, longitude = $3, elevation = $4, comment = $5,
            last_updated = $6, approved = $7, status_id = $8
        WHERE id = $9
    `

	res, err := q.q.ExecContext(ctx, query,
		station.Name,
		station.Latitude,
		station.Longitude,
		station.Elevation,
		station.Comment,
		station.LastUpdated,
		station.Approved,
		station.StatusID,
		station.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update station: %w", err)
	}
	return expectRow(res)
}

// DeleteStation deletes a station. Components, batches, measurements,
// errors and maintainer links go with it by cascade.
func (q queries) DeleteStation(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	return expectRow(res)
}

// ListStations returns the stations with the given approval, by name
func (q queries) ListStations(ctx context.Context, approved bool) ([]models.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE approved = $1 ORDER BY name, created_at`

	rows, err := q.q.QueryContext(ctx, query, approved)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, *s)
	}
	return stations, rows.Err()
}

// CountStations counts the stations with the given approval
func (q queries) CountStations(ctx context.Context, approved bool) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations WHERE approved = $1`, approved).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return n, nil
}

// ListComponents returns the components of a station
func (q queries) ListComponents(ctx context.Context, stationID uuid.UUID) ([]models.Component, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, station_id, name, old FROM components WHERE station_id = $1 ORDER BY name, id`,
		stationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var components []models.Component
	for rows.Next() {
		var c models.Component
		if err := rows.Scan(&c.ID, &c.StationID, &c.Name, &c.Old); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// CreateComponent inserts a component
func (q queries) CreateComponent(ctx context.Context, component *models.Component) error {
	if component.ID == uuid.Nil {
		component.ID = uuid.New()
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO components (id, station_id, name, old) VALUES ($1, $2, $3, $4)`,
		component.ID, component.StationID, component.Name, component.Old,
	)
	if err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}
	return nil
}

// UpdateComponent stores a component's name and old flag
func (q queries) UpdateComponent(ctx context.Context, component *models.Component) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE components SET name = $1, old = $2 WHERE id = $3`,
		component.Name, component.Old, component.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update component: %w", err)
	}
	return expectRow(res)
}

// CreateBatch inserts a batch and its measurements
func (q queries) CreateBatch(ctx context.Context, batch *models.MeasurementBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO measurement_batches (id, component_id, taken_at) VALUES ($1, $2, $3)`,
		batch.ID, batch.ComponentID, batch.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	if len(batch.Measurements) == 0 {
		return nil
	}

	keys := make([]string, len(batch.Measurements))
	values := make([]string, len(batch.Measurements))
	for i, m := range batch.Measurements {
		keys[i] = m.Key
		values[i] = m.Value
	}

	query := `
        INSERT INTO measurements (batch_id, ordinal, key, value)
        SELECT $1, m.ordinal, m.key, m.value
        FROM unnest($2::text[], $3::text[]) WITH ORDINALITY AS m(key, value, ordinal)
    `
	if _, err := q.q.ExecContext(ctx, query, batch.ID, pq.Array(keys), pq.Array(values)); err != nil {
		return fmt.Errorf("failed to store measurements: %w", err)
	}
	return nil
}

// ListBatches returns a component's batches taken after since, oldest
// first, with their measurements
func (q queries) ListBatches(ctx context.Context, componentID uuid.UUID, since time.Time) ([]models.MeasurementBatch, error) {
	rows, err := q.q.QueryContext(ctx, `
        SELECT id, component_id, taken_at
        FROM measurement_batches
        WHERE component_id = $1 AND taken_at > $2
        ORDER BY taken_at, id
    `, componentID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []models.MeasurementBatch
	index := make(map[uuid.UUID]int)
	var ids []string
	for rows.Next() {
		var b models.MeasurementBatch
		if err := rows.Scan(&b.ID, &b.ComponentID, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		index[b.ID] = len(batches)
		ids = append(ids, b.ID.String())
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}

	mrows, err := q.q.QueryContext(ctx, `
        SELECT batch_id, key, value
        FROM measurements
        WHERE batch_id = ANY($1::uuid[])
        ORDER BY batch_id, ordinal
    `, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer mrows.Close()

	for mrows.Next() {
		var batchID uuid.UUID
		var m models.Measurement
		if err := mrows.Scan(&batchID, &m.Key, &m.Value); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		i := index[batchID]
		batches[i].Measurements = append(batches[i].Measurements, m)
	}
	return batches, mrows.Err()
}

// DeleteBatchesBefore deletes batches taken before cutoff
func (q queries) DeleteBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM measurement_batches WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batches: %w", err)
	}
	return res.RowsAffected()
}

// CreateError inserts an error report
func (q queries) CreateError(ctx context.Context, e *models.Error) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := q.q.ExecContext(ctx, `
        INSERT INTO station_errors (id, station_id, component_id, component, message, reported_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, e.ID, e.StationID, e.ComponentID, e.Component, e.Message, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create error: %w", err)
	}
	return nil
}

// ListErrors returns a station's error reports, oldest first
func (q queries) ListErrors(ctx context.Context, stationID uuid.UUID) ([]models.Error, error) {
	rows, err := q.q.QueryContext(ctx, `
        SELECT id, station_id, component_id, component, message, reported_at
        FROM station_errors
        WHERE station_id = $1
        ORDER BY reported_at, id
    `, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var errs []models.Error
	for rows.Next() {
		var e models.Error
		var componentID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.StationID, &componentID, &e.Component, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		if componentID.Valid {
			id := componentID.UUID
			e.ComponentID = &id
		}
		e.Timestamp = e.Timestamp.UTC()
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// DeleteError deletes an error report
func (q queries) DeleteError(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM station_errors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete error: %w", err)
	}
	return expectRow(res)
}

// expectRow turns a statement that touched no row into ErrNotFound
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

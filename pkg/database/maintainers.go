package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// LockMaintainers locks the maintainer tables against concurrent writers
// until the transaction ends. Plain reads are not blocked.
func (q queries) LockMaintainers(ctx context.Context) error {
	_, err := q.q.ExecContext(ctx, `LOCK TABLE persons, station_maintainers IN SHARE ROW EXCLUSIVE MODE`)
	if err != nil {
		return fmt.Errorf("failed to lock maintainer tables: %w", err)
	}
	return nil
}

func (q queries) listPersons(ctx context.Context, query string, args ...any) ([]models.Person, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ListMaintainers returns the maintainers of a station
func (q queries) ListMaintainers(ctx context.Context, stationID uuid.UUID) ([]models.Person, error) {
	return q.listPersons(ctx, `
        SELECT p.id, p.name, p.phone, p.email
        FROM persons p
        JOIN station_maintainers sm ON sm.person_id = p.id
        WHERE sm.station_id = $1
        ORDER BY p.name, p.id
    `, stationID)
}

// ListPersons returns every person
func (q queries) ListPersons(ctx context.Context) ([]models.Person, error) {
	return q.listPersons(ctx, `SELECT id, name, phone, email FROM persons ORDER BY name, id`)
}

// CreatePerson inserts a person
func (q queries) CreatePerson(ctx context.Context, person *models.Person) error {
	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO persons (id, name, phone, email) VALUES ($1, $2, $3, $4)`,
		person.ID, person.Name, person.Phone, person.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// AttachMaintainer links a person to a station
func (q queries) AttachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error {
	_, err := q.q.ExecContext(ctx, `
        INSERT INTO station_maintainers (station_id, person_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, stationID, personID)
	if err != nil {
		return fmt.Errorf("failed to attach maintainer: %w", err)
	}
	return nil
}

// DetachMaintainer unlinks a person from a station
func (q queries) DetachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error {
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM station_maintainers WHERE station_id = $1 AND person_id = $2`,
		stationID, personID,
	)
	if err != nil {
		return fmt.Errorf("failed to detach maintainer: %w", err)
	}
	return nil
}

// CountPersonStations counts the stations a person maintains
func (q queries) CountPersonStations(ctx context.Context, personID uuid.UUID) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM station_maintainers WHERE person_id = $1`, personID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count maintained stations: %w", err)
	}
	return n, nil
}

// DeletePerson deletes a person
func (q queries) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, personID)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return expectRow(res)
}

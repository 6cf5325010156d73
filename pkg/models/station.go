package models

import (
	"time"

	"github.com/google/uuid"
)

// Station represents a remote telemetry-emitting site
type Station struct {
	ID          uuid.UUID `json:"id"`
	NetworkID   string    `json:"network_id"`
	Name        string    `json:"name"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Elevation   float64   `json:"elevation"`
	Comment     string    `json:"comment"`
	LastUpdated time.Time `json:"last_updated"`
	Approved    bool      `json:"approved"`
	StatusID    int       `json:"status_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Person is a maintainer contact. Persons have no external key, they are
// matched structurally on their fields.
type Person struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
	Email string    `json:"email"`
}

// Component is a named sub-part of a station (usually a sensor)
type Component struct {
	ID        uuid.UUID `json:"id"`
	StationID uuid.UUID `json:"station_id"`
	Name      string    `json:"name"`
	// Old is set when the latest update did not mention the component.
	Old bool `json:"old"`
}

// MeasurementBatch is one timestamped snapshot of a component's readings
type MeasurementBatch struct {
	ID           uuid.UUID     `json:"id"`
	ComponentID  uuid.UUID     `json:"component_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Measurements []Measurement `json:"measurements"`
}

// Value returns the raw value stored under key in the batch.
func (b MeasurementBatch) Value(key string) (string, bool) {
	for _, m := range b.Measurements {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// Measurement is one key/value reading inside a batch
type Measurement struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error is a fault report sent by a station. ComponentID is nil when the
// reported component name did not match any component of the station.
type Error struct {
	ID          uuid.UUID  `json:"id"`
	StationID   uuid.UUID  `json:"station_id"`
	ComponentID *uuid.UUID `json:"component_id,omitempty"`
	Component   string     `json:"component"`
	Message     string     `json:"message"`
	Timestamp   time.Time  `json:"timestamp"`
}

// StatusRule is an operator-authored alerting expression
type StatusRule struct {
	ID         uuid.UUID `json:"id"`
	Expression string    `json:"expression"`
	Message    string    `json:"message"`
	StatusID   int       `json:"status_id"`
	CreatedAt  time.Time `json:"created_at"`
}

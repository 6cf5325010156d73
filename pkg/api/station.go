package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/series"
)

// ErrRegistrationClosed is returned when the server accepts no more pending
// registrations
var ErrRegistrationClosed = errors.New("registration closed")

// StationSummary is one entry of the station list
type StationSummary struct {
	NetworkID   string    `json:"network_id"`
	Name        string    `json:"name"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Elevation   float64   `json:"elevation"`
	LastUpdated time.Time `json:"last_updated"`
	Approved    bool      `json:"approved"`
	Status      string    `json:"status"`
	StatusColor string    `json:"status_color"`
}

// NewStationSummary renders a station with its status
func NewStationSummary(s models.Station, status models.Status) StationSummary {
	return StationSummary{
		NetworkID:   s.NetworkID,
		Name:        s.Name,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		Elevation:   s.Elevation,
		LastUpdated: s.LastUpdated,
		Approved:    s.Approved,
		Status:      status.Name,
		StatusColor: status.Color,
	}
}

// BrokenRule is a rule a station currently violates
type BrokenRule struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// StationDetail is the full view of one station
type StationDetail struct {
	StationSummary
	Comment     string                 `json:"comment"`
	Maintainers []models.Person        `json:"maintainers"`
	Errors      []models.Error         `json:"errors"`
	Components  []series.ComponentView `json:"components"`
	BrokenRules []BrokenRule           `json:"broken_rules"`
}

// Register sends a registration payload and returns the assigned network id
func (c *Client) Register(ctx context.Context, payload []byte) (string, error) {
	reply, err := c.postPayload(ctx, "/station_register", payload)
	if err != nil {
		return "", err
	}
	switch reply {
	case "":
		return "", ErrRegistrationClosed
	case ResponseFailure:
		return "", fmt.Errorf("registration rejected")
	}
	return reply, nil
}

// SendData sends a data or error payload and reports whether the server
// accepted it
func (c *Client) SendData(ctx context.Context, payload []byte) (bool, error) {
	reply, err := c.postPayload(ctx, "/station_data", payload)
	if err != nil {
		return false, err
	}
	return reply == ResponseSuccess, nil
}

// GetStations retrieves the approved stations
func (c *Client) GetStations(ctx context.Context) ([]StationSummary, error) {
	var stations []StationSummary
	if err := c.getJSON(ctx, "/api/v1/stations", &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// GetStation retrieves one station by network id
func (c *Client) GetStation(ctx context.Context, networkID string) (*StationDetail, error) {
	var station StationDetail
	if err := c.getJSON(ctx, "/api/v1/stations/"+url.PathEscape(networkID), &station); err != nil {
		return nil, err
	}
	return &station, nil
}


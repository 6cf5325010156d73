package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayloadString(`{"network_id": "abc", "timestamp": 1700000000, "latitude": 44.25}`)
	require.NoError(t, err)

	id, ok := p.String(FieldNetworkID)
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	ts, ok := p.Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)

	_, err = DecodePayloadString(`[1, 2]`)
	assert.Error(t, err)
	_, err = DecodePayloadString(`null`)
	assert.Error(t, err)
	_, err = DecodePayloadString(`{"a":`)
	assert.Error(t, err)
}

func TestPayload_Timestamp(t *testing.T) {
	testCases := []struct {
		name  string
		json  string
		ok    bool
		epoch int64
	}{
		{name: "integer", json: `{"timestamp": 100}`, ok: true, epoch: 100},
		{name: "fractional is truncated", json: `{"timestamp": 100.9}`, ok: true, epoch: 100},
		{name: "numeric string", json: `{"timestamp": "200"}`, ok: true, epoch: 200},
		{name: "text", json: `{"timestamp": "yesterday"}`, ok: false},
		{name: "boolean", json: `{"timestamp": true}`, ok: false},
		{name: "absent", json: `{}`, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := DecodePayloadString(tc.json)
			require.NoError(t, err)
			ts, ok := p.Timestamp()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.epoch, ts.Unix())
			}
		})
	}
}

func TestApplyStationFields(t *testing.T) {
	p, err := DecodePayloadString(`{
		"name": "Petnica",
		"latitude": "44.25",
		"longitude": true,
		"elevation": 200,
		"comment": {"x": 1},
		"approved": true,
		"status_id": 5
	}`)
	require.NoError(t, err)

	station := models.Station{Longitude: 20.1, Comment: "kept"}
	skipped := applyStationFields(&station, p)

	assert.Equal(t, "Petnica", station.Name)
	assert.Equal(t, 44.25, station.Latitude)
	assert.Equal(t, 20.1, station.Longitude)
	assert.Equal(t, 200.0, station.Elevation)
	assert.Equal(t, "kept", station.Comment)
	assert.False(t, station.Approved)
	assert.Zero(t, station.StatusID)
	assert.ElementsMatch(t, []string{"longitude", "comment"}, skipped)
}

func TestApplyStationFields_TooLong(t *testing.T) {
	p := Payload{"name": strings.Repeat("x", 65)}
	station := models.Station{Name: "old"}
	skipped := applyStationFields(&station, p)
	assert.Equal(t, "old", station.Name)
	assert.Equal(t, []string{"name"}, skipped)
}

func TestPayload_Components(t *testing.T) {
	p, err := DecodePayloadString(`{"components": [
		{"name": "Sensor1", "measurements": {"t": "22C", "h": 40, "ok": true, "bad": [1]}},
		{"name": "GPS"},
		{"measurements": {"x": "1"}},
		"not an object",
		{"name": "Empty", "measurements": {}}
	]}`)
	require.NoError(t, err)

	entries := p.components()
	require.Len(t, entries, 3)

	assert.Equal(t, "Sensor1", entries[0].Name)
	assert.True(t, entries[0].HasMeasurements)
	assert.Equal(t, []models.Measurement{
		{Key: "h", Value: "40"},
		{Key: "ok", Value: "True"},
		{Key: "t", Value: "22C"},
	}, entries[0].Measurements)

	assert.Equal(t, "GPS", entries[1].Name)
	assert.False(t, entries[1].HasMeasurements)

	assert.Equal(t, "Empty", entries[2].Name)
	assert.True(t, entries[2].HasMeasurements)
	assert.Empty(t, entries[2].Measurements)
}

func TestPayload_Maintainers(t *testing.T) {
	p, err := DecodePayloadString(`{"maintainers": [{"name": "A"}, 3]}`)
	require.NoError(t, err)
	records, present := p.maintainers()
	assert.True(t, present)
	assert.Len(t, records, 1)

	p, err = DecodePayloadString(`{"maintainers": []}`)
	require.NoError(t, err)
	records, present = p.maintainers()
	assert.True(t, present)
	assert.Empty(t, records)

	_, present = Payload{}.maintainers()
	assert.False(t, present)
}

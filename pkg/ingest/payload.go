package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// Payload field names with special meaning
const (
	FieldNetworkID   = "network_id"
	FieldTimestamp   = "timestamp"
	FieldError       = "error"
	FieldComponent   = "component"
	FieldComponents  = "components"
	FieldMaintainers = "maintainers"
	FieldName        = "name"
	FieldMeasures    = "measurements"
)

// Payload is one decoded station request: a JSON object whose fields may be
// missing or of the wrong type.
type Payload map[string]any

// DecodePayload reads a JSON object. Numbers are kept as json.Number so
// that measurement values keep their textual form.
func DecodePayload(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return p, nil
}

// DecodePayloadString decodes a payload sent as a form field.
func DecodePayloadString(s string) (Payload, error) {
	return DecodePayload(bytes.NewBufferString(s))
}

// String returns a field coerced to a string
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return toString(v)
}

// Timestamp returns the Unix epoch "timestamp" field as a UTC instant.
func (p Payload) Timestamp() (time.Time, bool) {
	v, ok := p[FieldTimestamp]
	if !ok {
		return time.Time{}, false
	}
	return toTimestamp(v)
}

// toString coerces a scalar. Containers and null do not coerce.
func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		if t {
			return "True", true
		}
		return "False", true
	}
	return "", false
}

// toFloat coerces numbers and numeric strings. Booleans, non-finite values
// and everything else do not coerce.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toTimestamp accepts integer seconds, as a number or a string. Fractional
// numbers are truncated.
func toTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		sec, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0).UTC(), true
	case bool:
		return time.Time{}, false
	}

	f, ok := toFloat(v)
	if !ok || math.Abs(f) > math.MaxInt64/2 {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// stationField is a scalar station attribute settable from a payload.
type stationField struct {
	name  string
	apply func(s *models.Station, v any) bool
}

func stringField(name string, maxLen int, set func(s *models.Station, v string)) stationField {
	return stationField{name: name, apply: func(s *models.Station, v any) bool {
		str, ok := toString(v)
		if !ok || len([]rune(str)) > maxLen {
			return false
		}
		set(s, str)
		return true
	}}
}

func floatField(name string, set func(s *models.Station, v float64)) stationField {
	return stationField{name: name, apply: func(s *models.Station, v any) bool {
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		set(s, f)
		return true
	}}
}

// stationFields lists every station attribute a device may set. Identity,
// approval and status are never taken from a payload.
var stationFields = []stationField{
	stringField("name", 64, func(s *models.Station, v string) { s.Name = v }),
	floatField("latitude", func(s *models.Station, v float64) { s.Latitude = v }),
	floatField("longitude", func(s *models.Station, v float64) { s.Longitude = v }),
	floatField("elevation", func(s *models.Station, v float64) { s.Elevation = v }),
	stringField("comment", 512, func(s *models.Station, v string) { s.Comment = v }),
}

// applyStationFields copies the scalar station attributes present in p.
// A field that does not coerce is left unchanged. It returns the names of
// the fields that were skipped.
func applyStationFields(s *models.Station, p Payload) []string {
	var skipped []string
	for _, f := range stationFields {
		v, ok := p[f.name]
		if !ok {
			continue
		}
		if !f.apply(s, v) {
			skipped = append(skipped, f.name)
		}
	}
	return skipped
}

// componentEntry is one decoded element of the "components" list
type componentEntry struct {
	Name         string
	Measurements []models.Measurement
	// HasMeasurements is set when the entry carried a measurements object,
	// even an empty one.
	HasMeasurements bool
}

// components decodes the "components" field. Entries without a usable name
// are skipped, as are measurement values that are not scalars.
func (p Payload) components() []componentEntry {
	list, ok := p[FieldComponents].([]any)
	if !ok {
		return nil
	}

	var entries []componentEntry
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := toString(obj[FieldName])
		if !ok {
			continue
		}

		entry := componentEntry{Name: name}
		if measurements, ok := obj[FieldMeasures].(map[string]any); ok {
			entry.HasMeasurements = true
			for key, raw := range measurements {
				value, ok := toString(raw)
				if !ok {
					continue
				}
				entry.Measurements = append(entry.Measurements, models.Measurement{Key: key, Value: value})
			}
			// map order is random; keep keys stable for display
			sort.Slice(entry.Measurements, func(i, j int) bool {
				return entry.Measurements[i].Key < entry.Measurements[j].Key
			})
		}
		entries = append(entries, entry)
	}
	return entries
}

// maintainers decodes the "maintainers" field. present is false when the
// field is absent or not a list.
func (p Payload) maintainers() (records []map[string]any, present bool) {
	list, ok := p[FieldMaintainers].([]any)
	if !ok {
		return nil, false
	}
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, obj)
		}
	}
	return records, true
}

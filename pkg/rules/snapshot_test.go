package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

func TestSnapshot_LatestBatchContainingKeyWins(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batches := []models.MeasurementBatch{
		{Timestamp: base, Measurements: []models.Measurement{{Key: "Air temp", Value: "20C"}, {Key: "hum", Value: "40%"}}},
		{Timestamp: base.Add(time.Minute), Measurements: []models.Measurement{{Key: "air temp", Value: "21C"}}},
	}

	s := Snapshot{}
	s.Add("Main Sensor", batches)

	v, ok := s.Value("main_sensor", "AIR_TEMP")
	require.True(t, ok)
	assert.Equal(t, "21C", v)

	v, ok = s.Value("Main Sensor", "hum")
	require.True(t, ok)
	assert.Equal(t, "40%", v)

	_, ok = s.Value("other", "hum")
	assert.False(t, ok)
	_, ok = s.Value("main sensor", "pressure")
	assert.False(t, ok)
}

func TestBrokenRules(t *testing.T) {
	values := Snapshot{}
	values.Add("temp", []models.MeasurementBatch{{Measurements: []models.Measurement{{Key: "value", Value: "120C"}}}})

	rule := func(expr string) models.StatusRule {
		return models.StatusRule{ID: uuid.New(), Expression: expr, Message: expr}
	}
	tooHot := rule("${temp.value} < 100")
	fine := rule("${temp.value} > -40")
	missing := rule("${humidity.value} < 90")
	failing := rule("${temp.value} / 0 > 1")
	unsafe := rule("${temp.value} and print(1)")

	broken := BrokenRules([]models.StatusRule{tooHot, fine, missing, failing, unsafe}, values, zerolog.Nop())

	require.Len(t, broken, 1)
	assert.Equal(t, tooHot.ID, broken[0].ID)
}

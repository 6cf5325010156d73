package series

import (
	"strings"
	"time"
	"unicode"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/parser"
)

// Chart kinds
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
)

// ConstantSuffix marks a current value whose history never changed.
const ConstantSuffix = " (constant)"

// CurrentValue is a display-ready latest value of a measurement key
type CurrentValue struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// Tick is one labeled category on a categorical chart axis
type Tick struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Chart describes one plot for the rendering collaborator
type Chart struct {
	Name     string     `json:"name"`
	Title    string     `json:"title"`
	Kind     string     `json:"kind"`
	Unit     string     `json:"unit,omitempty"`
	Ticks    []Tick     `json:"ticks,omitempty"`
	Segments [][]Sample `json:"segments"`
}

// ComponentView is the presentation model of one component
type ComponentView struct {
	Name          string         `json:"name"`
	Old           bool           `json:"old"`
	CurrentValues []CurrentValue `json:"current_values"`
	Charts        []Chart        `json:"charts"`
}

// ChartName builds the artifact name of a chart. Whitespace becomes "_".
func ChartName(networkID, component, key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, networkID+component+key) + ".png"
}

// BuildComponentView buckets every key of a component's batch history.
// batches must be ordered by timestamp. Only batches younger than recency
// contribute current values; keys whose series is constant are reported as a
// single current value instead of a chart, or not at all when none of their
// batches is recent.
func BuildComponentView(networkID string, component models.Component, batches []models.MeasurementBatch, now time.Time, recency time.Duration) ComponentView {
	view := ComponentView{
		Name:          component.Name,
		Old:           component.Old,
		CurrentValues: []CurrentValue{},
		Charts:        []Chart{},
	}

	times := make([]time.Time, len(batches))
	for i, b := range batches {
		times[i] = b.Timestamp
	}
	median := MedianDelta(times)

	var keys []string
	points := make(map[string][]Point)
	current := make(map[string]string)
	for _, b := range batches {
		recent := now.Sub(b.Timestamp) < recency
		for _, m := range b.Measurements {
			if _, ok := points[m.Key]; !ok {
				keys = append(keys, m.Key)
			}
			points[m.Key] = append(points[m.Key], Point{Time: b.Timestamp, Raw: m.Value})
			if recent {
				current[m.Key] = parser.Display(m.Value)
			}
		}
	}

	for _, key := range keys {
		s := Bucket(key, points[key], median)

		display, hasCurrent := current[key]
		if s.Constant {
			if !hasCurrent {
				continue
			}
			view.CurrentValues = append(view.CurrentValues, CurrentValue{Key: key, Display: display + ConstantSuffix})
			continue
		}
		if hasCurrent {
			view.CurrentValues = append(view.CurrentValues, CurrentValue{Key: key, Display: display})
		}
		view.Charts = append(view.Charts, newChart(networkID, component.Name, s))
	}

	return view
}

func newChart(networkID, component string, s Series) Chart {
	c := Chart{
		Name:     ChartName(networkID, component, s.Key),
		Title:    s.Key,
		Segments: s.Segments,
	}
	if s.Numeric {
		c.Kind = KindNumeric
		c.Unit = s.Unit
		return c
	}

	c.Kind = KindCategorical
	for i, label := range s.Classes {
		c.Ticks = append(c.Ticks, Tick{ID: i + 1, Label: label})
	}
	return c
}

// Package series turns the stored measurement history of a component into
// presentation-ready series: numeric or categorical, split on outages, and
// flagged when the value never changes.
package series

import (
	"sort"
	"time"

	"github.com/petnica-meteor-group/meteornet-server/pkg/parser"
)

// GapFactor is the multiple of the median inter-batch delta above which a
// new segment is started.
const GapFactor = 2.5

// Point is one raw value of a measurement key at a point in time
type Point struct {
	Time time.Time
	Raw  string
}

// Sample is one plotted value. For categorical series Value is the class id.
type Sample struct {
	Time  time.Time `json:"x"`
	Value float64   `json:"y"`
}

// Series is the bucketed history of one measurement key
type Series struct {
	Key      string     `json:"key"`
	Segments [][]Sample `json:"segments"`
	Numeric  bool       `json:"numeric"`
	// Unit is set only for numeric series.
	Unit string `json:"unit,omitempty"`
	// Classes holds category labels for categorical series. The label at
	// index i has class id i+1.
	Classes  []string `json:"classes,omitempty"`
	Constant bool     `json:"constant"`
}

// MedianDelta returns the median gap between consecutive timestamps, taking
// the upper middle element for even counts. Fewer than two timestamps give
// zero.
func MedianDelta(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}

	deltas := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas = append(deltas, times[i].Sub(times[i-1]))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	return deltas[len(deltas)/2]
}

// Bucket builds the series for one key from its time-ordered points. median
// is the component-wide median inter-batch delta (see MedianDelta).
//
// The key stays numeric while every value parses and carries the same unit.
// From the first value that breaks this, the whole series is categorical:
// earlier numbers are relabeled "<rounded><unit>" and every label gets a class
// id in first-seen order starting at 1.
func Bucket(key string, points []Point, median time.Duration) Series {
	s := Series{Key: key}
	if len(points) == 0 {
		return s
	}

	type parsed struct {
		num  float64
		unit string
	}

	// first pass: parse everything and find where numeric classification ends
	values := make([]parsed, len(points))
	breakAt := len(points)
	for i, p := range points {
		num, unit, ok := parser.ParseValue(p.Raw)
		values[i] = parsed{num: parser.Round2(num), unit: unit}
		if breakAt == len(points) && (!ok || (i > 0 && unit != values[0].unit)) {
			breakAt = i
		}
	}

	s.Numeric = breakAt == len(points)
	var ys []float64
	if s.Numeric {
		s.Unit = values[0].unit
		ys = make([]float64, len(points))
		for i := range values {
			ys[i] = values[i].num
		}
	} else {
		ids := make(map[string]int)
		ys = make([]float64, len(points))
		for i, p := range points {
			label := p.Raw
			if i < breakAt {
				label = parser.Label(values[i].num, values[i].unit)
			}
			id, ok := ids[label]
			if !ok {
				s.Classes = append(s.Classes, label)
				id = len(s.Classes)
				ids[label] = id
			}
			ys[i] = float64(id)
		}
	}

	// second pass: split on gaps and check constancy within each segment
	threshold := time.Duration(float64(median) * GapFactor)
	s.Constant = true
	segment := []Sample{{Time: points[0].Time, Value: ys[0]}}
	for i := 1; i < len(points); i++ {
		if points[i].Time.Sub(points[i-1].Time) > threshold {
			s.Segments = append(s.Segments, segment)
			segment = nil
		}
		if len(segment) > 0 && segment[len(segment)-1].Value != ys[i] {
			s.Constant = false
		}
		segment = append(segment, Sample{Time: points[i].Time, Value: ys[i]})
	}
	s.Segments = append(s.Segments, segment)

	return s
}

package models

import (
	"fmt"
	"sort"
)

// Names of the seeded statuses, lowest severity first.
const (
	StatusGood           = "Good"
	StatusNotConnecting  = "Not connecting"
	StatusRuleBroken     = "Rule(s) broken"
	StatusErrorsOccurred = "Error(s) occurred"
	StatusDisconnected   = "Disconnected"
)

// Status is a named severity level
type Status struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Severity int    `json:"severity"`
}

// DefaultStatuses returns the status rows seeded into an empty store.
func DefaultStatuses() []Status {
	return []Status{
		{Name: StatusGood, Color: "#00CC00", Severity: 0},
		{Name: StatusNotConnecting, Color: "#FFFF19", Severity: 1},
		{Name: StatusRuleBroken, Color: "#FFA500", Severity: 2},
		{Name: StatusErrorsOccurred, Color: "#CC0000", Severity: 3},
		{Name: StatusDisconnected, Color: "#990000", Severity: 4},
	}
}

// StatusTable is the ordered set of statuses loaded once at startup and
// passed by value to everything that needs to rank statuses.
type StatusTable struct {
	statuses []Status
}

// NewStatusTable builds a table ordered by severity. Every seeded status name
// must be present.
func NewStatusTable(statuses []Status) (StatusTable, error) {
	if len(statuses) == 0 {
		return StatusTable{}, fmt.Errorf("status table is empty")
	}

	sorted := make([]Status, len(statuses))
	copy(sorted, statuses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity < sorted[j].Severity
	})

	t := StatusTable{statuses: sorted}
	for _, s := range DefaultStatuses() {
		if _, ok := t.ByName(s.Name); !ok {
			return StatusTable{}, fmt.Errorf("status %q missing from status table", s.Name)
		}
	}

	return t, nil
}

// Lowest returns the status with the lowest severity.
func (t StatusTable) Lowest() Status {
	return t.statuses[0]
}

// ByName looks up a status by name
func (t StatusTable) ByName(name string) (Status, bool) {
	for _, s := range t.statuses {
		if s.Name == name {
			return s, true
		}
	}
	return Status{}, false
}

// ByID looks up a status by id
func (t StatusTable) ByID(id int) (Status, bool) {
	for _, s := range t.statuses {
		if s.ID == id {
			return s, true
		}
	}
	return Status{}, false
}

// MustName is ByName for the seeded names, which NewStatusTable guarantees.
func (t StatusTable) MustName(name string) Status {
	s, ok := t.ByName(name)
	if !ok {
		panic(fmt.Sprintf("status %q not in table", name))
	}
	return s
}

// All returns a copy of the statuses ordered by severity.
func (t StatusTable) All() []Status {
	out := make([]Status, len(t.statuses))
	copy(out, t.statuses)
	return out
}

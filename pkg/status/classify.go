// Package status classifies stations into the severity-ordered statuses
// and notifies maintainers when a station escalates.
package status

import (
	"time"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// Thresholds are the connectivity limits of the classifier
type Thresholds struct {
	// Disconnected is the silence after which a station is disconnected.
	Disconnected time.Duration
	// NotConnecting is the silence after which an otherwise healthy
	// station is reported as not connecting.
	NotConnecting time.Duration
}

// DefaultThresholds returns 72h and 6h.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Disconnected:  72 * time.Hour,
		NotConnecting: 6 * time.Hour,
	}
}

// Inputs is everything Classify looks at for one station.
type Inputs struct {
	LastUpdated time.Time
	Now         time.Time
	HasErrors   bool
	// Broken returns the broken rules. It is only called when connectivity
	// and errors leave the rules to decide.
	Broken func() []models.StatusRule
}

// Classify picks the status of one station. Checks run in priority order:
// disconnected, errors, broken rules, not connecting, good. It returns the
// broken rules when they decided the status.
func Classify(table models.StatusTable, th Thresholds, in Inputs) (models.Status, []models.StatusRule) {
	silence := in.Now.Sub(in.LastUpdated)

	if silence > th.Disconnected {
		return table.MustName(models.StatusDisconnected), nil
	}
	if in.HasErrors {
		return table.MustName(models.StatusErrorsOccurred), nil
	}

	if in.Broken != nil {
		if broken := in.Broken(); len(broken) > 0 {
			return brokenStatus(table, broken), broken
		}
	}

	if silence > th.NotConnecting {
		return table.MustName(models.StatusNotConnecting), nil
	}
	return table.Lowest(), nil
}

// brokenStatus is the most severe status assigned by any of the broken
// rules, never below "Rule(s) broken". A rule pointing at an unknown status
// counts as "Rule(s) broken".
func brokenStatus(table models.StatusTable, broken []models.StatusRule) models.Status {
	status := table.MustName(models.StatusRuleBroken)
	for _, rule := range broken {
		if s, ok := table.ByID(rule.StatusID); ok && s.Severity > status.Severity {
			status = s
		}
	}
	return status
}

// Escalated reports whether moving from previous to next raises severity.
func Escalated(previous, next models.Status) bool {
	return next.Severity > previous.Severity
}

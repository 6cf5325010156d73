package rules

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// Normalize folds a component name or measurement key for placeholder
// matching: case-insensitive, spaces as underscores.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// Snapshot holds the latest raw value of every measurement key of a station,
// keyed by normalized component name and key.
type Snapshot map[string]map[string]string

// Add records a component's batches. batches must be ordered by timestamp;
// for every key the most recent batch that contains it wins.
func (s Snapshot) Add(component string, batches []models.MeasurementBatch) {
	name := Normalize(component)
	values, ok := s[name]
	if !ok {
		values = make(map[string]string)
		s[name] = values
	}
	for _, b := range batches {
		for _, m := range b.Measurements {
			values[Normalize(m.Key)] = m.Value
		}
	}
}

// Value implements Lookup.
func (s Snapshot) Value(component, key string) (string, bool) {
	values, ok := s[Normalize(component)]
	if !ok {
		return "", false
	}
	v, ok := values[Normalize(key)]
	return v, ok
}

// BrokenRules evaluates rules against values and returns the ones whose
// expression is false. A rule that cannot be evaluated, because a
// placeholder has no value or the expression fails, is not broken.
func BrokenRules(rules []models.StatusRule, values Lookup, logger zerolog.Logger) []models.StatusRule {
	var broken []models.StatusRule
	for _, rule := range rules {
		expr, err := Parse(rule.Expression)
		if err == nil {
			err = checkAllowed(expr.Root)
		}
		if err != nil {
			logger.Error().Err(err).Str("rule_id", rule.ID.String()).Msg("Stored rule does not validate")
			continue
		}

		holds, err := expr.Evaluate(values)
		if errors.Is(err, ErrUnresolved) {
			logger.Debug().Err(err).Str("rule_id", rule.ID.String()).Msg("Rule skipped")
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("rule_id", rule.ID.String()).Msg("Rule evaluation failed")
			continue
		}
		if !holds {
			broken = append(broken, rule)
		}
	}
	return broken
}

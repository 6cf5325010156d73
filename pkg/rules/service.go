package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// Store persists status rules
type Store interface {
	CreateRule(ctx context.Context, rule *models.StatusRule) error
	ListRules(ctx context.Context) ([]models.StatusRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// Service manages operator-defined status rules
type Service struct {
	store  Store
	table  models.StatusTable
	limits Limits
	logger zerolog.Logger
}

// NewService creates a new rule service
func NewService(store Store, table models.StatusTable, limits Limits, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		table:  table,
		limits: limits,
		logger: logger,
	}
}

// Add validates and stores a rule. An empty status name assigns the
// "Rule(s) broken" status.
func (s *Service) Add(ctx context.Context, expression, message, statusName string) (*models.StatusRule, error) {
	if _, err := s.limits.Validate(expression, message); err != nil {
		return nil, err
	}

	if statusName == "" {
		statusName = models.StatusRuleBroken
	}
	status, ok := s.table.ByName(statusName)
	if !ok {
		return nil, invalid("unknown status %q", statusName)
	}
	if status.Severity < s.table.MustName(models.StatusRuleBroken).Severity {
		return nil, invalid("status %q is less severe than %q", statusName, models.StatusRuleBroken)
	}

	rule := &models.StatusRule{
		ID:         uuid.New(),
		Expression: expression,
		Message:    message,
		StatusID:   status.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to store rule: %w", err)
	}

	s.logger.Info().Str("rule_id", rule.ID.String()).Str("expression", expression).Msg("Status rule added")
	return rule, nil
}

// List returns all rules
func (s *Service) List(ctx context.Context) ([]models.StatusRule, error) {
	return s.store.ListRules(ctx)
}

// Delete removes a rule
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("rule_id", id.String()).Msg("Status rule deleted")
	return nil
}

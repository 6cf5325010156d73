package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// SeedStatuses inserts statuses into an empty status table
func (q queries) SeedStatuses(ctx context.Context, statuses []models.Status) error {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM statuses`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count statuses: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, s := range statuses {
		_, err := q.q.ExecContext(ctx, `
            INSERT INTO statuses (name, color, severity)
            VALUES ($1, $2, $3)
            ON CONFLICT (name) DO NOTHING
        `, s.Name, s.Color, s.Severity)
		if err != nil {
			return fmt.Errorf("failed to seed status %s: %w", s.Name, err)
		}
	}
	return nil
}

// ListStatuses returns every status by severity
func (q queries) ListStatuses(ctx context.Context) ([]models.Status, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, name, color, severity FROM statuses ORDER BY severity, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.Status
	for rows.Next() {
		var s models.Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Color, &s.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// CreateRule inserts a status rule
func (q queries) CreateRule(ctx context.Context, rule *models.StatusRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	err := q.q.QueryRowContext(ctx, `
        INSERT INTO status_rules (id, expression, message, status_id)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at
    `, rule.ID, rule.Expression, rule.Message, rule.StatusID).Scan(&rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// ListRules returns every status rule, oldest first
func (q queries) ListRules(ctx context.Context) ([]models.StatusRule, error) {
	rows, err := q.q.QueryContext(ctx, `
        SELECT id, expression, message, status_id, created_at
        FROM status_rules
        ORDER BY created_at, id
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.StatusRule
	for rows.Next() {
		var r models.StatusRule
		if err := rows.Scan(&r.ID, &r.Expression, &r.Message, &r.StatusID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule deletes a status rule
func (q queries) DeleteRule(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM status_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return expectRow(res)
}

package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository/memory"
)

func newTestService(t *testing.T) (*Service, models.StatusTable) {
	t.Helper()
	repo := memory.New()
	table, err := repository.LoadStatusTable(context.Background(), repo)
	require.NoError(t, err)
	return NewService(repo, table, Limits{MaxExpression: 256, MaxMessage: 128}, zerolog.Nop()), table
}

func TestService_AddListDelete(t *testing.T) {
	svc, table := newTestService(t)
	ctx := context.Background()

	rule, err := svc.Add(ctx, "${temp.value} < 100", "Too cold", "")
	require.NoError(t, err)
	broken, _ := table.ByName(models.StatusRuleBroken)
	assert.Equal(t, broken.ID, rule.StatusID)

	errorsStatus, _ := table.ByName(models.StatusErrorsOccurred)
	severe, err := svc.Add(ctx, "${battery.voltage} < 3.3", "Battery low", models.StatusErrorsOccurred)
	require.NoError(t, err)
	assert.Equal(t, errorsStatus.ID, severe.StatusID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, rule.ID))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, severe.ID, list[0].ID)

	err = svc.Delete(ctx, uuid.New())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestService_AddRejects(t *testing.T) {
	svc, _ := newTestService(t)

	testCases := []struct {
		name       string
		expression string
		message    string
		status     string
	}{
		{name: "function call", expression: "__import__('os')", message: "bad"},
		{name: "unknown status", expression: "${a.b} > 1", message: "x", status: "Exploded"},
		{name: "status below rule broken", expression: "${a.b} > 1", message: "x", status: models.StatusGood},
		{name: "stale status", expression: "${a.b} > 1", message: "x", status: models.StatusNotConnecting},
		{name: "message too long", expression: "${a.b} > 1", message: string(make([]byte, 129))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), tc.expression, tc.message, tc.status)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

package models_test

import (
	"testing"

	"github.com/dukex/sequences/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEventStatus_CanTransition(t *testing.T) {
	t.Parallel()

	all := []models.EventStatus{
		models.EventStatusReceived,
		models.EventStatusProcessed,
		models.EventStatusIgnored,
		models.EventStatusFailed,
	}

	for _, from := range all {
		for _, to := range all {
			want := from == models.EventStatusReceived && to != models.EventStatusReceived
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestSortActions(t *testing.T) {
	t.Parallel()

	actions := []*models.Action{
		{ID: "c", SortOrder: 3},
		{ID: "a", SortOrder: 1},
		{ID: "b1", SortOrder: 2},
		{ID: "b2", SortOrder: 2},
	}

	models.SortActions(actions)

	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}

	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestAction_StepName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tag_member", (&models.Action{Name: "tag_member", SortOrder: 4}).StepName())
	assert.Equal(t, "step_4", (&models.Action{SortOrder: 4}).StepName())
}

func TestOperator_Known(t *testing.T) {
	t.Parallel()

	assert.True(t, models.OperatorGreaterThan.Known())
	assert.False(t, models.Operator("matches_regex").Known())
}

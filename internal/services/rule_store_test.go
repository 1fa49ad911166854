package services

import (
	"context"
	"testing"

	"rulify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormRuleStore_CRUD(t *testing.T) {
	db := newEngineTestDB(t)
	store := NewGormRuleStore(db)
	ctx := context.Background()

	rule := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{MaxExecutionsPerDay: 5})
	require.NoError(t, store.CreateRule(ctx, rule))

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, "t1", got.TenantID)
	// serialized columns survive the round trip
	require.Len(t, got.Actions, 1)
	assert.Equal(t, models.ActionNotification, got.Actions[0].Type)
	assert.Equal(t, []string{"agent-1"}, got.Actions[0].Notification.Recipients)
	assert.Equal(t, 5, got.Settings.MaxExecutionsPerDay)

	got.Name = "renamed"
	require.NoError(t, store.UpdateRule(ctx, got))
	again, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	_, err = store.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestGormRuleStore_ListOrdering(t *testing.T) {
	db := newEngineTestDB(t)
	store := NewGormRuleStore(db)
	ctx := context.Background()

	low := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	low.Priority = 1
	high := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	high.Priority = 9
	other := makeRule("t2", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	for _, r := range []*models.Rule{low, high, other} {
		require.NoError(t, store.CreateRule(ctx, r))
	}

	rules, err := store.ListRules(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, high.ID, rules[0].ID, "highest priority first")
	assert.Equal(t, low.ID, rules[1].ID)

	// empty tenant id lists everything
	all, err := store.ListRules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGormRuleStore_UpdateMissing(t *testing.T) {
	db := newEngineTestDB(t)
	store := NewGormRuleStore(db)

	missing := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	err := store.UpdateRule(context.Background(), missing)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

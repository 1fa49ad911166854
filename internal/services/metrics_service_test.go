package services

import (
	"context"
	"testing"
	"time"

	"rulify/internal/models"

	"github.com/google/uuid"
)

func seedExecution(t *testing.T, store ExecutionStore, ruleID, tenantID string, at time.Time, status models.ExecutionStatus, durationMs int64, errMsg string, skipped bool) {
	t.Helper()
	done := at.Add(time.Duration(durationMs) * time.Millisecond)
	exec := &models.Execution{
		ID:          uuid.NewString(),
		RuleID:      ruleID,
		TenantID:    tenantID,
		TriggeredAt: at,
		Status:      status,
		StartedAt:   &at,
		CompletedAt: &done,
		Duration:    durationMs,
		Error:       errMsg,
	}
	if skipped {
		exec.Result = map[string]interface{}{"skipped": true, "reason": "Conditions not met"}
	}
	if err := store.CreateExecution(context.Background(), exec); err != nil {
		t.Fatalf("seed execution: %v", err)
	}
}

func TestComputeMetrics(t *testing.T) {
	db := newEngineTestDB(t)
	rules := NewGormRuleStore(db)
	executions := NewGormExecutionStore(db)
	svc := NewMetricsService(rules, executions, quietLogger())
	ctx := context.Background()

	ruleA := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	ruleA.Name = "rule A"
	ruleB := makeRule("t1", []models.Action{notifyAction("n", 1, false)}, models.RuleSettings{})
	ruleB.Name = "rule B"
	for _, r := range []*models.Rule{ruleA, ruleB} {
		if err := rules.CreateRule(ctx, r); err != nil {
			t.Fatalf("seed rule: %v", err)
		}
	}

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	// rule A: 2 successes, 1 timeout failure, 1 skipped
	seedExecution(t, executions, ruleA.ID, "t1", base, models.ExecutionCompleted, 100, "", false)
	seedExecution(t, executions, ruleA.ID, "t1", base.Add(time.Hour), models.ExecutionCompleted, 300, "", false)
	seedExecution(t, executions, ruleA.ID, "t1", base.Add(26*time.Hour), models.ExecutionTimeout, 5000, "Execution timed out", false)
	seedExecution(t, executions, ruleA.ID, "t1", base.Add(2*time.Hour), models.ExecutionCompleted, 1, "", true)
	// rule B: 1 failure with a network error
	seedExecution(t, executions, ruleB.ID, "t1", base.Add(time.Minute), models.ExecutionFailed, 50, "webhook call: dial tcp: connection refused", false)
	// another tenant's executions must not leak in
	seedExecution(t, executions, "other-rule", "t2", base, models.ExecutionCompleted, 10, "", false)

	m, err := svc.ComputeMetrics(ctx, "t1", base.Add(-time.Hour), base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if m.TotalExecutions != 5 {
		t.Fatalf("total = %d, want 5", m.TotalExecutions)
	}
	if m.SuccessfulExecutions != 2 {
		t.Errorf("successful = %d, want 2", m.SuccessfulExecutions)
	}
	if m.FailedExecutions != 2 {
		t.Errorf("failed = %d, want 2", m.FailedExecutions)
	}
	if m.SkippedExecutions != 1 {
		t.Errorf("skipped = %d, want 1", m.SkippedExecutions)
	}
	if m.SuccessfulExecutions+m.FailedExecutions+m.SkippedExecutions != m.TotalExecutions {
		t.Errorf("status counts do not add up to total")
	}
	if m.SuccessRate != 0.4 {
		t.Errorf("success rate = %f, want 0.4", m.SuccessRate)
	}

	// top rules sorted by executions descending
	if len(m.TopRules) != 2 {
		t.Fatalf("top rules = %d, want 2", len(m.TopRules))
	}
	if m.TopRules[0].RuleID != ruleA.ID || m.TopRules[0].Executions != 4 {
		t.Errorf("top rule = %+v, want rule A with 4", m.TopRules[0])
	}
	if m.TopRules[0].Name != "rule A" {
		t.Errorf("top rule name = %s", m.TopRules[0].Name)
	}
	if m.TopRules[0].SuccessRate != 0.5 {
		t.Errorf("rule A success rate = %f, want 0.5", m.TopRules[0].SuccessRate)
	}

	// two calendar days in play
	if len(m.DailyTrends) != 2 {
		t.Fatalf("daily trends = %d, want 2", len(m.DailyTrends))
	}
	if m.DailyTrends[0].Date != "2026-08-20" || m.DailyTrends[1].Date != "2026-08-21" {
		t.Errorf("trend dates = %s, %s", m.DailyTrends[0].Date, m.DailyTrends[1].Date)
	}
	if m.DailyTrends[0].Executions != 4 || m.DailyTrends[0].Successes != 2 || m.DailyTrends[0].Failures != 1 {
		t.Errorf("day one trend = %+v", m.DailyTrends[0])
	}

	// one Timeout and one Network failure, 50% each
	if len(m.ErrorBreakdown) != 2 {
		t.Fatalf("error breakdown = %+v, want 2 categories", m.ErrorBreakdown)
	}
	for _, eb := range m.ErrorBreakdown {
		if eb.Category != "Timeout" && eb.Category != "Network" {
			t.Errorf("unexpected category %s", eb.Category)
		}
		if eb.Count != 1 || eb.Percentage != 50.0 {
			t.Errorf("breakdown %+v, want count 1 at 50%%", eb)
		}
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewMetricsService(NewGormRuleStore(db), NewGormExecutionStore(db), quietLogger())

	m, err := svc.ComputeMetrics(context.Background(), "t1", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.TotalExecutions != 0 || m.SuccessRate != 0 || m.AvgDurationMs != 0 {
		t.Errorf("empty window metrics = %+v", m)
	}
	if len(m.TopRules) != 0 || len(m.DailyTrends) != 0 || len(m.ErrorBreakdown) != 0 {
		t.Errorf("empty window should have no aggregates")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Execution timed out", "Timeout"},
		{"context deadline exceeded", "Timeout"},
		{"dial tcp 10.0.0.1:443: connection refused", "Network"},
		{"permission denied", "Permission"},
		{"401 Unauthorized", "Permission"},
		{"invalid payload", "Validation"},
		{"entity id required", "Validation"},
		{"UNIQUE constraint failed", "Database"},
		{"something odd happened", "Other"},
		{"", "Other"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.msg); got != tt.want {
			t.Errorf("categorizeError(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

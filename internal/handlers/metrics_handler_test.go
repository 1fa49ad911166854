package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"rulify/internal/models"
	"rulify/internal/services"
)

func TestGetEngineMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["executions"]; !ok {
		t.Error("executions counters missing")
	}
	if _, ok := out["armed_schedules"]; !ok {
		t.Error("armed_schedules missing")
	}
	if _, ok := out["http_rate_limit"]; !ok {
		t.Error("http_rate_limit missing")
	}
}

func TestGetAutomationMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/rules", "acme", ruleBody("ticket.created"))
	var rule models.Rule
	json.Unmarshal(w.Body.Bytes(), &rule)
	for i := 0; i < 3; i++ {
		if w := env.do(t, http.MethodPost, fmt.Sprintf("/api/rules/%s/execute", rule.ID), "acme", nil); w.Code != http.StatusAccepted {
			t.Fatalf("execute %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	w = env.do(t, http.MethodGet, "/api/automation/metrics?period=24h", "acme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var m services.AutomationMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.TenantID != "acme" {
		t.Errorf("tenant = %s", m.TenantID)
	}
	if m.TotalExecutions != 3 {
		t.Errorf("total = %d, want 3", m.TotalExecutions)
	}
	if m.SuccessfulExecutions != 3 {
		t.Errorf("successful = %d, want 3", m.SuccessfulExecutions)
	}
	if len(m.TopRules) != 1 || m.TopRules[0].RuleID != rule.ID {
		t.Errorf("top rules = %+v", m.TopRules)
	}

	// other tenants see an empty window
	w = env.do(t, http.MethodGet, "/api/automation/metrics", "other", nil)
	json.Unmarshal(w.Body.Bytes(), &m)
	if m.TotalExecutions != 0 {
		t.Errorf("other tenant total = %d, want 0", m.TotalExecutions)
	}

	if w := env.do(t, http.MethodGet, "/api/automation/metrics?period=soon", "acme", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad period status = %d, want 400", w.Code)
	}
}

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rulify/internal/models"

	"gorm.io/gorm"
)

// newTestRunner wires the runner with the default collaborators over the
// given database and file root.
func newTestRunner(t *testing.T, db *gorm.DB, root string) *ActionRunner {
	t.Helper()
	logger := quietLogger()
	return NewActionRunner(
		NewLogNotificationSender(logger),
		NewLogEmailSender(logger),
		NewGormDataStore(db),
		NewLocalFileStore(root),
		NewGormWorkflowStore(db),
		NewGormAssignmentStore(db),
		logger,
	)
}

func TestRun_UnknownActionType(t *testing.T) {
	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())

	_, err := runner.Run(context.Background(), models.Action{Type: "teleport", Name: "x"}, nil, models.ExecutionContext{})
	if !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("err = %v, want ErrUnknownActionType", err)
	}
}

func TestRun_Webhook(t *testing.T) {
	var gotBody, gotAuth, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotAuth = r.Header.Get("Authorization")
		gotHeader = r.Header.Get("X-Ticket")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())

	action := models.Action{
		Type: models.ActionWebhook,
		Name: "relay",
		Webhook: &models.WebhookActionConfig{
			URL:       srv.URL,
			Body:      `{"ticket":"{{ticket.id}}","note":"{{missing}}"}`,
			Headers:   map[string]string{"X-Ticket": "{{ticket.id}}"},
			AuthToken: "secret-token",
		},
	}
	data := map[string]interface{}{
		"ticket": map[string]interface{}{"id": "T-42"},
	}

	out, err := runner.Run(context.Background(), action, data, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("run webhook: %v", err)
	}
	if out["status_code"] != 200 {
		t.Errorf("status_code = %v", out["status_code"])
	}
	resp, ok := out["response"].(map[string]interface{})
	if !ok || resp["ok"] != true {
		t.Errorf("response = %v", out["response"])
	}
	if !strings.Contains(gotBody, `"ticket":"T-42"`) {
		t.Errorf("body = %s, want interpolated ticket id", gotBody)
	}
	// unresolved template tokens pass through verbatim
	if !strings.Contains(gotBody, "{{missing}}") {
		t.Errorf("body = %s, want {{missing}} preserved", gotBody)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotHeader != "T-42" {
		t.Errorf("x-ticket = %q", gotHeader)
	}
}

func TestRun_WebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())

	action := models.Action{
		Type:    models.ActionWebhook,
		Name:    "relay",
		Webhook: &models.WebhookActionConfig{URL: srv.URL},
	}
	if _, err := runner.Run(context.Background(), action, map[string]interface{}{"a": 1}, models.ExecutionContext{}); err == nil {
		t.Fatal("5xx response must surface as an error")
	}
}

func TestRun_Database(t *testing.T) {
	db := newEngineTestDB(t)
	if err := db.Exec("CREATE TABLE records (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, tier TEXT)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	runner := newTestRunner(t, db, t.TempDir())
	ctx := context.Background()
	data := map[string]interface{}{"customer": map[string]interface{}{"name": "Ada", "tier": "gold"}}

	insert := models.Action{
		Type: models.ActionDatabase,
		Name: "record customer",
		Database: &models.DatabaseActionConfig{
			Operation: "insert",
			Table:     "records",
			Values:    map[string]interface{}{"name": "{{customer.name}}", "tier": "{{customer.tier}}"},
		},
	}
	if _, err := runner.Run(ctx, insert, data, models.ExecutionContext{}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	query := models.Action{
		Type: models.ActionDatabase,
		Name: "find customer",
		Database: &models.DatabaseActionConfig{
			Operation: "select",
			Table:     "records",
			Where:     map[string]interface{}{"name": "Ada"},
		},
	}
	out, err := runner.Run(ctx, query, data, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if out["rows"] != 1 {
		t.Fatalf("rows = %v, want 1", out["rows"])
	}

	unsupported := models.Action{
		Type:     models.ActionDatabase,
		Name:     "drop",
		Database: &models.DatabaseActionConfig{Operation: "truncate", Table: "records"},
	}
	if _, err := runner.Run(ctx, unsupported, data, models.ExecutionContext{}); err == nil {
		t.Fatal("unsupported database operation must fail")
	}
}

func TestRun_FileOperations(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("payload"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, root)
	ctx := context.Background()

	copyAction := models.Action{
		Type: models.ActionFileOperation,
		Name: "archive",
		File: &models.FileActionConfig{Operation: "copy", Source: "in.txt", Destination: "archive/{{name}}.txt"},
	}
	if _, err := runner.Run(ctx, copyAction, map[string]interface{}{"name": "out"}, models.ExecutionContext{}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "archive", "out.txt"))
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("copied content = %q", got)
	}

	// paths may not escape the store root
	escape := models.Action{
		Type: models.ActionFileOperation,
		Name: "escape",
		File: &models.FileActionConfig{Operation: "delete", Source: "../../etc/passwd"},
	}
	if _, err := runner.Run(ctx, escape, nil, models.ExecutionContext{}); err == nil {
		t.Fatal("escaping path must not resolve to a deletable file")
	}
}

func TestRun_Assignment(t *testing.T) {
	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())
	ctx := context.Background()

	action := models.Action{
		Type: models.ActionAssignment,
		Name: "assign",
		Assignment: &models.AssignmentActionConfig{
			EntityID: "{{ticket.id}}",
			AssignTo: []string{"agent-1", "agent-2"},
		},
	}
	out, err := runner.Run(ctx, action, map[string]interface{}{"ticket": map[string]interface{}{"id": "T-7"}}, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out["assigned"] != 2 {
		t.Errorf("assigned = %v, want 2", out["assigned"])
	}
	if out["entity_id"] != "T-7" {
		t.Errorf("entity_id = %v", out["entity_id"])
	}

	var count int64
	db.Model(&models.Assignment{}).Where("entity_id = ?", "T-7").Count(&count)
	if count != 2 {
		t.Errorf("assignment rows = %d, want 2", count)
	}

	// empty interpolated entity falls back to the execution context
	action.Assignment.EntityID = ""
	out, err = runner.Run(ctx, action, nil, models.ExecutionContext{EntityID: "ctx-entity"})
	if err != nil {
		t.Fatalf("assign fallback: %v", err)
	}
	if out["entity_id"] != "ctx-entity" {
		t.Errorf("entity_id = %v, want ctx-entity", out["entity_id"])
	}
}

func TestRun_Workflow(t *testing.T) {
	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())

	action := models.Action{
		Type: models.ActionWorkflow,
		Name: "escalate",
		Workflow: &models.WorkflowActionConfig{
			WorkflowID: "wf-escalation",
			Data:       map[string]interface{}{"level": "p1"},
		},
	}
	out, err := runner.Run(context.Background(), action, map[string]interface{}{"level": "p3", "source": "rule"}, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}
	runID, _ := out["run_id"].(string)
	if runID == "" {
		t.Fatal("run_id missing")
	}

	var run models.WorkflowRun
	if err := db.First(&run, "id = ?", runID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	// config data overrides trigger data on key collision
	if run.Input["level"] != "p1" {
		t.Errorf("input level = %v, want p1", run.Input["level"])
	}
	if run.Input["source"] != "rule" {
		t.Errorf("input source = %v", run.Input["source"])
	}
}

func TestRun_MissingConfig(t *testing.T) {
	db := newEngineTestDB(t)
	runner := newTestRunner(t, db, t.TempDir())

	for _, typ := range []models.ActionType{
		models.ActionNotification,
		models.ActionEmail,
		models.ActionWebhook,
		models.ActionDatabase,
		models.ActionFileOperation,
		models.ActionWorkflow,
		models.ActionAssignment,
		models.ActionCustom,
	} {
		if _, err := runner.Run(context.Background(), models.Action{Type: typ, Name: "bare"}, nil, models.ExecutionContext{}); err == nil {
			t.Errorf("action type %s without config must fail", typ)
		}
	}
}

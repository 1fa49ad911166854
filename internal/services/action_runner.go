package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rulify/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ActionRunner 按动作类型分派到对应的协作方。所有外呼都是 at-least-once，
// 幂等性由动作实现自行保证。
type ActionRunner struct {
	notifications NotificationSender
	email         EmailSender
	data          DataStore
	files         FileStore
	workflows     WorkflowStore
	assignments   AssignmentStore
	httpClient    *http.Client
	logger        *logrus.Logger
}

func NewActionRunner(
	notifications NotificationSender,
	email EmailSender,
	data DataStore,
	files FileStore,
	workflows WorkflowStore,
	assignments AssignmentStore,
	logger *logrus.Logger,
) *ActionRunner {
	if logger == nil {
		logger = logrus.New()
	}
	return &ActionRunner{
		notifications: notifications,
		email:         email,
		data:          data,
		files:         files,
		workflows:     workflows,
		assignments:   assignments,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Run executes one action and returns its output. Errors are returned to the
// orchestrator to be captured in the step record, not logged away here.
func (r *ActionRunner) Run(ctx context.Context, action models.Action, triggerData map[string]interface{}, execCtx models.ExecutionContext) (map[string]interface{}, error) {
	switch action.Type {
	case models.ActionNotification:
		return r.runNotification(ctx, action, triggerData)
	case models.ActionEmail:
		return r.runEmail(ctx, action, triggerData)
	case models.ActionWebhook:
		return r.runWebhook(ctx, action, triggerData)
	case models.ActionDatabase:
		return r.runDatabase(ctx, action, triggerData)
	case models.ActionFileOperation:
		return r.runFile(ctx, action, triggerData)
	case models.ActionWorkflow:
		return r.runWorkflow(ctx, action, triggerData)
	case models.ActionAssignment:
		return r.runAssignment(ctx, action, triggerData, execCtx)
	case models.ActionCustom:
		// 自定义动作对引擎不透明，仅记录调用。
		if action.Custom == nil {
			return nil, fmt.Errorf("%w: custom config missing", ErrTriggerConfig)
		}
		r.logger.WithField("handler", action.Custom.Handler).Info("custom action invoked")
		return map[string]interface{}{"handler": action.Custom.Handler, "invoked": true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, action.Type)
	}
}

func (r *ActionRunner) runNotification(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.Notification
	if cfg == nil {
		return nil, fmt.Errorf("notification config missing for action %s", action.Name)
	}
	title := Interpolate(cfg.Title, data)
	message := Interpolate(cfg.Message, data)
	sent := 0
	for _, recipient := range cfg.Recipients {
		if err := r.notifications.Send(ctx, recipient, title, message, cfg.Data, cfg.Channels); err != nil {
			return map[string]interface{}{"sent": sent}, fmt.Errorf("notify %s: %w", recipient, err)
		}
		sent++
	}
	return map[string]interface{}{"sent": sent}, nil
}

func (r *ActionRunner) runEmail(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.Email
	if cfg == nil {
		return nil, fmt.Errorf("email config missing for action %s", action.Name)
	}
	subject := Interpolate(cfg.Subject, data)
	body := Interpolate(cfg.Body, data)
	if err := r.email.Send(ctx, cfg.To, subject, body); err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	return map[string]interface{}{"recipients": len(cfg.To), "subject": subject}, nil
}

func (r *ActionRunner) runWebhook(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.Webhook
	if cfg == nil {
		return nil, fmt.Errorf("webhook config missing for action %s", action.Name)
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var payload io.Reader
	if cfg.Body != "" {
		payload = bytes.NewBufferString(Interpolate(cfg.Body, data))
	} else if method != http.MethodGet {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payload = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, Interpolate(v, data))
	}
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	out := map[string]interface{}{"status_code": resp.StatusCode}
	var parsed map[string]interface{}
	if json.Unmarshal(body, &parsed) == nil {
		out["response"] = parsed
	} else if len(body) > 0 {
		out["response"] = string(body)
	}
	return out, nil
}

func (r *ActionRunner) runDatabase(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.Database
	if cfg == nil {
		return nil, fmt.Errorf("database config missing for action %s", action.Name)
	}
	switch cfg.Operation {
	case "insert":
		if err := r.data.Insert(ctx, cfg.Table, interpolateValues(cfg.Values, data)); err != nil {
			return nil, fmt.Errorf("database insert: %w", err)
		}
		return map[string]interface{}{"operation": "insert", "table": cfg.Table}, nil
	case "update":
		affected, err := r.data.Update(ctx, cfg.Table, interpolateValues(cfg.Where, data), interpolateValues(cfg.Values, data))
		if err != nil {
			return nil, fmt.Errorf("database update: %w", err)
		}
		return map[string]interface{}{"operation": "update", "affected": affected}, nil
	case "delete":
		affected, err := r.data.Delete(ctx, cfg.Table, interpolateValues(cfg.Where, data))
		if err != nil {
			return nil, fmt.Errorf("database delete: %w", err)
		}
		return map[string]interface{}{"operation": "delete", "affected": affected}, nil
	case "select":
		rows, err := r.data.Select(ctx, cfg.Table, interpolateValues(cfg.Where, data))
		if err != nil {
			return nil, fmt.Errorf("database select: %w", err)
		}
		return map[string]interface{}{"operation": "select", "rows": len(rows), "data": rows}, nil
	default:
		return nil, fmt.Errorf("unsupported database operation: %s", cfg.Operation)
	}
}

func (r *ActionRunner) runFile(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.File
	if cfg == nil {
		return nil, fmt.Errorf("file config missing for action %s", action.Name)
	}
	source := Interpolate(cfg.Source, data)
	destination := Interpolate(cfg.Destination, data)

	var err error
	switch cfg.Operation {
	case "move":
		err = r.files.Move(ctx, source, destination)
	case "copy":
		err = r.files.Copy(ctx, source, destination)
	case "delete":
		err = r.files.Delete(ctx, source)
	case "rename":
		err = r.files.Rename(ctx, source, destination)
	default:
		return nil, fmt.Errorf("unsupported file operation: %s", cfg.Operation)
	}
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", cfg.Operation, err)
	}
	return map[string]interface{}{"operation": cfg.Operation, "source": source}, nil
}

func (r *ActionRunner) runWorkflow(ctx context.Context, action models.Action, data map[string]interface{}) (map[string]interface{}, error) {
	cfg := action.Workflow
	if cfg == nil {
		return nil, fmt.Errorf("workflow config missing for action %s", action.Name)
	}
	// 触发数据与配置数据合并后作为流程输入，配置优先。
	merged := make(map[string]interface{}, len(data)+len(cfg.Data))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range cfg.Data {
		merged[k] = v
	}
	runID, err := r.workflows.Start(ctx, cfg.WorkflowID, merged)
	if err != nil {
		return nil, fmt.Errorf("start workflow %s: %w", cfg.WorkflowID, err)
	}
	return map[string]interface{}{"workflow_id": cfg.WorkflowID, "run_id": runID}, nil
}

func (r *ActionRunner) runAssignment(ctx context.Context, action models.Action, data map[string]interface{}, execCtx models.ExecutionContext) (map[string]interface{}, error) {
	cfg := action.Assignment
	if cfg == nil {
		return nil, fmt.Errorf("assignment config missing for action %s", action.Name)
	}
	entityID := Interpolate(cfg.EntityID, data)
	if entityID == "" {
		entityID = execCtx.EntityID
	}
	assigned, err := r.assignments.Assign(ctx, entityID, cfg.AssignTo)
	if err != nil {
		return map[string]interface{}{"assigned": assigned}, fmt.Errorf("assign %s: %w", entityID, err)
	}
	return map[string]interface{}{"assigned": assigned, "entity_id": entityID}, nil
}

// interpolateValues applies template interpolation to string values in a map.
func interpolateValues(values, data map[string]interface{}) map[string]interface{} {
	if values == nil {
		return nil
	}
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			out[k] = Interpolate(s, data)
		} else {
			out[k] = v
		}
	}
	return out
}

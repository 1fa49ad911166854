package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appmetrics "rulify/internal/metrics"
	"rulify/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionService 驱动规则生命周期：限流检查、条件求值、按序执行动作、
// 逐步落库、最终定状态并回写规则统计。
type ExecutionService struct {
	rules      RuleStore
	executions ExecutionStore
	runner     *ActionRunner
	limiter    *RateLimiter
	logger     *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewExecutionService(rules RuleStore, executions ExecutionStore, runner *ActionRunner, limiter *RateLimiter, logger *logrus.Logger) *ExecutionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutionService{
		rules:      rules,
		executions: executions,
		runner:     runner,
		limiter:    limiter,
		logger:     logger,
		tracer:     otel.Tracer("rulify/engine"),
		now:        time.Now,
	}
}

// ExecuteRule runs one rule against the trigger data and returns the new
// execution id. Errors before the execution record exists (unknown rule,
// inactive rule, exhausted quota) are returned to the caller; action failures
// are terminal states of the execution, never errors here.
func (s *ExecutionService) ExecuteRule(ctx context.Context, ruleID string, triggerData map[string]interface{}, execCtx models.ExecutionContext, triggeredBy string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "engine.execute_rule")
	defer span.End()

	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return "", err
	}
	if !rule.IsActive {
		return "", fmt.Errorf("%w: %s", ErrRuleInactive, ruleID)
	}

	ok, err := s.limiter.CanExecute(ctx, rule)
	if err != nil {
		return "", fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		appmetrics.IncRateLimited()
		return "", fmt.Errorf("%w: rule %s", ErrRateLimitExceeded, ruleID)
	}

	started := s.now()
	exec := &models.Execution{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		TenantID:    rule.TenantID,
		TriggeredBy: triggeredBy,
		TriggeredAt: started,
		Status:      models.ExecutionRunning,
		StartedAt:   &started,
		TriggerData: triggerData,
		Context:     execCtx,
		Steps:       []models.ExecutionStep{},
	}
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}
	appmetrics.IncExecutionStarted()

	if !EvaluateConditions(rule.Conditions, triggerData) {
		exec.Result = map[string]interface{}{"skipped": true, "reason": "Conditions not met"}
		s.finalize(ctx, exec, models.ExecutionCompleted, "")
		appmetrics.IncExecutionSkipped()
		return exec.ID, nil
	}

	actions := enabledActionsInOrder(rule.Actions)
	if rule.Settings.RunInParallel {
		s.runParallel(ctx, rule, exec, actions)
	} else {
		s.runSequential(ctx, rule, exec, actions)
	}

	if !exec.Status.Terminal() {
		s.finalize(ctx, exec, models.ExecutionCompleted, "")
	}
	if exec.Status == models.ExecutionCompleted {
		appmetrics.IncExecutionCompleted()
	} else {
		appmetrics.IncExecutionFailed()
	}

	s.updateRuleStats(ctx, rule, exec)
	return exec.ID, nil
}

// runSequential executes actions in ascending order, halting on the first
// failure without continue_on_error. A configured timeout stops further steps
// but never interrupts the step in flight.
func (s *ExecutionService) runSequential(ctx context.Context, rule *models.Rule, exec *models.Execution, actions []models.Action) {
	deadline := time.Time{}
	if rule.Settings.TimeoutSeconds > 0 {
		deadline = exec.StartedAt.Add(time.Duration(rule.Settings.TimeoutSeconds) * time.Second)
	}

	for _, action := range actions {
		if !deadline.IsZero() && s.now().After(deadline) {
			s.finalize(ctx, exec, models.ExecutionTimeout, "Execution timed out")
			return
		}

		step := s.runStep(ctx, action, exec)
		exec.Steps = append(exec.Steps, step)
		if err := s.executions.UpdateExecution(ctx, exec); err != nil {
			s.logger.Warnf("automation: persist step for execution %s: %v", exec.ID, err)
		}

		if step.Status == models.StepFailed && !action.ContinueOnError {
			s.finalize(ctx, exec, models.ExecutionFailed, fmt.Sprintf("Action failed: %s", action.Name))
			return
		}
	}
}

// runParallel dispatches all actions together and joins before finalizing.
// Steps keep action order in the record; there is no ordering guarantee for
// the actual calls. A fatal step fails the execution but already-started
// siblings run to completion.
func (s *ExecutionService) runParallel(ctx context.Context, rule *models.Rule, exec *models.Execution, actions []models.Action) {
	steps := make([]models.ExecutionStep, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action models.Action) {
			defer wg.Done()
			steps[i] = s.runStep(ctx, action, exec)
		}(i, action)
	}
	wg.Wait()

	fatal := ""
	for i, step := range steps {
		exec.Steps = append(exec.Steps, step)
		if step.Status == models.StepFailed && !actions[i].ContinueOnError && fatal == "" {
			fatal = actions[i].Name
		}
	}
	if err := s.executions.UpdateExecution(ctx, exec); err != nil {
		s.logger.Warnf("automation: persist steps for execution %s: %v", exec.ID, err)
	}
	if fatal != "" {
		s.finalize(ctx, exec, models.ExecutionFailed, fmt.Sprintf("Action failed: %s", fatal))
	}
}

func (s *ExecutionService) runStep(ctx context.Context, action models.Action, exec *models.Execution) models.ExecutionStep {
	stepStart := s.now()
	step := models.ExecutionStep{
		StepID:    uuid.NewString(),
		Type:      "action",
		Name:      action.Name,
		Status:    models.StepRunning,
		StartedAt: stepStart,
		Input:     map[string]interface{}{"action_id": action.ID, "action_type": string(action.Type)},
	}

	output, err := s.runner.Run(ctx, action, exec.TriggerData, exec.Context)
	done := s.now()
	step.CompletedAt = &done
	step.Duration = done.Sub(stepStart).Milliseconds()
	step.Output = output
	if err != nil {
		step.Status = models.StepFailed
		step.Error = err.Error()
		s.logger.WithFields(logrus.Fields{
			"execution_id": exec.ID,
			"action":       action.Name,
		}).Warnf("automation: action failed: %v", err)
	} else {
		step.Status = models.StepCompleted
	}
	return step
}

// finalize moves the execution to a terminal state. Status is monotonic:
// an already-terminal execution is left untouched.
func (s *ExecutionService) finalize(ctx context.Context, exec *models.Execution, status models.ExecutionStatus, errMsg string) {
	if exec.Status.Terminal() {
		return
	}
	done := s.now()
	exec.Status = status
	exec.CompletedAt = &done
	if exec.StartedAt != nil {
		exec.Duration = done.Sub(*exec.StartedAt).Milliseconds()
	}
	if errMsg != "" {
		exec.Error = errMsg
	}
	if err := s.executions.UpdateExecution(ctx, exec); err != nil {
		s.logger.Warnf("automation: finalize execution %s: %v", exec.ID, err)
	}
}

// CancelExecution marks a non-terminal execution cancelled. In-flight action
// calls are not interrupted; the engine just stops owning the run.
func (s *ExecutionService) CancelExecution(ctx context.Context, executionID string) error {
	exec, err := s.executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("execution %s already %s", executionID, exec.Status)
	}
	s.finalize(ctx, exec, models.ExecutionCancelled, "Cancelled by supervisor")
	return nil
}

// updateRuleStats rolls execution count, success rate and average duration
// into the rule metadata.
func (s *ExecutionService) updateRuleStats(ctx context.Context, rule *models.Rule, exec *models.Execution) {
	n := rule.Metadata.ExecutionCount + 1
	success := 0.0
	if exec.Status == models.ExecutionCompleted {
		success = 1.0
	}
	rule.Metadata.SuccessRate = (rule.Metadata.SuccessRate*float64(n-1) + success) / float64(n)
	rule.Metadata.AvgExecutionTime = (rule.Metadata.AvgExecutionTime*float64(n-1) + float64(exec.Duration)) / float64(n)
	rule.Metadata.ExecutionCount = n
	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		s.logger.Warnf("automation: update rule stats for %s: %v", rule.ID, err)
	}
}

// enabledActionsInOrder filters disabled actions and sorts by ascending order.
// The sort is stable so ties keep their list position.
func enabledActionsInOrder(actions []models.Action) []models.Action {
	out := make([]models.Action, 0, len(actions))
	for _, a := range actions {
		if a.Enabled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

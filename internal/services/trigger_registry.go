package services

import (
	"context"
	"sort"
	"sync"

	appmetrics "rulify/internal/metrics"
	"rulify/internal/models"

	"github.com/sirupsen/logrus"
)

// RuleExecutor is the orchestrator capability the registry dispatches to.
type RuleExecutor interface {
	ExecuteRule(ctx context.Context, ruleID string, triggerData map[string]interface{}, execCtx models.ExecutionContext, triggeredBy string) (string, error)
}

// TriggerRegistry 维护三类索引：事件类型 → 规则、webhook id → 规则、
// 定时触发器（经 Scheduler 持有取消句柄）。分发对每条规则互相隔离，
// 单条失败不影响其它规则。
type TriggerRegistry struct {
	mu         sync.RWMutex
	executor   RuleExecutor
	scheduler  *Scheduler
	logger     *logrus.Logger
	events     map[string]map[string]struct{} // eventType → ruleIDs
	webhooks   map[string]map[string]struct{} // webhookID → ruleIDs
	priorities map[string]int                 // ruleID → priority
}

func NewTriggerRegistry(executor RuleExecutor, scheduler *Scheduler, logger *logrus.Logger) *TriggerRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &TriggerRegistry{
		executor:   executor,
		scheduler:  scheduler,
		logger:     logger,
		events:     make(map[string]map[string]struct{}),
		webhooks:   make(map[string]map[string]struct{}),
		priorities: make(map[string]int),
	}
}

// RegisterRule indexes every enabled trigger of an active rule. Re-registering
// replaces the previous registration. A malformed schedule expression only
// skips that trigger (logged), the rest of the rule still registers.
func (r *TriggerRegistry) RegisterRule(rule *models.Rule) {
	r.UnregisterRule(rule.ID)
	if !rule.IsActive {
		return
	}

	r.mu.Lock()
	r.priorities[rule.ID] = rule.Priority
	r.mu.Unlock()

	for _, trigger := range rule.EnabledTriggers() {
		switch trigger.Type {
		case models.TriggerEvent:
			if trigger.Event == nil || trigger.Event.EventType == "" {
				r.logger.Warnf("automation: rule %s event trigger %s has no event type", rule.ID, trigger.ID)
				continue
			}
			r.mu.Lock()
			if r.events[trigger.Event.EventType] == nil {
				r.events[trigger.Event.EventType] = make(map[string]struct{})
			}
			r.events[trigger.Event.EventType][rule.ID] = struct{}{}
			r.mu.Unlock()

		case models.TriggerWebhook:
			if trigger.Webhook == nil || trigger.Webhook.WebhookID == "" {
				r.logger.Warnf("automation: rule %s webhook trigger %s has no webhook id", rule.ID, trigger.ID)
				continue
			}
			r.mu.Lock()
			if r.webhooks[trigger.Webhook.WebhookID] == nil {
				r.webhooks[trigger.Webhook.WebhookID] = make(map[string]struct{})
			}
			r.webhooks[trigger.Webhook.WebhookID][rule.ID] = struct{}{}
			r.mu.Unlock()

		case models.TriggerSchedule:
			r.armSchedule(rule.ID, trigger)

		case models.TriggerCondition:
			r.armConditionPoll(rule.ID, trigger)

		case models.TriggerManual:
			// fired only via the API, nothing to index
		}
	}
}

func (r *TriggerRegistry) armSchedule(ruleID string, trigger models.Trigger) {
	if trigger.Schedule == nil {
		r.logger.Warnf("automation: rule %s schedule trigger %s has no config", ruleID, trigger.ID)
		return
	}
	key := scheduleKey(ruleID, trigger.ID)
	switch trigger.Schedule.Type {
	case "interval":
		every, err := ParseInterval(trigger.Schedule.Expression)
		if err != nil {
			r.logger.Warnf("automation: rule %s trigger %s not armed: %v", ruleID, trigger.ID, err)
			return
		}
		triggerID := trigger.ID
		r.scheduler.ArmInterval(key, every, func() { r.FireSchedule(ruleID, triggerID) })
	case "cron":
		triggerID := trigger.ID
		err := r.scheduler.ArmCron(key, trigger.Schedule.Expression, trigger.Schedule.Timezone, func() { r.FireSchedule(ruleID, triggerID) })
		if err != nil {
			r.logger.Warnf("automation: rule %s trigger %s not armed: %v", ruleID, trigger.ID, err)
		}
	default:
		r.logger.Warnf("automation: rule %s trigger %s has unknown schedule type %q", ruleID, trigger.ID, trigger.Schedule.Type)
	}
}

// armConditionPoll arms a repeating timer that re-runs the rule; the rule's
// own conditions decide whether anything happens on each poll.
func (r *TriggerRegistry) armConditionPoll(ruleID string, trigger models.Trigger) {
	if trigger.Condition == nil {
		return
	}
	every, err := ParseInterval(trigger.Condition.PollInterval)
	if err != nil {
		r.logger.Warnf("automation: rule %s poll trigger %s not armed: %v", ruleID, trigger.ID, err)
		return
	}
	triggerID := trigger.ID
	r.scheduler.ArmInterval(scheduleKey(ruleID, trigger.ID), every, func() {
		if _, err := r.executor.ExecuteRule(context.Background(), ruleID, map[string]interface{}{}, models.ExecutionContext{}, "condition:"+triggerID); err != nil {
			r.logger.Warnf("automation: poll trigger %s on rule %s: %v", triggerID, ruleID, err)
		}
	})
}

// FireSchedule runs a rule on behalf of one of its schedule triggers. Exposed
// so schedule firing can be simulated without waiting out a timer.
func (r *TriggerRegistry) FireSchedule(ruleID, triggerID string) {
	if _, err := r.executor.ExecuteRule(context.Background(), ruleID, map[string]interface{}{}, models.ExecutionContext{}, "schedule:"+triggerID); err != nil {
		r.logger.Warnf("automation: schedule trigger %s on rule %s: %v", triggerID, ruleID, err)
	}
}

// UnregisterRule drops the rule from all indices and disarms its timers.
func (r *TriggerRegistry) UnregisterRule(ruleID string) {
	r.mu.Lock()
	for eventType, rules := range r.events {
		delete(rules, ruleID)
		if len(rules) == 0 {
			delete(r.events, eventType)
		}
	}
	for webhookID, rules := range r.webhooks {
		delete(rules, ruleID)
		if len(rules) == 0 {
			delete(r.webhooks, webhookID)
		}
	}
	delete(r.priorities, ruleID)
	r.mu.Unlock()

	r.scheduler.DisarmPrefix(ruleID + "/")
}

// DispatchEvent runs every rule registered for the event type, highest
// priority first, and returns the execution ids created. Dispatch is
// fire-and-forget per rule: a failing rule is logged, its siblings still run.
func (r *TriggerRegistry) DispatchEvent(ctx context.Context, eventType string, data map[string]interface{}, execCtx models.ExecutionContext) []string {
	appmetrics.IncEventDispatch(eventType)
	return r.dispatch(ctx, r.matching(r.events, eventType), data, execCtx, "event:"+eventType)
}

// DispatchWebhook runs every rule registered for the webhook id. Request
// headers ride along under the "headers" key of the trigger data.
func (r *TriggerRegistry) DispatchWebhook(ctx context.Context, webhookID string, data map[string]interface{}, headers map[string]string) []string {
	if data == nil {
		data = map[string]interface{}{}
	}
	if len(headers) > 0 {
		hdr := make(map[string]interface{}, len(headers))
		for k, v := range headers {
			hdr[k] = v
		}
		data["headers"] = hdr
	}
	return r.dispatch(ctx, r.matching(r.webhooks, webhookID), data, models.ExecutionContext{}, "webhook:"+webhookID)
}

// matching snapshots the rule ids for a key sorted by descending priority.
func (r *TriggerRegistry) matching(index map[string]map[string]struct{}, key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(index[key]))
	for id := range index[key] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := r.priorities[ids[i]], r.priorities[ids[j]]
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (r *TriggerRegistry) dispatch(ctx context.Context, ruleIDs []string, data map[string]interface{}, execCtx models.ExecutionContext, triggeredBy string) []string {
	execIDs := make([]string, 0, len(ruleIDs))
	for _, ruleID := range ruleIDs {
		execID, err := r.executor.ExecuteRule(ctx, ruleID, data, execCtx, triggeredBy)
		if err != nil {
			r.logger.Warnf("automation: dispatch %s to rule %s: %v", triggeredBy, ruleID, err)
			continue
		}
		execIDs = append(execIDs, execID)
	}
	return execIDs
}

func scheduleKey(ruleID, triggerID string) string {
	return ruleID + "/" + triggerID
}

package services

import (
	"context"
	"fmt"

	"rulify/internal/models"
)

// 内置规则模板。config 提供模板参数，未给出的取默认值。
type ruleTemplate func(config map[string]interface{}) *RuleCreateRequest

var ruleTemplates = map[string]ruleTemplate{
	"auto_assign":     autoAssignTemplate,
	"notify_on_event": notifyOnEventTemplate,
	"webhook_relay":   webhookRelayTemplate,
}

// CreateRuleFromTemplate instantiates a builtin template and creates the rule.
func (s *RuleService) CreateRuleFromTemplate(ctx context.Context, name string, config map[string]interface{}, tenantID, createdBy string) (*models.Rule, error) {
	tmpl, ok := ruleTemplates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	req := tmpl(config)
	if n := configString(config, "name"); n != "" {
		req.Name = n
	}
	return s.CreateRule(ctx, tenantID, createdBy, req)
}

// TemplateNames lists the available template identifiers.
func TemplateNames() []string {
	names := make([]string, 0, len(ruleTemplates))
	for n := range ruleTemplates {
		names = append(names, n)
	}
	return names
}

func autoAssignTemplate(config map[string]interface{}) *RuleCreateRequest {
	eventType := configString(config, "event_type")
	if eventType == "" {
		eventType = "entity.created"
	}
	return &RuleCreateRequest{
		Name:     "Auto assign on " + eventType,
		Category: "assignment",
		Triggers: []models.Trigger{{
			Type:    models.TriggerEvent,
			Enabled: true,
			Event:   &models.EventTriggerConfig{EventType: eventType},
		}},
		Actions: []models.Action{{
			Type:    models.ActionAssignment,
			Name:    "Assign entity",
			Enabled: true,
			Assignment: &models.AssignmentActionConfig{
				EntityID: configString(config, "entity_id"),
				AssignTo: configStrings(config, "assign_to"),
			},
		}},
	}
}

func notifyOnEventTemplate(config map[string]interface{}) *RuleCreateRequest {
	eventType := configString(config, "event_type")
	if eventType == "" {
		eventType = "entity.updated"
	}
	title := configString(config, "title")
	if title == "" {
		title = "Automation notification"
	}
	return &RuleCreateRequest{
		Name:     "Notify on " + eventType,
		Category: "notification",
		Triggers: []models.Trigger{{
			Type:    models.TriggerEvent,
			Enabled: true,
			Event:   &models.EventTriggerConfig{EventType: eventType},
		}},
		Actions: []models.Action{{
			Type:    models.ActionNotification,
			Name:    "Send notification",
			Enabled: true,
			Notification: &models.NotificationActionConfig{
				Recipients: configStrings(config, "recipients"),
				Title:      title,
				Message:    configString(config, "message"),
				Channels:   configStrings(config, "channels"),
			},
		}},
	}
}

func webhookRelayTemplate(config map[string]interface{}) *RuleCreateRequest {
	webhookID := configString(config, "webhook_id")
	if webhookID == "" {
		webhookID = "relay"
	}
	return &RuleCreateRequest{
		Name:     "Webhook relay " + webhookID,
		Category: "integration",
		Triggers: []models.Trigger{{
			Type:    models.TriggerWebhook,
			Enabled: true,
			Webhook: &models.WebhookTriggerConfig{WebhookID: webhookID},
		}},
		Actions: []models.Action{{
			Type:    models.ActionWebhook,
			Name:    "Relay payload",
			Enabled: true,
			Webhook: &models.WebhookActionConfig{
				URL:    configString(config, "url"),
				Method: configString(config, "method"),
			},
		}},
	}
}

func configString(config map[string]interface{}, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configStrings(config map[string]interface{}, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

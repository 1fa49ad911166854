package services

import (
	"context"
	"fmt"
	"time"

	"rulify/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RuleService 规则管理：校验、落库、与触发器注册表保持同步。
type RuleService struct {
	rules      RuleStore
	executions ExecutionStore
	registry   *TriggerRegistry
	logger     *logrus.Logger
}

func NewRuleService(rules RuleStore, executions ExecutionStore, registry *TriggerRegistry, logger *logrus.Logger) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{rules: rules, executions: executions, registry: registry, logger: logger}
}

// RuleCreateRequest 创建规则的请求
type RuleCreateRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Priority    int                 `json:"priority"`
	Triggers    []models.Trigger    `json:"triggers" binding:"required"`
	Conditions  []models.Condition  `json:"conditions"`
	Actions     []models.Action     `json:"actions"`
	Settings    models.RuleSettings `json:"settings"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags"`
}

// RuleUpdateRequest 更新规则的请求，nil 字段保持原值。
type RuleUpdateRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Priority    *int                 `json:"priority"`
	IsActive    *bool                `json:"is_active"`
	Triggers    []models.Trigger     `json:"triggers"`
	Conditions  []models.Condition   `json:"conditions"`
	Actions     []models.Action      `json:"actions"`
	Settings    *models.RuleSettings `json:"settings"`
}

// CreateRule validates, persists and registers a new rule.
func (s *RuleService) CreateRule(ctx context.Context, tenantID, createdBy string, req *RuleCreateRequest) (*models.Rule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	rule := &models.Rule{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		IsActive:    true,
		Triggers:    req.Triggers,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Settings:    req.Settings,
		Metadata:    models.RuleMetadata{Category: req.Category, Tags: req.Tags},
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := normalizeRule(rule); err != nil {
		return nil, err
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	s.registry.RegisterRule(rule)
	s.logger.Infof("automation: rule %s (%s) created for tenant %s", rule.Name, rule.ID, tenantID)
	return rule, nil
}

// UpdateRule applies a partial update and re-registers triggers.
func (s *RuleService) UpdateRule(ctx context.Context, id string, req *RuleUpdateRequest) (*models.Rule, error) {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.Triggers != nil {
		rule.Triggers = req.Triggers
	}
	if req.Conditions != nil {
		rule.Conditions = req.Conditions
	}
	if req.Actions != nil {
		rule.Actions = req.Actions
	}
	if req.Settings != nil {
		rule.Settings = *req.Settings
	}
	rule.UpdatedAt = time.Now()
	if err := normalizeRule(rule); err != nil {
		return nil, err
	}
	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.registry.RegisterRule(rule) // re-register replaces old indices/timers
	return rule, nil
}

// SetActive toggles a rule without touching its definition.
func (s *RuleService) SetActive(ctx context.Context, id string, active bool) (*models.Rule, error) {
	return s.UpdateRule(ctx, id, &RuleUpdateRequest{IsActive: &active})
}

// DeleteRule removes a rule. While pending executions still reference it the
// rule is only deactivated, never hard-deleted.
func (s *RuleService) DeleteRule(ctx context.Context, id string) (deleted bool, err error) {
	pending, err := s.executions.CountPending(ctx, id)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		if _, err := s.SetActive(ctx, id, false); err != nil {
			return false, err
		}
		s.logger.Infof("automation: rule %s has %d pending executions, deactivated instead of deleted", id, pending)
		return false, nil
	}
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return false, err
	}
	s.registry.UnregisterRule(id)
	return true, nil
}

func (s *RuleService) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	return s.rules.GetRule(ctx, id)
}

func (s *RuleService) ListRules(ctx context.Context, tenantID string) ([]models.Rule, error) {
	return s.rules.ListRules(ctx, tenantID)
}

// SetupScheduledTriggers loads every rule at boot and registers the active
// ones, arming their schedule triggers.
func (s *RuleService) SetupScheduledTriggers(ctx context.Context) error {
	rules, err := s.rules.ListRules(ctx, "")
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	armed := 0
	for i := range rules {
		if !rules[i].IsActive {
			continue
		}
		s.registry.RegisterRule(&rules[i])
		armed++
	}
	s.logger.Infof("automation: registered %d active rules", armed)
	return nil
}

// normalizeRule assigns missing ids and enforces structural invariants.
func normalizeRule(rule *models.Rule) error {
	if len(rule.EnabledTriggers()) == 0 {
		return fmt.Errorf("%w: rule needs at least one enabled trigger", ErrTriggerConfig)
	}
	for i := range rule.Triggers {
		if rule.Triggers[i].ID == "" {
			rule.Triggers[i].ID = uuid.NewString()
		}
	}
	for i := range rule.Actions {
		if rule.Actions[i].ID == "" {
			rule.Actions[i].ID = uuid.NewString()
		}
		switch rule.Actions[i].Type {
		case models.ActionNotification, models.ActionEmail, models.ActionWebhook,
			models.ActionDatabase, models.ActionFileOperation, models.ActionWorkflow,
			models.ActionAssignment, models.ActionCustom:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownActionType, rule.Actions[i].Type)
		}
	}
	return nil
}

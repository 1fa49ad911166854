package services

import (
	"context"
	"errors"
	"fmt"

	"rulify/internal/models"

	"gorm.io/gorm"
)

// RuleStore 规则持久化接口。测试里用 sqlite 内存库，生产用 postgres。
type RuleStore interface {
	GetRule(ctx context.Context, id string) (*models.Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]models.Rule, error)
	CreateRule(ctx context.Context, rule *models.Rule) error
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id string) error
}

type gormRuleStore struct {
	db *gorm.DB
}

func NewGormRuleStore(db *gorm.DB) RuleStore {
	return &gormRuleStore{db: db}
}

func (s *gormRuleStore) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	var rule models.Rule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

func (s *gormRuleStore) ListRules(ctx context.Context, tenantID string) ([]models.Rule, error) {
	var rules []models.Rule
	q := s.db.WithContext(ctx).Order("priority DESC, created_at ASC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *gormRuleStore) CreateRule(ctx context.Context, rule *models.Rule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *gormRuleStore) UpdateRule(ctx context.Context, rule *models.Rule) error {
	res := s.db.WithContext(ctx).Model(&models.Rule{}).Where("id = ?", rule.ID).
		Select("*").Omit("id", "created_at").Updates(rule)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *gormRuleStore) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Rule{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

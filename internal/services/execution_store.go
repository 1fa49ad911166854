package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rulify/internal/models"

	"gorm.io/gorm"
)

// ExecutionStore 执行记录持久化接口
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *models.Execution) error
	UpdateExecution(ctx context.Context, exec *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	// ListExecutions returns executions for a tenant whose triggered_at falls
	// in [from, to). A zero `to` means "now".
	ListExecutions(ctx context.Context, tenantID string, from, to time.Time) ([]models.Execution, error)
	// CountExecutions counts executions of a rule on the calendar day of `day`.
	CountExecutions(ctx context.Context, ruleID string, day time.Time) (int64, error)
	// CountPending counts executions of a rule still in a non-terminal state.
	CountPending(ctx context.Context, ruleID string) (int64, error)
}

type gormExecutionStore struct {
	db *gorm.DB
}

func NewGormExecutionStore(db *gorm.DB) ExecutionStore {
	return &gormExecutionStore{db: db}
}

func (s *gormExecutionStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	return s.db.WithContext(ctx).Create(exec).Error
}

func (s *gormExecutionStore) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	return s.db.WithContext(ctx).Save(exec).Error
}

func (s *gormExecutionStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	var exec models.Execution
	if err := s.db.WithContext(ctx).First(&exec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("execution %s not found", id)
		}
		return nil, err
	}
	return &exec, nil
}

func (s *gormExecutionStore) ListExecutions(ctx context.Context, tenantID string, from, to time.Time) ([]models.Execution, error) {
	if to.IsZero() {
		to = time.Now()
	}
	var execs []models.Execution
	q := s.db.WithContext(ctx).
		Where("triggered_at >= ? AND triggered_at < ?", from, to).
		Order("triggered_at DESC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}

func (s *gormExecutionStore) CountExecutions(ctx context.Context, ruleID string, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Execution{}).
		Where("rule_id = ? AND triggered_at >= ? AND triggered_at < ?", ruleID, start, end).
		Count(&count).Error
	return count, err
}

func (s *gormExecutionStore) CountPending(ctx context.Context, ruleID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Execution{}).
		Where("rule_id = ? AND status IN ?", ruleID, []string{string(models.ExecutionPending), string(models.ExecutionRunning)}).
		Count(&count).Error
	return count, err
}

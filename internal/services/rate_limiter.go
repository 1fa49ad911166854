package services

import (
	"context"
	"time"

	"rulify/internal/models"
)

// RateLimiter 按自然日限制单条规则的执行次数。基于执行表计数，尽力而为：
// 高并发下可能轻微超额，这对本领域可接受。
type RateLimiter struct {
	executions ExecutionStore
	now        func() time.Time
}

func NewRateLimiter(executions ExecutionStore) *RateLimiter {
	return &RateLimiter{executions: executions, now: time.Now}
}

// CanExecute returns false when the rule's daily quota is exhausted.
// A zero or negative MaxExecutionsPerDay means unlimited.
func (l *RateLimiter) CanExecute(ctx context.Context, rule *models.Rule) (bool, error) {
	limit := rule.Settings.MaxExecutionsPerDay
	if limit <= 0 {
		return true, nil
	}
	count, err := l.executions.CountExecutions(ctx, rule.ID, l.now())
	if err != nil {
		return false, err
	}
	return count < int64(limit), nil
}

package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"rulify/internal/models"

	"github.com/sirupsen/logrus"
)

// AutomationMetrics 租户级自动化统计
type AutomationMetrics struct {
	TenantID             string               `json:"tenant_id"`
	From                 time.Time            `json:"from"`
	To                   time.Time            `json:"to"`
	TotalExecutions      int64                `json:"total_executions"`
	SuccessfulExecutions int64                `json:"successful_executions"`
	FailedExecutions     int64                `json:"failed_executions"`
	SkippedExecutions    int64                `json:"skipped_executions"`
	SuccessRate          float64              `json:"success_rate"`
	AvgDurationMs        float64              `json:"avg_duration_ms"`
	TopRules             []RuleUsage          `json:"top_rules"`
	DailyTrends          []DailyTrend         `json:"daily_trends"`
	ErrorBreakdown       []ErrorCategoryCount `json:"error_breakdown"`
}

// RuleUsage 规则维度的执行统计
type RuleUsage struct {
	RuleID      string  `json:"rule_id"`
	Name        string  `json:"name"`
	Executions  int64   `json:"executions"`
	SuccessRate float64 `json:"success_rate"`
}

// DailyTrend 按自然日分桶的趋势
type DailyTrend struct {
	Date       string `json:"date"` // 2006-01-02
	Executions int64  `json:"executions"`
	Successes  int64  `json:"successes"`
	Failures   int64  `json:"failures"`
}

// ErrorCategoryCount 失败原因归类统计
type ErrorCategoryCount struct {
	Category   string  `json:"category"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MetricsService 从历史执行聚合租户统计，纯读取，不改状态。
type MetricsService struct {
	rules      RuleStore
	executions ExecutionStore
	logger     *logrus.Logger
}

func NewMetricsService(rules RuleStore, executions ExecutionStore, logger *logrus.Logger) *MetricsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MetricsService{rules: rules, executions: executions, logger: logger}
}

// ComputeMetrics aggregates executions for the tenant over [from, to).
func (s *MetricsService) ComputeMetrics(ctx context.Context, tenantID string, from, to time.Time) (*AutomationMetrics, error) {
	execs, err := s.executions.ListExecutions(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ruleNames := make(map[string]string, len(rules))
	for _, r := range rules {
		ruleNames[r.ID] = r.Name
	}

	m := &AutomationMetrics{TenantID: tenantID, From: from, To: to}
	type ruleAgg struct {
		executions int64
		successes  int64
	}
	perRule := make(map[string]*ruleAgg)
	perDay := make(map[string]*DailyTrend)
	errorCounts := make(map[string]int64)
	var durationSum int64
	var durationN int64

	for _, e := range execs {
		m.TotalExecutions++

		agg := perRule[e.RuleID]
		if agg == nil {
			agg = &ruleAgg{}
			perRule[e.RuleID] = agg
		}
		agg.executions++

		day := e.TriggeredAt.Format("2006-01-02")
		trend := perDay[day]
		if trend == nil {
			trend = &DailyTrend{Date: day}
			perDay[day] = trend
		}
		trend.Executions++

		switch {
		case e.Status == models.ExecutionCompleted && isSkipped(e.Result):
			m.SkippedExecutions++
		case e.Status == models.ExecutionCompleted:
			m.SuccessfulExecutions++
			agg.successes++
			trend.Successes++
		case e.Status == models.ExecutionFailed || e.Status == models.ExecutionTimeout:
			m.FailedExecutions++
			trend.Failures++
			errorCounts[categorizeError(e.Error)]++
		}

		if e.CompletedAt != nil {
			durationSum += e.Duration
			durationN++
		}
	}

	if m.TotalExecutions > 0 {
		m.SuccessRate = float64(m.SuccessfulExecutions) / float64(m.TotalExecutions)
	}
	if durationN > 0 {
		m.AvgDurationMs = float64(durationSum) / float64(durationN)
	}

	for ruleID, agg := range perRule {
		usage := RuleUsage{RuleID: ruleID, Name: ruleNames[ruleID], Executions: agg.executions}
		if agg.executions > 0 {
			usage.SuccessRate = float64(agg.successes) / float64(agg.executions)
		}
		m.TopRules = append(m.TopRules, usage)
	}
	sort.Slice(m.TopRules, func(i, j int) bool {
		if m.TopRules[i].Executions != m.TopRules[j].Executions {
			return m.TopRules[i].Executions > m.TopRules[j].Executions
		}
		return m.TopRules[i].RuleID < m.TopRules[j].RuleID
	})
	if len(m.TopRules) > 10 {
		m.TopRules = m.TopRules[:10]
	}

	for _, trend := range perDay {
		m.DailyTrends = append(m.DailyTrends, *trend)
	}
	sort.Slice(m.DailyTrends, func(i, j int) bool { return m.DailyTrends[i].Date < m.DailyTrends[j].Date })

	var totalFailures int64
	for _, c := range errorCounts {
		totalFailures += c
	}
	for category, count := range errorCounts {
		pct := 0.0
		if totalFailures > 0 {
			pct = float64(count) / float64(totalFailures) * 100
		}
		m.ErrorBreakdown = append(m.ErrorBreakdown, ErrorCategoryCount{Category: category, Count: count, Percentage: pct})
	}
	sort.Slice(m.ErrorBreakdown, func(i, j int) bool {
		if m.ErrorBreakdown[i].Count != m.ErrorBreakdown[j].Count {
			return m.ErrorBreakdown[i].Count > m.ErrorBreakdown[j].Count
		}
		return m.ErrorBreakdown[i].Category < m.ErrorBreakdown[j].Category
	})

	return m, nil
}

func isSkipped(result map[string]interface{}) bool {
	if result == nil {
		return false
	}
	skipped, _ := result["skipped"].(bool)
	return skipped
}

// categorizeError buckets a failure message by keyword.
func categorizeError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline"):
		return "Timeout"
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection") || strings.Contains(lower, "dial") || strings.Contains(lower, "dns"):
		return "Network"
	case strings.Contains(lower, "permission") || strings.Contains(lower, "forbidden") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "denied"):
		return "Permission"
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "validation") || strings.Contains(lower, "required") || strings.Contains(lower, "malformed"):
		return "Validation"
	case strings.Contains(lower, "database") || strings.Contains(lower, "sql") || strings.Contains(lower, "constraint") || strings.Contains(lower, "duplicate"):
		return "Database"
	default:
		return "Other"
	}
}

package handlers

import (
	"net/http"
	"time"

	appmetrics "rulify/internal/metrics"
	"rulify/internal/middleware"
	"rulify/internal/services"

	"github.com/gin-gonic/gin"
)

// MetricsHandler 暴露引擎计数器与租户级聚合统计
type MetricsHandler struct {
	metrics   *services.MetricsService
	scheduler *services.Scheduler
}

func NewMetricsHandler(metrics *services.MetricsService, scheduler *services.Scheduler) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, scheduler: scheduler}
}

// GetEngineMetrics 进程级计数器快照（/metrics）
func (h *MetricsHandler) GetEngineMetrics(c *gin.Context) {
	started, completed, failed, skipped, rateLimited, byEvent := appmetrics.EngineSnapshot()
	dropTotal, dropBy := appmetrics.RateLimitSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"executions": gin.H{
			"started":      started,
			"completed":    completed,
			"failed":       failed,
			"skipped":      skipped,
			"rate_limited": rateLimited,
		},
		"dispatch_by_event": byEvent,
		"armed_schedules":   h.scheduler.ArmedCount(),
		"http_rate_limit": gin.H{
			"dropped_total": dropTotal,
			"by_prefix":     dropBy,
		},
	})
}

// GetAutomationMetrics 租户级聚合（/api/automation/metrics?period=7d）
func (h *MetricsHandler) GetAutomationMetrics(c *gin.Context) {
	tenant := middleware.TenantFromContext(c)
	period := 7 * 24 * time.Hour
	if p := c.Query("period"); p != "" {
		d, err := parsePeriod(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid period", Message: err.Error()})
			return
		}
		period = d
	}
	now := time.Now()
	m, err := h.metrics.ComputeMetrics(c.Request.Context(), tenant, now.Add(-period), now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to compute metrics", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// RegisterMetricsRoutes 注册路由
func RegisterMetricsRoutes(r *gin.RouterGroup, handler *MetricsHandler) {
	r.GET("/automation/metrics", handler.GetAutomationMetrics)
}

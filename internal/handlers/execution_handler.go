package handlers

import (
	"net/http"
	"time"

	"rulify/internal/middleware"
	"rulify/internal/models"
	"rulify/internal/services"

	"github.com/gin-gonic/gin"
)

// ExecutionHandler 执行历史与事件入口
type ExecutionHandler struct {
	executions services.ExecutionStore
	registry   *services.TriggerRegistry
	engine     *services.ExecutionService
}

func NewExecutionHandler(executions services.ExecutionStore, registry *services.TriggerRegistry, engine *services.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, registry: registry, engine: engine}
}

// ListExecutions 查询执行历史。period 形如 "24h"、"7d"，默认 7d。
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	tenant := middleware.TenantFromContext(c)
	from := time.Now().Add(-7 * 24 * time.Hour)
	if p := c.Query("period"); p != "" {
		d, err := parsePeriod(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid period", Message: err.Error()})
			return
		}
		from = time.Now().Add(-d)
	}
	execs, err := h.executions.ListExecutions(c.Request.Context(), tenant, from, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execs)
}

// GetExecution 获取一次执行的完整步骤记录
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	exec, err := h.executions.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Execution not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// CancelExecution 由外部监督者取消未完成的执行
func (h *ExecutionHandler) CancelExecution(c *gin.Context) {
	if err := h.engine.CancelExecution(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Failed to cancel execution", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "cancelled"})
}

// TriggerEvent 发布领域事件，分发给所有订阅该事件的规则。
func (h *ExecutionHandler) TriggerEvent(c *gin.Context) {
	var req struct {
		EventType string                   `json:"event_type" binding:"required"`
		Data      map[string]interface{}   `json:"data"`
		Context   models.ExecutionContext  `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	execIDs := h.registry.DispatchEvent(c.Request.Context(), req.EventType, req.Data, req.Context)
	c.JSON(http.StatusAccepted, gin.H{"execution_ids": execIDs})
}

func parsePeriod(p string) (time.Duration, error) {
	// 支持 "N d" 天后缀，其余交给 time.ParseDuration
	if n := len(p); n > 1 && p[n-1] == 'd' {
		d, err := time.ParseDuration(p[:n-1] + "h")
		if err != nil {
			return 0, err
		}
		return d * 24, nil
	}
	return time.ParseDuration(p)
}

// RegisterExecutionRoutes 注册路由
func RegisterExecutionRoutes(r *gin.RouterGroup, handler *ExecutionHandler) {
	execs := r.Group("/executions")
	{
		execs.GET("", handler.ListExecutions)
		execs.GET(":id", handler.GetExecution)
		execs.POST(":id/cancel", handler.CancelExecution)
	}
	r.POST("/events", handler.TriggerEvent)
}

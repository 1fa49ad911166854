package handlers

import (
	"errors"
	"net/http"

	"rulify/internal/middleware"
	"rulify/internal/models"
	"rulify/internal/services"

	"github.com/gin-gonic/gin"
)

// RuleHandler 管理自动化规则
type RuleHandler struct {
	rules    *services.RuleService
	executor services.RuleExecutor
}

func NewRuleHandler(rules *services.RuleService, executor services.RuleExecutor) *RuleHandler {
	return &RuleHandler{rules: rules, executor: executor}
}

// ListRules 获取当前租户的规则列表
func (h *RuleHandler) ListRules(c *gin.Context) {
	tenant := middleware.TenantFromContext(c)
	rules, err := h.rules.ListRules(c.Request.Context(), tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule 获取单条规则
func (h *RuleHandler) GetRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req services.RuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	tenant := middleware.TenantFromContext(c)
	rule, err := h.rules.CreateRule(c.Request.Context(), tenant, c.GetHeader("X-User-ID"), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// CreateRuleFromTemplate 基于内置模板创建规则
func (h *RuleHandler) CreateRuleFromTemplate(c *gin.Context) {
	var req struct {
		Template string                 `json:"template" binding:"required"`
		Config   map[string]interface{} `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	tenant := middleware.TenantFromContext(c)
	rule, err := h.rules.CreateRuleFromTemplate(c.Request.Context(), req.Template, req.Config, tenant, c.GetHeader("X-User-ID"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrTemplateNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to create rule from template", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var req services.RuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	rule, err := h.rules.UpdateRule(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则；存在未完成执行时仅停用。
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	deleted, err := h.rules.DeleteRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusOK, SuccessResponse{Message: "rule has pending executions, deactivated"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ExecuteRule 手动触发一次规则执行
func (h *RuleHandler) ExecuteRule(c *gin.Context) {
	var req struct {
		TriggerData map[string]interface{}  `json:"trigger_data"`
		Context     models.ExecutionContext `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	execID, err := h.executor.ExecuteRule(c.Request.Context(), c.Param("id"), req.TriggerData, req.Context, "manual")
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrRuleNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrRuleInactive):
			status = http.StatusConflict
		case errors.Is(err, services.ErrRateLimitExceeded):
			status = http.StatusTooManyRequests
		}
		c.JSON(status, ErrorResponse{Error: "Failed to execute rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"execution_id": execID})
}

// RegisterRuleRoutes 注册路由
func RegisterRuleRoutes(r *gin.RouterGroup, handler *RuleHandler) {
	rules := r.Group("/rules")
	{
		rules.GET("", handler.ListRules)
		rules.POST("", handler.CreateRule)
		rules.POST("/from-template", handler.CreateRuleFromTemplate)
		rules.GET(":id", handler.GetRule)
		rules.PUT(":id", handler.UpdateRule)
		rules.DELETE(":id", handler.DeleteRule)
		rules.POST(":id/execute", handler.ExecuteRule)
	}
}

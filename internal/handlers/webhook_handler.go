package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"rulify/internal/services"

	"github.com/gin-gonic/gin"
)

// WebhookHandler 公网 webhook 入口。鉴权（签名校验等）由上游网关负责；
// 这里只解析负载并分发。
type WebhookHandler struct {
	registry *services.TriggerRegistry
}

func NewWebhookHandler(registry *services.TriggerRegistry) *WebhookHandler {
	return &WebhookHandler{registry: registry}
}

// Handle 接收 POST /hooks/:webhookId 并分发给订阅的规则
func (h *WebhookHandler) Handle(c *gin.Context) {
	webhookID := c.Param("webhookId")

	var data map[string]interface{}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid body", Message: err.Error()})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON payload", Message: err.Error()})
			return
		}
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.GetHeader(k)
	}

	execIDs := h.registry.DispatchWebhook(c.Request.Context(), webhookID, data, headers)
	c.JSON(http.StatusAccepted, gin.H{"execution_ids": execIDs})
}

// RegisterWebhookRoutes 注册公共路由
func RegisterWebhookRoutes(r *gin.RouterGroup, handler *WebhookHandler) {
	r.POST("/hooks/:webhookId", handler.Handle)
}

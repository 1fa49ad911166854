package middleware

import (
	"rulify/internal/config"

	"github.com/gin-gonic/gin"
)

// TenantKey is the gin context key carrying the resolved tenant id.
const TenantKey = "tenant_id"

// TenantMiddleware 从请求头解析租户。鉴权由上游网关完成，这里只透传。
func TenantMiddleware(cfg *config.Config) gin.HandlerFunc {
	header := cfg.Engine.TenantHeader
	fallback := cfg.Engine.DefaultTenant
	return func(c *gin.Context) {
		tenant := c.GetHeader(header)
		if tenant == "" {
			tenant = fallback
		}
		c.Set(TenantKey, tenant)
		c.Next()
	}
}

// TenantFromContext returns the tenant id set by TenantMiddleware.
func TenantFromContext(c *gin.Context) string {
	if v, ok := c.Get(TenantKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

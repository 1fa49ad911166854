package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"rulify/internal/config"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rpm, burst int, enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.GetDefaultConfig()
	cfg.Security.RateLimiting.Enabled = enabled
	cfg.Security.RateLimiting.RequestsPerMinute = rpm
	cfg.Security.RateLimiting.Burst = burst
	r := gin.New()
	r.Use(RateLimitMiddleware(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimitMiddleware_Burst(t *testing.T) {
	router := newLimitedRouter(60, 3, true)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	for i := 0; i < 3; i++ {
		if codes[i] != http.StatusOK {
			t.Errorf("request %d = %d, want 200 within burst", i, codes[i])
		}
	}
	if codes[3] != http.StatusTooManyRequests && codes[4] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want 429 after burst", codes)
	}
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	router := newLimitedRouter(60, 1, true)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first = %d", first.Code)
	}

	// another client has its own bucket
	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("other client = %d, want 200", other.Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := newLimitedRouter(1, 1, false)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want middleware disabled", i, w.Code)
		}
	}
}

func TestTenantMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.GetDefaultConfig()

	var seen string
	r := gin.New()
	r.Use(TenantMiddleware(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		seen = TenantFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "acme" {
		t.Errorf("tenant = %s, want acme", seen)
	}

	// falls back to the configured default tenant
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "default" {
		t.Errorf("tenant = %s, want default", seen)
	}
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/login", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/login", nil)
	req.RemoteAddr = ip + ":12345"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsNormalRequests(t *testing.T) {
	router := limitedRouter(NewRateLimiter(10, 10))

	if w := hit(router, "192.168.1.1"); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestRateLimit_BlocksExcessiveRequests(t *testing.T) {
	router := limitedRouter(NewRateLimiter(1, 2))

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		last = hit(router, "10.0.0.1")
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d after burst exceeded, got %d", http.StatusTooManyRequests, last.Code)
	}

	var body response.Response
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ErrorCode != response.CodeRateLimited {
		t.Errorf("error_code = %q, expected %q", body.ErrorCode, response.CodeRateLimited)
	}
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	router := limitedRouter(NewRateLimiter(1, 1))

	if w := hit(router, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first IP first request: %d", w.Code)
	}
	if w := hit(router, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("first IP second request: %d, expected 429", w.Code)
	}

	// A different IP has its own bucket.
	if w := hit(router, "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("second IP should not be affected, got %d", w.Code)
	}
}

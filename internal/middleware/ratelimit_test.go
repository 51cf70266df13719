package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterStore_AllowAndBlock(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, 100*time.Millisecond)
	defer s.Stop()

	key := "test@example.com"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}

	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}

	// a different key has its own bucket
	if !s.Allow("other@example.com") {
		t.Fatalf("expected separate key to be unaffected")
	}
}

func TestRateLimitMiddleware_KeysByEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewLimiterStore(1, 1, time.Minute)
	defer store.Stop()

	r := gin.New()
	r.POST("/login", RateLimit(store), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	post := func(email string) int {
		form := url.Values{"email": {email}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post("a@example.com"); code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := post("a@example.com"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for same email should be limited, got %d", code)
	}
	// a different email gets its own bucket even from the same client
	if code := post("b@example.com"); code != http.StatusOK {
		t.Fatalf("request for different email should pass, got %d", code)
	}
}

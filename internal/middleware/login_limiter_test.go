package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestLoginLimiter_BurstThenReject(t *testing.T) {
	l := newLoginLimiter(LoginLimiterConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	})

	for i := 0; i < 5; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("attempt %d rejected within burst", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Error("attempt past the burst was allowed")
	}
}

func TestLoginLimiter_PerKeyIsolation(t *testing.T) {
	l := newLoginLimiter(LoginLimiterConfig{
		RequestsPerMinute: 10,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	})

	l.allow("10.0.0.1")
	l.allow("10.0.0.1")
	if l.allow("10.0.0.1") {
		t.Error("exhausted key still allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Error("fresh key rejected because another key is exhausted")
	}
}

func TestLoginLimiter_Refill(t *testing.T) {
	l := newLoginLimiter(LoginLimiterConfig{
		RequestsPerMinute: 600, // 10/s so the test refills quickly
		BurstSize:         1,
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	})

	if !l.allow("10.0.0.1") {
		t.Fatal("first attempt rejected")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("empty bucket allowed")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.allow("10.0.0.1") {
		t.Error("bucket did not refill")
	}
}

func TestLoginLimiter_CleanupDropsStaleEntries(t *testing.T) {
	l := newLoginLimiter(LoginLimiterConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   10 * time.Millisecond,
		EntryTTL:          20 * time.Millisecond,
	})

	l.allow("10.0.0.1")
	if _, ok := l.entries.Load("10.0.0.1"); !ok {
		t.Fatal("entry not recorded")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := l.entries.Load("10.0.0.1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale entry survived cleanup")
}

func TestLoginRateLimiter_Middleware(t *testing.T) {
	router := newTestRouter()
	router.Use(LoginRateLimiter(LoginLimiterConfig{
		RequestsPerMinute: 10,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	}))
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestLoginRateLimiter_Disabled(t *testing.T) {
	router := newTestRouter()
	router.Use(LoginRateLimiter(LoginLimiterConfig{RequestsPerMinute: 0}))
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d limited with the limiter disabled", i+1)
		}
	}
}

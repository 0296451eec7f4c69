package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonmw "recruitoj/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name        string
		config      commonmw.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantExposed string
	}{
		{
			name:       "disabled",
			config:     commonmw.CORSConfig{Enabled: false},
			method:     http.MethodGet,
			origin:     "https://portal.example",
			wantStatus: http.StatusOK,
		},
		{
			name:        "allowed preflight",
			config:      commonmw.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://portal.example"}, MaxAge: "600"},
			method:      http.MethodOptions,
			origin:      "https://portal.example",
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "https://portal.example",
			wantExposed: "X-Trace-Id,X-Request-Id",
		},
		{
			name:       "wildcard",
			config:     commonmw.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://anywhere.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "blocked preflight",
			config:     commonmw.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://portal.example"}},
			method:     http.MethodOptions,
			origin:     "https://evil.example",
			wantStatus: http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(commonmw.CORSMiddleware(tc.config))
			router.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tc.method, "/resource", nil)
			req.Header.Set("Origin", tc.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantExposed != "" && w.Header().Get("Access-Control-Expose-Headers") != tc.wantExposed {
				t.Errorf("expose headers = %q", w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

type memCounter struct {
	counts      map[string]int64
	expires     map[string]time.Duration
	err         error
	failExpires int
}

func (m *memCounter) Incr(ctx context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if m.failExpires > 0 {
		m.failExpires--
		return errors.New("i/o timeout")
	}
	m.expires[key] = ttl
	return nil
}

func (m *memCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	if ttl, ok := m.expires[key]; ok {
		return ttl, nil
	}
	return -1, nil
}

func TestIPRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counter := &memCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	router := gin.New()
	router.Use(commonmw.IPRateLimit(counter, commonmw.IPRateLimitConfig{Max: 2, Window: 30 * time.Second}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if got := call("10.0.0.1"); got != want {
			t.Fatalf("call %d status = %d, want %d", i, got, want)
		}
	}
	if got := call("10.0.0.2"); got != http.StatusOK {
		t.Errorf("other ip status = %d", got)
	}
	if counter.expires["contest:rate:ip:10.0.0.1"] != 30*time.Second {
		t.Errorf("window not applied: %v", counter.expires)
	}

	counter.err = errors.New("redis down")
	if got := call("10.0.0.1"); got != http.StatusOK {
		t.Errorf("counter failure should fail open, got %d", got)
	}
}

func TestIPRateLimitRepairsLostWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counter := &memCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}, failExpires: 1}
	router := gin.New()
	router.Use(commonmw.IPRateLimit(counter, commonmw.IPRateLimitConfig{Max: 5, Window: time.Minute}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("call %d status = %d", i, w.Code)
		}
		if i == 0 {
			if _, ok := counter.expires["contest:rate:ip:10.0.0.9"]; ok {
				t.Fatal("window should be missing after the failed expire")
			}
		}
	}
	if got := counter.expires["contest:rate:ip:10.0.0.9"]; got != time.Minute {
		t.Fatalf("window = %v, want it restored on the next request", got)
	}
}

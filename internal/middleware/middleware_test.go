package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, body)
	}
	return env.Error.Code
}

func TestRateLimiter(t *testing.T) {
	t.Run("Block requests exceeding limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiter(1, 1))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

		if w := serve(router, httptest.NewRequest("GET", "/test", nil)); w.Code != 200 {
			t.Fatalf("First request: expected status 200, got %d", w.Code)
		}
		w := serve(router, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("Second request: expected status 429, got %d", w.Code)
		}
		if code := errorCode(t, w.Body.Bytes()); code != "rate_limited" {
			t.Errorf("expected rate_limited code, got %q", code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
	})

	t.Run("Separate buckets per client", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimiter(1, 1))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

		for _, ip := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = ip
			if w := serve(router, req); w.Code != 200 {
				t.Errorf("%s: expected 200, got %d", ip, w.Code)
			}
		}
	})
}

func TestTTLLimiterCacheSweeps(t *testing.T) {
	cache := newTTLLimiterCache(time.Millisecond)
	mk := func() *rate.Limiter { return rate.NewLimiter(1, 1) }
	cache.get("a", mk)
	time.Sleep(5 * time.Millisecond)
	cache.lastSweep = time.Now().Add(-3 * time.Minute)
	cache.get("b", mk)
	if n := cache.size(); n != 1 {
		t.Fatalf("expected stale limiter to be swept, have %d", n)
	}
}

func TestAdminAuth(t *testing.T) {
	router := gin.New()
	router.Use(AdminAuth(func(k string) bool { return k == "letmein" }))
	router.GET("/x", func(c *gin.Context) { c.String(200, "OK") })

	cases := []struct {
		name   string
		header map[string]string
		status int
		code   string
	}{
		{"missing", nil, 401, "missing_api_key"},
		{"wrong bearer", map[string]string{"Authorization": "Bearer nope"}, 401, "invalid_api_key"},
		{"bearer", map[string]string{"Authorization": "Bearer letmein"}, 200, ""},
		{"lowercase bearer", map[string]string{"Authorization": "bearer letmein"}, 200, ""},
		{"x-api-key", map[string]string{"x-api-key": "letmein"}, 200, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/x", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			w := serve(router, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if tc.code != "" {
				if code := errorCode(t, w.Body.Bytes()); code != tc.code {
					t.Errorf("expected code %s, got %s", tc.code, code)
				}
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		rid, _ := c.Get("request_id")
		c.String(200, rid.(string))
	})

	w := serve(router, httptest.NewRequest("GET", "/test", nil))
	if _, err := uuid.Parse(w.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("expected generated uuid, got %q", w.Header().Get("X-Request-ID"))
	}
	if w.Body.String() != w.Header().Get("X-Request-ID") {
		t.Error("context and header request ids differ")
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "caller-42")
	if got := serve(router, req).Header().Get("X-Request-ID"); got != "caller-42" {
		t.Errorf("expected caller id to be kept, got %q", got)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	if got := serve(router, req).Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("expected oversized id to be replaced, got %d chars", len(got))
	}
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(router, httptest.NewRequest("GET", "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != "panic_recovered" {
		t.Errorf("unexpected code %q", code)
	}
}

func TestSafeCall(t *testing.T) {
	if err := SafeCall(func() error { panic("oops") }); err == nil || !strings.Contains(err.Error(), "oops") {
		t.Errorf("expected panic converted to error, got %v", err)
	}
	if err := SafeCall(func() error { return nil }); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := gin.New()
	router.Use(Metrics(), RequestLogger())
	router.GET("/metrics", MetricsHandler)
	router.GET("/ok", func(c *gin.Context) { c.Status(204) })

	serve(router, httptest.NewRequest("GET", "/ok", nil))
	w := serve(router, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `geminivoice_admin_requests_total{method="GET",path="/ok",status_class="2xx"}`) {
		t.Errorf("admin request counter missing from exposition")
	}
}

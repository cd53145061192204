package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/worldstream/server/internal/auth"
	"github.com/worldstream/server/internal/testutil"
)

func TestRateLimitMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 5 requests per minute
	wrappedHandler := RateLimitMiddleware(5, 1*time.Minute)(handler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, w.Code)
		}
		if limit := w.Header().Get("X-RateLimit-Limit"); limit != "5" {
			t.Errorf("Request %d: Expected X-RateLimit-Limit '5', got '%s'", i+1, limit)
		}
		if remaining := w.Header().Get("X-RateLimit-Remaining"); remaining != strconv.Itoa(4-i) {
			t.Errorf("Request %d: Expected X-RateLimit-Remaining %d, got '%s'", i+1, 4-i, remaining)
		}
	}

	// 6th request should be rate limited
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 (Too Many Requests), got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if w.Body.String() == "" {
		t.Error("Expected error response body, got empty")
	}

	// Another client has its own bucket
	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "127.0.0.2:12345"
	w = httptest.NewRecorder()
	wrappedHandler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", w.Code)
	}
}

func TestTokenRateLimitMiddleware(t *testing.T) {
	cfg := testutil.TestConfig()
	jwtService := auth.NewJWTService(cfg)
	middleware := auth.NewMiddleware(jwtService)

	handler := middleware.Authenticate(TokenRateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	first, err := jwtService.GenerateStreamToken("session-a")
	if err != nil {
		t.Fatalf("GenerateStreamToken failed: %v", err)
	}
	second, err := jwtService.GenerateStreamToken("session-b")
	if err != nil {
		t.Fatalf("GenerateStreamToken failed: %v", err)
	}

	do := func(token string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := do(first); code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := do(first); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for the exhausted session, got %d", code)
	}
	// Same IP, different session
	if code := do(second); code != http.StatusOK {
		t.Errorf("expected a separate bucket per session, got %d", code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		forwardedFor   string
		realIP         string
		expectedResult string
	}{
		{
			name:           "X-Forwarded-For takes precedence",
			remoteAddr:     "192.168.1.1:12345",
			forwardedFor:   "10.0.0.1",
			expectedResult: "10.0.0.1",
		},
		{
			name:           "first X-Forwarded-For hop",
			remoteAddr:     "192.168.1.1:12345",
			forwardedFor:   "10.0.0.1, 172.16.0.1",
			expectedResult: "10.0.0.1",
		},
		{
			name:           "X-Real-IP used if no X-Forwarded-For",
			remoteAddr:     "192.168.1.1:12345",
			realIP:         "10.0.0.2",
			expectedResult: "10.0.0.2",
		},
		{
			name:           "RemoteAddr used as fallback",
			remoteAddr:     "192.168.1.1:12345",
			expectedResult: "192.168.1.1",
		},
		{
			name:           "IPv6 address",
			remoteAddr:     "[::1]:12345",
			expectedResult: "::1",
		},
		{
			name:           "RemoteAddr without port",
			remoteAddr:     "192.168.1.9",
			expectedResult: "192.168.1.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if result := getClientIP(req); result != tt.expectedResult {
				t.Errorf("Expected '%s', got '%s'", tt.expectedResult, result)
			}
		})
	}
}

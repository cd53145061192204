package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/worldstream/server/internal/auth"
)

const (
	rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`
)

func newLimiter(limit int, window time.Duration) *limiter.Limiter {
	return limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})
}

// allow checks key against instance and writes the 429 response when the
// limit is reached. Limiter failures let the request through.
func allow(instance *limiter.Limiter, w http.ResponseWriter, r *http.Request, key string) bool {
	context, err := instance.Get(r.Context(), key)
	if err != nil {
		log.Printf("Rate limiter error: %v", err)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

	if !context.Reached {
		return true
	}

	retryAfter := max(int(time.Until(time.Unix(context.Reset, 0)).Seconds()), 0)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
		log.Printf("Error writing rate limit response: %v", err)
	}
	return false
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := newLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allow(instance, w, r, getClientIP(r)) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// TokenRateLimitMiddleware limits authenticated requests per token subject:
// one bucket per session for stream tokens, one shared bucket for admins.
// Requests without claims fall back to the client IP.
func TokenRateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := newLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)
			if claims, ok := auth.GetClaims(r); ok {
				key = claims.Role + ":" + claims.Subject
			}
			if allow(instance, w, r, key) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// getClientIP extracts the client IP address from the request, preferring
// the first X-Forwarded-For hop for proxied requests.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopdesk/supportchat/internal/logger"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

// Limiter — счётчик запросов в окне (storage.ChatStateStore: Redis или in-memory в -dev).
type Limiter interface {
	CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// RateLimitAPI ограничивает запросы к /api/* по IP и по участнику (если JWTAuth уже отработал). 429 при превышении.
// Ошибка хранилища не блокирует запрос.
func RateLimitAPI(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r.Context(), l, "api:ip:"+clientIP(r), rateLimitMaxIP) {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			if p, ok := PrincipalFrom(r.Context()); ok {
				key := "api:" + string(p.Kind) + ":" + strconv.FormatInt(p.ID, 10)
				if !allow(r.Context(), l, key, rateLimitMaxUser) {
					writeJSONError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, l Limiter, key string, max int) bool {
	ok, err := l.CheckRateLimit(ctx, key, max, rateLimitWindow)
	if err != nil {
		logger.Errorf("rate limit %s: %v", key, err)
		return true
	}
	return ok
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		if idx := strings.Index(x, ","); idx > 0 {
			x = x[:idx]
		}
		return strings.TrimSpace(x)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

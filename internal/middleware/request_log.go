package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopdesk/supportchat/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, status и время выполнения.
// Медленные запросы и ошибки (5xx) пишутся всегда, остальные только при LOG_LEVEL=debug.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		l := logger.L()
		ev := l.Debug()
		if status >= http.StatusInternalServerError || elapsed >= 100*time.Millisecond {
			ev = l.Info()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Str("request_id", chimw.GetReqID(r.Context())).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http request")
	})
}

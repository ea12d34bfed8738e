package middleware

import (
	"bufio"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/shopdesk/supportchat/internal/logger"
)

// responseWriter запоминает, начат ли уже ответ.
// Реализует http.Hijacker для поддержки WebSocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// Hijack делегирует к нижележащему ResponseWriter (нужно для WebSocket).
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		w.wrote = true
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// RecoverJSON при панике в handler логирует её со стеком и отдаёт клиенту JSON 500 (если ответ ещё не начат).
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrap := &responseWriter{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			l := logger.L()
			l.Error().Str("method", r.Method).Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).Msgf("panic recovered: %v", rec)
			if !wrap.wrote {
				writeJSONError(wrap.ResponseWriter, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(wrap, r)
	})
}

package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopdesk/supportchat/internal/auth"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

// TokenVerifier проверяет JWT и возвращает участника (auth.Manager).
type TokenVerifier interface {
	Verify(token string) (model.Principal, error)
}

// JWTAuth проверяет токен из заголовка Authorization: Bearer или query-параметра token
// (браузер не умеет ставить заголовки на WebSocket upgrade). 401 до вызова next.
func JWTAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "token expired"
				}
				logger.Debugf("jwt auth %s %s token=%s: %v", r.Method, r.URL.Path, MaskToken(token), err)
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// StaffOnly пропускает только сотрудников поддержки.
func StaffOnly(next http.Handler) http.Handler {
	return requireKind(model.KindStaff, "staff access required", next)
}

// CustomerOnly пропускает только покупателей.
func CustomerOnly(next http.Handler) http.Handler {
	return requireKind(model.KindCustomer, "customer access required", next)
}

func requireKind(kind model.PrincipalKind, msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if p.Kind != kind {
			writeJSONError(w, http.StatusForbidden, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

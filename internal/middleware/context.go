package middleware

import (
	"context"

	"github.com/shopdesk/supportchat/internal/model"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// WithPrincipal кладёт участника чата в контекст запроса (используется JWTAuth и в тестах хендлеров).
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFrom возвращает участника из контекста (устанавливается JWTAuth).
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(model.Principal)
	return p, ok && p.Kind.Valid()
}

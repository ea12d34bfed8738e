package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopdesk/supportchat/internal/model"
)

// ChatStateStore — эфемерное состояние чата: rate limit, зеркало присутствия
// и Web Push подписки сотрудников. Источник истины для маршрутизации — Registry, не это хранилище.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type ChatStateStore interface {
	CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (allowed bool, err error)
	SetOnline(ctx context.Context, kind model.PrincipalKind, id int64, online bool) error
	OnlineCount(ctx context.Context, kind model.PrincipalKind) (int, error)
	AddPushSubscription(ctx context.Context, staffID int64, sub model.PushSubscription) error
	RemovePushSubscription(ctx context.Context, staffID int64, endpoint string) error
	PushSubscriptions(ctx context.Context, staffID int64) ([]model.PushSubscription, error)
	Close() error
}

// RateLimiter ограничивает отправку сообщений: max сообщений за window на участника.
type RateLimiter struct {
	store  ChatStateStore
	max    int
	window time.Duration
}

func NewRateLimiter(store ChatStateStore, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, max: max, window: window}
}

func (l *RateLimiter) Allow(ctx context.Context, p model.Principal) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	return l.store.CheckRateLimit(ctx, fmt.Sprintf("send:%s:%d", p.Kind, p.ID), l.max, l.window)
}

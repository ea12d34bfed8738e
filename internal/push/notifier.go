// Package push отправляет Web Push уведомления сотрудникам, у которых нет
// открытого соединения с чатом.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

const notificationTTL = 60

// SubscriptionStore — хранилище подписок (storage.ChatStateStore).
type SubscriptionStore interface {
	AddPushSubscription(ctx context.Context, staffID int64, sub model.PushSubscription) error
	RemovePushSubscription(ctx context.Context, staffID int64, endpoint string) error
	PushSubscriptions(ctx context.Context, staffID int64) ([]model.PushSubscription, error)
}

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Notifier хранит подписки всегда, а отправляет только при заданных VAPID-ключах.
type Notifier struct {
	store SubscriptionStore
	vapid *webpush.Options
	send  sendFunc
}

func NewNotifier(store SubscriptionStore, keys *VAPIDKeys, subject string) *Notifier {
	n := &Notifier{store: store, send: webpush.SendNotificationWithContext}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      subject,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             notificationTTL,
			Urgency:         webpush.UrgencyHigh,
		}
	} else {
		logger.Info("push: VAPID keys not set, notifications disabled (subscriptions are still stored)")
	}
	return n
}

func (n *Notifier) Enabled() bool { return n.vapid != nil }

// PublicKey — ключ для PushManager.subscribe на клиенте.
func (n *Notifier) PublicKey() string {
	if n.vapid == nil {
		return ""
	}
	return n.vapid.VAPIDPublicKey
}

func (n *Notifier) Subscribe(ctx context.Context, staffID int64, sub model.PushSubscription) error {
	if !sub.Valid() {
		return fmt.Errorf("push: incomplete subscription")
	}
	return n.store.AddPushSubscription(ctx, staffID, sub)
}

func (n *Notifier) Unsubscribe(ctx context.Context, staffID int64, endpoint string) error {
	return n.store.RemovePushSubscription(ctx, staffID, endpoint)
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// NotifyStaff отправляет алерт на все подписки сотрудника. Подписки с ответом
// 404/410 удаляются. Ошибка отдельной подписки не прерывает рассылку.
func (n *Notifier) NotifyStaff(ctx context.Context, staffID int64, alert chat.AdminAlert) error {
	if n.vapid == nil {
		return nil
	}
	subs, err := n.store.PushSubscriptions(ctx, staffID)
	if err != nil {
		return fmt.Errorf("push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	title := alert.CustomerName
	if title == "" {
		title = alert.CustomerEmail
	}
	payload, err := json.Marshal(notification{
		Title: title,
		Body:  truncate(alert.Message, 120),
		Data:  map[string]string{"room_id": strconv.FormatInt(alert.RoomID, 10)},
	})
	if err != nil {
		return err
	}
	for _, sub := range subs {
		resp, err := n.send(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}, n.vapid)
		if err != nil {
			logger.Errorf("push: send %s: %v", truncate(sub.Endpoint, 50), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := n.store.RemovePushSubscription(ctx, staffID, sub.Endpoint); err != nil {
				logger.Errorf("push: prune %s: %v", truncate(sub.Endpoint, 50), err)
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

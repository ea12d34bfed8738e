package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/middleware"
	"github.com/shopdesk/supportchat/internal/model"
)

// PushSubscriptions — push.Notifier.
type PushSubscriptions interface {
	Subscribe(ctx context.Context, staffID int64, sub model.PushSubscription) error
	Unsubscribe(ctx context.Context, staffID int64, endpoint string) error
}

// PushHandler обрабатывает подписку сотрудников на пуш-уведомления о новых обращениях.
type PushHandler struct {
	push PushSubscriptions
}

func NewPushHandler(push PushSubscriptions) *PushHandler {
	return &PushHandler{push: push}
}

// SubscribeRequest — тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription model.PushSubscription `json:"subscription"`
}

// Subscribe сохраняет подписку текущего сотрудника (хранится и при выключенных пушах).
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !req.Subscription.Valid() {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.push.Subscribe(r.Context(), p.ID, req.Subscription); err != nil {
		logger.Errorf("push.Subscribe staff=%d: %v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest — тело для отписки по endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.push.Unsubscribe(r.Context(), p.ID, req.Endpoint); err != nil {
		logger.Errorf("push.Unsubscribe staff=%d: %v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"net/http"

	"github.com/shopdesk/supportchat/internal/config"
)

// ConfigHandler отдаёт публичные параметры для клиента чата (без авторизации).
type ConfigHandler struct {
	cfg      *config.Config
	vapidKey string
}

// NewConfigHandler: vapidPublicKey пустой, если пуши выключены.
func NewConfigHandler(cfg *config.Config, vapidPublicKey string) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, vapidKey: vapidPublicKey}
}

type ClientConfig struct {
	HistoryLimit     int   `json:"history_limit"`
	MaxMessageBytes  int64 `json:"max_message_bytes"`
	RateLimit        int   `json:"rate_limit"`
	RateLimitSeconds int   `json:"rate_limit_window_seconds"`
	PongTimeoutSecs  int   `json:"pong_timeout_seconds"`
}

func (h *ConfigHandler) GetChatConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClientConfig{
		HistoryLimit:     h.cfg.HistoryLimit,
		MaxMessageBytes:  h.cfg.WSMaxMessageSize,
		RateLimit:        h.cfg.RateLimit,
		RateLimitSeconds: int(h.cfg.RateLimitWindow.Seconds()),
		PongTimeoutSecs:  int(h.cfg.WSPongTimeout.Seconds()),
	})
}

// GetPushConfig возвращает публичный VAPID-ключ для подписки на пуши (если включены).
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.vapidKey == "" {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.vapidKey,
	})
}

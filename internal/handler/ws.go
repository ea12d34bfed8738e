package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/middleware"
	"github.com/shopdesk/supportchat/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	opts           ws.Options
	allowedOrigins string
	upgrader       websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, opts ws.Options, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub, opts: opts, allowedOrigins: strings.TrimSpace(allowedOrigins)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS поднимает сокет для участника, которого уже проверил JWTAuth.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade %s/%d: %v", p.Kind, p.ID, err)
		return
	}

	// Контекст сокета не зависит от запроса: после Upgrade хендлер возвращается.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, p, h.opts)
	h.hub.Register(client)
	client.Start(ctx, cancel)
}

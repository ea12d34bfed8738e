package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shopdesk/supportchat/internal/middleware"
)

// RouterDeps — всё, что нужно HTTP-слою сервиса чата.
type RouterDeps struct {
	Verifier       middleware.TokenVerifier
	Limiter        middleware.Limiter
	AllowedOrigins []string

	Chat   *ChatHandler
	Push   *PushHandler
	Config *ConfigHandler
	WS     *WSHandler
}

func NewRouter(d RouterDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	compress := chimw.Compress(5)
	r.Use(func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Get("/api/config/chat", d.Config.GetChatConfig)
	r.Get("/api/config/push", d.Config.GetPushConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(d.Verifier))
		r.Get("/ws", d.WS.ServeWS)

		r.Route("/api/chat", func(r chi.Router) {
			r.Use(middleware.RateLimitAPI(d.Limiter))

			r.With(middleware.CustomerOnly).Get("/room", d.Chat.GetMyRoom)
			r.Patch("/rooms/{roomId}/read", d.Chat.MarkRead)

			r.Group(func(r chi.Router) {
				r.Use(middleware.StaffOnly)
				r.Get("/rooms", d.Chat.ListRooms)
				r.Get("/rooms/{roomId}/messages", d.Chat.GetRoomMessages)
				r.Patch("/rooms/{roomId}/assign", d.Chat.AssignRoom)
				r.Patch("/rooms/{roomId}/close", d.Chat.CloseRoom)
				r.Get("/stats", d.Chat.GetStats)
				r.Post("/push/subscribe", d.Push.Subscribe)
				r.Delete("/push/subscribe", d.Push.Unsubscribe)
			})
		})
	})
	return r
}

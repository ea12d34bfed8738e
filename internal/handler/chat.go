package handler

import (
	"context"
	"net/http"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/middleware"
	"github.com/shopdesk/supportchat/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ChatReader — read-side проекции хранилища для HTTP (repository.Store).
type ChatReader interface {
	GetRoomDetails(ctx context.Context, roomID int64) (*model.RoomDetails, error)
	ListActiveRooms(ctx context.Context) ([]model.RoomSummary, error)
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error)
	ListRecentMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error)
	CountMessages(ctx context.Context, roomID int64) (int, error)
	Stats(ctx context.Context) (*model.ChatStats, error)
}

// OnlineCounter — зеркало присутствия (storage.ChatStateStore).
type OnlineCounter interface {
	OnlineCount(ctx context.Context, kind model.PrincipalKind) (int, error)
}

type ChatHandler struct {
	reader      ChatReader
	coordinator *chat.Coordinator
	dispatcher  *chat.Dispatcher
	registry    *chat.Registry
	presence    OnlineCounter
}

func NewChatHandler(reader ChatReader, coordinator *chat.Coordinator, dispatcher *chat.Dispatcher, registry *chat.Registry, presence OnlineCounter) *ChatHandler {
	return &ChatHandler{reader: reader, coordinator: coordinator, dispatcher: dispatcher, registry: registry, presence: presence}
}

type RoomResponse struct {
	Room     *model.RoomDetails  `json:"room"`
	Messages []model.ChatMessage `json:"messages"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type RoomMessagesResponse struct {
	RoomResponse
	Pagination Pagination `json:"pagination"`
}

type RoomActionResponse struct {
	Message string          `json:"message"`
	Room    *model.ChatRoom `json:"room"`
}

// GetMyRoom возвращает активное обращение покупателя (создаёт при первом запросе) со всей историей.
func (h *ChatHandler) GetMyRoom(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	room, err := h.coordinator.ResolveOrCreateRoom(r.Context(), p.ID)
	if err != nil {
		writeChatError(w, "chat.GetMyRoom", err)
		return
	}
	h.writeRoom(w, r, "chat.GetMyRoom", room.ID)
}

func (h *ChatHandler) writeRoom(w http.ResponseWriter, r *http.Request, op string, roomID int64) {
	details, err := h.reader.GetRoomDetails(r.Context(), roomID)
	if err != nil {
		writeChatError(w, op, chat.WrapStoreError("GetRoomDetails", err))
		return
	}
	msgs, err := h.reader.ListMessages(r.Context(), roomID, 0, 0)
	if err != nil {
		writeChatError(w, op, chat.WrapStoreError("ListMessages", err))
		return
	}
	writeJSON(w, http.StatusOK, RoomResponse{Room: details, Messages: msgs})
}

// ListRooms — активные обращения для панели сотрудника, свежие сверху.
func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.reader.ListActiveRooms(r.Context())
	if err != nil {
		writeChatError(w, "chat.ListRooms", chat.WrapStoreError("ListActiveRooms", err))
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoomMessages — страница истории: page=1 самые новые, внутри страницы по возрастанию.
func (h *ChatHandler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := max(queryInt(r, "page", 1), 1)
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	details, err := h.reader.GetRoomDetails(r.Context(), roomID)
	if err != nil {
		writeChatError(w, "chat.GetRoomMessages", chat.WrapStoreError("GetRoomDetails", err))
		return
	}
	msgs, err := h.reader.ListRecentMessages(r.Context(), roomID, limit, (page-1)*limit)
	if err != nil {
		writeChatError(w, "chat.GetRoomMessages", chat.WrapStoreError("ListRecentMessages", err))
		return
	}
	total, err := h.reader.CountMessages(r.Context(), roomID)
	if err != nil {
		writeChatError(w, "chat.GetRoomMessages", chat.WrapStoreError("CountMessages", err))
		return
	}
	writeJSON(w, http.StatusOK, RoomMessagesResponse{
		RoomResponse: RoomResponse{Room: details, Messages: msgs},
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

// AssignRoom назначает текущего сотрудника; выигрывает первое назначение.
func (h *ChatHandler) AssignRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	room, assigned, err := h.coordinator.AssignStaff(r.Context(), roomID, p.ID)
	if err != nil {
		writeChatError(w, "chat.AssignRoom", err)
		return
	}
	msg := "staff assigned to chat room"
	if !assigned {
		msg = "chat room already assigned"
	}
	writeJSON(w, http.StatusOK, RoomActionResponse{Message: msg, Room: room})
}

func (h *ChatHandler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	room, err := h.coordinator.CloseRoom(r.Context(), roomID, p)
	if err != nil {
		writeChatError(w, "chat.CloseRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, RoomActionResponse{Message: "chat room closed", Room: room})
}

// MarkRead — те же правила доступа, что и у mark_read по сокету. Если у участника
// открыт сокет, уведомление о прочтении не возвращается ему самому.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	conn := h.registry.ConnectionFor(p.ID, p.Kind)
	if conn == nil {
		conn = chat.NewConn(p, nil)
	}
	n, err := h.dispatcher.MarkRead(r.Context(), conn, roomID)
	if err != nil {
		writeChatError(w, "chat.MarkRead", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "messages marked as read", "count": n})
}

// GetStats — сводка для панели; online_staff из зеркала присутствия, при его сбое из локального реестра.
func (h *ChatHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.Stats(r.Context())
	if err != nil {
		writeChatError(w, "chat.GetStats", chat.WrapStoreError("Stats", err))
		return
	}
	stats.OnlineStaff = h.registry.Count(model.KindStaff)
	if h.presence != nil {
		if n, err := h.presence.OnlineCount(r.Context(), model.KindStaff); err != nil {
			logger.Errorf("chat.GetStats online count: %v", err)
		} else {
			stats.OnlineStaff = n
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

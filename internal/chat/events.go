package chat

import (
	"time"

	"github.com/shopdesk/supportchat/internal/model"
)

// Server -> client event types.
const (
	EventJoinedRoom   = "joined_room"
	EventNewMessage   = "new_message"
	EventUserTyping   = "user_typing"
	EventMessagesRead = "messages_read"
	EventAdminAlert   = "admin_alert"
	EventRoomUpdated  = "room_updated"
	EventRoomClosed   = "room_closed"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventActiveRooms  = "active_rooms"
	EventError        = "error"
)

// Event is the outbound envelope: {"type": "...", "payload": {...}}.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type JoinedRoomPayload struct {
	Room     *model.ChatRoom     `json:"room"`
	Messages []model.ChatMessage `json:"messages"`
}

type TypingPayload struct {
	RoomID   int64               `json:"room_id"`
	UserID   int64               `json:"user_id"`
	UserKind model.PrincipalKind `json:"user_kind"`
	UserName string              `json:"user_name,omitempty"`
	IsTyping bool                `json:"is_typing"`
}

type MessagesReadPayload struct {
	RoomID     int64               `json:"room_id"`
	ReaderID   int64               `json:"reader_id"`
	ReaderKind model.PrincipalKind `json:"reader_kind"`
	Count      int64               `json:"count"`
}

// AdminAlert is raised for every customer message and reaches all staff.
type AdminAlert struct {
	RoomID        int64     `json:"room_id"`
	MessageID     int64     `json:"message_id"`
	CustomerID    int64     `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// Reasons carried by room_updated.
const (
	RoomCreated  = "created"
	RoomAssigned = "assigned"
	RoomClosed   = "closed"
)

type RoomUpdatedPayload struct {
	Room   *model.ChatRoom `json:"room"`
	Reason string          `json:"reason"`
}

type RoomClosedPayload struct {
	RoomID int64 `json:"room_id"`
}

// PresencePayload is sent with user_joined and user_left.
type PresencePayload struct {
	RoomID   int64               `json:"room_id"`
	UserID   int64               `json:"user_id"`
	UserKind model.PrincipalKind `json:"user_kind"`
	UserName string              `json:"user_name,omitempty"`
}

type ActiveRoomsPayload struct {
	Rooms []model.RoomSummary `json:"rooms"`
}

type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func presenceOf(c *Conn, roomID int64) PresencePayload {
	return PresencePayload{
		RoomID:   roomID,
		UserID:   c.Principal.ID,
		UserKind: c.Principal.Kind,
		UserName: c.Principal.Name,
	}
}

package model

import "time"

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	return k == MessageKindText || k == MessageKindSystem
}

// ChatMessage is append-only; only IsRead changes, and only false -> true.
type ChatMessage struct {
	ID         int64         `json:"id"`
	RoomID     int64         `json:"room_id"`
	SenderID   int64         `json:"sender_id"`
	SenderKind PrincipalKind `json:"sender_kind"`
	SenderName string        `json:"sender_name,omitempty"`
	Body       string        `json:"message"`
	Kind       MessageKind   `json:"message_type"`
	IsRead     bool          `json:"is_read"`
	CreatedAt  time.Time     `json:"created_at"`
}

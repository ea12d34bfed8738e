package ws

import (
	"bytes"
	"encoding/json"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/model"
)

// Client -> server event types.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventMarkRead       = "mark_read"
	EventGetActiveRooms = "get_active_rooms"
)

// IncomingMessage is the envelope the client sends: {"type": "...", "payload": {...}}.
type IncomingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomRequest struct {
	RoomID *int64 `json:"room_id"`
}

type SendMessageRequest struct {
	Message     string            `json:"message"`
	MessageType model.MessageKind `json:"message_type"`
}

type TypingRequest struct {
	IsTyping *bool `json:"is_typing"`
}

type MarkReadRequest struct {
	RoomID int64 `json:"room_id"`
}

type GetActiveRoomsRequest struct{}

// Decode parses raw into one of the *Request types and checks required
// fields. Errors are *chat.Error with invalid_payload or unknown_event.
func Decode(raw []byte) (any, error) {
	var msg IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, chat.Errorf(chat.ErrInvalidPayload, "malformed envelope")
	}
	payload := msg.Payload
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = []byte("{}")
	}

	switch msg.Type {
	case EventJoinRoom:
		var req JoinRoomRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		return req, nil
	case EventSendMessage:
		var req SendMessageRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.MessageType != "" && !req.MessageType.Valid() {
			return nil, chat.Errorf(chat.ErrInvalidPayload, "unknown message_type %q", req.MessageType)
		}
		return req, nil
	case EventTyping:
		var req TypingRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.IsTyping == nil {
			return nil, chat.Errorf(chat.ErrInvalidPayload, "is_typing is required")
		}
		return req, nil
	case EventMarkRead:
		var req MarkReadRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.RoomID <= 0 {
			return nil, chat.Errorf(chat.ErrInvalidPayload, "room_id is required")
		}
		return req, nil
	case EventGetActiveRooms:
		return GetActiveRoomsRequest{}, nil
	case "":
		return nil, chat.Errorf(chat.ErrInvalidPayload, "type is required")
	default:
		return nil, chat.Errorf(chat.ErrUnknownEvent, "unknown event %q", msg.Type)
	}
}

func unmarshalPayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return chat.Errorf(chat.ErrInvalidPayload, "invalid payload: %v", err)
	}
	return nil
}

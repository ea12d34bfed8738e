// Package events publishes chat activity to an external stream for analytics
// and audit consumers. The stream is a side channel: nothing in the chat reads it back.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopdesk/supportchat/internal/model"
)

type Type string

const (
	MessageCreated Type = "message_created"
	RoomCreated    Type = "room_created"
	RoomAssigned   Type = "room_assigned"
	RoomClosed     Type = "room_closed"
	MessagesRead   Type = "messages_read"
)

type Event struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	RoomID     int64               `json:"room_id"`
	ActorID    int64               `json:"actor_id,omitempty"`
	ActorKind  model.PrincipalKind `json:"actor_kind,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
	Data       any                 `json:"data,omitempty"`
}

// New fills ID and OccurredAt.
func New(t Type, roomID int64, actor model.Principal, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		RoomID:     roomID,
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher must not block the caller for long; chat operations publish
// while holding room locks.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

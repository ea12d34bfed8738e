package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopdesk/supportchat/internal/model"
)

// Sink delivers an event to one socket. Send must not block; it reports
// false when the event was dropped.
type Sink interface {
	Send(ev Event) bool
}

// Conn is one authenticated socket. The principal never changes; the current
// room is owned by Rooms.
type Conn struct {
	ID        string
	Principal model.Principal

	sink Sink

	mu   sync.Mutex
	room int64
}

func NewConn(p model.Principal, sink Sink) *Conn {
	return &Conn{ID: uuid.NewString(), Principal: p, sink: sink}
}

// CurrentRoom returns the joined room id, ok=false when not joined.
func (c *Conn) CurrentRoom() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.room != 0
}

func (c *Conn) setRoom(id int64) {
	c.mu.Lock()
	c.room = id
	c.mu.Unlock()
}

func (c *Conn) Send(ev Event) bool {
	if c == nil || c.sink == nil {
		return false
	}
	return c.sink.Send(ev)
}

// SendError pushes an error event to this connection only.
func (c *Conn) SendError(err error) bool {
	ce := AsError(err)
	return c.Send(Event{Type: EventError, Payload: ErrorPayload{Code: ce.Code, Message: ce.Message}})
}

package chat

import (
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

// Broadcaster pushes dashboard events to every connected staff member,
// independent of room subscriptions.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// NotifyAllStaff delivers ev to each staff connection and returns how many
// accepted it. A failing recipient does not stop the others.
func (b *Broadcaster) NotifyAllStaff(ev Event) int {
	reached := 0
	for _, c := range b.registry.Staff() {
		if deliver(c, ev) {
			reached++
		}
	}
	return reached
}

func deliver(c *Conn, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("broadcast: sink panic conn=%s: %v", c.ID, r)
			ok = false
		}
	}()
	return c.Send(ev)
}

func (b *Broadcaster) AdminAlert(a AdminAlert) int {
	return b.NotifyAllStaff(Event{Type: EventAdminAlert, Payload: a})
}

func (b *Broadcaster) RoomUpdated(room *model.ChatRoom, reason string) int {
	return b.NotifyAllStaff(Event{Type: EventRoomUpdated, Payload: RoomUpdatedPayload{Room: room, Reason: reason}})
}

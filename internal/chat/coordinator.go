package chat

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopdesk/supportchat/internal/events"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
	"github.com/shopdesk/supportchat/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultHistoryLimit = 50
	resolveTimeout      = 10 * time.Second
)

// Coordinator owns the room lifecycle: resolving a customer's room, staff
// assignment, closing, and joining/leaving room subscriptions.
type Coordinator struct {
	store        Store
	rooms        *Rooms
	broadcast    *Broadcaster
	publisher    events.Publisher
	historyLimit int

	resolve singleflight.Group
}

func NewCoordinator(store Store, rooms *Rooms, broadcast *Broadcaster, publisher events.Publisher, historyLimit int) *Coordinator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Coordinator{
		store:        store,
		rooms:        rooms,
		broadcast:    broadcast,
		publisher:    publisher,
		historyLimit: historyLimit,
	}
}

// ResolveOrCreateRoom returns the customer's active room, creating one without
// staff when none exists. Concurrent calls for one customer share a single
// lookup; it runs detached from the caller so one cancelled request does not
// fail the others waiting on it.
func (c *Coordinator) ResolveOrCreateRoom(ctx context.Context, customerID int64) (*model.ChatRoom, error) {
	ch := c.resolve.DoChan(strconv.FormatInt(customerID, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		room, err := c.store.FindActiveRoomForCustomer(ctx, customerID)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, WrapStoreError("FindActiveRoomForCustomer", err)
		}
		room, created, err := c.store.CreateRoom(ctx, customerID)
		if err != nil {
			return nil, WrapStoreError("CreateRoom", err)
		}
		if created {
			logger.Infof("chat: room %d created for customer %d", room.ID, customerID)
			c.publish(ctx, events.New(events.RoomCreated, room.ID, model.Principal{ID: customerID, Kind: model.KindCustomer}, nil))
			c.broadcast.RoomUpdated(room, RoomCreated)
		}
		return room, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, WrapStoreError("ResolveOrCreateRoom", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	room := *res.Val.(*model.ChatRoom)
	return &room, nil
}

// AssignStaff sets the room's staff member if none is set yet. assigned=false
// means somebody was already assigned; the returned room shows who.
func (c *Coordinator) AssignStaff(ctx context.Context, roomID, staffID int64) (*model.ChatRoom, bool, error) {
	room, assigned, err := c.store.AssignStaffIfUnset(ctx, roomID, staffID)
	if err != nil {
		return nil, false, WrapStoreError("AssignStaffIfUnset", err)
	}
	if assigned {
		logger.Infof("chat: room %d assigned to staff %d", roomID, staffID)
		c.publish(ctx, events.New(events.RoomAssigned, roomID, model.Principal{ID: staffID, Kind: model.KindStaff}, nil))
		c.broadcast.RoomUpdated(room, RoomAssigned)
	}
	return room, assigned, nil
}

// CloseRoom moves the room to closed, unsubscribes everyone in it and tells
// them so. by is the acting principal, used only for the activity stream.
func (c *Coordinator) CloseRoom(ctx context.Context, roomID int64, by model.Principal) (*model.ChatRoom, error) {
	unlock := c.rooms.Lock(roomID)
	defer unlock()

	room, err := c.store.CloseRoom(ctx, roomID)
	if err != nil {
		return nil, WrapStoreError("CloseRoom", err)
	}
	ev := Event{Type: EventRoomClosed, Payload: RoomClosedPayload{RoomID: roomID}}
	for _, conn := range c.rooms.Clear(roomID) {
		conn.Send(ev)
	}
	logger.Infof("chat: room %d closed", roomID)
	c.publish(ctx, events.New(events.RoomClosed, roomID, by, nil))
	c.broadcast.RoomUpdated(room, RoomClosed)
	return room, nil
}

// JoinRoom subscribes conn to a room. Staff must name the room and are
// assigned to it if it has nobody yet; customers always land in their own
// active room and any requested id is ignored.
func (c *Coordinator) JoinRoom(ctx context.Context, conn *Conn, requested *int64) (*model.ChatRoom, error) {
	var room *model.ChatRoom
	var err error
	if conn.Principal.IsStaff() {
		if requested == nil || *requested <= 0 {
			return nil, Errorf(ErrAccessDenied, "staff must specify a room id")
		}
		room, err = c.store.GetRoom(ctx, *requested)
		if err != nil {
			return nil, WrapStoreError("GetRoom", err)
		}
		if room.IsClosed() {
			return nil, ErrAlreadyClosed
		}
		if room.StaffID == nil {
			if room, _, err = c.AssignStaff(ctx, room.ID, conn.Principal.ID); err != nil {
				return nil, err
			}
		}
	} else {
		if room, err = c.ResolveOrCreateRoom(ctx, conn.Principal.ID); err != nil {
			return nil, err
		}
	}

	unlock := c.rooms.Lock(room.ID)
	defer unlock()

	// Re-read under the room lock: a close may have landed in between.
	if room, err = c.store.GetRoom(ctx, room.ID); err != nil {
		return nil, WrapStoreError("GetRoom", err)
	}
	if room.IsClosed() {
		return nil, ErrAlreadyClosed
	}

	backlog, err := c.store.ListRecentMessages(ctx, room.ID, c.historyLimit, 0)
	if err != nil {
		return nil, WrapStoreError("ListRecentMessages", err)
	}
	// MarkRead идёт последним: при ошибке выше отметки о прочтении не меняются.
	other := conn.Principal.Kind.Opposite()
	read, err := c.store.MarkRead(ctx, room.ID, other)
	if err != nil {
		return nil, WrapStoreError("MarkRead", err)
	}
	if read > 0 {
		for i := range backlog {
			if backlog[i].SenderKind == other {
				backlog[i].IsRead = true
			}
		}
	}

	if prev := c.rooms.Move(conn, room.ID); prev != 0 && prev != room.ID {
		c.rooms.Emit(prev, Event{Type: EventUserLeft, Payload: presenceOf(conn, prev)}, conn)
	}
	conn.Send(Event{Type: EventJoinedRoom, Payload: JoinedRoomPayload{Room: room, Messages: backlog}})
	if read > 0 {
		c.rooms.Emit(room.ID, readEvent(conn, room.ID, read), conn)
		c.publish(ctx, events.New(events.MessagesRead, room.ID, conn.Principal, map[string]int64{"count": read}))
	}
	c.rooms.Emit(room.ID, Event{Type: EventUserJoined, Payload: presenceOf(conn, room.ID)}, conn)
	logger.Debugf("chat: %s %d joined room %d (backlog=%d read=%d)", conn.Principal.Kind, conn.Principal.ID, room.ID, len(backlog), read)
	return room, nil
}

// Leave drops conn's room subscription, typically on disconnect.
func (c *Coordinator) Leave(conn *Conn) {
	if prev := c.rooms.Drop(conn); prev != 0 {
		c.rooms.Emit(prev, Event{Type: EventUserLeft, Payload: presenceOf(conn, prev)}, nil)
	}
}

// ActiveRooms lists the dashboard rows. Staff only.
func (c *Coordinator) ActiveRooms(ctx context.Context, conn *Conn) ([]model.RoomSummary, error) {
	if !conn.Principal.IsStaff() {
		return nil, ErrAccessDenied
	}
	rooms, err := c.store.ListActiveRooms(ctx)
	if err != nil {
		return nil, WrapStoreError("ListActiveRooms", err)
	}
	return rooms, nil
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if err := c.publisher.Publish(ctx, ev); err != nil {
		logger.Errorf("chat: publish %s room=%d: %v", ev.Type, ev.RoomID, err)
	}
}

func readEvent(conn *Conn, roomID, count int64) Event {
	return Event{Type: EventMessagesRead, Payload: MessagesReadPayload{
		RoomID:     roomID,
		ReaderID:   conn.Principal.ID,
		ReaderKind: conn.Principal.Kind,
		Count:      count,
	}}
}

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/shopdesk/supportchat/internal/events"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

const notifyTimeout = 10 * time.Second

// Dispatcher validates, persists and fans out messages plus the typing and
// read signals of joined connections.
type Dispatcher struct {
	store     Store
	registry  *Registry
	rooms     *Rooms
	broadcast *Broadcaster
	publisher events.Publisher
	limiter   RateLimiter
	notifier  StaffNotifier
}

type DispatcherOption func(*Dispatcher)

func WithRateLimiter(l RateLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

func WithStaffNotifier(n StaffNotifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithPublisher(p events.Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

func NewDispatcher(store Store, registry *Registry, rooms *Rooms, broadcast *Broadcaster, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		registry:  registry,
		rooms:     rooms,
		broadcast: broadcast,
		publisher: events.Nop{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SendMessage stores body in the sender's current room and delivers it to
// everyone subscribed there, sender included. Nothing is delivered if the
// insert fails. Customer messages also raise an admin alert.
func (d *Dispatcher) SendMessage(ctx context.Context, conn *Conn, body string, kind model.MessageKind) (*model.ChatMessage, error) {
	roomID, ok := conn.CurrentRoom()
	if !ok {
		return nil, ErrNotJoined
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if kind == "" {
		kind = model.MessageKindText
	}
	if !kind.Valid() {
		return nil, Errorf(ErrInvalidPayload, "unknown message_type %q", kind)
	}
	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, conn.Principal)
		if err != nil {
			logger.Errorf("chat: rate limiter: %v", err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	unlock := d.rooms.Lock(roomID)
	defer unlock()
	if cur, _ := conn.CurrentRoom(); cur != roomID {
		return nil, ErrNotJoined
	}

	msg := &model.ChatMessage{
		RoomID:     roomID,
		SenderID:   conn.Principal.ID,
		SenderKind: conn.Principal.Kind,
		SenderName: d.senderName(ctx, conn),
		Body:       body,
		Kind:       kind,
	}
	if err := d.store.InsertMessage(ctx, msg); err != nil {
		return nil, WrapStoreError("InsertMessage", err)
	}
	if err := d.store.TouchRoomUpdatedAt(ctx, roomID); err != nil {
		logger.Errorf("chat: touch room %d: %v", roomID, err)
	}

	d.rooms.Emit(roomID, Event{Type: EventNewMessage, Payload: msg}, nil)

	if conn.Principal.Kind == model.KindCustomer {
		alert := AdminAlert{
			RoomID:        roomID,
			MessageID:     msg.ID,
			CustomerID:    conn.Principal.ID,
			CustomerName:  msg.SenderName,
			CustomerEmail: conn.Principal.Email,
			Message:       msg.Body,
			CreatedAt:     msg.CreatedAt,
		}
		d.broadcast.AdminAlert(alert)
		d.notifyAssignedStaff(roomID, alert)
	}
	if err := d.publisher.Publish(ctx, events.New(events.MessageCreated, roomID, conn.Principal, msg)); err != nil {
		logger.Errorf("chat: publish message_created room=%d: %v", roomID, err)
	}
	return msg, nil
}

func (d *Dispatcher) senderName(ctx context.Context, conn *Conn) string {
	if conn.Principal.Name != "" {
		return conn.Principal.Name
	}
	name, err := d.store.DisplayName(ctx, conn.Principal.ID, conn.Principal.Kind)
	if err != nil || name == "" {
		return conn.Principal.Email
	}
	return name
}

// notifyAssignedStaff sends a push notification when the room's staff member
// has no live connection. Runs in the background.
func (d *Dispatcher) notifyAssignedStaff(roomID int64, alert AdminAlert) {
	if d.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		room, err := d.store.GetRoom(ctx, roomID)
		if err != nil || room.StaffID == nil {
			return
		}
		if d.registry.ConnectionFor(*room.StaffID, model.KindStaff) != nil {
			return
		}
		if err := d.notifier.NotifyStaff(ctx, *room.StaffID, alert); err != nil {
			logger.Errorf("chat: push to staff %d: %v", *room.StaffID, err)
		}
	}()
}

// MarkRead flips unread messages written by the other side of the room and
// tells the other participants. Customers may only mark their own room.
// A closed room is read-only.
func (d *Dispatcher) MarkRead(ctx context.Context, conn *Conn, roomID int64) (int64, error) {
	unlock := d.rooms.Lock(roomID)
	defer unlock()

	room, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, WrapStoreError("GetRoom", err)
	}
	if !conn.Principal.IsStaff() && room.CustomerID != conn.Principal.ID {
		return 0, ErrAccessDenied
	}
	if room.IsClosed() {
		return 0, ErrAlreadyClosed
	}
	n, err := d.store.MarkRead(ctx, roomID, conn.Principal.Kind.Opposite())
	if err != nil {
		return 0, WrapStoreError("MarkRead", err)
	}
	d.rooms.Emit(roomID, readEvent(conn, roomID, n), conn)
	if n > 0 {
		if err := d.publisher.Publish(ctx, events.New(events.MessagesRead, roomID, conn.Principal, map[string]int64{"count": n})); err != nil {
			logger.Errorf("chat: publish messages_read room=%d: %v", roomID, err)
		}
	}
	return n, nil
}

// Typing relays a typing indicator to the rest of the room. No-op when not joined.
func (d *Dispatcher) Typing(conn *Conn, isTyping bool) {
	roomID, ok := conn.CurrentRoom()
	if !ok {
		return
	}
	d.rooms.Emit(roomID, Event{Type: EventUserTyping, Payload: TypingPayload{
		RoomID:   roomID,
		UserID:   conn.Principal.ID,
		UserKind: conn.Principal.Kind,
		UserName: conn.Principal.Name,
		IsTyping: isTyping,
	}}, conn)
}

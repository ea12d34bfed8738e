package ws

import (
	"context"
	"sync"
	"time"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

// Presence mirrors who is online into shared storage (storage.ChatStateStore).
type Presence interface {
	SetOnline(ctx context.Context, kind model.PrincipalKind, id int64, online bool) error
}

type hubOp struct {
	client *Client
	add    bool
}

// Hub owns the set of live sockets. Connect and disconnect are applied by
// Run in arrival order; inbound events are routed to the chat components.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int

	registry    *chat.Registry
	coordinator *chat.Coordinator
	dispatcher  *chat.Dispatcher
	presence    Presence

	ops chan hubOp
	// stopping is closed when shutdown starts; late Register/Unregister calls return immediately.
	stopping chan struct{}
}

func NewHub(registry *chat.Registry, coordinator *chat.Coordinator, dispatcher *chat.Dispatcher, presence Presence, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		maxConns:    maxConns,
		registry:    registry,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		presence:    presence,
		ops:         make(chan hubOp, 128),
		stopping:    make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.stopping)
			h.shutdown()
			return
		case op := <-h.ops:
			if op.add {
				h.addClient(op.client)
			} else {
				h.removeClient(op.client)
			}
		}
	}
}

func (h *Hub) shutdown() {
	// Sockets still queued for registration are closed without being added.
	for drained := false; !drained; {
		select {
		case op := <-h.ops:
			if op.add {
				op.client.Close()
			}
		default:
			drained = true
		}
	}

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
		h.detach(c)
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting %s/%d", h.maxConns, c.chat.Principal.Kind, c.chat.Principal.ID)
		c.Close()
		// readPump may have joined a room before the hub saw this client.
		h.coordinator.Leave(c.chat)
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	p := c.chat.Principal
	if replaced := h.registry.Register(c.chat); replaced != nil {
		logger.Infof("ws %s/%d reconnected, conn %s replaces %s", p.Kind, p.ID, c.chat.ID, replaced.ID)
	}
	h.setOnline(p, true)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		// Rejected or never added: still drop a room subscription it may hold.
		h.coordinator.Leave(c.chat)
		return
	}
	// Network I/O outside the lock.
	c.Close()
	h.detach(c)
}

// detach drops the connection from its room and from the registry. The
// presence mirror is cleared only if no newer connection took over.
func (h *Hub) detach(c *Client) {
	h.coordinator.Leave(c.chat)
	if h.registry.Unregister(c.chat) {
		h.setOnline(c.chat.Principal, false)
	}
}

func (h *Hub) setOnline(p model.Principal, online bool) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, p.Kind, p.ID, online); err != nil {
		logger.Errorf("ws presence %s/%d online=%v: %v", p.Kind, p.ID, online, err)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.ops <- hubOp{client: c, add: true}:
	case <-h.stopping:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.ops <- hubOp{client: c}:
	case <-h.stopping:
	}
}

// Count returns the number of open sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleMessage decodes one inbound frame and routes it. Failures are
// reported to the sending connection only.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, raw []byte) {
	req, err := Decode(raw)
	if err != nil {
		c.chat.SendError(err)
		return
	}
	conn := c.chat
	switch r := req.(type) {
	case JoinRoomRequest:
		_, err = h.coordinator.JoinRoom(ctx, conn, r.RoomID)
	case SendMessageRequest:
		defer logger.DeferLogDuration("ws.send_message", time.Now())()
		_, err = h.dispatcher.SendMessage(ctx, conn, r.Message, r.MessageType)
	case TypingRequest:
		h.dispatcher.Typing(conn, *r.IsTyping)
	case MarkReadRequest:
		_, err = h.dispatcher.MarkRead(ctx, conn, r.RoomID)
	case GetActiveRoomsRequest:
		var rooms []model.RoomSummary
		if rooms, err = h.coordinator.ActiveRooms(ctx, conn); err == nil {
			conn.Send(chat.Event{Type: chat.EventActiveRooms, Payload: chat.ActiveRoomsPayload{Rooms: rooms}})
		}
	}
	if err != nil {
		ce := chat.AsError(err)
		if ce.Code == chat.CodeStoreUnavailable {
			logger.Errorf("ws %s/%d: %v", conn.Principal.Kind, conn.Principal.ID, err)
		}
		conn.SendError(ce)
	}
}

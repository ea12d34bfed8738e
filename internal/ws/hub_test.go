package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/chat/chattest"
	"github.com/shopdesk/supportchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = model.Principal{ID: 1, Kind: model.KindCustomer, Email: "alice@example.com", Name: "alice"}
	bob   = model.Principal{ID: 2, Kind: model.KindCustomer, Email: "bob@example.com", Name: "bob"}
	sam   = model.Principal{ID: 1, Kind: model.KindStaff, Email: "sam@shop.example", Name: "Sam"}
)

// serverConn returns the server side of a fresh websocket connection.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })
	c := <-conns
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestHub(t *testing.T, maxConns int) (*Hub, *chat.Coordinator, *chat.Rooms) {
	t.Helper()
	store := chattest.NewStore()
	store.AddCustomer(alice)
	store.AddCustomer(bob)
	store.AddStaff(sam)
	registry := chat.NewRegistry()
	rooms := chat.NewRooms()
	bc := chat.NewBroadcaster(registry)
	coord := chat.NewCoordinator(store, rooms, bc, nil, 0)
	disp := chat.NewDispatcher(store, registry, rooms, bc)
	return NewHub(registry, coord, disp, nil, maxConns), coord, rooms
}

func TestHub_RejectedClientLeavesItsRoom(t *testing.T) {
	h, coord, rooms := newTestHub(t, 1)
	ctx := context.Background()

	first := NewClient(h, serverConn(t), sam, Options{})
	h.addClient(first)
	require.Equal(t, 1, h.Count())

	// The join is handled before the hub applies the register op.
	late := NewClient(h, serverConn(t), alice, Options{})
	room, err := coord.JoinRoom(ctx, late.Conn(), nil)
	require.NoError(t, err)
	require.Len(t, rooms.Members(room.ID), 1)

	h.addClient(late)
	assert.Equal(t, 1, h.Count())
	assert.Empty(t, rooms.Members(room.ID))
	_, joined := late.Conn().CurrentRoom()
	assert.False(t, joined)
}

func TestHub_UnregisterOfUnknownClientLeavesItsRoom(t *testing.T) {
	h, coord, rooms := newTestHub(t, 1)
	ctx := context.Background()

	c := NewClient(h, serverConn(t), bob, Options{})
	room, err := coord.JoinRoom(ctx, c.Conn(), nil)
	require.NoError(t, err)

	h.removeClient(c)
	assert.Empty(t, rooms.Members(room.ID))
	assert.Zero(t, h.Count())
}

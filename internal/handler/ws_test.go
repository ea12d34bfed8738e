package handler_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/model"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e *env) dial(t *testing.T, p model.Principal) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + e.token(t, p)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.registry.ConnectionFor(p.ID, p.Kind) != nil },
		2*time.Second, 10*time.Millisecond, "%s/%d never registered", p.Kind, p.ID)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Type: typ, Payload: raw}))
}

// expect reads frames until one of type typ arrives and decodes its payload into out.
func expect(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type != typ {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(f.Payload, out))
		}
		return
	}
}

func TestWS_RejectsUnauthenticatedUpgrade(t *testing.T) {
	e := newEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, e.hub.Count())
}

func TestWS_SupportConversation(t *testing.T) {
	e := newEnv(t)
	staff := e.dial(t, sam)
	customer := e.dial(t, alice)

	// Customer opens a room; staff dashboards hear about it.
	send(t, customer, "join_room", map[string]any{})
	var joined chat.JoinedRoomPayload
	expect(t, customer, chat.EventJoinedRoom, &joined)
	require.NotNil(t, joined.Room)
	assert.Equal(t, alice.ID, joined.Room.CustomerID)
	assert.Empty(t, joined.Messages)
	roomID := joined.Room.ID

	var created chat.RoomUpdatedPayload
	expect(t, staff, chat.EventRoomUpdated, &created)
	assert.Equal(t, chat.RoomCreated, created.Reason)
	assert.Equal(t, roomID, created.Room.ID)

	// First customer message: echoed to the room and alerted to staff.
	send(t, customer, "send_message", map[string]any{"message": "  where is my order?  "})
	var echoed model.ChatMessage
	expect(t, customer, chat.EventNewMessage, &echoed)
	assert.Equal(t, "where is my order?", echoed.Body)
	assert.Equal(t, model.KindCustomer, echoed.SenderKind)

	var alert chat.AdminAlert
	expect(t, staff, chat.EventAdminAlert, &alert)
	assert.Equal(t, roomID, alert.RoomID)
	assert.Equal(t, echoed.ID, alert.MessageID)
	assert.Equal(t, "alice@example.com", alert.CustomerEmail)

	// Staff joins: assignment, backlog, and read receipt for the customer.
	send(t, staff, "join_room", map[string]any{"room_id": roomID})
	var staffJoined chat.JoinedRoomPayload
	expect(t, staff, chat.EventJoinedRoom, &staffJoined)
	require.Len(t, staffJoined.Messages, 1)
	require.NotNil(t, staffJoined.Room.StaffID)
	assert.Equal(t, sam.ID, *staffJoined.Room.StaffID)

	var read chat.MessagesReadPayload
	expect(t, customer, chat.EventMessagesRead, &read)
	assert.Equal(t, int64(1), read.Count)
	assert.Equal(t, model.KindStaff, read.ReaderKind)

	var presence chat.PresencePayload
	expect(t, customer, chat.EventUserJoined, &presence)
	assert.Equal(t, sam.ID, presence.UserID)

	// Typing and reply reach the customer.
	send(t, staff, "typing", map[string]any{"is_typing": true})
	var typing chat.TypingPayload
	expect(t, customer, chat.EventUserTyping, &typing)
	assert.True(t, typing.IsTyping)

	send(t, staff, "send_message", map[string]any{"message": "It ships tomorrow."})
	var reply model.ChatMessage
	expect(t, customer, chat.EventNewMessage, &reply)
	assert.Equal(t, model.KindStaff, reply.SenderKind)
	assert.Equal(t, "Sam", reply.SenderName)

	// Dashboard list over the socket.
	send(t, staff, "get_active_rooms", map[string]any{})
	var active chat.ActiveRoomsPayload
	expect(t, staff, chat.EventActiveRooms, &active)
	require.Len(t, active.Rooms, 1)
	assert.Equal(t, roomID, active.Rooms[0].ID)

	// Closing over HTTP ends the conversation on the socket.
	var closed map[string]any
	require.Equal(t, http.StatusOK, e.do(t, sam, http.MethodPatch, "/api/chat/rooms/"+itoa(roomID)+"/close", nil, &closed))
	var closedEv chat.RoomClosedPayload
	expect(t, customer, chat.EventRoomClosed, &closedEv)
	assert.Equal(t, roomID, closedEv.RoomID)

	send(t, customer, "send_message", map[string]any{"message": "hello?"})
	var notJoined chat.ErrorPayload
	expect(t, customer, chat.EventError, &notJoined)
	assert.Equal(t, chat.CodeNotJoined, notJoined.Code)
	assert.Len(t, e.store.Messages(roomID), 2)
}

func TestWS_ProtocolErrorsKeepConnectionOpen(t *testing.T) {
	e := newEnv(t)
	customer := e.dial(t, alice)

	require.NoError(t, customer.WriteMessage(websocket.TextMessage, []byte("not json")))
	var bad chat.ErrorPayload
	expect(t, customer, chat.EventError, &bad)
	assert.Equal(t, chat.CodeInvalidPayload, bad.Code)

	send(t, customer, "dance", map[string]any{})
	var unknown chat.ErrorPayload
	expect(t, customer, chat.EventError, &unknown)
	assert.Equal(t, chat.CodeUnknownEvent, unknown.Code)

	send(t, customer, "get_active_rooms", map[string]any{})
	var denied chat.ErrorPayload
	expect(t, customer, chat.EventError, &denied)
	assert.Equal(t, chat.CodeAccessDenied, denied.Code)

	send(t, customer, "join_room", map[string]any{})
	expect(t, customer, chat.EventJoinedRoom, nil)
}

func TestWS_DisconnectClearsPresence(t *testing.T) {
	e := newEnv(t)
	staff := e.dial(t, sam)

	require.Eventually(t, func() bool {
		n, err := e.state.OnlineCount(t.Context(), model.KindStaff)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, staff.Close())
	require.Eventually(t, func() bool { return e.registry.ConnectionFor(sam.ID, sam.Kind) == nil },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		n, err := e.state.OnlineCount(t.Context(), model.KindStaff)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

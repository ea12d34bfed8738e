package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/chat/chattest"
	"github.com/shopdesk/supportchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreateRoom_CreatesOnceAndReuses(t *testing.T) {
	f := newFixture(t)
	_, staffSink := f.connect(sam)
	ctx := context.Background()

	room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusActive, room.Status)
	assert.Nil(t, room.StaffID)

	again, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	updates := staffSink.OfType(chat.EventRoomUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, chat.RoomCreated, updates[0].Payload.(chat.RoomUpdatedPayload).Reason)
}

func TestResolveOrCreateRoom_ConcurrentCallsShareOneRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 32
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
			if err == nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.RoomCount())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolveOrCreateRoom_NewRoomAfterClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	_, err = f.coord.CloseRoom(ctx, first.ID, sam)
	require.NoError(t, err)

	second, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestResolveOrCreateRoom_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.store.SetFail("FindActiveRoomForCustomer", assert.AnError)

	_, err := f.coord.ResolveOrCreateRoom(context.Background(), alice.ID)
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
}

func TestAssignStaff_FirstWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)

	got, assigned, err := f.coord.AssignStaff(ctx, room.ID, sam.ID)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, sam.ID, *got.StaffID)

	got, assigned, err = f.coord.AssignStaff(ctx, room.ID, tina.ID)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, sam.ID, *got.StaffID)
}

func TestAssignStaff_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.coord.AssignStaff(ctx, 999, sam.ID)
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)

	room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	_, err = f.coord.CloseRoom(ctx, room.ID, sam)
	require.NoError(t, err)
	_, _, err = f.coord.AssignStaff(ctx, room.ID, sam.ID)
	assert.ErrorIs(t, err, chat.ErrAlreadyClosed)
}

func TestCloseRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, customerSink := f.connect(alice)
	staff, staffSink := f.connect(sam)
	_, otherStaffSink := f.connect(tina)

	room, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	require.NoError(t, err)
	otherStaffSink.Reset()

	closed, err := f.coord.CloseRoom(ctx, room.ID, sam)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())

	assert.Len(t, customerSink.OfType(chat.EventRoomClosed), 1)
	assert.Len(t, staffSink.OfType(chat.EventRoomClosed), 1)
	assert.Empty(t, otherStaffSink.OfType(chat.EventRoomClosed))
	updates := otherStaffSink.OfType(chat.EventRoomUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, chat.RoomClosed, updates[0].Payload.(chat.RoomUpdatedPayload).Reason)

	_, joined := customer.CurrentRoom()
	assert.False(t, joined)
	_, joined = staff.CurrentRoom()
	assert.False(t, joined)

	updatedAt := f.store.Room(room.ID).UpdatedAt
	_, err = f.coord.CloseRoom(ctx, room.ID, sam)
	assert.ErrorIs(t, err, chat.ErrAlreadyClosed)
	assert.Equal(t, updatedAt, f.store.Room(room.ID).UpdatedAt)

	_, err = f.coord.CloseRoom(ctx, 12345, sam)
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestJoinRoom_StaffRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff, _ := f.connect(sam)

	_, err := f.coord.JoinRoom(ctx, staff, nil)
	assert.ErrorIs(t, err, chat.ErrAccessDenied)

	_, err = f.coord.JoinRoom(ctx, staff, ptr(int64(404)))
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)

	room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	_, err = f.coord.CloseRoom(ctx, room.ID, tina)
	require.NoError(t, err)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	assert.ErrorIs(t, err, chat.ErrAlreadyClosed)
	_, joined := staff.CurrentRoom()
	assert.False(t, joined)
}

func TestJoinRoom_StaffAssignmentIsFirstWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.coord.ResolveOrCreateRoom(ctx, alice.ID)
	require.NoError(t, err)
	first, _ := f.connect(sam)
	second, _ := f.connect(tina)

	_, err = f.coord.JoinRoom(ctx, first, &room.ID)
	require.NoError(t, err)
	joined, err := f.coord.JoinRoom(ctx, second, &room.ID)
	require.NoError(t, err)

	assert.Equal(t, sam.ID, *joined.StaffID)
}

func TestJoinRoom_CustomerIgnoresRequestedRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobsRoom, err := f.coord.ResolveOrCreateRoom(ctx, bob.ID)
	require.NoError(t, err)
	customer, sink := f.connect(alice)

	room, err := f.coord.JoinRoom(ctx, customer, &bobsRoom.ID)
	require.NoError(t, err)
	assert.NotEqual(t, bobsRoom.ID, room.ID)
	assert.Equal(t, alice.ID, room.CustomerID)

	joined := sink.OfType(chat.EventJoinedRoom)
	require.Len(t, joined, 1)
	assert.Equal(t, room.ID, joined[0].Payload.(chat.JoinedRoomPayload).Room.ID)
}

func TestJoinRoom_BacklogIsLatestAscending(t *testing.T) {
	f := newFixture(t)
	f.coord = chat.NewCoordinator(f.store, f.rooms, f.bc, nil, 3)
	ctx := context.Background()
	customer, _ := f.connect(alice)
	_, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	for _, body := range []string{"one", "two", "three", "four", "five"} {
		_, err := f.disp.SendMessage(ctx, customer, body, "")
		require.NoError(t, err)
	}
	roomID, _ := customer.CurrentRoom()

	staff, sink := f.connect(sam)
	_, err = f.coord.JoinRoom(ctx, staff, &roomID)
	require.NoError(t, err)

	joined := sink.OfType(chat.EventJoinedRoom)
	require.Len(t, joined, 1)
	msgs := joined[0].Payload.(chat.JoinedRoomPayload).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"three", "four", "five"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
	for _, m := range msgs {
		assert.True(t, m.IsRead)
		assert.Equal(t, "alice", m.SenderName)
	}
}

func TestJoinRoom_ReplacesPreviousSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, aSink := f.connect(alice)
	b, _ := f.connect(bob)
	roomA, err := f.coord.JoinRoom(ctx, a, nil)
	require.NoError(t, err)
	roomB, err := f.coord.JoinRoom(ctx, b, nil)
	require.NoError(t, err)

	staff, staffSink := f.connect(sam)
	_, err = f.coord.JoinRoom(ctx, staff, &roomA.ID)
	require.NoError(t, err)
	_, err = f.coord.JoinRoom(ctx, staff, &roomB.ID)
	require.NoError(t, err)

	left := aSink.OfType(chat.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, roomA.ID, left[0].Payload.(chat.PresencePayload).RoomID)

	staffSink.Reset()
	_, err = f.disp.SendMessage(ctx, a, "anyone?", "")
	require.NoError(t, err)
	assert.Empty(t, staffSink.OfType(chat.EventNewMessage))
	assert.Len(t, staffSink.OfType(chat.EventAdminAlert), 1)
}

func TestJoinRoom_NotifiesRoomAndMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, customerSink := f.connect(alice)
	room, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	_, err = f.disp.SendMessage(ctx, customer, "hello", "")
	require.NoError(t, err)
	customerSink.Reset()

	staff, staffSink := f.connect(sam)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{chat.EventMessagesRead, chat.EventUserJoined}, customerSink.Types())
	read := customerSink.OfType(chat.EventMessagesRead)[0].Payload.(chat.MessagesReadPayload)
	assert.Equal(t, int64(1), read.Count)
	assert.Equal(t, model.KindStaff, read.ReaderKind)
	assert.Empty(t, staffSink.OfType(chat.EventUserJoined))
	assert.Empty(t, staffSink.OfType(chat.EventMessagesRead))
}

func TestJoinRoom_StoreFailureLeavesSubscriptionUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, sink := f.connect(alice)
	f.store.SetFail("ListRecentMessages", assert.AnError)

	_, err := f.coord.JoinRoom(ctx, customer, nil)
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
	_, joined := customer.CurrentRoom()
	assert.False(t, joined)
	assert.Empty(t, sink.OfType(chat.EventJoinedRoom))
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, customerSink := f.connect(alice)
	room, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	staff, _ := f.connect(sam)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	require.NoError(t, err)
	customerSink.Reset()

	f.coord.Leave(staff)
	f.coord.Leave(staff)

	left := customerSink.OfType(chat.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, sam.ID, left[0].Payload.(chat.PresencePayload).UserID)
	assert.Len(t, f.rooms.Members(room.ID), 1)
}

func TestActiveRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, _ := f.connect(alice)
	_, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	_, err = f.disp.SendMessage(ctx, customer, "where is my order?", "")
	require.NoError(t, err)

	_, err = f.coord.ActiveRooms(ctx, customer)
	assert.ErrorIs(t, err, chat.ErrAccessDenied)

	staff := chat.NewConn(sam, &chattest.Sink{})
	rooms, err := f.coord.ActiveRooms(ctx, staff)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].UnreadCount)
	assert.Equal(t, "where is my order?", *rooms[0].LastMessage)
	assert.Equal(t, "alice", rooms[0].CustomerName)
}

func TestJoinRoom_BacklogFailureKeepsMessagesUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, customerSink := f.connect(alice)
	room, err := f.coord.JoinRoom(ctx, customer, nil)
	require.NoError(t, err)
	_, err = f.disp.SendMessage(ctx, customer, "hi", "")
	require.NoError(t, err)
	customerSink.Reset()

	staff, staffSink := f.connect(sam)
	f.store.SetFail("ListRecentMessages", assert.AnError)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
	assert.False(t, f.store.Messages(room.ID)[0].IsRead)
	assert.Empty(t, customerSink.OfType(chat.EventMessagesRead))

	f.store.SetFail("ListRecentMessages", nil)
	_, err = f.coord.JoinRoom(ctx, staff, &room.ID)
	require.NoError(t, err)
	assert.True(t, f.store.Messages(room.ID)[0].IsRead)

	joined := staffSink.OfType(chat.EventJoinedRoom)
	require.Len(t, joined, 1)
	backlog := joined[0].Payload.(chat.JoinedRoomPayload).Messages
	require.Len(t, backlog, 1)
	assert.True(t, backlog[0].IsRead)
	assert.Len(t, customerSink.OfType(chat.EventMessagesRead), 1)
}

// slowStore holds FindActiveRoomForCustomer until release is closed and fails
// if its context ends first.
type slowStore struct {
	*chattest.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) FindActiveRoomForCustomer(ctx context.Context, customerID int64) (*model.ChatRoom, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.FindActiveRoomForCustomer(ctx, customerID)
}

func TestResolveOrCreateRoom_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := &slowStore{Store: chattest.NewStore(), entered: make(chan struct{}), release: make(chan struct{})}
	store.AddCustomer(alice)
	registry := chat.NewRegistry()
	coord := chat.NewCoordinator(store, chat.NewRooms(), chat.NewBroadcaster(registry), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := coord.ResolveOrCreateRoom(ctx, alice.ID)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		room *model.ChatRoom
		err  error
	}
	second := make(chan result, 1)
	go func() {
		room, err := coord.ResolveOrCreateRoom(context.Background(), alice.ID)
		second <- result{room, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, chat.ErrStoreUnavailable)

	close(store.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, alice.ID, res.room.CustomerID)
	assert.Equal(t, 1, store.RoomCount())
}

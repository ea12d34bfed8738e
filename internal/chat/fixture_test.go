package chat_test

import (
	"testing"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/chat/chattest"
	"github.com/shopdesk/supportchat/internal/model"
)

var (
	alice = model.Principal{ID: 1, Kind: model.KindCustomer, Email: "alice@example.com", Name: "alice"}
	bob   = model.Principal{ID: 2, Kind: model.KindCustomer, Email: "bob@example.com", Name: "bob"}
	sam   = model.Principal{ID: 1, Kind: model.KindStaff, Email: "sam@shop.example", Name: "Sam"}
	tina  = model.Principal{ID: 2, Kind: model.KindStaff, Email: "tina@shop.example", Name: "Tina"}
)

type fixture struct {
	store    *chattest.Store
	registry *chat.Registry
	rooms    *chat.Rooms
	bc       *chat.Broadcaster
	coord    *chat.Coordinator
	disp     *chat.Dispatcher
}

func newFixture(t *testing.T, opts ...chat.DispatcherOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    chattest.NewStore(),
		registry: chat.NewRegistry(),
		rooms:    chat.NewRooms(),
	}
	for _, p := range []model.Principal{alice, bob} {
		f.store.AddCustomer(p)
	}
	for _, p := range []model.Principal{sam, tina} {
		f.store.AddStaff(p)
	}
	f.bc = chat.NewBroadcaster(f.registry)
	f.coord = chat.NewCoordinator(f.store, f.rooms, f.bc, nil, 0)
	f.disp = chat.NewDispatcher(f.store, f.registry, f.rooms, f.bc, opts...)
	return f
}

func (f *fixture) connect(p model.Principal) (*chat.Conn, *chattest.Sink) {
	sink := &chattest.Sink{}
	c := chat.NewConn(p, sink)
	f.registry.Register(c)
	return c, sink
}

func ptr[T any](v T) *T { return &v }

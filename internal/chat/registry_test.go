package chat_test

import (
	"testing"

	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/chat/chattest"
	"github.com/shopdesk/supportchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LastConnectionWins(t *testing.T) {
	r := chat.NewRegistry()
	first := chat.NewConn(alice, &chattest.Sink{})
	second := chat.NewConn(alice, &chattest.Sink{})

	assert.Nil(t, r.Register(first))
	assert.Same(t, first, r.Register(second))
	assert.Same(t, second, r.ConnectionFor(alice.ID, model.KindCustomer))

	// The replaced socket is not closed by the registry.
	assert.True(t, first.Send(chat.Event{Type: "ping"}))
}

func TestRegistry_StaleUnregisterKeepsNewer(t *testing.T) {
	r := chat.NewRegistry()
	first := chat.NewConn(alice, &chattest.Sink{})
	second := chat.NewConn(alice, &chattest.Sink{})
	r.Register(first)
	r.Register(second)

	assert.False(t, r.Unregister(first))
	assert.Same(t, second, r.ConnectionFor(alice.ID, model.KindCustomer))

	assert.True(t, r.Unregister(second))
	assert.False(t, r.Unregister(second))
	assert.Nil(t, r.ConnectionFor(alice.ID, model.KindCustomer))
}

func TestRegistry_PartitionsByKind(t *testing.T) {
	r := chat.NewRegistry()
	customer := chat.NewConn(model.Principal{ID: 5, Kind: model.KindCustomer}, &chattest.Sink{})
	staff := chat.NewConn(model.Principal{ID: 5, Kind: model.KindStaff}, &chattest.Sink{})
	r.Register(customer)
	require.Nil(t, r.Register(staff))

	assert.Same(t, customer, r.ConnectionFor(5, model.KindCustomer))
	assert.Same(t, staff, r.ConnectionFor(5, model.KindStaff))
	assert.Equal(t, []*chat.Conn{staff}, r.Staff())
	assert.Equal(t, 1, r.Count(model.KindCustomer))
	assert.Equal(t, 1, r.Count(model.KindStaff))
}

func TestRegistry_ReRegisterSameConn(t *testing.T) {
	r := chat.NewRegistry()
	c := chat.NewConn(sam, &chattest.Sink{})
	r.Register(c)
	assert.Nil(t, r.Register(c))
}

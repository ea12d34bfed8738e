package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopdesk/supportchat/internal/auth"
	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/chat/chattest"
	"github.com/shopdesk/supportchat/internal/config"
	"github.com/shopdesk/supportchat/internal/handler"
	"github.com/shopdesk/supportchat/internal/model"
	"github.com/shopdesk/supportchat/internal/push"
	"github.com/shopdesk/supportchat/internal/storage"
	"github.com/shopdesk/supportchat/internal/storage/memory"
	"github.com/shopdesk/supportchat/internal/ws"
)

var (
	alice = model.Principal{ID: 1, Kind: model.KindCustomer, Email: "alice@example.com", Name: "alice"}
	bob   = model.Principal{ID: 2, Kind: model.KindCustomer, Email: "bob@example.com", Name: "bob"}
	sam   = model.Principal{ID: 1, Kind: model.KindStaff, Email: "sam@shop.example", Name: "Sam"}
	tina  = model.Principal{ID: 2, Kind: model.KindStaff, Email: "tina@shop.example", Name: "Tina"}
)

type env struct {
	store    *chattest.Store
	state    *memory.Client
	registry *chat.Registry
	coord    *chat.Coordinator
	hub      *ws.Hub
	tokens   *auth.Manager
	srv      *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    chattest.NewStore(),
		state:    memory.New(),
		registry: chat.NewRegistry(),
		tokens:   auth.NewManager("test-secret", time.Hour, "shop"),
	}
	for _, p := range []model.Principal{alice, bob} {
		e.store.AddCustomer(p)
	}
	for _, p := range []model.Principal{sam, tina} {
		e.store.AddStaff(p)
	}

	rooms := chat.NewRooms()
	bc := chat.NewBroadcaster(e.registry)
	e.coord = chat.NewCoordinator(e.store, rooms, bc, nil, chat.DefaultHistoryLimit)
	disp := chat.NewDispatcher(e.store, e.registry, rooms, bc,
		chat.WithRateLimiter(storage.NewRateLimiter(e.state, 1000, time.Minute)))
	e.hub = ws.NewHub(e.registry, e.coord, disp, e.state, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.hub.Run(ctx)
	}()

	cfg := &config.Config{HistoryLimit: chat.DefaultHistoryLimit, WSMaxMessageSize: 8192, RateLimit: 20, RateLimitWindow: 10 * time.Second}
	notifier := push.NewNotifier(e.state, nil, "")
	router := handler.NewRouter(handler.RouterDeps{
		Verifier:       e.tokens,
		Limiter:        e.state,
		AllowedOrigins: []string{"*"},
		Chat:           handler.NewChatHandler(e.store, e.coord, disp, e.registry, e.state),
		Push:           handler.NewPushHandler(notifier),
		Config:         handler.NewConfigHandler(cfg, notifier.PublicKey()),
		WS:             handler.NewWSHandler(e.hub, ws.Options{}, "*"),
	})
	e.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		<-done
		e.srv.Close()
	})
	return e
}

func (e *env) token(t *testing.T, p model.Principal) string {
	t.Helper()
	tok, err := e.tokens.Issue(p)
	require.NoError(t, err)
	return tok
}

// do sends an authenticated request (p.ID == 0 means anonymous) and decodes the JSON body into out.
func (e *env) do(t *testing.T, p model.Principal, method, path string, body io.Reader, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if p.ID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(t, p))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// seedRoom creates customer's room and stores n customer messages in it.
func (e *env) seedRoom(t *testing.T, customer model.Principal, n int) *model.ChatRoom {
	t.Helper()
	ctx := context.Background()
	room, err := e.coord.ResolveOrCreateRoom(ctx, customer.ID)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		m := &model.ChatMessage{RoomID: room.ID, SenderID: customer.ID, SenderKind: model.KindCustomer, Body: "msg " + string(rune('a'+i%26)), Kind: model.MessageKindText}
		require.NoError(t, e.store.InsertMessage(ctx, m))
	}
	return room
}

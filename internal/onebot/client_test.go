package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/pkg/retrylimit"
)

type action struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

// fakeImpl is a minimal OneBot implementation answering actions over a
// websocket.
type fakeImpl struct {
	token   string
	respond func(a action) (data any, retcode int)

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{}
	once    sync.Once
	actions chan action
}

func newFakeImpl(token string) *fakeImpl {
	return &fakeImpl{
		token:   token,
		ready:   make(chan struct{}),
		actions: make(chan action, 16),
		respond: func(action) (any, int) { return map[string]any{}, 0 },
	}
}

func (f *fakeImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.once.Do(func() { close(f.ready) })

	for {
		var a action
		if err := conn.ReadJSON(&a); err != nil {
			return
		}
		f.actions <- a
		data, code := f.respond(a)
		status := "ok"
		if code != 0 {
			status = "failed"
		}
		f.send(map[string]any{"status": status, "retcode": code, "data": data, "echo": a.Echo, "message": "boom"})
	}
}

func (f *fakeImpl) send(v any) error {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn.WriteJSON(v)
}

func startClient(t *testing.T, impl *fakeImpl, handle Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(impl)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:       impl.token,
		RateLimit:   100,
		CallTimeout: 2 * time.Second,
	}, handle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("client did not stop")
		}
	})

	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	return c
}

func TestDeliversMessagesAndSkipsSelf(t *testing.T) {
	impl := newFakeImpl("secret")
	got := make(chan domain.Message, 4)
	startClient(t, impl, func(_ context.Context, msg domain.Message) { got <- msg })

	require.NoError(t, impl.send(map[string]any{
		"post_type": "message", "message_type": "group", "self_id": 1, "user_id": 1,
		"group_id": 50, "message_id": 7, "time": 1700000000, "message": "/echo me",
	}))
	require.NoError(t, impl.send(map[string]any{
		"post_type": "message", "message_type": "group", "self_id": 1, "user_id": 42,
		"group_id": 50, "message_id": 8, "time": 1700000000,
		"sender": map[string]any{"nickname": "nick", "card": "card"},
		"message": []map[string]any{
			{"type": "text", "data": map[string]any{"text": "/echo "}},
			{"type": "image", "data": map[string]any{"file": "x.png"}},
			{"type": "text", "data": map[string]any{"text": "hi"}},
		},
	}))

	select {
	case msg := <-got:
		assert.Equal(t, int64(8), msg.ID)
		assert.Equal(t, int64(42), msg.SenderID)
		assert.Equal(t, int64(50), msg.GroupID)
		assert.Equal(t, "card", msg.SenderName)
		assert.Equal(t, "/echo hi", msg.Text)
		assert.True(t, msg.IsGroup())
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	assert.Empty(t, got)
}

func TestReplyQuotesAndMentions(t *testing.T) {
	impl := newFakeImpl("")
	c := startClient(t, impl, nil)

	msg := domain.Message{ID: 9, Kind: domain.ScopeGroup, GroupID: 50, SenderID: 42}
	require.NoError(t, c.Reply(context.Background(), msg, "done"))

	a := <-impl.actions
	assert.Equal(t, "send_group_msg", a.Action)
	assert.Equal(t, float64(50), a.Params["group_id"])
	raw, err := json.Marshal(a.Params["message"])
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"reply","data":{"id":"9"}},
		{"type":"at","data":{"qq":"42"}},
		{"type":"text","data":{"text":" done"}}
	]`, string(raw))

	private := domain.Message{ID: 3, Kind: domain.ScopePrivate, SenderID: 42}
	require.NoError(t, c.Reply(context.Background(), private, "hey"))
	a = <-impl.actions
	assert.Equal(t, "send_private_msg", a.Action)
	assert.Equal(t, float64(42), a.Params["user_id"])
}

func TestModerationActions(t *testing.T) {
	impl := newFakeImpl("")
	impl.respond = func(a action) (any, int) {
		if a.Action == "get_group_member_info" {
			return map[string]any{"role": "admin"}, 0
		}
		return nil, 0
	}
	c := startClient(t, impl, nil)
	ctx := context.Background()

	role, err := c.RoleOf(ctx, 50, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)
	a := <-impl.actions
	assert.Equal(t, true, a.Params["no_cache"])

	require.NoError(t, c.MuteSender(ctx, 50, 42, 1500*time.Millisecond))
	a = <-impl.actions
	assert.Equal(t, "set_group_ban", a.Action)
	assert.Equal(t, float64(2), a.Params["duration"])

	require.NoError(t, c.DeleteMessage(ctx, 11))
	a = <-impl.actions
	assert.Equal(t, "delete_msg", a.Action)
	assert.Equal(t, float64(11), a.Params["message_id"])
}

func TestActionFailure(t *testing.T) {
	impl := newFakeImpl("")
	impl.respond = func(action) (any, int) { return nil, 100 }
	c := startClient(t, impl, nil)

	err := c.DeleteMessage(context.Background(), 1)
	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 100, aerr.RetCode)
	assert.Equal(t, "delete_msg", aerr.Action)
}

func TestCallWithoutSession(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "get_status", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRefusedTokenStopsRun(t *testing.T) {
	srv := httptest.NewServer(newFakeImpl("right"))
	defer srv.Close()

	c, err := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "wrong"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = c.Run(ctx)

	var fatal *retrylimit.FatalError
	require.ErrorAs(t, err, &fatal)
	var herr *HandshakeError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode())
}

func TestDecodeMessage(t *testing.T) {
	msg, ok, err := decodeMessage([]byte(`{"post_type":"message","message_type":"private","user_id":7,"group_id":3,"message_id":1,"raw_message":"hi","message":"hi","sender":{"nickname":"n"}}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ScopePrivate, msg.Kind)
	assert.Equal(t, int64(0), msg.GroupID)
	assert.Equal(t, "n", msg.SenderName)
	assert.Equal(t, "hi", msg.Text)

	_, ok, err = decodeMessage([]byte(`{"post_type":"message","message_type":"guild","user_id":7}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidProxy(t *testing.T) {
	_, err := New(Config{URL: "ws://localhost:6000", Proxy: "ftp://proxy:21"}, nil)
	assert.Error(t, err)

	for _, p := range []string{"socks5://127.0.0.1:1080", "socks4://127.0.0.1:1080", "http://127.0.0.1:3128"} {
		_, err = New(Config{URL: "ws://localhost:6000", Proxy: p}, nil)
		assert.NoError(t, err, p)
	}
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/gochat-client/internal/stats"
	"github.com/npezzotti/gochat-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBroker struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func newTestBroker(t *testing.T) *testBroker {
	b := &testBroker{conns: make(chan *websocket.Conn, 8)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		t.Cleanup(func() { ws.Close() })
		b.conns <- ws
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *testBroker) accept(t *testing.T) *websocket.Conn {
	select {
	case ws := <-b.conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: broker did not receive a connection")
		return nil
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err, "expected broker to read an event")
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func waitEvent(t *testing.T, c *Conn, name string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout: did not receive %q event", name)
			return Event{}
		}
	}
}

func newTestConn(t *testing.T, url string, opts ...Option) *Conn {
	opts = append([]Option{WithBackoff(10*time.Millisecond, 50*time.Millisecond)}, opts...)
	c := NewConn(url, testutil.TestLogger(t), opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConn_ConnectAndEmit(t *testing.T) {
	b := newTestBroker(t)
	c := newTestConn(t, b.url())

	err := c.Emit("join-room", map[string]string{"roomName": "general"})
	assert.ErrorIs(t, err, ErrNotConnected, "expected emit before connect to fail")

	require.NoError(t, c.Connect(context.Background()))
	ws := b.accept(t)
	waitEvent(t, c, EventConnect)
	assert.True(t, c.Connected(), "expected channel to report connected")

	require.NoError(t, c.Emit("join-room", map[string]string{"roomName": "general", "pseudo": "Alice"}))

	ev := readEvent(t, ws)
	assert.Equal(t, "join-room", ev.Name)
	assert.JSONEq(t, `{"roomName":"general","pseudo":"Alice"}`, string(ev.Data))
}

func TestConn_DeliversEventsInOrder(t *testing.T) {
	b := newTestBroker(t)
	c := newTestConn(t, b.url())
	require.NoError(t, c.Connect(context.Background()))
	ws := b.accept(t)
	waitEvent(t, c, EventConnect)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"message","data":{"content":"`+content+`"}}`)))
	}
	// malformed frames are skipped
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"message":"x"}}`)))

	var got []string
	for i := 0; i < 3; i++ {
		ev := waitEvent(t, c, "message")
		var payload struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		got = append(got, payload.Content)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got, "expected events in delivery order")
	waitEvent(t, c, "error")
}

func TestConn_Reconnects(t *testing.T) {
	b := newTestBroker(t)
	su := stats.NewPermissiveMock()
	c := newTestConn(t, b.url(), WithStats(su))
	require.NoError(t, c.Connect(context.Background()))

	ws := b.accept(t)
	waitEvent(t, c, EventConnect)

	ws.Close()
	waitEvent(t, c, EventDisconnect)

	b.accept(t)
	waitEvent(t, c, EventConnect)
	su.AssertCalled(t, "Incr", stats.Reconnects)
}

func TestConn_CloseFlushesQueuedEvents(t *testing.T) {
	b := newTestBroker(t)
	c := newTestConn(t, b.url())
	require.NoError(t, c.Connect(context.Background()))
	ws := b.accept(t)
	waitEvent(t, c, EventConnect)

	require.NoError(t, c.Emit("leave-room", map[string]string{"room": "general", "userId": "u1"}))
	require.NoError(t, c.Close())

	ev := readEvent(t, ws)
	assert.Equal(t, "leave-room", ev.Name, "expected leave to arrive before the close frame")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected a normal close frame, got %v", err)

	select {
	case <-c.Done():
	default:
		t.Error("expected Done to be closed after Close")
	}
	assert.ErrorIs(t, c.Emit("send-message", nil), ErrClosed, "expected emit after close to fail")
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed, "expected connect after close to fail")
}

func TestConn_DialFailure(t *testing.T) {
	b := newTestBroker(t)
	url := b.url()
	b.srv.Close()

	c := newTestConn(t, url)
	require.NoError(t, c.Connect(context.Background()))

	ev := waitEvent(t, c, EventConnectError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.NotEmpty(t, payload.Message, "expected dial error message")
	assert.False(t, c.Connected())
}

func TestConn_CloseWithoutConnect(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", testutil.TestLogger(t))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "expected Close to be idempotent")
}

func TestConn_backoff(t *testing.T) {
	c := NewConn("ws://localhost/ws", testutil.TestLogger(t), WithBackoff(100*time.Millisecond, time.Second))

	tcases := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 100 * time.Millisecond},
		{attempt: 1, expected: 200 * time.Millisecond},
		{attempt: 3, expected: 800 * time.Millisecond},
		{attempt: 4, expected: time.Second},
		{attempt: 100, expected: time.Second},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.expected, c.backoff(tc.attempt), "unexpected delay for attempt %d", tc.attempt)
	}
}

func Test_encodeEvent(t *testing.T) {
	raw, err := encodeEvent("send-message", map[string]string{"content": "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"send-message","data":{"content":"hello"}}`, string(raw))

	_, err = encodeEvent("bad", func() {})
	assert.Error(t, err, "expected unsupported payload to fail")
}

func Test_errorEvent(t *testing.T) {
	ev := errorEvent(EventDisconnect, errors.New("boom"))
	assert.Equal(t, EventDisconnect, ev.Name)
	assert.JSONEq(t, `{"message":"boom"}`, string(ev.Data))

	ev = errorEvent(EventDisconnect, nil)
	assert.Nil(t, ev.Data)
}

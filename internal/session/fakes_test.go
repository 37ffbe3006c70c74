package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/gochat-client/internal/testutil"
	"github.com/npezzotti/gochat-client/internal/transport"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/stretchr/testify/require"
)

type emission struct {
	name    string
	payload any
}

type fakeChannel struct {
	mu           sync.Mutex
	events       chan transport.Event
	emits        []emission
	closed       bool
	emitsAtClose int
	connectErr   error
	emitErr      error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan transport.Event, 64)}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeChannel) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emission{name: event, payload: payload})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.emitsAtClose = len(f.emits)
	return nil
}

func (f *fakeChannel) push(t *testing.T, name string, payload any) {
	t.Helper()
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case string:
		data = json.RawMessage(p)
	default:
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		data = raw
	}
	f.events <- transport.Event{Name: name, Data: data}
}

func (f *fakeChannel) emitted(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emits {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeChannel) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emits))
	for i, e := range f.emits {
		out[i] = e.name
	}
	return out
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCache struct {
	mu      sync.Mutex
	history []types.Message
	saved   []types.Message
	photos  []types.Photo
}

func (c *fakeCache) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.history...), nil
}

func (c *fakeCache) SaveMessage(ctx context.Context, msg types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, msg)
	return nil
}

func (c *fakeCache) SavePhoto(ctx context.Context, p types.Photo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos = append(c.photos, p)
	return nil
}

func (c *fakeCache) savedMessages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.saved...)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(ms int64) *clock {
	return &clock{now: time.UnixMilli(ms)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	defaultWait  = 2 * time.Second
	pollInterval = 5 * time.Millisecond
)

var (
	testRoom  = types.Room{Id: "general", Name: "general"}
	testAlice = types.User{Id: "u-alice", DisplayName: "Alice"}
)

func newTestSession(t *testing.T, ch Channel, opts Options) *Session {
	s := NewSession(testRoom, testAlice, ch, testutil.TestLogger(t), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Leave(ctx)
	})
	return s
}

// startJoined starts the session and drives it to the joined state.
func startJoined(t *testing.T, s *Session, ch *fakeChannel) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	ch.push(t, transport.EventConnect, nil)
	ch.push(t, EventRoomJoined, `{"participants":1}`)
	require.Eventually(t, func() bool { return s.State() == StateJoined },
		2*time.Second, 5*time.Millisecond, "expected session to join")
}

// syncEvents pushes a marker message from another user and waits for it so
// that every event pushed before it has been processed.
func syncEvents(t *testing.T, s *Session, ch *fakeChannel) {
	t.Helper()
	marker := "marker-" + time.Now().Format(time.RFC3339Nano)
	ch.push(t, EventMessage, map[string]any{"pseudo": "Marker", "userId": "u-marker", "content": marker})
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) > 0 && msgs[len(msgs)-1].Content == marker
	}, 2*time.Second, 5*time.Millisecond, "expected marker message to be processed")
}

// contents returns the contents of msgs excluding markers.
func contents(msgs []types.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.SenderName == "Marker" {
			continue
		}
		out = append(out, m.Content)
	}
	return out
}

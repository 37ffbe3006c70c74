package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/gochat-client/internal/stats"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8 << 20

	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 10 * time.Second
)

// Conn is a reconnecting WebSocket channel. Inbound events, including the
// synthetic connect/disconnect events, are delivered in order on Events.
type Conn struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	log       zerolog.Logger
	stats     stats.StatsProvider
	baseDelay time.Duration
	maxDelay  time.Duration

	events chan Event
	send   chan []byte
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	connected bool
	started   bool
	closeOnce sync.Once
}

type Option func(*Conn)

func WithHeader(h http.Header) Option {
	return func(c *Conn) { c.header = h }
}

func WithBackoff(base, max time.Duration) Option {
	return func(c *Conn) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

func WithStats(sp stats.StatsProvider) Option {
	return func(c *Conn) { c.stats = sp }
}

func NewConn(url string, l zerolog.Logger, opts ...Option) *Conn {
	c := &Conn{
		url:       url,
		dialer:    websocket.DefaultDialer,
		log:       l.With().Str("component", "transport").Str("url", url).Logger(),
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		events:    make(chan Event, 256),
		send:      make(chan []byte, 256),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect starts the connection supervisor. It returns immediately; the
// outcome of each dial attempt is reported on Events.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stop:
		return ErrClosed
	default:
	}
	if c.started {
		return nil
	}

	c.started = true
	go c.run(ctx)
	return nil
}

func (c *Conn) Events() <-chan Event {
	return c.events
}

// Connected reports whether a WebSocket is currently established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Emit queues an event for the broker.
func (c *Conn) Emit(event string, payload any) error {
	select {
	case <-c.stop:
		return ErrClosed
	default:
	}
	if !c.Connected() {
		return ErrNotConnected
	}

	raw, err := encodeEvent(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case c.send <- raw:
	default:
		c.log.Warn().Str("event", event).Msg("send queue full")
		return fmt.Errorf("send %s: queue full", event)
	}

	return nil
}

// Close flushes queued events, sends a close frame and stops reconnecting.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		close(c.stop)
		c.mu.Unlock()

		if started {
			<-c.done
		} else {
			close(c.done)
		}
	})

	return nil
}

// Done is closed once the channel has fully shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) backoff(attempt int) time.Duration {
	d := float64(c.baseDelay) * math.Pow(2, float64(attempt))
	if d > float64(c.maxDelay) {
		return c.maxDelay
	}
	return time.Duration(d)
}

// wait sleeps for d. It returns false if the channel is stopping.
func (c *Conn) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) publish(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

func (c *Conn) stopping(ctx context.Context) bool {
	select {
	case <-c.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Conn) run(parent context.Context) {
	defer close(c.done)

	// cancel in-flight dials once Close is called
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	reconnecting := false
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if c.stopping(ctx) {
				return
			}
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("dial failed")
			c.publish(errorEvent(EventConnectError, err))
			if !c.wait(ctx, c.backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		if reconnecting && c.stats != nil {
			c.stats.Incr(stats.Reconnects)
		}
		attempt = 0
		reconnecting = true

		c.log.Info().Msg("connected")
		c.setConnected(true)
		c.publish(Event{Name: EventConnect})

		err = c.serve(ctx, ws)
		c.setConnected(false)
		if c.stopping(ctx) {
			c.log.Info().Msg("channel closed")
			return
		}

		c.log.Warn().Err(err).Msg("connection lost")
		c.publish(errorEvent(EventDisconnect, err))
		if !c.wait(ctx, c.backoff(0)) {
			return
		}
	}
}

// serve runs the read and write pumps for one connection and returns when
// the connection ends.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	writeDone := make(chan struct{})
	readDone := make(chan struct{})

	go func() {
		defer close(writeDone)
		c.write(ctx, ws, readDone)
	}()

	err := c.read(ws)
	close(readDone)
	<-writeDone
	return err
}

func (c *Conn) read(ws *websocket.Conn) error {
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Name == "" {
			c.log.Debug().Err(err).Str("raw", string(raw)).Msg("dropping malformed event")
			continue
		}

		c.publish(ev)
	}
}

func (c *Conn) write(ctx context.Context, ws *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-c.send:
			if !c.sendMessage(ws, websocket.TextMessage, raw) {
				ws.Close()
				return
			}
		case <-ticker.C:
			if !c.sendMessage(ws, websocket.PingMessage, nil) {
				ws.Close()
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			select {
			case <-c.stop:
				c.shutdown(ws)
			default:
				ws.Close()
			}
			return
		case <-c.stop:
			c.shutdown(ws)
			return
		}
	}
}

func (c *Conn) shutdown(ws *websocket.Conn) {
	c.flush(ws)
	c.sendMessage(ws, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
}

// flush writes every event still queued, so a final leave notification
// reaches the broker before the close frame.
func (c *Conn) flush(ws *websocket.Conn) {
	for {
		select {
		case raw := <-c.send:
			if !c.sendMessage(ws, websocket.TextMessage, raw) {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) sendMessage(ws *websocket.Conn, msgType int, msg []byte) bool {
	ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := ws.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

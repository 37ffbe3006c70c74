package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/npezzotti/gochat-client/internal/stats"
	"github.com/npezzotti/gochat-client/internal/transport"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultEvictInterval = time.Second
	updateBufferSize     = 256
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type UpdateKind int

const (
	UpdateState UpdateKind = iota
	UpdateMessage
	UpdateRoster
	UpdateError
)

// Update is published to observers whenever the session changes.
type Update struct {
	Kind    UpdateKind
	State   State
	Message types.Message
	Roster  Roster
	Err     error
}

// Channel is the realtime link to the broker.
type Channel interface {
	Connect(ctx context.Context) error
	Events() <-chan transport.Event
	Emit(event string, payload any) error
	Close() error
}

// MessageCache persists room history across runs.
type MessageCache interface {
	GetMessages(ctx context.Context, roomId string) ([]types.Message, error)
	SaveMessage(ctx context.Context, msg types.Message) error
}

type Options struct {
	Suppressor    Suppressor
	Cache         MessageCache
	Stats         stats.StatsProvider
	Now           func() time.Time
	EvictInterval time.Duration
}

type sendReq struct {
	payload *SendMessage
	local   types.Message
	result  chan error
}

type leaveReq struct {
	done chan error
}

// Session is one user's membership in one room. All mutations happen on
// the goroutine started by Start.
type Session struct {
	room          types.Room
	user          types.User
	ch            Channel
	log           zerolog.Logger
	normalizer    *Normalizer
	suppressor    Suppressor
	cache         MessageCache
	stats         stats.StatsProvider
	now           func() time.Time
	evictInterval time.Duration

	mu               sync.RWMutex
	state            State
	linkUp           bool
	started          bool
	messages         []types.Message
	participants     []string
	participantCount int

	updates   chan Update
	sendChan  chan *sendReq
	leaveChan chan *leaveReq
	done      chan struct{}
}

func NewSession(room types.Room, user types.User, ch Channel, l zerolog.Logger, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = defaultEvictInterval
	}
	if opts.Suppressor == nil {
		opts.Suppressor = NewCorrelationSuppressor(user, DefaultDedupWindow)
	}

	log := l.With().Str("component", "session").Str("room", room.Id).Logger()
	return &Session{
		room:          room,
		user:          user,
		ch:            ch,
		log:           log,
		normalizer:    NewNormalizer(l, opts.Now),
		suppressor:    opts.Suppressor,
		cache:         opts.Cache,
		stats:         opts.Stats,
		now:           opts.Now,
		evictInterval: opts.EvictInterval,
		state:         StateIdle,
		updates:       make(chan Update, updateBufferSize),
		sendChan:      make(chan *sendReq),
		leaveChan:     make(chan *leaveReq),
		done:          make(chan struct{}),
	}
}

// Start loads cached history, connects the channel and begins processing
// events. The session runs until Leave is called or ctx is canceled.
func (s *Session) Start(ctx context.Context) error {
	if s.room.Id == "" || s.user.Id == "" {
		return ErrNoContext
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if s.cache != nil {
		history, err := s.cache.GetMessages(ctx, s.room.Id)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to load cached messages")
		}
		s.mu.Lock()
		s.messages = history
		s.mu.Unlock()
	}

	s.setState(StateConnecting)
	if err := s.ch.Connect(ctx); err != nil {
		s.setState(StateIdle)
		close(s.updates)
		close(s.done)
		return err
	}

	go s.run(ctx)
	return nil
}

func (s *Session) run(ctx context.Context) {
	s.log.Info().Msg("session started")
	ticker := time.NewTicker(s.evictInterval)
	defer func() {
		ticker.Stop()
		close(s.updates)
		close(s.done)
		s.log.Info().Msg("session stopped")
	}()

	events := s.ch.Events()
	for {
		select {
		case ev := <-events:
			s.handleEvent(ev)
		case req := <-s.sendChan:
			req.result <- s.handleSend(req)
		case req := <-s.leaveChan:
			req.done <- s.teardown()
			return
		case <-ticker.C:
			s.suppressor.Evict(s.now())
		case <-ctx.Done():
			s.teardown()
			return
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	switch canonicalEvent(ev.Name) {
	case transport.EventConnect:
		s.mu.Lock()
		s.linkUp = true
		s.mu.Unlock()
		s.setState(StateConnecting)
		s.join()
	case transport.EventDisconnect:
		s.mu.Lock()
		s.linkUp = false
		s.mu.Unlock()
		s.setState(StateDisconnected)
	case transport.EventConnectError:
		s.setState(StateDisconnected)
		var p transport.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err == nil && p.Message != "" {
			s.publish(Update{Kind: UpdateError, Err: &BrokerError{Message: p.Message}})
		}
	case EventMessage:
		var in InboundMessage
		if err := json.Unmarshal(ev.Data, &in); err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed message")
			return
		}
		s.handleInbound(&in)
	case EventRoomJoined:
		s.handleRoster(ev.Data)
	case EventError:
		var p ErrorMessage
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Message == "" {
			var text string
			if json.Unmarshal(ev.Data, &text) != nil || text == "" {
				text = "unknown error"
			}
			p.Message = text
		}
		s.log.Warn().Str("error", p.Message).Msg("broker reported error")
		s.publish(Update{Kind: UpdateError, Err: &BrokerError{Message: p.Message}})
	default:
		s.log.Debug().Str("event", ev.Name).Msg("ignoring event")
	}
}

// join is sent on every connect so a reconnect restores membership.
func (s *Session) join() {
	err := s.ch.Emit(EventJoinRoom, &JoinRoom{
		RoomName: s.room.Name,
		UserId:   s.user.Id,
		Pseudo:   s.user.DisplayName,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to join room")
		s.publish(Update{Kind: UpdateError, Err: err})
	}
}

func (s *Session) handleInbound(in *InboundMessage) {
	msg := s.normalizer.Normalize(s.room.Id, in)

	s.mu.RLock()
	rendered := s.messages
	s.mu.RUnlock()

	c := Candidate{
		CorrelationId: in.correlationId(),
		RawContent:    in.content(),
		Message:       msg,
	}
	if s.suppressor.ShouldSuppress(c, rendered) {
		s.log.Debug().Str("sender", msg.SenderName).Msg("suppressed echo")
		s.incr(stats.EchoesSuppressed)
		return
	}

	s.appendMessage(msg)
	s.incr(stats.MessagesReceived)
}

func (s *Session) handleRoster(data json.RawMessage) {
	var rj RoomJoined
	if err := json.Unmarshal(data, &rj); err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed roster")
		return
	}

	s.mu.RLock()
	linkUp, state := s.linkUp, s.state
	s.mu.RUnlock()
	if linkUp && state == StateConnecting {
		s.setState(StateJoined)
	}

	r, err := parseRoster(&rj)
	if err != nil {
		s.log.Debug().Err(err).Msg("roster not understood")
		return
	}

	s.mu.Lock()
	s.participants = r.Names
	s.participantCount = r.Count
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateRoster, Roster: r})
}

func (s *Session) handleSend(req *sendReq) error {
	s.mu.RLock()
	linkUp := s.linkUp
	s.mu.RUnlock()
	if !linkUp {
		s.incr(stats.SendFailures)
		return ErrNotConnected
	}

	// recorded before transmission so a fast echo is still matched
	s.suppressor.RecordSent(SentRecord{
		CorrelationId: req.payload.CorrelationId,
		Content:       req.payload.Content,
		SenderName:    s.user.DisplayName,
		At:            s.now(),
	})

	if err := s.ch.Emit(EventSendMessage, req.payload); err != nil {
		s.incr(stats.SendFailures)
		return err
	}

	s.appendMessage(req.local)
	s.incr(stats.MessagesSent)
	return nil
}

func (s *Session) appendMessage(msg types.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SaveMessage(context.Background(), msg); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache message")
		}
	}
	s.publish(Update{Kind: UpdateMessage, Message: msg})
}

// teardown stops event processing, tells the broker we left and closes
// the channel.
func (s *Session) teardown() error {
	err := s.ch.Emit(EventLeaveRoom, &LeaveRoom{Room: s.room.Name, UserId: s.user.Id})
	if err != nil {
		s.log.Debug().Err(err).Msg("leave notification not sent")
	}
	if cerr := s.ch.Close(); cerr != nil {
		s.log.Warn().Err(cerr).Msg("failed to close channel")
	}

	s.mu.Lock()
	s.linkUp = false
	s.mu.Unlock()
	s.setState(StateIdle)
	return err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	s.mu.Unlock()

	s.log.Debug().Stringer("from", prev).Stringer("to", st).Msg("state changed")
	s.publish(Update{Kind: UpdateState, State: st})
}

func (s *Session) publish(u Update) {
	select {
	case s.updates <- u:
	default:
		s.log.Warn().Int("kind", int(u.Kind)).Msg("update buffer full, dropping update")
	}
}

func (s *Session) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

func (s *Session) submit(ctx context.Context, payload *SendMessage, local types.Message) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotConnected
	}

	req := &sendReq{payload: payload, local: local, result: make(chan error, 1)}
	select {
	case s.sendChan <- req:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave exits the room. It is safe to call more than once.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil
	}

	req := &leaveReq{done: make(chan error, 1)}
	select {
	case s.leaveChan <- req:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Updates is closed once the session stops.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Room() types.Room {
	return s.room
}

func (s *Session) User() types.User {
	return s.user
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Messages returns a copy of the rendered history in arrival order.
func (s *Session) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Participants() ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.participants))
	copy(names, s.participants)
	return names, s.participantCount
}

package session

import (
	"strings"
	"time"

	"github.com/npezzotti/gochat-client/internal/types"
)

const (
	DefaultDedupWindow = 10 * time.Second

	echoTolerance    = 3 * time.Second
	historyTolerance = 2 * time.Second
)

// SentRecord describes an outbound message the suppressor should expect
// to see echoed back.
type SentRecord struct {
	CorrelationId string
	Content       string
	SenderName    string
	At            time.Time
}

// Candidate is an inbound message checked against recent sends.
type Candidate struct {
	CorrelationId string
	RawContent    string
	Message       types.Message
}

// Suppressor decides whether an inbound message is the broker echo of a
// message this client already appended locally. Implementations are not
// safe for concurrent use; the session loop owns them.
type Suppressor interface {
	RecordSent(rec SentRecord)
	ShouldSuppress(c Candidate, rendered []types.Message) bool
	Evict(now time.Time)
	Pending() int
}

// CorrelationSuppressor matches echoes by the correlation id attached to
// each outbound message. Echoes of the local user's messages that come
// back without an id fall back to matching a pending send by content.
type CorrelationSuppressor struct {
	user    types.User
	window  time.Duration
	pending map[string]SentRecord
}

func NewCorrelationSuppressor(user types.User, window time.Duration) *CorrelationSuppressor {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &CorrelationSuppressor{
		user:    user,
		window:  window,
		pending: make(map[string]SentRecord),
	}
}

func (s *CorrelationSuppressor) RecordSent(rec SentRecord) {
	if rec.CorrelationId == "" {
		return
	}
	s.pending[rec.CorrelationId] = rec
}

func (s *CorrelationSuppressor) ShouldSuppress(c Candidate, _ []types.Message) bool {
	if c.CorrelationId != "" {
		if _, ok := s.pending[c.CorrelationId]; !ok {
			return false
		}
		delete(s.pending, c.CorrelationId)
		return true
	}

	if !s.sentBySelf(c.Message) {
		return false
	}
	content := strings.TrimSpace(c.RawContent)
	if content == "" {
		return false
	}

	// retire the oldest matching send so repeats pair up in order
	var (
		match  string
		oldest time.Time
	)
	for id, rec := range s.pending {
		if strings.TrimSpace(rec.Content) != content ||
			!within(c.Message.TimestampMs, rec.At.UnixMilli(), echoTolerance) {
			continue
		}
		if match == "" || rec.At.Before(oldest) {
			match, oldest = id, rec.At
		}
	}
	if match == "" {
		return false
	}
	delete(s.pending, match)
	return true
}

// sentBySelf trusts the sender id when the echo carries one and the
// display name otherwise.
func (s *CorrelationSuppressor) sentBySelf(m types.Message) bool {
	if m.SenderId != "" {
		return m.SenderId == s.user.Id
	}
	return s.user.DisplayName != "" && m.SenderName == s.user.DisplayName
}

func (s *CorrelationSuppressor) Evict(now time.Time) {
	for id, rec := range s.pending {
		if now.Sub(rec.At) > s.window {
			delete(s.pending, id)
		}
	}
}

func (s *CorrelationSuppressor) Pending() int {
	return len(s.pending)
}

// ContentSuppressor matches echoes of the local user's messages by
// content and timing. A genuine repeat of the same text by the same user
// inside the tolerance is suppressed too.
type ContentSuppressor struct {
	user    types.User
	window  time.Duration
	pending map[string]time.Time
}

func NewContentSuppressor(user types.User, window time.Duration) *ContentSuppressor {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &ContentSuppressor{
		user:    user,
		window:  window,
		pending: make(map[string]time.Time),
	}
}

func contentKey(content, sender string) string {
	return strings.TrimSpace(content) + "_" + sender
}

func (s *ContentSuppressor) RecordSent(rec SentRecord) {
	if strings.TrimSpace(rec.Content) == "" {
		return
	}
	s.pending[contentKey(rec.Content, rec.SenderName)] = rec.At
}

func (s *ContentSuppressor) ShouldSuppress(c Candidate, rendered []types.Message) bool {
	if !s.fromSelf(c.Message) || strings.TrimSpace(c.RawContent) == "" {
		return false
	}

	key := contentKey(c.RawContent, s.user.DisplayName)
	if at, ok := s.pending[key]; ok && within(c.Message.TimestampMs, at.UnixMilli(), echoTolerance) {
		delete(s.pending, key)
		return true
	}

	content := strings.TrimSpace(c.Message.Content)
	for i := len(rendered) - 1; i >= 0; i-- {
		m := rendered[i]
		if s.fromSelf(m) && strings.TrimSpace(m.Content) == content &&
			within(c.Message.TimestampMs, m.TimestampMs, historyTolerance) {
			return true
		}
	}
	return false
}

func (s *ContentSuppressor) Evict(now time.Time) {
	evict(s.pending, now, s.window)
}

func (s *ContentSuppressor) Pending() int {
	return len(s.pending)
}

func (s *ContentSuppressor) fromSelf(m types.Message) bool {
	if m.SenderId != "" && m.SenderId == s.user.Id {
		return true
	}
	return s.user.DisplayName != "" && m.SenderName == s.user.DisplayName
}

func within(a, b int64, d time.Duration) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= d.Milliseconds()
}

func evict(pending map[string]time.Time, now time.Time, window time.Duration) {
	for k, at := range pending {
		if now.Sub(at) > window {
			delete(pending, k)
		}
	}
}

package session

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
)

// Normalizer turns inbound broker payloads into canonical messages.
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

func NewNormalizer(l zerolog.Logger, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		log: l.With().Str("component", "normalizer").Logger(),
		now: now,
	}
}

// Normalize never fails: missing fields fall back to defaults and a
// malformed location payload leaves the content as received.
func (n *Normalizer) Normalize(roomId string, in *InboundMessage) types.Message {
	msg := types.Message{
		Id:          string(in.Id),
		RoomId:      roomId,
		SenderId:    in.senderId(),
		SenderName:  in.senderName(),
		Content:     in.content(),
		TimestampMs: in.timestamp(n.now),
		ImageData:   in.image(),
	}
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}

	if loc := n.location(in, msg.Content); loc != nil {
		msg.Location = loc
		msg.Content = LocationPlaceholder
		return msg
	}

	if msg.ImageData == "" && strings.HasPrefix(msg.Content, "data:image/") {
		msg.ImageData = msg.Content
		msg.Content = PhotoPlaceholder
	}

	return msg
}

func (n *Normalizer) location(in *InboundMessage, content string) *types.Location {
	if raw := bytes.TrimSpace(in.Location); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		loc, err := decodeLocationField(raw)
		if err == nil {
			return loc
		}
		n.log.Debug().Err(err).Msg("ignoring location field")
	}

	trimmed := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var p struct {
			Type string   `json:"type"`
			Lat  *float64 `json:"lat"`
			Lng  *float64 `json:"lng"`
		}
		if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
			n.log.Debug().Err(err).Msg("content is not a location payload")
			return nil
		}
		if !strings.EqualFold(p.Type, geoTag) && p.Type != legacyGeoTag {
			return nil
		}
		loc, err := validLocation(p.Lat, p.Lng)
		if err != nil {
			n.log.Debug().Err(err).Msg("malformed location content")
			return nil
		}
		return loc
	case strings.HasPrefix(trimmed, legacyGeoPrefix):
		loc, err := decodeLocationObject([]byte(strings.TrimPrefix(trimmed, legacyGeoPrefix)))
		if err != nil {
			n.log.Debug().Err(err).Msg("malformed legacy location content")
			return nil
		}
		return loc
	}

	return nil
}

// decodeLocationField accepts either an object or a string holding one.
func decodeLocationField(raw []byte) (*types.Location, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	return decodeLocationObject(raw)
}

func decodeLocationObject(raw []byte) (*types.Location, error) {
	var p struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &p); err != nil {
		return nil, err
	}
	return validLocation(p.Lat, p.Lng)
}

func validLocation(lat, lng *float64) (*types.Location, error) {
	if lat == nil || lng == nil {
		return nil, ErrInvalidLocation
	}
	if !finite(*lat) || !finite(*lng) {
		return nil, ErrInvalidLocation
	}
	return &types.Location{Lat: *lat, Lng: *lng}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func firstNonEmpty(vals ...looseString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return string(v)
		}
	}
	return ""
}

func (m *InboundMessage) senderName() string {
	if name := firstNonEmpty(m.Pseudo, m.Username, m.Sender, m.SenderName); name != "" {
		return name
	}
	return UnknownSender
}

func (m *InboundMessage) senderId() string {
	return firstNonEmpty(m.UserId, m.SenderId)
}

func (m *InboundMessage) content() string {
	return firstNonEmpty(m.Content, m.Message, m.Text)
}

func (m *InboundMessage) image() string {
	return firstNonEmpty(m.ImageUrl, m.ImageData, m.Image)
}

func (m *InboundMessage) correlationId() string {
	return firstNonEmpty(m.CorrelationId, m.LocalId)
}

func (m *InboundMessage) timestamp(now func() time.Time) int64 {
	for _, raw := range []json.RawMessage{m.DateEmitted, m.DateEmis, m.Timestamp} {
		if ms, ok := parseTimestamp(raw); ok {
			return ms
		}
	}
	return now().UnixMilli()
}

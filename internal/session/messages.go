package session

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/npezzotti/gochat-client/internal/types"
)

// Broker events.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventMessage     = "message"
	EventRoomJoined  = "room-joined"
	EventError       = "error"
)

// inboundAliases maps event names used by older broker versions.
var inboundAliases = map[string]string{
	"chat-msg":          EventMessage,
	"chat-joined-room":  EventRoomJoined,
	"chat-disconnected": EventRoomJoined,
}

func canonicalEvent(name string) string {
	if alias, ok := inboundAliases[name]; ok {
		return alias
	}
	return name
}

const (
	LocationPlaceholder = "Shared a location"
	PhotoPlaceholder    = "Sent a photo"
	UnknownSender       = "Unknown"

	geoTag          = "geo"
	legacyGeoTag    = "LOCATION"
	legacyGeoPrefix = "LOCATION:"

	// same shape as JavaScript's Date.toISOString
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

type JoinRoom struct {
	RoomName string `json:"roomName"`
	UserId   string `json:"userId"`
	Pseudo   string `json:"pseudo"`
}

type LeaveRoom struct {
	Room   string `json:"room"`
	UserId string `json:"userId"`
}

type SendMessage struct {
	RoomName      string          `json:"roomName"`
	UserId        string          `json:"userId"`
	Pseudo        string          `json:"pseudo"`
	Content       string          `json:"content"`
	ImageUrl      string          `json:"imageUrl,omitempty"`
	Location      *types.Location `json:"location,omitempty"`
	CorrelationId string          `json:"correlationId,omitempty"`
	DateEmitted   string          `json:"dateEmitted"`
}

// GeoPayload is the tagged JSON carried in the content of a location
// message.
type GeoPayload struct {
	Type     string  `json:"type"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// InboundMessage is a message event as sent by any known broker version.
// Several fields are aliases of one another; resolution order lives in
// normalize.go.
type InboundMessage struct {
	Id            looseString     `json:"id"`
	Pseudo        looseString     `json:"pseudo"`
	Username      looseString     `json:"username"`
	Sender        looseString     `json:"sender"`
	SenderName    looseString     `json:"senderName"`
	UserId        looseString     `json:"userId"`
	SenderId      looseString     `json:"senderId"`
	Content       looseString     `json:"content"`
	Message       looseString     `json:"message"`
	Text          looseString     `json:"text"`
	ImageUrl      looseString     `json:"imageUrl"`
	ImageData     looseString     `json:"image_data"`
	Image         looseString     `json:"image"`
	Location      json.RawMessage `json:"location"`
	DateEmitted   json.RawMessage `json:"dateEmitted"`
	DateEmis      json.RawMessage `json:"dateEmis"`
	Timestamp     json.RawMessage `json:"timestamp"`
	CorrelationId looseString     `json:"correlationId"`
	LocalId       looseString     `json:"localId"`
}

type RoomJoined struct {
	Clients      json.RawMessage `json:"clients"`
	Participants json.RawMessage `json:"participants"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// looseString accepts any JSON scalar; objects and arrays keep their raw
// JSON text.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		*s = looseString(b)
	}
	return nil
}

// parseTimestamp reads epoch milliseconds from a JSON number, a numeric
// string or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	if raw[0] != '"' {
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f <= 0 {
			return 0, false
		}
		return int64(f), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return 0, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return ms, true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

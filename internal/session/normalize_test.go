package session

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/npezzotti/gochat-client/internal/testutil"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizeJSON(t *testing.T, raw string) types.Message {
	t.Helper()
	var in InboundMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	n := NewNormalizer(testutil.TestLogger(t), func() time.Time { return time.UnixMilli(42_000) })
	return n.Normalize("general", &in)
}

func TestNormalize_Aliases(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		expected types.Message
	}{
		{
			name: "canonical fields",
			raw:  `{"id":"m1","pseudo":"Alice","userId":"u1","content":"hi","dateEmitted":1000}`,
			expected: types.Message{Id: "m1", RoomId: "general", SenderId: "u1", SenderName: "Alice",
				Content: "hi", TimestampMs: 1000},
		},
		{
			name: "legacy fields",
			raw:  `{"id":7,"username":"Bob","senderId":"u2","message":"yo","dateEmis":"2024-01-02T03:04:05.000Z"}`,
			expected: types.Message{Id: "7", RoomId: "general", SenderId: "u2", SenderName: "Bob",
				Content: "yo", TimestampMs: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()},
		},
		{
			name: "sender and text",
			raw:  `{"id":"m3","sender":"Carol","text":"hey","timestamp":"1500"}`,
			expected: types.Message{Id: "m3", RoomId: "general", SenderName: "Carol",
				Content: "hey", TimestampMs: 1500},
		},
		{
			name: "senderName with image alias",
			raw:  `{"id":"m4","senderName":"Dan","content":"look","image_data":"data:image/png;base64,AAAA","timestamp":2000}`,
			expected: types.Message{Id: "m4", RoomId: "general", SenderName: "Dan",
				Content: "look", TimestampMs: 2000, ImageData: "data:image/png;base64,AAAA"},
		},
		{
			name: "missing sender and timestamp",
			raw:  `{"id":"m5","content":"anon"}`,
			expected: types.Message{Id: "m5", RoomId: "general", SenderName: UnknownSender,
				Content: "anon", TimestampMs: 42_000},
		},
		{
			name: "unparseable timestamp falls back",
			raw:  `{"id":"m6","pseudo":"Eve","content":"x","dateEmitted":"yesterday","timestamp":3000}`,
			expected: types.Message{Id: "m6", RoomId: "general", SenderName: "Eve",
				Content: "x", TimestampMs: 3000},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalizeJSON(t, tc.raw))
		})
	}
}

func TestNormalize_GeneratesId(t *testing.T) {
	msg := normalizeJSON(t, `{"pseudo":"Alice","content":"hi"}`)
	assert.NotEmpty(t, msg.Id, "expected an id to be generated")
}

func TestNormalize_Location(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		content  string
		expected *types.Location
	}{
		{
			name:     "explicit location object",
			raw:      `{"pseudo":"A","content":"whatever","location":{"lat":48.85,"lng":2.35}}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 48.85, Lng: 2.35},
		},
		{
			name:     "explicit location string",
			raw:      `{"pseudo":"A","content":"x","location":"{\"lat\":1.5,\"lng\":-2}"}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 1.5, Lng: -2},
		},
		{
			name:     "geo json content",
			raw:      `{"pseudo":"A","content":"{\"type\":\"geo\",\"lat\":10,\"lng\":20,\"accuracy\":0}"}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 10, Lng: 20},
		},
		{
			name:     "tagged json content",
			raw:      `{"pseudo":"A","content":"{\"type\":\"LOCATION\",\"lat\":-33.9,\"lng\":151.2}"}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: -33.9, Lng: 151.2},
		},
		{
			name:     "content as raw object",
			raw:      `{"pseudo":"A","content":{"type":"geo","lat":1,"lng":2}}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 1, Lng: 2},
		},
		{
			name:     "legacy prefix",
			raw:      `{"pseudo":"A","content":"LOCATION:{\"lat\":5,\"lng\":6}"}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 5, Lng: 6},
		},
		{
			name:    "legacy prefix malformed",
			raw:     `{"pseudo":"A","content":"LOCATION:{not json"}`,
			content: "LOCATION:{not json",
		},
		{
			name:    "non numeric coordinates",
			raw:     `{"pseudo":"A","content":"{\"type\":\"geo\",\"lat\":\"north\",\"lng\":2}"}`,
			content: `{"type":"geo","lat":"north","lng":2}`,
		},
		{
			name:    "missing coordinate",
			raw:     `{"pseudo":"A","content":"{\"type\":\"geo\",\"lat\":1}"}`,
			content: `{"type":"geo","lat":1}`,
		},
		{
			name:    "untagged json content",
			raw:     `{"pseudo":"A","content":"{\"lat\":1,\"lng\":2}"}`,
			content: `{"lat":1,"lng":2}`,
		},
		{
			name:     "bad location field falls back to content",
			raw:      `{"pseudo":"A","location":"garbage","content":"{\"type\":\"geo\",\"lat\":3,\"lng\":4}"}`,
			content:  LocationPlaceholder,
			expected: &types.Location{Lat: 3, Lng: 4},
		},
		{
			name:    "null location field",
			raw:     `{"pseudo":"A","location":null,"content":"plain"}`,
			content: "plain",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := normalizeJSON(t, tc.raw)
			assert.Equal(t, tc.content, msg.Content)
			assert.Equal(t, tc.expected, msg.Location)
		})
	}
}

func TestNormalize_TruncatedLocationContentLogged(t *testing.T) {
	var buf bytes.Buffer
	n := NewNormalizer(zerolog.New(&buf).Level(zerolog.DebugLevel), time.Now)

	var in InboundMessage
	require.NoError(t, json.Unmarshal([]byte(`{"pseudo":"A","content":"{\"type\":\"geo\",\"lat\":1"}`), &in))
	msg := n.Normalize("general", &in)

	assert.Equal(t, `{"type":"geo","lat":1`, msg.Content)
	assert.Nil(t, msg.Location)
	assert.Contains(t, buf.String(), "content is not a location payload")
}

func TestNormalize_DataURIContent(t *testing.T) {
	msg := normalizeJSON(t, `{"pseudo":"A","content":"data:image/jpeg;base64,/9j/"}`)
	assert.Equal(t, PhotoPlaceholder, msg.Content)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", msg.ImageData)

	msg = normalizeJSON(t, `{"pseudo":"A","content":"caption","imageUrl":"https://img/x.png"}`)
	assert.Equal(t, "caption", msg.Content, "expected explicit image to leave content alone")
	assert.Equal(t, "https://img/x.png", msg.ImageData)
}

func Test_parseTimestamp(t *testing.T) {
	tcases := []struct {
		raw      string
		expected int64
		ok       bool
	}{
		{raw: `1700000000000`, expected: 1700000000000, ok: true},
		{raw: `1700000000000.7`, expected: 1700000000000, ok: true},
		{raw: `"1700000000000"`, expected: 1700000000000, ok: true},
		{raw: `"2023-11-14T22:13:20Z"`, expected: 1700000000000, ok: true},
		{raw: `"2023-11-14T22:13:20.500+00:00"`, expected: 1700000000500, ok: true},
		{raw: `"soon"`},
		{raw: `""`},
		{raw: `null`},
		{raw: `0`},
		{raw: `-5`},
		{raw: ``},
	}

	for _, tc := range tcases {
		ms, ok := parseTimestamp(json.RawMessage(tc.raw))
		assert.Equal(t, tc.ok, ok, "unexpected ok for %q", tc.raw)
		assert.Equal(t, tc.expected, ms, "unexpected value for %q", tc.raw)
	}
}

func Test_looseString(t *testing.T) {
	var v struct {
		A looseString `json:"a"`
		B looseString `json:"b"`
		C looseString `json:"c"`
		D looseString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":12,"c":null,"d":{"k":true}}`), &v))
	assert.Equal(t, looseString("x"), v.A)
	assert.Equal(t, looseString("12"), v.B)
	assert.Equal(t, looseString(""), v.C)
	assert.Equal(t, looseString(`{"k":true}`), v.D)
}

func Test_formatTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-05-06T06:08:09.123Z", formatTimestamp(ts))

	ms, ok := parseTimestamp(json.RawMessage(`"` + formatTimestamp(ts) + `"`))
	assert.True(t, ok)
	assert.Equal(t, ts.UnixMilli(), ms)
}

func Test_canonicalEvent(t *testing.T) {
	assert.Equal(t, EventMessage, canonicalEvent("chat-msg"))
	assert.Equal(t, EventRoomJoined, canonicalEvent("chat-joined-room"))
	assert.Equal(t, EventRoomJoined, canonicalEvent("chat-disconnected"))
	assert.Equal(t, "typing", canonicalEvent("typing"))
}

// Package api is a client for the broker's room registry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 10 * time.Second
	UserAgent      = "gochat-client/1.0"
)

type Client struct {
	baseURL string
	hc      *http.Client
	log     zerolog.Logger
}

// NewClient returns a client for the API rooted at baseURL. A nil hc uses
// a client with a default timeout.
func NewClient(baseURL string, l zerolog.Logger, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
		log:     l.With().Str("component", "api_client").Logger(),
	}
}

// RoomFromKey derives a room from a broker registry key. The key is the
// room's id everywhere; the display name is its decoded form.
func RoomFromKey(key string) types.Room {
	name, err := url.PathUnescape(key)
	if err != nil || name == "" {
		name = key
	}
	return types.Room{Id: key, Name: name}
}

type listRoomsResponse struct {
	Data map[string]json.RawMessage `json:"data"`
}

// ListRooms fetches the rooms currently known to the broker, sorted by
// id.
func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rooms", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newApiError(resp, nil)
	}

	var body listRoomsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	keys := make([]string, 0, len(body.Data))
	for k := range body.Data {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rooms := make([]types.Room, 0, len(keys))
	for _, k := range keys {
		rooms = append(rooms, RoomFromKey(k))
	}
	c.log.Debug().Int("count", len(rooms)).Msg("fetched rooms")
	return rooms, nil
}

type createRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom registers a room with the broker. Any failure response,
// such as a name collision, is reported as ErrRoomCreate.
func (c *Client) CreateRoom(ctx context.Context, name string) (types.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, ErrEmptyRoomName
	}

	body, err := json.Marshal(&createRoomRequest{Name: name})
	if err != nil {
		return types.Room{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/rooms", body)
	if err != nil {
		return types.Room{}, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newApiError(resp, ErrRoomCreate)
		c.log.Warn().Int("status", apiErr.StatusCode).Str("room", name).Msg(apiErr.Message)
		return types.Room{}, apiErr
	}

	return types.Room{Id: name, Name: name}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Package storage caches the user profile, the room list, per-room message
// history and the photo gallery in a database.Store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/gochat-client/internal/database"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
)

const (
	KeyUser           = "pwa_user"
	KeyRooms          = "pwa_rooms"
	KeyMessagesPrefix = "pwa_messages_"
	KeyPhotos         = "pwa_photos"
)

// DefaultRooms is returned by GetRooms while nothing has been cached.
var DefaultRooms = []types.Room{
	{Id: "general", Name: "General Chat"},
	{Id: "tech", Name: "Tech Talk"},
	{Id: "random", Name: "Random"},
}

func messagesKey(roomId string) string {
	return KeyMessagesPrefix + roomId
}

type Cache struct {
	store        database.Store
	log          zerolog.Logger
	messageLimit int
}

func NewCache(store database.Store, l zerolog.Logger, messageLimit int) *Cache {
	return &Cache{
		store:        store,
		log:          l.With().Str("component", "storage").Logger(),
		messageLimit: messageLimit,
	}
}

// getJSON decodes key into v. found is false when the key is absent.
func (c *Cache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}

	return true, nil
}

// setJSON writes v under key. Failures are logged and dropped: the cache is
// best effort and must never block the session.
func (c *Cache) setJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("encode cache entry")
		return
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		if errors.Is(err, database.ErrQuotaExceeded) {
			c.log.Warn().Str("key", key).Int("bytes", len(raw)).Msg("storage quota exceeded, write dropped")
			return
		}
		c.log.Warn().Err(err).Str("key", key).Msg("write cache entry")
	}
}

func (c *Cache) GetUser(ctx context.Context) (*types.User, error) {
	var u types.User
	found, err := c.getJSON(ctx, KeyUser, &u)
	if err != nil || !found {
		return nil, err
	}

	return &u, nil
}

func (c *Cache) SaveUser(ctx context.Context, u types.User) {
	c.setJSON(ctx, KeyUser, u)
}

func (c *Cache) GetRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	found, err := c.getJSON(ctx, KeyRooms, &rooms)
	if err != nil {
		return nil, err
	}
	if !found {
		return append([]types.Room(nil), DefaultRooms...), nil
	}

	return rooms, nil
}

// GetRoom returns the cached room with id, or false.
func (c *Cache) GetRoom(ctx context.Context, id string) (types.Room, bool, error) {
	rooms, err := c.GetRooms(ctx)
	if err != nil {
		return types.Room{}, false, err
	}

	for _, r := range rooms {
		if r.Id == id {
			return r, true, nil
		}
	}

	return types.Room{}, false, nil
}

// SaveRoom inserts room or replaces the cached room with the same id.
func (c *Cache) SaveRoom(ctx context.Context, room types.Room) error {
	rooms, err := c.GetRooms(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range rooms {
		if rooms[i].Id == room.Id {
			rooms[i] = room
			replaced = true
			break
		}
	}
	if !replaced {
		rooms = append(rooms, room)
	}

	c.setJSON(ctx, KeyRooms, rooms)
	return nil
}

// MergeRooms adds fetched rooms to the cache, keeping the cached preview
// and activity fields of rooms already known.
func (c *Cache) MergeRooms(ctx context.Context, fetched []types.Room) ([]types.Room, error) {
	rooms, err := c.GetRooms(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(rooms))
	for i, r := range rooms {
		index[r.Id] = i
	}

	for _, f := range fetched {
		if i, ok := index[f.Id]; ok {
			rooms[i].Name = f.Name
			if rooms[i].LastActivity == 0 {
				rooms[i].LastActivity = f.LastActivity
			}
			continue
		}
		index[f.Id] = len(rooms)
		rooms = append(rooms, f)
	}

	c.setJSON(ctx, KeyRooms, rooms)
	return rooms, nil
}

// RemoveRoom drops the room from the local list only.
func (c *Cache) RemoveRoom(ctx context.Context, id string) error {
	rooms, err := c.GetRooms(ctx)
	if err != nil {
		return err
	}

	kept := rooms[:0]
	for _, r := range rooms {
		if r.Id != id {
			kept = append(kept, r)
		}
	}

	c.setJSON(ctx, KeyRooms, kept)
	return nil
}

func (c *Cache) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	var msgs []types.Message
	if _, err := c.getJSON(ctx, messagesKey(roomId), &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// SaveMessage appends msg to its room history, trimming the oldest entries
// beyond the message limit, and refreshes the room preview.
func (c *Cache) SaveMessage(ctx context.Context, msg types.Message) error {
	msgs, err := c.GetMessages(ctx, msg.RoomId)
	if err != nil {
		return err
	}

	msgs = append(msgs, msg)
	if c.messageLimit > 0 && len(msgs) > c.messageLimit {
		msgs = msgs[len(msgs)-c.messageLimit:]
	}
	c.setJSON(ctx, messagesKey(msg.RoomId), msgs)

	room, found, err := c.GetRoom(ctx, msg.RoomId)
	if err != nil {
		return err
	}
	if found {
		room.LastMessagePreview = msg.Content
		room.LastActivity = msg.TimestampMs
		return c.SaveRoom(ctx, room)
	}

	return nil
}

func (c *Cache) GetPhotos(ctx context.Context) ([]types.Photo, error) {
	var photos []types.Photo
	if _, err := c.getJSON(ctx, KeyPhotos, &photos); err != nil {
		return nil, err
	}

	return photos, nil
}

// SavePhoto puts photo at the front of the gallery.
func (c *Cache) SavePhoto(ctx context.Context, photo types.Photo) error {
	photos, err := c.GetPhotos(ctx)
	if err != nil {
		return err
	}

	photos = append([]types.Photo{photo}, photos...)
	c.setJSON(ctx, KeyPhotos, photos)
	return nil
}

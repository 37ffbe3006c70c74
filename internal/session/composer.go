package session

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/rs/zerolog"
)

// PhotoSaver records captured images in the local gallery.
type PhotoSaver interface {
	SavePhoto(ctx context.Context, photo types.Photo) error
}

// Composer builds outbound messages for a session.
type Composer struct {
	s      *Session
	photos PhotoSaver
	log    zerolog.Logger
}

func NewComposer(s *Session, photos PhotoSaver, l zerolog.Logger) *Composer {
	return &Composer{
		s:      s,
		photos: photos,
		log:    l.With().Str("component", "composer").Logger(),
	}
}

func (c *Composer) SendText(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	return c.send(ctx, content, "", nil)
}

// SendImage sends an image given as a data URI or URL. The image is
// kept in the gallery even when the send fails.
func (c *Composer) SendImage(ctx context.Context, image string) error {
	if strings.TrimSpace(image) == "" {
		return ErrEmptyMessage
	}

	if c.photos != nil {
		photo := types.Photo{
			Id:          uuid.NewString(),
			Url:         image,
			TimestampMs: c.s.now().UnixMilli(),
			RoomId:      c.s.room.Id,
		}
		if err := c.photos.SavePhoto(ctx, photo); err != nil {
			c.log.Warn().Err(err).Msg("failed to save photo")
		}
	}

	return c.send(ctx, PhotoPlaceholder, image, nil)
}

func (c *Composer) SendLocation(ctx context.Context, lat, lng float64) error {
	if !finite(lat) || !finite(lng) || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return ErrInvalidLocation
	}

	content, err := json.Marshal(&GeoPayload{Type: geoTag, Lat: lat, Lng: lng})
	if err != nil {
		return err
	}
	return c.send(ctx, string(content), "", &types.Location{Lat: lat, Lng: lng})
}

func (c *Composer) send(ctx context.Context, content, image string, loc *types.Location) error {
	now := c.s.now()
	payload := &SendMessage{
		RoomName:      c.s.room.Name,
		UserId:        c.s.user.Id,
		Pseudo:        c.s.user.DisplayName,
		Content:       content,
		ImageUrl:      image,
		Location:      loc,
		CorrelationId: uuid.NewString(),
		DateEmitted:   formatTimestamp(now),
	}

	local := types.Message{
		Id:          payload.CorrelationId,
		RoomId:      c.s.room.Id,
		SenderId:    c.s.user.Id,
		SenderName:  c.s.user.DisplayName,
		Content:     content,
		TimestampMs: now.UnixMilli(),
		ImageData:   image,
		Location:    loc,
	}
	if loc != nil {
		local.Content = LocationPlaceholder
	}

	return c.s.submit(ctx, payload, local)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/teris-io/shortid"
)

var ErrEmptyDisplayName = errors.New("display name cannot be empty")

// UpdateProfile creates the current user on first save. Later saves
// change the display name and avatar but keep the id. An empty avatar
// keeps the existing one.
func (c *Cache) UpdateProfile(ctx context.Context, displayName, avatarUri string) (types.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return types.User{}, ErrEmptyDisplayName
	}

	current, err := c.GetUser(ctx)
	if err != nil {
		return types.User{}, err
	}

	var u types.User
	if current != nil {
		u = *current
	} else {
		id, err := shortid.Generate()
		if err != nil {
			return types.User{}, fmt.Errorf("generate user id: %w", err)
		}
		u.Id = id
		c.log.Info().Str("user_id", id).Msg("created profile")
	}

	u.DisplayName = displayName
	if avatarUri != "" {
		u.AvatarUri = avatarUri
	}

	c.SaveUser(ctx, u)
	return u, nil
}

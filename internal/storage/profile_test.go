package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 0)

	_, err := c.UpdateProfile(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyDisplayName)

	created, err := c.UpdateProfile(ctx, " Alice ", "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.NotEmpty(t, created.Id, "expected an id on first save")
	assert.Equal(t, "Alice", created.DisplayName)
	assert.Equal(t, "data:image/png;base64,AAAA", created.AvatarUri)

	updated, err := c.UpdateProfile(ctx, "Alice B", "")
	require.NoError(t, err)
	assert.Equal(t, created.Id, updated.Id, "expected the id to survive a rename")
	assert.Equal(t, "Alice B", updated.DisplayName)
	assert.Equal(t, created.AvatarUri, updated.AvatarUri, "expected avatar to be kept")

	stored, err := c.GetUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, updated, *stored)
}

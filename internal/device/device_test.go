package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PNG signature followed by padding
var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, pngData, 0o600))

	uri, err := ReadImage(path, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"), "unexpected uri %q", uri)

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngData, decoded)
}

func TestReadImage_Errors(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("just some text"), 0o600))
	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, pngData, 0o600))

	_, err := ReadImage(text, 0)
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = ReadImage(big, 8)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = ReadImage(filepath.Join(dir, "missing.png"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStaticLocator(t *testing.T) {
	tcases := []struct {
		name    string
		locator *StaticLocator
		want    types.Location
		wantErr error
	}{
		{name: "set", locator: NewStaticLocator(48.85, 2.35, true), want: types.Location{Lat: 48.85, Lng: 2.35}},
		{name: "unset", locator: NewStaticLocator(0, 0, false), wantErr: ErrLocationUnavailable},
		{name: "out of range", locator: NewStaticLocator(120, 0, true), wantErr: ErrLocationUnavailable},
		{name: "nan", locator: NewStaticLocator(math.NaN(), 0, true), wantErr: ErrLocationUnavailable},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := tc.locator.Locate(context.Background())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc)
		})
	}
}

func TestStaticLocator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticLocator(1, 2, true).Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

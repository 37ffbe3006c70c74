// Package device provides the inputs the browser client took from the
// camera, file picker and geolocation APIs.
package device

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// DefaultMaxImageSize is the largest image accepted for sending.
const DefaultMaxImageSize = 5 << 20

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrImageTooLarge = errors.New("image is too large")
)

// ReadImage reads an image file and returns it as a data URI. A limit of
// zero uses DefaultMaxImageSize.
func ReadImage(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return EncodeImage(f, limit)
}

// EncodeImage reads at most limit bytes from r and encodes them as a data
// URI, sniffing the content type.
func EncodeImage(r io.Reader, limit int64) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxImageSize
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return "", ErrImageTooLarge
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

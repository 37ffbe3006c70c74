package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrRoomCreate    = errors.New("failed to create room, it may already exist")
	ErrEmptyRoomName = errors.New("room name is empty")
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4096

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

// newApiError builds an error from a non-2xx response, preferring the
// message the broker put in the body.
func newApiError(resp *http.Response, err error) *ApiError {
	apiErr := &ApiError{
		StatusCode: resp.StatusCode,
		Message:    lower(http.StatusText(resp.StatusCode)),
		Err:        err,
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil || len(body) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return apiErr
}

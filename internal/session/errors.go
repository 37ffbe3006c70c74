package session

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrInvalidLocation = errors.New("invalid location")
	ErrNotConnected    = errors.New("not connected to room")
	ErrSessionClosed   = errors.New("session closed")
	ErrNoContext       = errors.New("no room or user selected")
	ErrAlreadyStarted  = errors.New("session already started")
)

// BrokerError is an error event pushed by the broker.
type BrokerError struct {
	Message string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error: %s", e.Message)
}

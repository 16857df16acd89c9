package notify

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("broadcaster closed")

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Event is the payload delivered to subscribers. Its JSON form is the wire
// shape used by the SSE and WebSocket transports.
type Event struct {
	Kind    Kind      `json:"type"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Subscription is a live registration. C is closed after Unsubscribe or Close.
type Subscription struct {
	ID string
	C  <-chan Event
}

type Config struct {
	// Buffer is the per-subscriber queue length (default 16).
	Buffer int
}

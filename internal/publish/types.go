package publish

import (
	"context"
	"strings"
	"time"

	"autopost/internal/post"
)

// Outcome is the result of a single publication attempt.
type Outcome struct {
	OK     bool
	Reason string
}

func Success() Outcome { return Outcome{OK: true} }

func Failure(reason string) Outcome {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return Outcome{Reason: reason}
}

// Gateway publishes one post.
//
// A returned error is a transport problem (the platform could not be
// reached); callers treat it the same as a Failure outcome. The platform
// rejecting a post is reported as Failure with a nil error.
type Gateway interface {
	Publish(ctx context.Context, p post.Post) (Outcome, error)
}

// Func adapts a plain function to Gateway.
type Func func(ctx context.Context, p post.Post) (Outcome, error)

func (f Func) Publish(ctx context.Context, p post.Post) (Outcome, error) { return f(ctx, p) }

// Config selects and configures the gateway.
//
// Driver values:
//   - "dryrun": log and report success (default)
//   - "http": POST JSON to Endpoint
type Config struct {
	Driver     string
	Endpoint   string
	Token      string
	Timeout    time.Duration
	RatePerSec float64
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autopost/internal/notify"
	"autopost/internal/post"
)

var ErrTickInProgress = errors.New("scheduler tick already in progress")

// RecurringMode decides what happens to a recurring post after it fires.
type RecurringMode string

const (
	// RecurringRepeat keeps successful recurring posts pending and stamps
	// lastPublishedAt so they fire again on the next matching minute.
	RecurringRepeat RecurringMode = "repeat"
	// RecurringOnce retires recurring posts after their first attempt.
	RecurringOnce RecurringMode = "once"
)

func (m RecurringMode) Valid() bool {
	switch m {
	case "", RecurringRepeat, RecurringOnce:
		return true
	default:
		return false
	}
}

// Config controls the publication loop.
type Config struct {
	Enabled        bool
	Interval       time.Duration // default 60s
	Timezone       string        // IANA TZ; empty means Local
	PublishWorkers int           // concurrent attempts per tick; <=1 means sequential
	PublishTimeout time.Duration // per attempt; 0 disables
	Recurring      RecurringMode
}

// Store is the snapshot persistence the loop reads and rewrites.
type Store interface {
	LoadAll(ctx context.Context) ([]post.Post, error)
	SaveAll(ctx context.Context, posts []post.Post) error
}

// Notifier receives outcome events.
type Notifier interface {
	Broadcast(e notify.Event) int
}

// PersistenceError reports a snapshot write that failed after retrying.
type PersistenceError struct {
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist posts failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Report summarizes one tick.
type Report struct {
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration_ns"`
	Scanned        int           `json:"scanned"`
	Pending        int           `json:"pending"`
	Due            int           `json:"due"`
	Published      int           `json:"published"`
	Failed         int           `json:"failed"`
	ScheduleErrors int           `json:"schedule_errors"`
	Skipped        int           `json:"skipped"` // due but not attempted because the tick was cancelled
	Saved          bool          `json:"saved"`
}

type Snapshot struct {
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	Timezone  string        `json:"timezone"`
	Interval  time.Duration `json:"interval_ns"`
	Recurring RecurringMode `json:"recurring"`
	Workers   int           `json:"workers"`
	Next      time.Time     `json:"next,omitempty"`
	Prev      time.Time     `json:"prev,omitempty"`

	LastTick  Report `json:"last_tick"`
	LastError string `json:"last_error,omitempty"`
}

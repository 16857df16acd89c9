package scheduler

import (
	"errors"
	"fmt"
	"time"

	"autopost/internal/notify"
	"autopost/internal/post"
	"autopost/internal/publish"
)

// Record applies a publication outcome to p and builds the matching event.
//
// With keepPending set, a successful attempt leaves the post pending and
// stamps LastPublishedAt instead of retiring it. Failures always retire.
func Record(p post.Post, out publish.Outcome, now time.Time, keepPending bool) (post.Post, notify.Event) {
	if out.OK {
		if keepPending {
			at := now
			p.LastPublishedAt = &at
		} else {
			p.Status = post.StatusPosted
		}
		return p, notify.Event{
			Kind:    notify.KindSuccess,
			Title:   "Publish succeeded",
			Message: fmt.Sprintf("%q was published successfully.", p.Title),
			Time:    now,
		}
	}

	reason := out.Reason
	if reason == "" {
		reason = "unknown error"
	}
	p.Status = post.StatusFailed
	return p, notify.Event{
		Kind:    notify.KindError,
		Title:   "Publish failed",
		Message: fmt.Sprintf("%q failed to publish: %s", p.Title, reason),
		Time:    now,
	}
}

// RecordScheduleError retires a post whose scheduledTime cannot be parsed.
// The message names the parse problem when err is a *post.ParseError.
func RecordScheduleError(p post.Post, err error, now time.Time) (post.Post, notify.Event) {
	p.Status = post.StatusFailed
	msg := fmt.Sprintf("%q has an invalid schedule and cannot be published.", p.Title)
	var pe *post.ParseError
	if errors.As(err, &pe) {
		msg = fmt.Sprintf("%q has an invalid schedule (%s) and cannot be published.", p.Title, pe.Detail())
	}
	return p, notify.Event{
		Kind:    notify.KindError,
		Title:   "Schedule error",
		Message: msg,
		Time:    now,
	}
}

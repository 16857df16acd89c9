package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"autopost/internal/post"
	"autopost/internal/publish"
	logx "autopost/pkg/logx"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const persistTimeout = 30 * time.Second

type attemptResult uint8

const (
	attemptSkipped attemptResult = iota
	attemptPublished
	attemptFailed
)

type dueItem struct {
	idx  int
	desc post.Descriptor
}

// Tick runs one full scan/publish/persist cycle.
//
// Per-post problems (bad schedule, failed publish) are recorded on the post
// and never fail the tick. The returned error is ErrTickInProgress, a load
// error, or a *PersistenceError.
func (s *Service) Tick(ctx context.Context) (rep Report, err error) {
	if !s.tickMu.TryLock() {
		ticksTotal.WithLabelValues("skipped").Inc()
		s.log.Warn("tick skipped; previous tick still running")
		return Report{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	cfg, loc := s.current()
	now := s.now().In(loc)
	rep.Started = now
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		tickDuration.Observe(rep.Duration.Seconds())
		s.remember(rep, err)
	}()

	s.log.Debug("tick start", logx.Time("now", now))

	posts, lerr := s.store.LoadAll(ctx)
	if lerr != nil {
		ticksTotal.WithLabelValues("load_error").Inc()
		s.log.Error("load posts failed", logx.Err(lerr))
		return rep, fmt.Errorf("load posts: %w", lerr)
	}
	rep.Scanned = len(posts)

	dirty := false
	var due []dueItem
	for i := range posts {
		p := posts[i]
		if !p.IsPending() {
			continue
		}
		rep.Pending++

		desc, perr := post.ParseSchedule(p.ScheduledTime)
		if perr != nil {
			updated, ev := RecordScheduleError(p, perr, now)
			posts[i] = updated
			dirty = true
			rep.ScheduleErrors++
			outcomesTotal.WithLabelValues("schedule_error").Inc()
			s.log.Warn("invalid schedule", logx.String("post", p.ID), logx.String("raw", p.ScheduledTime), logx.Err(perr))
			s.notifier.Broadcast(ev)
			continue
		}
		if !post.IsDue(desc, now) {
			continue
		}
		if desc.Recurring() && p.LastPublishedAt != nil && post.SameMinute(*p.LastPublishedAt, now, loc) {
			continue
		}
		due = append(due, dueItem{idx: i, desc: desc})
	}
	rep.Due = len(due)

	if len(due) > 0 {
		results := s.publishDue(ctx, cfg, now, posts, due)
		for _, r := range results {
			switch r {
			case attemptPublished:
				rep.Published++
				dirty = true
			case attemptFailed:
				rep.Failed++
				dirty = true
			default:
				rep.Skipped++
			}
		}
	}

	if dirty {
		if perr := s.persist(ctx, posts); perr != nil {
			ticksTotal.WithLabelValues("persist_error").Inc()
			persistErrorsTotal.Inc()
			s.log.Error("persist posts failed", logx.Err(perr))
			return rep, perr
		}
		rep.Saved = true
	}

	ticksTotal.WithLabelValues("ok").Inc()
	if rep.Due > 0 || rep.ScheduleErrors > 0 {
		s.log.Info("tick done",
			logx.Int("pending", rep.Pending),
			logx.Int("due", rep.Due),
			logx.Int("published", rep.Published),
			logx.Int("failed", rep.Failed),
			logx.Int("schedule_errors", rep.ScheduleErrors),
		)
	} else {
		s.log.Debug("tick done", logx.Int("scanned", rep.Scanned), logx.Int("pending", rep.Pending))
	}
	return rep, nil
}

// publishDue attempts every due post and waits for all of them. Each attempt
// writes only its own slot in posts and results.
func (s *Service) publishDue(ctx context.Context, cfg Config, now time.Time, posts []post.Post, due []dueItem) []attemptResult {
	results := make([]attemptResult, len(due))
	workers := cfg.PublishWorkers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for k, it := range due {
		k, it := k, it
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p := posts[it.idx]
			s.log.Info("publishing", logx.String("post", p.ID), logx.String("title", p.Title), logx.String("schedule", it.desc.String()))

			out := s.attempt(ctx, cfg.PublishTimeout, p)
			keep := it.desc.Recurring() && cfg.Recurring != RecurringOnce
			updated, ev := Record(p, out, now, keep)
			posts[it.idx] = updated

			if out.OK {
				results[k] = attemptPublished
				outcomesTotal.WithLabelValues("posted").Inc()
				fields := []logx.Field{logx.String("post", p.ID), logx.String("status", string(updated.Status))}
				if keep {
					if next := nextRun(it.desc, now); !next.IsZero() {
						fields = append(fields, logx.Time("next", next))
					}
				}
				s.log.Info("published", fields...)
			} else {
				results[k] = attemptFailed
				outcomesTotal.WithLabelValues("failed").Inc()
				s.log.Warn("publish failed", logx.String("post", p.ID), logx.String("reason", out.Reason))
			}
			s.notifier.Broadcast(ev)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// attempt calls the gateway once. Transport errors and panics become a
// Failure outcome.
func (s *Service) attempt(ctx context.Context, timeout time.Duration, p post.Post) (out publish.Outcome) {
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("publish panic", logx.String("post", p.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			out = publish.Failure(fmt.Sprintf("panic: %v", r))
		}
		publishDuration.Observe(time.Since(start).Seconds())
	}()

	o, err := s.gateway.Publish(actx, p)
	if err != nil {
		return publish.Failure(err.Error())
	}
	if !o.OK {
		return publish.Failure(o.Reason)
	}
	return o
}

// persist writes the snapshot, retrying once. The write is detached from ctx
// cancellation so a shutdown mid-tick still records the outcomes already
// broadcast.
func (s *Service) persist(ctx context.Context, posts []post.Post) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	const attempts = 2
	var err error
	for i := 1; i <= attempts; i++ {
		if err = s.store.SaveAll(wctx, posts); err == nil {
			return nil
		}
		if i < attempts {
			s.log.Warn("persist posts failed; retrying", logx.Int("attempt", i), logx.Err(err))
		}
	}
	return &PersistenceError{Attempts: attempts, Err: err}
}

// nextRun previews the following fire time of a recurring descriptor.
func nextRun(d post.Descriptor, now time.Time) time.Time {
	spec := d.CronSpec()
	if spec == "" {
		return time.Time{}
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

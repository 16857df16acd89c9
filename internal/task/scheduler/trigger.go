package scheduler

import (
	"time"

	logx "autopost/pkg/logx"

	"github.com/robfig/cron/v3"
)

// alignedSchedule fires on wall-clock multiples of every in t's zone (for a
// one-minute interval: second zero of every minute), so minute-exact recurring
// posts are evaluated once per minute regardless of when the process started.
type alignedSchedule struct {
	every time.Duration
}

func (a alignedSchedule) Next(t time.Time) time.Time {
	// Truncate works on absolute time; shift by the zone offset so half-hour
	// zones align to their own wall clock.
	_, off := t.Zone()
	shift := time.Duration(off) * time.Second
	return t.Add(shift).Truncate(a.every).Add(a.every).Add(-shift)
}

// tickSchedule aligns intervals that evenly divide an hour and falls back to
// a plain cron.Every otherwise.
func tickSchedule(every time.Duration) cron.Schedule {
	if every >= time.Second && every%time.Second == 0 && time.Hour%every == 0 {
		return alignedSchedule{every: every}
	}
	return cron.Every(every)
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		ticksTotal.WithLabelValues("skipped").Inc()
		l.log.Warn("tick skipped; previous tick still running")
		return
	}
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"autopost/internal/publish"
	"autopost/internal/storage"
	"autopost/internal/task/scheduler"
)

// Validate reports every problem in cfg at once. Watch runs it before a
// reloaded file is committed, so a bad edit never reaches the running service.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := cfg.Scheduler
	if s.Interval.Std() <= 0 {
		bad("scheduler.interval must be > 0")
	}
	if s.PublishWorkers < 0 {
		bad("scheduler.publish_workers must be >= 0")
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("scheduler.timezone: %w", err)
		}
	}
	if !scheduler.RecurringMode(strings.ToLower(strings.TrimSpace(s.Recurring))).Valid() {
		bad("scheduler.recurring must be repeat or once, got %q", s.Recurring)
	}

	st := cfg.Storage
	if !storage.ValidDriver(st.Driver) {
		bad("storage.driver: unknown driver %q", st.Driver)
	} else if strings.EqualFold(strings.TrimSpace(st.Driver), "redis") {
		if strings.TrimSpace(st.Redis.Addr) == "" {
			bad("storage.redis.addr is required for the redis driver")
		}
	} else if strings.TrimSpace(st.Path) == "" {
		bad("storage.path is required for the %s driver", driverOr(st.Driver, "file"))
	}

	p := cfg.Publish
	if !publish.ValidDriver(p.Driver) {
		bad("publish.driver: unknown driver %q", p.Driver)
	} else if strings.EqualFold(strings.TrimSpace(p.Driver), "http") && strings.TrimSpace(p.Endpoint) == "" {
		bad("publish.endpoint is required for the http driver")
	}
	if p.RatePerSec < 0 {
		bad("publish.rate_per_sec must be >= 0")
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		bad("http.addr is required when http is enabled")
	}
	if cfg.HTTP.SubscriberBuffer < 0 {
		bad("http.subscriber_buffer must be >= 0")
	}

	if tg := cfg.Telegram; tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			bad("telegram.token is required when telegram is enabled")
		}
		if tg.ChatID == 0 {
			bad("telegram.chat_id is required when telegram is enabled")
		}
	}
	if cfg.Telegram.RatePerSec < 0 || cfg.Telegram.RetryMax < 0 {
		bad("telegram.rate_per_sec and telegram.retry_max must be >= 0")
	}

	return errors.Join(errs...)
}

func driverOr(d, def string) string {
	if d = strings.TrimSpace(d); d != "" {
		return d
	}
	return def
}

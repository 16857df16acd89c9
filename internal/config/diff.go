package config

import (
	"strings"

	logx "autopost/pkg/logx"
)

// SummarizeConfigChange returns (1) the sections that differ, (2) safe
// attrs for the reload log line (tokens and passwords are reported only as
// set/unset) and (3) the changed sections that only take effect after a
// restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed, restart []string
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		s := newCfg.Scheduler
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", s.Enabled),
			logx.Duration("scheduler.interval", s.Interval.Std()),
			logx.String("scheduler.timezone", strings.TrimSpace(s.Timezone)),
			logx.Int("scheduler.publish_workers", s.PublishWorkers),
			logx.String("scheduler.recurring", s.Recurring),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.metrics", newCfg.HTTP.Metrics),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
		if oldCfg.HTTP.SubscriberBuffer != newCfg.HTTP.SubscriberBuffer {
			restart = append(restart, "http.subscriber_buffer")
		}
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.redis_password_set", newCfg.Storage.Redis.Password != ""),
		)
	}

	if oldCfg.Publish != newCfg.Publish {
		changed = append(changed, "publish")
		restart = append(restart, "publish")
		attrs = append(attrs,
			logx.String("publish.driver", newCfg.Publish.Driver),
			logx.Bool("publish.token_set", strings.TrimSpace(newCfg.Publish.Token) != ""),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	return changed, attrs, restart
}

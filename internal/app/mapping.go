package app

import (
	"strings"

	"autopost/internal/config"
	"autopost/internal/notify"
	"autopost/internal/publish"
	"autopost/internal/storage"
	"autopost/internal/task/scheduler"
	"autopost/internal/transport/httpapi"
	"autopost/internal/transport/telegram"
	logx "autopost/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	s := cfg.Scheduler
	return scheduler.Config{
		Enabled:        s.Enabled,
		Interval:       s.Interval.Std(),
		Timezone:       strings.TrimSpace(s.Timezone),
		PublishWorkers: s.PublishWorkers,
		PublishTimeout: s.PublishTimeout.Std(),
		Recurring:      scheduler.RecurringMode(strings.ToLower(strings.TrimSpace(s.Recurring))),
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	return storage.Config{
		Driver:      strings.TrimSpace(s.Driver),
		Path:        strings.TrimSpace(s.Path),
		BusyTimeout: s.BusyTimeout.Std(),
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(s.Redis.Addr),
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			Key:      strings.TrimSpace(s.Redis.Key),
		},
	}
}

func mapPublishConfig(cfg *config.Config) publish.Config {
	p := cfg.Publish
	return publish.Config{
		Driver:     strings.TrimSpace(p.Driver),
		Endpoint:   strings.TrimSpace(p.Endpoint),
		Token:      strings.TrimSpace(p.Token),
		Timeout:    p.Timeout.Std(),
		RatePerSec: p.RatePerSec,
	}
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	return notify.Config{Buffer: cfg.HTTP.SubscriberBuffer}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Enabled:   h.Enabled,
		Addr:      strings.TrimSpace(h.Addr),
		Keepalive: h.Keepalive.Std(),
		Metrics:   h.Metrics,
		Pprof:     h.Pprof,
	}
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	t := cfg.Telegram
	return telegram.Config{
		Enabled:    t.Enabled,
		Token:      strings.TrimSpace(t.Token),
		ChatID:     t.ChatID,
		ThreadID:   t.ThreadID,
		RatePerSec: t.RatePerSec,
		RetryMax:   t.RetryMax,
	}
}

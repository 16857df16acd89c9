package config

import "time"

// Config is the on-disk shape of the autopost config file.
//
// Fields left out of the file keep the values from Default, so a minimal file
// only needs the sections it changes.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Publish   PublishConfig   `json:"publish"`
	HTTP      HTTPConfig      `json:"http"`
	Telegram  TelegramConfig  `json:"telegram"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the tick loop. Timezone is an IANA name (empty
// means the host zone); Recurring is "repeat" or "once".
type SchedulerConfig struct {
	Enabled        bool     `json:"enabled"`
	Interval       Duration `json:"interval"`
	Timezone       string   `json:"timezone"`
	PublishWorkers int      `json:"publish_workers"`
	PublishTimeout Duration `json:"publish_timeout"`
	Recurring      string   `json:"recurring"`
}

type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path"`
	BusyTimeout Duration    `json:"busy_timeout"`
	Redis       RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

type PublishConfig struct {
	Driver     string   `json:"driver"`
	Endpoint   string   `json:"endpoint"`
	Token      string   `json:"token"`
	Timeout    Duration `json:"timeout"`
	RatePerSec float64  `json:"rate_per_sec"`
}

type HTTPConfig struct {
	Enabled          bool     `json:"enabled"`
	Addr             string   `json:"addr"`
	SubscriberBuffer int      `json:"subscriber_buffer"`
	Keepalive        Duration `json:"keepalive"`
	Metrics          bool     `json:"metrics"`
	Pprof            bool     `json:"pprof"`
}

type TelegramConfig struct {
	Enabled    bool    `json:"enabled"`
	Token      string  `json:"token"`
	ChatID     int64   `json:"chat_id"`
	ThreadID   int     `json:"thread_id"`
	RatePerSec float64 `json:"rate_per_sec"`
	RetryMax   int     `json:"retry_max"`
}

// Default returns the config used for every key the file does not set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFileConfig{Path: "./autopost.log"},
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			Interval:       Duration(time.Minute),
			PublishWorkers: 1,
			PublishTimeout: Duration(30 * time.Second),
			Recurring:      "repeat",
		},
		Storage: StorageConfig{
			Driver:      "file",
			Path:        "./posts.json",
			BusyTimeout: Duration(5 * time.Second),
			Redis:       RedisConfig{Addr: "127.0.0.1:6379", Key: "autopost:posts"},
		},
		Publish: PublishConfig{
			Driver:     "dryrun",
			Timeout:    Duration(15 * time.Second),
			RatePerSec: 5,
		},
		HTTP: HTTPConfig{
			Enabled:          true,
			Addr:             "0.0.0.0:3000",
			SubscriberBuffer: 16,
			Keepalive:        Duration(25 * time.Second),
			Metrics:          true,
		},
		Telegram: TelegramConfig{
			RatePerSec: 1,
			RetryMax:   2,
		},
	}
}

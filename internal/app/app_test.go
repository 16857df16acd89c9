package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autopost/internal/config"
	"autopost/internal/task/scheduler"
)

func writeConfig(t *testing.T, dir string, interval string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{
  "logging": {"level": "debug", "console": false},
  "scheduler": {"interval": %q, "recurring": "once"},
  "storage": {"driver": "file", "path": %q},
  "http": {"enabled": false}
}`, interval, filepath.Join(dir, "posts.json"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppLifecycleAndReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "1m")

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	snap := a.Scheduler().Snapshot()
	if !snap.Running || snap.Interval != time.Minute || snap.Recurring != scheduler.RecurringOnce {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Let the watcher attach before editing the file.
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, dir, "2m")

	deadline := time.Now().Add(5 * time.Second)
	for a.Scheduler().Snapshot().Interval != 2*time.Minute {
		if time.Now().After(deadline) {
			t.Fatalf("interval not reloaded: %+v", a.Scheduler().Snapshot())
		}
		time.Sleep(50 * time.Millisecond)
	}

	st, ok := a.status().(healthStatus)
	if !ok || st.Scheduler.Interval != 2*time.Minute || st.Uptime == "" {
		t.Fatalf("status = %+v", a.status())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Scheduler().Snapshot().Running {
		t.Fatal("scheduler still running after Stop")
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, "0s")
	if _, err := New(path); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := New(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Scheduler.Recurring = " Once "
	cfg.Scheduler.Timezone = " UTC "
	cfg.Scheduler.PublishWorkers = 4

	got := mapSchedulerConfig(cfg)
	want := scheduler.Config{
		Enabled:        true,
		Interval:       time.Minute,
		Timezone:       "UTC",
		PublishWorkers: 4,
		PublishTimeout: 30 * time.Second,
		Recurring:      scheduler.RecurringOnce,
	}
	if got != want {
		t.Fatalf("mapSchedulerConfig = %+v, want %+v", got, want)
	}
}

func TestMapHTTPAndNotifyConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.HTTP.Pprof = true
	cfg.HTTP.SubscriberBuffer = 4

	h := mapHTTPConfig(cfg)
	if !h.Enabled || h.Addr != "0.0.0.0:3000" || h.Keepalive != 25*time.Second || !h.Metrics || !h.Pprof {
		t.Fatalf("mapHTTPConfig = %+v", h)
	}
	if n := mapNotifyConfig(cfg); n.Buffer != 4 {
		t.Fatalf("mapNotifyConfig = %+v", n)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopost/internal/app"
	"autopost/internal/config"
	logx "autopost/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

func main() {
	var (
		cfgPath string
		check   bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.BoolVar(&check, "check", false, "validate the config file and exit")
	flag.Parse()

	// Used until the configured logger exists and after it is closed.
	boot := logx.NewConsole("info").With(logx.String("comp", "main"))

	if check {
		if _, err := config.NewManager(cfgPath).Load(); err != nil {
			fmt.Fprintln(os.Stderr, "config invalid:", err)
			os.Exit(1)
		}
		fmt.Println("config ok")
		return
	}

	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("init failed", logx.Err(err))
		os.Exit(1)
	}

	if err := a.Start(context.Background()); err != nil {
		boot.Error("start failed", logx.Err(err))
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	stopWatchdog := startWatchdog(a.Done())
	defer stopWatchdog()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	stopErr := a.Stop(ctx, reason)

	if err := a.Err(); err != nil {
		boot.Error("fatal error", logx.Err(err))
		os.Exit(1)
	}
	if stopErr != nil {
		boot.Error("stop failed", logx.Err(stopErr))
		os.Exit(1)
	}
}

// startWatchdog pings the systemd watchdog at half its interval when
// WatchdogSec is set on the unit.
func startWatchdog(done <-chan struct{}) func() {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(every / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-done:
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() { close(stop) }
}

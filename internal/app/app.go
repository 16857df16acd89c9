package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopost/internal/config"
	"autopost/internal/notify"
	"autopost/internal/publish"
	"autopost/internal/runtime/supervisor"
	"autopost/internal/storage"
	"autopost/internal/task/scheduler"
	"autopost/internal/transport/httpapi"
	"autopost/internal/transport/telegram"
	logx "autopost/pkg/logx"
)

// App wires the config, storage, publication loop and notification
// transports together and owns their lifecycle.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	hub   *notify.Broadcaster
	sched *scheduler.Service
	http  *httpapi.Service
	tg    *telegram.Forwarder

	startedAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	store, err := storage.Open(mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	gateway, err := publish.Open(mapPublishConfig(cfg), root.With(logx.String("comp", "publish")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("open publish gateway: %w", err)
	}

	hub := notify.New(mapNotifyConfig(cfg), root.With(logx.String("comp", "notify")))
	sched := scheduler.New(mapSchedulerConfig(cfg), store, gateway, hub, root.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: store,
		hub:   hub,
		sched: sched,
	}
	a.http = httpapi.New(mapHTTPConfig(cfg), hub, a.status, root.With(logx.String("comp", "http")))

	if tc := mapTelegramConfig(cfg); tc.Enabled {
		fw, err := telegram.New(tc, root.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.tg = fw
	}

	log.Info("app initialized",
		logx.String("config", cfgPath),
		logx.String("storage", mapStorageConfig(cfg).Driver),
		logx.String("publish", mapPublishConfig(cfg).Driver),
		logx.Bool("telegram", a.tg != nil),
	)
	return a, nil
}

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Scheduler exposes the publication loop, mainly for operational tooling.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

type healthStatus struct {
	Uptime     string              `json:"uptime"`
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
	Supervisor supervisor.Counters `json:"supervisor"`
}

func (a *App) status() any {
	st := healthStatus{Scheduler: a.sched.Snapshot()}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Truncate(time.Second).String()
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Counters()
	}
	return st
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.startedAt = time.Now()
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.sched.Start(runCtx)
	a.http.Start(runCtx)

	if a.tg != nil {
		a.sup.GoRestart("telegram.forward", func(c context.Context) error {
			return a.tg.Run(c, a.hub)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	applied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Bursts of saves collapse into the newest config.
			for drained := false; !drained; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, applied, next)
			applied = next
		}
	}
}

// applyConfig pushes the live-reloadable sections into running components.
// Storage, publish and telegram changes are reported and wait for a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLoggingConfig(next))
	a.sched.Apply(mapSchedulerConfig(next))
	a.http.Reconfigure(ctx, mapHTTPConfig(next))

	if len(restart) > 0 {
		a.log.Warn("config changes require a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one slow component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// The scheduler stops before the run context is cancelled, so a tick in
	// flight finishes its attempts and snapshot write instead of failing them.
	step("scheduler", 35*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.sup.Cancel()
	step("http", 5*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("notify", time.Second, func(context.Context) error { a.hub.Close(); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

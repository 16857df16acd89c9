package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"autopost/internal/publish"
	logx "autopost/pkg/logx"

	"github.com/robfig/cron/v3"
)

const defaultInterval = time.Minute

type Service struct {
	mu sync.Mutex

	log      logx.Logger
	cfg      Config
	loc      *time.Location
	store    Store
	gateway  publish.Gateway
	notifier Notifier
	now      func() time.Time

	c       *cron.Cron
	entryID cron.EntryID
	runCtx  context.Context
	started bool

	// tickMu serializes ticks; Tick uses TryLock so callers never queue.
	tickMu sync.Mutex

	lastMu    sync.Mutex
	lastTick  Report
	lastError string
}

func New(cfg Config, store Store, gateway publish.Gateway, notifier Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:      cfg,
		log:      log,
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		now:      time.Now,
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. Interval, timezone and enabled changes restart the
// trigger; worker, timeout and recurring-mode changes take effect on the next
// tick.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	s.loc = s.loadLocationLocked()

	if !s.started {
		return
	}
	switch {
	case !cfg.Enabled && s.c != nil:
		s.stopCronLocked()
		s.log.Info("scheduler disabled")
	case cfg.Enabled && s.c == nil:
		s.startCronLocked()
	case cfg.Enabled && (old.Interval != cfg.Interval || strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone)):
		s.stopCronLocked()
		s.startCronLocked()
	}
}

// Start begins periodic ticks. ctx is handed to every tick and cancels
// in-flight publish attempts when done.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx = ctx
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; not starting trigger")
		return
	}
	s.startCronLocked()
}

// Stop halts the trigger and waits for a running tick to finish or ctx to
// expire.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	s.started = false
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) startCronLocked() {
	loc := s.loadLocationLocked()
	s.loc = loc
	every := s.cfg.Interval
	if every <= 0 {
		every = defaultInterval
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	s.entryID = c.Schedule(tickSchedule(every), cron.FuncJob(s.runTick))
	c.Start()
	s.c = c

	s.log.Info("service started",
		logx.String("tz", loc.String()),
		logx.Duration("interval", every),
		logx.Time("next", c.Entry(s.entryID).Next),
	)
}

// stopCronLocked stops triggering without waiting; a tick already running
// finishes on its own and tickMu keeps it from overlapping the next one.
func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.c = nil
	s.entryID = 0
}

func (s *Service) runTick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	_, _ = s.Tick(ctx)
}

func (s *Service) current() (Config, *time.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	return s.cfg, loc
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

func (s *Service) remember(rep Report, err error) {
	s.lastMu.Lock()
	s.lastTick = rep
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.lastMu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	loc := s.loc
	c := s.c
	eid := s.entryID
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:   cfg.Enabled,
		Running:   c != nil,
		Interval:  cfg.Interval,
		Recurring: cfg.Recurring,
		Workers:   cfg.PublishWorkers,
	}
	if snap.Interval <= 0 {
		snap.Interval = defaultInterval
	}
	if snap.Recurring == "" {
		snap.Recurring = RecurringRepeat
	}
	if loc != nil {
		snap.Timezone = loc.String()
	}
	if c != nil && eid != 0 {
		e := c.Entry(eid)
		snap.Next = e.Next
		snap.Prev = e.Prev
	}

	s.lastMu.Lock()
	snap.LastTick = s.lastTick
	snap.LastError = s.lastError
	s.lastMu.Unlock()
	return snap
}

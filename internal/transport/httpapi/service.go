package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"autopost/internal/notify"
	rtsup "autopost/internal/runtime/supervisor"
	logx "autopost/pkg/logx"
)

const (
	defaultAddr      = "0.0.0.0:3000"
	defaultKeepalive = 25 * time.Second
	shutdownTimeout  = 5 * time.Second
)

type Config struct {
	Enabled   bool
	Addr      string
	Keepalive time.Duration // SSE comment / WebSocket ping period
	Metrics   bool
	Pprof     bool
}

// Hub is the subscriber registry the transports attach to.
type Hub interface {
	Subscribe() (notify.Subscription, error)
	Unsubscribe(id string)
	Count() int
}

// StatusFunc returns extra state embedded in the health response.
type StatusFunc func() any

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	hub    Hub
	status StatusFunc

	sup *rtsup.Supervisor
}

func New(cfg Config, hub Hub, status StatusFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, hub: hub, status: status, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start runs the server under a restart loop. It is a no-op when disabled
// or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Stop shuts the server down. Open streams are closed through their request
// contexts.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("http stopped with error", logx.Err(err))
	}
	s.log.Info("http stopped")
}

// Reconfigure applies cfg and starts, stops or restarts the server if needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(cur),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so long-lived streams unblock Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
		}
	}()

	s.log.Info("http listening", logx.String("addr", ln.Addr().String()), logx.Bool("metrics", cur.Metrics))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

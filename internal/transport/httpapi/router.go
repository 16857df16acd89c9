package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	logx "autopost/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the router for the current config.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	return s.handler(cur)
}

func (s *Service) handler(cfg Config) http.Handler {
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/notifications", s.handleSSE(keepalive))
		r.Get("/notifications/ws", s.handleWS(keepalive))
	})
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Time        string `json:"time"`
	Subscribers int    `json:"subscribers"`
	Scheduler   any    `json:"scheduler,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Time:        time.Now().UTC().Format(time.RFC3339),
		Subscribers: s.hub.Count(),
	}
	if s.status != nil {
		resp.Scheduler = s.status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs /api requests once they complete.
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("dur", time.Since(start)),
				logx.String("req_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

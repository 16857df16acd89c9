package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"autopost/internal/post"
	logx "autopost/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxReasonBody      = 200
)

type httpPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	CafeName string `json:"cafeName"`
}

// HTTPGateway POSTs posts as JSON to an external endpoint.
// Any 2xx response is a success; other statuses become a Failure carrying the
// status code and a short excerpt of the response body.
type HTTPGateway struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
}

func NewHTTP(cfg Config, log logx.Logger) (*HTTPGateway, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("publish.endpoint is required for http driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &HTTPGateway{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		client:   &http.Client{Timeout: timeout},
		limiter:  lim,
		log:      log,
	}, nil
}

func (g *HTTPGateway) Publish(ctx context.Context, p post.Post) (Outcome, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Outcome{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := json.Marshal(httpPayload{ID: p.ID, Title: p.Title, Content: p.Content, CafeName: p.CafeName})
	if err != nil {
		return Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxReasonBody))

	g.log.Debug("publish request done",
		logx.String("post", p.ID),
		logx.Int("status", resp.StatusCode),
		logx.Duration("dur", time.Since(start)),
	)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Success(), nil
	}
	return Failure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, shorten(string(excerpt), maxReasonBody))), nil
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

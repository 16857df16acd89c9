// Package telegram forwards publication outcomes to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopost/internal/notify"
	logx "autopost/pkg/logx"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	defaultRatePerSec = 1.0
	retryBase         = 500 * time.Millisecond
	retryMaxDelay     = 10 * time.Second
	sendTimeout       = 10 * time.Second
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	ThreadID   int     // forum topic; 0 for none
	RatePerSec float64 // default 1
	RetryMax   int     // extra attempts after a failed send
}

// Sender is the part of *tele.Bot the forwarder uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Source hands out notification subscriptions.
type Source interface {
	Subscribe() (notify.Subscription, error)
	Unsubscribe(id string)
}

// Forwarder is a notification subscriber that relays success and error
// events as Telegram messages. Info events are not forwarded.
type Forwarder struct {
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger
}

// New creates a bot client for cfg. The bot is never started: the forwarder
// only sends.
func New(cfg Config, log logx.Logger) (*Forwarder, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, b, log)
}

func NewWithSender(cfg Config, sender Sender, log logx.Logger) (*Forwarder, error) {
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if sender == nil {
		return nil, errors.New("telegram sender is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	burst := max(1, int(cfg.RatePerSec))
	return &Forwarder{cfg: cfg, sender: sender, limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst), log: log}, nil
}

// Run subscribes to src and forwards events until ctx is done or src closes
// the subscription.
func (f *Forwarder) Run(ctx context.Context, src Source) error {
	sub, err := src.Subscribe()
	if err != nil {
		return err
	}
	defer src.Unsubscribe(sub.ID)
	f.log.Info("forwarding notifications", logx.Int64("chat_id", f.cfg.ChatID), logx.Int("thread_id", f.cfg.ThreadID))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			if e.Kind == notify.KindInfo {
				continue
			}
			if err := f.sendWithRetry(ctx, e); err != nil && ctx.Err() == nil {
				f.log.Warn("telegram send failed", logx.String("type", string(e.Kind)), logx.Err(err))
			}
		}
	}
}

// sendWithRetry sends one event, honouring the rate limit and retrying
// failed sends with exponential backoff. A flood-wait reply from Telegram
// replaces the backoff with the server's delay.
func (f *Forwarder) sendWithRetry(ctx context.Context, e notify.Event) error {
	text := formatEvent(e)
	opt := &tele.SendOptions{ThreadID: f.cfg.ThreadID, DisableWebPagePreview: true}
	attempts := 1 + f.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		// telebot has no per-call context; the timeout only bounds how long we wait.
		errCh := make(chan error, 1)
		go func() {
			_, err := f.sender.Send(&tele.Chat{ID: f.cfg.ChatID}, text, opt)
			errCh <- err
		}()
		select {
		case lastErr = <-errCh:
		case <-time.After(sendTimeout):
			lastErr = errors.New("telegram send timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := retryDelay(attempt)
		if wait := floodWait(lastErr); wait > 0 {
			delay = wait
		}
		f.log.Debug("telegram send failed; retrying",
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(lastErr),
		)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func retryDelay(attempt int) time.Duration {
	d := retryBase << (attempt - 1)
	if d <= 0 || d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func floodWait(err error) time.Duration {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second
	}
	var pfe *tele.FloodError
	if errors.As(err, &pfe) && pfe != nil {
		return time.Duration(pfe.RetryAfter) * time.Second
	}
	return 0
}

func formatEvent(e notify.Event) string {
	mark := "ℹ️"
	switch e.Kind {
	case notify.KindSuccess:
		mark = "✅"
	case notify.KindError:
		mark = "❌"
	}
	if e.Title == "" {
		return fmt.Sprintf("%s %s", mark, e.Message)
	}
	return fmt.Sprintf("%s %s\n%s", mark, e.Title, e.Message)
}

package notify

import (
	"sync"
	"time"

	logx "autopost/pkg/logx"

	"github.com/google/uuid"
)

const defaultBuffer = 16

type subscriber struct {
	ch chan Event
}

// Broadcaster is a concurrency-safe subscriber registry.
type Broadcaster struct {
	log logx.Logger

	mu     sync.RWMutex
	buffer int
	subs   map[string]*subscriber
	closed bool
}

func New(cfg Config, log logx.Logger) *Broadcaster {
	if log.IsZero() {
		log = logx.Nop()
	}
	buf := cfg.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	return &Broadcaster{log: log, buffer: buf, subs: map[string]*subscriber{}}
}

// Subscribe registers a new subscriber and queues a "connected" event for it.
func (b *Broadcaster) Subscribe() (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Subscription{}, ErrClosed
	}

	id := uuid.NewString()
	s := &subscriber{ch: make(chan Event, b.buffer)}
	s.ch <- Event{Kind: KindInfo, Message: "connected", Time: time.Now()}
	b.subs[id] = s

	subscribersGauge.Set(float64(len(b.subs)))
	b.log.Debug("subscriber added", logx.String("id", id), logx.Int("count", len(b.subs)))
	return Subscription{ID: id, C: s.ch}, nil
}

// Unsubscribe removes id. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.ch)

	subscribersGauge.Set(float64(len(b.subs)))
	b.log.Debug("subscriber removed", logx.String("id", id), logx.Int("count", len(b.subs)))
}

// Broadcast delivers e to every current subscriber and returns how many
// accepted it.
func (b *Broadcaster) Broadcast(e Event) int {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	eventsTotal.WithLabelValues(string(e.Kind)).Inc()

	// Channels are only closed under the write lock, so sends under the read
	// lock never hit a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for id, s := range b.subs {
		select {
		case s.ch <- e:
			delivered++
		default:
			droppedTotal.Inc()
			b.log.Warn("subscriber queue full; event dropped", logx.String("id", id), logx.String("type", string(e.Kind)))
		}
	}
	return delivered
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscriber and rejects further subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	subscribersGauge.Set(0)
}

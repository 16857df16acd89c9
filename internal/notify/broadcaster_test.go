package notify

import (
	"errors"
	"sync"
	"testing"

	logx "autopost/pkg/logx"
)

func recv(t *testing.T, s Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C:
		if !ok {
			t.Fatalf("subscription %s closed", s.ID)
		}
		return e
	default:
		t.Fatalf("subscription %s has no pending event", s.ID)
	}
	return Event{}
}

func TestSubscribeSendsConnectedOnlyToNewSubscriber(t *testing.T) {
	t.Parallel()
	b := New(Config{}, logx.Nop())

	first, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if e := recv(t, first); e.Kind != KindInfo || e.Message != "connected" {
		t.Fatalf("first event = %+v", e)
	}

	second, _ := b.Subscribe()
	if e := recv(t, second); e.Message != "connected" {
		t.Fatalf("second event = %+v", e)
	}
	if len(first.C) != 0 {
		t.Fatal("existing subscriber received another subscriber's connected event")
	}
	if first.ID == second.ID {
		t.Fatal("subscription ids must be unique")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New(Config{}, logx.Nop())
	a, _ := b.Subscribe()
	c, _ := b.Subscribe()
	recv(t, a)
	recv(t, c)

	n := b.Broadcast(Event{Kind: KindSuccess, Title: "Publish succeeded", Message: `"Latte" was published successfully.`})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	for _, s := range []Subscription{a, c} {
		if e := recv(t, s); e.Kind != KindSuccess || e.Time.IsZero() {
			t.Fatalf("event = %+v", e)
		}
	}
}

func TestUnsubscribedReceivesNothing(t *testing.T) {
	t.Parallel()
	b := New(Config{}, logx.Nop())
	stay, _ := b.Subscribe()
	gone, _ := b.Subscribe()
	recv(t, stay)
	recv(t, gone)

	b.Unsubscribe(gone.ID)
	b.Unsubscribe(gone.ID) // no-op
	b.Unsubscribe("never-existed")

	if n := b.Broadcast(Event{Kind: KindError, Message: "boom"}); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if e := recv(t, stay); e.Message != "boom" {
		t.Fatalf("event = %+v", e)
	}
	if _, ok := <-gone.C; ok {
		t.Fatal("unsubscribed channel should be closed and empty")
	}
	if b.Count() != 1 {
		t.Fatalf("Count = %d", b.Count())
	}
}

func TestFullSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	b := New(Config{Buffer: 1}, logx.Nop())
	slow, _ := b.Subscribe() // buffer already holds "connected"
	fast, _ := b.Subscribe()
	recv(t, fast)

	if n := b.Broadcast(Event{Kind: KindInfo, Message: "x"}); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if e := recv(t, fast); e.Message != "x" {
		t.Fatalf("fast got %+v", e)
	}
	if e := recv(t, slow); e.Message != "connected" {
		t.Fatalf("slow got %+v", e)
	}
}

func TestCloseRejectsSubscribe(t *testing.T) {
	t.Parallel()
	b := New(Config{}, logx.Nop())
	s, _ := b.Subscribe()
	b.Close()
	b.Close()
	if _, err := b.Subscribe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close = %v", err)
	}
	<-s.C // connected
	if _, ok := <-s.C; ok {
		t.Fatal("channel should be closed")
	}
	b.Unsubscribe(s.ID)
}

func TestConcurrentSubscribeBroadcast(t *testing.T) {
	t.Parallel()
	b := New(Config{Buffer: 4}, logx.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s, err := b.Subscribe()
				if err != nil {
					return
				}
				b.Unsubscribe(s.ID)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Broadcast(Event{Kind: KindInfo, Message: "tick"})
			}
		}()
	}
	wg.Wait()
	if b.Count() != 0 {
		t.Fatalf("Count = %d, want 0", b.Count())
	}
}

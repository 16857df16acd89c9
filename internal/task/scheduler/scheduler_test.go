package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"autopost/internal/notify"
	"autopost/internal/post"
	"autopost/internal/publish"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

type memStore struct {
	mu        sync.Mutex
	posts     []post.Post
	loads     int
	saves     int
	failSaves int // number of upcoming SaveAll calls that fail
}

func (m *memStore) LoadAll(ctx context.Context) ([]post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	out := make([]post.Post, len(m.posts))
	copy(out, m.posts)
	return out, nil
}

func (m *memStore) SaveAll(ctx context.Context, posts []post.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves > 0 {
		m.failSaves--
		return errors.New("disk full")
	}
	m.saves++
	m.posts = append([]post.Post(nil), posts...)
	return nil
}

func (m *memStore) snapshot() []post.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]post.Post(nil), m.posts...)
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Broadcast(e notify.Event) int {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return 1
}

func (r *recorder) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type countingGateway struct {
	calls atomic.Int32
	fn    func(ctx context.Context, p post.Post) (publish.Outcome, error)
}

func (g *countingGateway) Publish(ctx context.Context, p post.Post) (publish.Outcome, error) {
	g.calls.Add(1)
	if g.fn == nil {
		return publish.Success(), nil
	}
	return g.fn(ctx, p)
}

func pending(id, title, when string) post.Post {
	return post.Post{ID: id, Title: title, ScheduledTime: when, Status: post.StatusPending, CreatedAt: "2023-12-01T00:00:00Z"}
}

func newTestService(t *testing.T, cfg Config, now time.Time, posts ...post.Post) (*Service, *memStore, *countingGateway, *recorder) {
	t.Helper()
	st := &memStore{posts: posts}
	gw := &countingGateway{}
	rec := &recorder{}
	s := New(cfg, st, gw, rec, logx.Nop())
	s.now = func() time.Time { return now }
	return s, st, gw, rec
}

func TestTickPublishesPastOneTimePost(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, st, gw, rec := newTestService(t, Config{Timezone: "UTC"}, now, pending("1", "New menu", "2020-01-01T00:00"))

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Due != 1 || rep.Published != 1 || !rep.Saved {
		t.Fatalf("report = %+v", rep)
	}
	if gw.calls.Load() != 1 {
		t.Fatalf("gateway calls = %d", gw.calls.Load())
	}
	if got := st.snapshot()[0].Status; got != post.StatusPosted {
		t.Fatalf("status = %q, want posted", got)
	}
	ev := rec.all()
	if len(ev) != 1 || ev[0].Kind != notify.KindSuccess || ev[0].Title != "Publish succeeded" || !strings.Contains(ev[0].Message, "New menu") {
		t.Fatalf("events = %+v", ev)
	}
}

func TestTickInvalidScheduleFailsWithoutPublishing(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, st, gw, rec := newTestService(t, Config{}, now, pending("1", "Broken", "not-json-and-not-date"))

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.ScheduleErrors != 1 || rep.Due != 0 || !rep.Saved {
		t.Fatalf("report = %+v", rep)
	}
	if gw.calls.Load() != 0 {
		t.Fatal("gateway called for an unparseable schedule")
	}
	if got := st.snapshot()[0].Status; got != post.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	ev := rec.all()
	if len(ev) != 1 || ev[0].Kind != notify.KindError || ev[0].Title != "Schedule error" || !strings.Contains(ev[0].Message, "Broken") {
		t.Fatalf("events = %+v", ev)
	}
}

func TestTickWeeklyTuesday(t *testing.T) {
	t.Parallel()
	// 2024-01-02 is a Tuesday.
	weekly := `{"type":"weekly","time":"09:30","days":[2]}`
	tests := []struct {
		name    string
		now     time.Time
		wantDue int
	}{
		{name: "at 09:30", now: time.Date(2024, 1, 2, 9, 30, 20, 0, time.UTC), wantDue: 1},
		{name: "at 09:29", now: time.Date(2024, 1, 2, 9, 29, 59, 0, time.UTC), wantDue: 0},
		{name: "wednesday", now: time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC), wantDue: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, st, gw, _ := newTestService(t, Config{Timezone: "UTC"}, tt.now, pending("1", "Weekly special", weekly))
			rep, err := s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if rep.Due != tt.wantDue || int(gw.calls.Load()) != tt.wantDue {
				t.Fatalf("due = %d calls = %d, want %d", rep.Due, gw.calls.Load(), tt.wantDue)
			}
			if tt.wantDue == 0 && st.saves != 0 {
				t.Fatal("snapshot written although nothing changed")
			}
		})
	}
}

func TestTickFailedPublish(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		fn         func(ctx context.Context, p post.Post) (publish.Outcome, error)
		wantReason string
	}{
		{
			name:       "rejected",
			fn:         func(context.Context, post.Post) (publish.Outcome, error) { return publish.Failure("quota exceeded"), nil },
			wantReason: "quota exceeded",
		},
		{
			name:       "transport error",
			fn:         func(context.Context, post.Post) (publish.Outcome, error) { return publish.Outcome{}, errors.New("connection refused") },
			wantReason: "connection refused",
		},
		{
			name:       "panic",
			fn:         func(context.Context, post.Post) (publish.Outcome, error) { panic("gateway exploded") },
			wantReason: "panic: gateway exploded",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, st, gw, rec := newTestService(t, Config{}, now, pending("1", "Latte art", "2024-01-01T00:00:00Z"))
			gw.fn = tt.fn

			rep, err := s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if rep.Failed != 1 || rep.Published != 0 {
				t.Fatalf("report = %+v", rep)
			}
			if got := st.snapshot()[0].Status; got != post.StatusFailed {
				t.Fatalf("status = %q, want failed", got)
			}
			ev := rec.all()
			if len(ev) != 1 || ev[0].Kind != notify.KindError || ev[0].Title != "Publish failed" {
				t.Fatalf("events = %+v", ev)
			}
			if !strings.Contains(ev[0].Message, "Latte art") || !strings.Contains(ev[0].Message, tt.wantReason) {
				t.Fatalf("message %q lacks title or reason %q", ev[0].Message, tt.wantReason)
			}
		})
	}
}

func TestTickLeavesNonPendingPostsAlone(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []post.Post{
		{ID: "d", Title: "draft", ScheduledTime: "2020-01-01T00:00", Status: post.StatusDraft},
		{ID: "p", Title: "posted", ScheduledTime: "garbage", Status: post.StatusPosted},
		{ID: "f", Title: "failed", ScheduledTime: "2020-01-01T00:00", Status: post.StatusFailed},
	}
	s, st, gw, rec := newTestService(t, Config{}, now, posts...)

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Scanned != 3 || rep.Pending != 0 || rep.Saved {
		t.Fatalf("report = %+v", rep)
	}
	if gw.calls.Load() != 0 || len(rec.all()) != 0 || st.saves != 0 {
		t.Fatal("non-pending posts were touched")
	}
	for i, p := range st.snapshot() {
		if p.Status != posts[i].Status {
			t.Fatalf("post %s status changed to %q", p.ID, p.Status)
		}
	}
}

func TestTickRewritesOnlyThePublishedRecord(t *testing.T) {
	t.Parallel()
	stored := `[
  {
    "id": "1",
    "title": "Due",
    "scheduledTime": "2020-01-01T00:00",
    "status": "pending",
    "createdAt": "2023-12-01T00:00:00.000Z"
  },
  {
    "id": "2",
    "title": "Draft",
    "status": "draft",
    "createdAt": ""
  },
  {
    "id": "3",
    "title": "<i>done</i>",
    "scheduledTime": "garbage",
    "status": "posted",
    "createdAt": "2023-12-01T00:00:00.000Z",
    "menuId": 7
  }
]`
	path := filepath.Join(t.TempDir(), "posts.json")
	if err := os.WriteFile(path, []byte(stored), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	gw := &countingGateway{}
	s := New(Config{Timezone: "UTC"}, st, gw, &recorder{}, logx.Nop())
	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Scanned != 3 || rep.Published != 1 || !rep.Saved {
		t.Fatalf("report = %+v", rep)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Replace(stored, `"status": "pending"`, `"status": "posted"`, 1)
	if string(b) != want {
		t.Fatalf("snapshot:\n%s\nwant:\n%s", b, want)
	}
}

func TestTickOnePostFailureDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, st, gw, rec := newTestService(t, Config{}, now,
		pending("1", "Bad", "2024-13-45"),
		pending("2", "Good", "2023-06-01T10:00"),
		pending("3", "Future", "2030-01-01T00:00"),
	)
	gw.fn = func(ctx context.Context, p post.Post) (publish.Outcome, error) { return publish.Success(), nil }

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.ScheduleErrors != 1 || rep.Published != 1 || rep.Due != 1 {
		t.Fatalf("report = %+v", rep)
	}
	got := st.snapshot()
	want := []post.Status{post.StatusFailed, post.StatusPosted, post.StatusPending}
	for i := range want {
		if got[i].Status != want[i] {
			t.Fatalf("post %s status = %q, want %q", got[i].ID, got[i].Status, want[i])
		}
	}
	if len(rec.all()) != 2 {
		t.Fatalf("events = %+v", rec.all())
	}
}

func TestTickRecurringRepeatMode(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 9, 30, 5, 0, time.UTC)
	s, st, gw, rec := newTestService(t, Config{Timezone: "UTC"}, at, pending("1", "Daily brew", `{"type":"daily","time":"09:30"}`))

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	p := st.snapshot()[0]
	if p.Status != post.StatusPending || p.LastPublishedAt == nil || !p.LastPublishedAt.Equal(at) {
		t.Fatalf("after first fire: %+v", p)
	}

	// Same minute again: must not double-fire.
	s.now = func() time.Time { return at.Add(40 * time.Second) }
	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Due != 0 || gw.calls.Load() != 1 {
		t.Fatalf("double fire: report=%+v calls=%d", rep, gw.calls.Load())
	}

	// Next day, same wall-clock minute.
	s.now = func() time.Time { return at.AddDate(0, 0, 1) }
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if gw.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", gw.calls.Load())
	}
	if len(rec.all()) != 2 {
		t.Fatalf("events = %d, want 2", len(rec.all()))
	}
}

func TestTickRecurringOnceMode(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	s, st, _, _ := newTestService(t, Config{Timezone: "UTC", Recurring: RecurringOnce}, at, pending("1", "Daily brew", `{"type":"daily","time":"09:30"}`))

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if p := st.snapshot()[0]; p.Status != post.StatusPosted || p.LastPublishedAt != nil {
		t.Fatalf("post = %+v", p)
	}
}

func TestTickRecurringFailureRetires(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	s, st, gw, _ := newTestService(t, Config{Timezone: "UTC"}, at, pending("1", "Daily brew", `{"type":"daily","time":"09:30"}`))
	gw.fn = func(context.Context, post.Post) (publish.Outcome, error) { return publish.Failure("nope"), nil }

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if p := st.snapshot()[0]; p.Status != post.StatusFailed {
		t.Fatalf("status = %q, want failed", p.Status)
	}
}

func TestTickPersistRetry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("recovers on retry", func(t *testing.T) {
		t.Parallel()
		s, st, _, _ := newTestService(t, Config{}, now, pending("1", "A", "2020-01-01T00:00"))
		st.failSaves = 1
		rep, err := s.Tick(context.Background())
		if err != nil || !rep.Saved {
			t.Fatalf("Tick = %+v, %v", rep, err)
		}
		if st.snapshot()[0].Status != post.StatusPosted {
			t.Fatal("retry did not persist the outcome")
		}
	})

	t.Run("gives up after second failure", func(t *testing.T) {
		t.Parallel()
		s, st, _, rec := newTestService(t, Config{}, now, pending("1", "A", "2020-01-01T00:00"))
		st.failSaves = 2
		rep, err := s.Tick(context.Background())
		var pe *PersistenceError
		if !errors.As(err, &pe) || pe.Attempts != 2 {
			t.Fatalf("err = %v, want PersistenceError", err)
		}
		if rep.Saved || rep.Published != 1 {
			t.Fatalf("report = %+v", rep)
		}
		if len(rec.all()) != 1 {
			t.Fatal("outcome event should be broadcast before persistence")
		}
		if st.snapshot()[0].Status != post.StatusPending {
			t.Fatal("store should keep its pre-tick state")
		}
		if snap := s.Snapshot(); !strings.Contains(snap.LastError, "disk full") {
			t.Fatalf("LastError = %q", snap.LastError)
		}
	})
}

func TestTickRejectsOverlap(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _, gw, _ := newTestService(t, Config{}, now, pending("1", "Slow", "2020-01-01T00:00"))

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.fn = func(ctx context.Context, p post.Post) (publish.Outcome, error) {
		close(entered)
		<-release
		return publish.Success(), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Tick(context.Background())
		done <- err
	}()
	<-entered

	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("overlapping Tick = %v, want ErrTickInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Tick: %v", err)
	}
}

func TestTickConcurrentPublishWaitsForAll(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, st, gw, rec := newTestService(t, Config{PublishWorkers: 3}, now,
		pending("1", "A", "2020-01-01T00:00"),
		pending("2", "B", "2020-01-01T00:00"),
		pending("3", "C", "2020-01-01T00:00"),
	)

	var inFlight sync.WaitGroup
	inFlight.Add(3)
	gw.fn = func(ctx context.Context, p post.Post) (publish.Outcome, error) {
		inFlight.Done()
		inFlight.Wait() // all three must run at once
		if p.ID == "2" {
			return publish.Failure("bad"), nil
		}
		return publish.Success(), nil
	}

	rep, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Published != 2 || rep.Failed != 1 || !rep.Saved || st.saves != 1 {
		t.Fatalf("report = %+v saves = %d", rep, st.saves)
	}
	got := st.snapshot()
	if got[0].Status != post.StatusPosted || got[1].Status != post.StatusFailed || got[2].Status != post.StatusPosted {
		t.Fatalf("statuses = %q %q %q", got[0].Status, got[1].Status, got[2].Status)
	}
	if len(rec.all()) != 3 {
		t.Fatalf("events = %d", len(rec.all()))
	}
}

func TestTickCancelledLeavesPostsPending(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, st, gw, _ := newTestService(t, Config{}, now, pending("1", "A", "2020-01-01T00:00"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Skipped != 1 || gw.calls.Load() != 0 || rep.Saved {
		t.Fatalf("report = %+v calls = %d", rep, gw.calls.Load())
	}
	if st.snapshot()[0].Status != post.StatusPending {
		t.Fatal("cancelled attempt changed status")
	}
}

func TestTickUsesSchedulerTimezoneForFloatingTimes(t *testing.T) {
	t.Parallel()
	// 09:30 in Asia/Tokyo is 00:30 UTC.
	now := time.Date(2024, 3, 15, 0, 29, 0, 0, time.UTC)
	s, _, gw, _ := newTestService(t, Config{Timezone: "Asia/Tokyo"}, now, pending("1", "A", "2024-03-15T09:30"))
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if gw.calls.Load() != 0 {
		t.Fatal("published a minute early")
	}
	s.now = func() time.Time { return now.Add(time.Minute) }
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if gw.calls.Load() != 1 {
		t.Fatal("not published at 09:30 Tokyo")
	}
}

func TestStartTriggersTicks(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	rec := &recorder{}
	s := New(Config{Enabled: true, Interval: time.Second}, st, publish.Func(func(context.Context, post.Post) (publish.Outcome, error) {
		return publish.Success(), nil
	}), rec, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	if snap := s.Snapshot(); !snap.Running || snap.Next.IsZero() {
		t.Fatalf("snapshot after Start = %+v", snap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st.mu.Lock()
		loads := st.loads
		st.mu.Unlock()
		if loads > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no tick within 5s")
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.Apply(Config{Enabled: false, Interval: time.Second})
	if s.Snapshot().Running {
		t.Fatal("still running after disabling")
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
}

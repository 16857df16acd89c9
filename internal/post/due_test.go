package post

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) Descriptor {
	t.Helper()
	d, err := ParseSchedule(raw)
	if err != nil {
		t.Fatalf("ParseSchedule(%q) error: %v", raw, err)
	}
	return d
}

func TestIsDueOnceBoundary(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("KST", 9*3600)
	d := mustParse(t, "2024-03-15T09:30")
	at := time.Date(2024, 3, 15, 9, 30, 0, 0, loc)

	if IsDue(d, at.Add(-time.Second)) {
		t.Fatal("due one second before the timestamp")
	}
	if !IsDue(d, at) {
		t.Fatal("not due at the exact timestamp")
	}
	if !IsDue(d, at.Add(time.Hour)) {
		t.Fatal("not due after the timestamp")
	}
}

func TestIsDueOnceFloatingUsesNowLocation(t *testing.T) {
	t.Parallel()
	d := mustParse(t, "2024-03-15T09:30")
	// 09:30 in UTC+9 is 00:30 UTC; at 01:00 UTC+9 it is not yet due.
	kst := time.FixedZone("KST", 9*3600)
	if IsDue(d, time.Date(2024, 3, 15, 1, 0, 0, 0, kst)) {
		t.Fatal("floating timestamp compared in the wrong location")
	}
	if got := d.Instant(kst); !got.Equal(time.Date(2024, 3, 15, 0, 30, 0, 0, time.UTC)) {
		t.Fatalf("Instant = %v", got)
	}
}

func TestIsDueOnceZoned(t *testing.T) {
	t.Parallel()
	d := mustParse(t, "2020-01-01T00:00:00Z")
	if !IsDue(d, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("past zoned timestamp should be due")
	}
	if IsDue(d, time.Date(2019, 12, 31, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("future zoned timestamp should not be due")
	}
}

func TestIsDueDailyMinuteExact(t *testing.T) {
	t.Parallel()
	d := mustParse(t, `{"type":"daily","time":"09:30"}`)
	day := func(h, m, s int) time.Time { return time.Date(2024, 1, 2, h, m, s, 0, time.UTC) }

	if !IsDue(d, day(9, 30, 0)) || !IsDue(d, day(9, 30, 59)) {
		t.Fatal("daily schedule should match the whole minute")
	}
	if IsDue(d, day(9, 29, 59)) {
		t.Fatal("daily schedule due at 09:29")
	}
	if IsDue(d, day(9, 31, 0)) {
		t.Fatal("daily schedule due at 09:31")
	}
	if IsDue(d, day(21, 30, 0)) {
		t.Fatal("daily schedule due at 21:30")
	}
}

func TestIsDueWeekly(t *testing.T) {
	t.Parallel()
	d := mustParse(t, `{"type":"weekly","time":"09:30","days":[1,3]}`)
	// 2024-01-01 is a Monday.
	mon := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	wed := mon.AddDate(0, 0, 2)

	if !IsDue(d, mon) {
		t.Fatal("weekly schedule not due on Monday 09:30")
	}
	if !IsDue(d, wed) {
		t.Fatal("weekly schedule not due on Wednesday 09:30")
	}
	if IsDue(d, tue) {
		t.Fatal("weekly schedule due on Tuesday 09:30")
	}
	if IsDue(d, mon.Add(time.Minute)) {
		t.Fatal("weekly schedule due on Monday 09:31")
	}
}

func TestIsDueWeeklyTuesdayScenario(t *testing.T) {
	t.Parallel()
	d := mustParse(t, `{"type":"weekly","time":"09:30","days":[2]}`)
	tue := time.Date(2024, 1, 2, 9, 30, 0, 0, time.Local)
	if !IsDue(d, tue) {
		t.Fatal("not due on Tuesday 09:30")
	}
	if IsDue(d, tue.Add(-time.Minute)) {
		t.Fatal("due on Tuesday 09:29")
	}
}

func TestSameMinute(t *testing.T) {
	t.Parallel()
	a := time.Date(2024, 1, 2, 9, 30, 1, 0, time.UTC)
	if !SameMinute(a, a.Add(30*time.Second), time.UTC) {
		t.Fatal("expected same minute")
	}
	if SameMinute(a, a.Add(time.Minute), time.UTC) {
		t.Fatal("expected different minutes")
	}
	if SameMinute(a, a.AddDate(0, 0, 1), time.UTC) {
		t.Fatal("expected different days")
	}
}

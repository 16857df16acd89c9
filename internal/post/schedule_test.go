package post

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     Kind
		floating bool
		hour     int
		minute   int
		days     []time.Weekday
	}{
		{name: "minute precision", raw: "2024-03-15T09:30", kind: KindOnce, floating: true},
		{name: "seconds", raw: "2024-03-15T09:30:15", kind: KindOnce, floating: true},
		{name: "space separated", raw: "2024-03-15 09:30", kind: KindOnce, floating: true},
		{name: "utc", raw: "2024-03-15T09:30:00.000Z", kind: KindOnce},
		{name: "offset", raw: "2024-03-15T09:30+09:00", kind: KindOnce},
		{name: "daily", raw: `{"type":"daily","time":"09:30"}`, kind: KindDaily, hour: 9, minute: 30},
		{name: "leading whitespace", raw: "  \n{\"type\":\"daily\",\"time\":\"00:00\"}", kind: KindDaily},
		{name: "weekly", raw: `{"type":"weekly","time":"23:59","days":[5,1,3,1]}`, kind: KindWeekly, hour: 23, minute: 59,
			days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{name: "daily ignores days", raw: `{"type":"daily","time":"07:05","days":[1]}`, kind: KindDaily, hour: 7, minute: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Floating != tt.floating {
				t.Fatalf("Floating = %v, want %v", got.Floating, tt.floating)
			}
			if got.Recurring() != (tt.kind != KindOnce) {
				t.Fatalf("Recurring = %v for kind %v", got.Recurring(), tt.kind)
			}
			if tt.kind == KindOnce {
				return
			}
			if got.Hour != tt.hour || got.Minute != tt.minute {
				t.Fatalf("time = %02d:%02d, want %02d:%02d", got.Hour, got.Minute, tt.hour, tt.minute)
			}
			if tt.kind == KindWeekly && !reflect.DeepEqual(got.Days, tt.days) {
				t.Fatalf("Days = %v, want %v", got.Days, tt.days)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"   ",
		"not-json-and-not-date",
		"2024-13-01T09:30",
		"{not json",
		`{"type":"daily"}`,
		`{"time":"09:30"}`,
		`{"type":"monthly","time":"09:30"}`,
		`{"type":"daily","time":"9:30"}`,
		`{"type":"daily","time":"24:00"}`,
		`{"type":"daily","time":"09:60"}`,
		`{"type":"daily","time":930}`,
		`{"type":"weekly","time":"09:30"}`,
		`{"type":"weekly","time":"09:30","days":[]}`,
		`{"type":"weekly","time":"09:30","days":["1"]}`,
		`{"type":"weekly","time":"09:30","days":[1.5]}`,
		`{"type":"weekly","time":"09:30","days":[7]}`,
		`{"type":"weekly","time":"09:30","days":[-1]}`,
		`{"type":"weekly","time":"09:30","days":[null]}`,
	}
	for _, raw := range bad {
		_, err := ParseSchedule(raw)
		if err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
		if !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("ParseSchedule(%q): error %v does not match ErrInvalidSchedule", raw, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Raw != raw {
			t.Fatalf("ParseSchedule(%q): expected *ParseError carrying raw, got %#v", raw, err)
		}
	}
}

func TestParseScheduleNeverMisclassifies(t *testing.T) {
	t.Parallel()
	once, err := ParseSchedule("2024-03-15T09:30")
	if err != nil || once.Kind != KindOnce {
		t.Fatalf("one-time parsed as %v (err=%v)", once.Kind, err)
	}
	rec, err := ParseSchedule(`{"type":"weekly","time":"09:30","days":[1,3,5]}`)
	if err != nil || !rec.Recurring() {
		t.Fatalf("recurring parsed as %v (err=%v)", rec.Kind, err)
	}
	// A brace anywhere but first is not a recurrence.
	if _, err := ParseSchedule(`x{"type":"daily","time":"09:30"}`); err == nil {
		t.Fatal("expected error for text with a non-leading brace")
	}
}

func TestDescriptorCronSpec(t *testing.T) {
	t.Parallel()
	d, err := ParseSchedule(`{"type":"weekly","time":"09:05","days":[3,1]}`)
	if err != nil {
		t.Fatalf("ParseSchedule error: %v", err)
	}
	if got, want := d.CronSpec(), "5 9 * * 1,3"; got != want {
		t.Fatalf("CronSpec = %q, want %q", got, want)
	}
	daily, _ := ParseSchedule(`{"type":"daily","time":"18:00"}`)
	if got, want := daily.CronSpec(), "0 18 * * *"; got != want {
		t.Fatalf("CronSpec = %q, want %q", got, want)
	}
	once, _ := ParseSchedule("2024-03-15T09:30")
	if once.CronSpec() != "" {
		t.Fatalf("expected empty cron spec for one-time schedule")
	}
}

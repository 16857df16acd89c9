package post

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind describes the normalized kind of a schedule descriptor.
type Kind int

const (
	KindOnce Kind = iota
	KindDaily
	KindWeekly
)

func (k Kind) String() string {
	switch k {
	case KindOnce:
		return "once"
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	default:
		return "unknown"
	}
}

// ErrInvalidSchedule is the sentinel wrapped by every ParseError.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ParseError reports a malformed scheduledTime value.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schedule %q: %s: %v", e.Raw, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid schedule %q: %s", e.Raw, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Detail is the reason without the raw value, for user-facing messages.
func (e *ParseError) Detail() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ParseError) Is(target error) bool { return target == ErrInvalidSchedule }

// Descriptor is a parsed scheduledTime value.
//
// For KindOnce, At holds the absolute instant. When the encoding carried no
// zone or offset, Floating is true and At's wall clock is re-interpreted in
// the evaluation location (see IsDue).
//
// For KindDaily and KindWeekly, Hour and Minute hold the wall-clock time of
// day; Days (weekly only) is sorted and deduplicated.
type Descriptor struct {
	Kind     Kind
	At       time.Time
	Floating bool

	Hour   int
	Minute int
	Days   []time.Weekday
}

// Recurring reports whether the descriptor repeats.
func (d Descriptor) Recurring() bool { return d.Kind == KindDaily || d.Kind == KindWeekly }

// TimeOfDay returns the recurring time formatted as HH:MM.
func (d Descriptor) TimeOfDay() string { return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute) }

// CronSpec returns the equivalent 5-field cron expression for recurring
// descriptors, or "" for one-time ones.
func (d Descriptor) CronSpec() string {
	switch d.Kind {
	case KindDaily:
		return fmt.Sprintf("%d %d * * *", d.Minute, d.Hour)
	case KindWeekly:
		days := make([]string, 0, len(d.Days))
		for _, wd := range d.Days {
			days = append(days, strconv.Itoa(int(wd)))
		}
		return fmt.Sprintf("%d %d * * %s", d.Minute, d.Hour, strings.Join(days, ","))
	default:
		return ""
	}
}

func (d Descriptor) String() string {
	switch d.Kind {
	case KindOnce:
		if d.Floating {
			return "once@" + d.At.Format(floatingLayout)
		}
		return "once@" + d.At.Format(time.RFC3339)
	case KindDaily:
		return "daily@" + d.TimeOfDay()
	case KindWeekly:
		return "weekly@" + d.TimeOfDay() + " " + d.CronSpec()
	default:
		return "unknown"
	}
}

const floatingLayout = "2006-01-02T15:04:05"

// Absolute (zoned) layouts are tried first, then floating wall-clock ones.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
	floatingLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		floatingLayout,
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
)

// recurrenceWire is the JSON encoding of a recurring schedule:
//
//	{"type":"daily","time":"09:30"}
//	{"type":"weekly","time":"09:30","days":[1,3,5]}
type recurrenceWire struct {
	Type string            `json:"type"`
	Time *string           `json:"time"`
	Days []json.RawMessage `json:"days"`
}

// ParseSchedule parses a scheduledTime encoding.
//
// If the first non-whitespace character is '{' the value is a JSON recurrence;
// otherwise it is a date-time string. The returned error is always a
// *ParseError.
func ParseSchedule(raw string) (Descriptor, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Descriptor{}, &ParseError{Raw: raw, Reason: "empty"}
	}
	if s[0] == '{' {
		return parseRecurrence(raw, s)
	}
	return parseOnce(raw, s)
}

func parseOnce(raw, s string) (Descriptor, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Descriptor{Kind: KindOnce, At: t}, nil
		}
	}
	for _, layout := range floatingLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Descriptor{Kind: KindOnce, At: t, Floating: true}, nil
		}
	}
	return Descriptor{}, &ParseError{Raw: raw, Reason: "not a date-time"}
}

func parseRecurrence(raw, s string) (Descriptor, error) {
	var w recurrenceWire
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Descriptor{}, &ParseError{Raw: raw, Reason: "malformed recurrence", Err: err}
	}
	if w.Time == nil {
		return Descriptor{}, &ParseError{Raw: raw, Reason: "missing time"}
	}
	h, m, err := parseClock(*w.Time)
	if err != nil {
		return Descriptor{}, &ParseError{Raw: raw, Reason: "bad time", Err: err}
	}

	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "daily":
		return Descriptor{Kind: KindDaily, Hour: h, Minute: m}, nil
	case "weekly":
		days, err := parseDays(w.Days)
		if err != nil {
			return Descriptor{}, &ParseError{Raw: raw, Reason: "bad days", Err: err}
		}
		return Descriptor{Kind: KindWeekly, Hour: h, Minute: m, Days: days}, nil
	case "":
		return Descriptor{}, &ParseError{Raw: raw, Reason: "missing type"}
	default:
		return Descriptor{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}
}

// parseClock accepts exactly HH:MM.
func parseClock(v string) (hour, minute int, err error) {
	if len(v) != 5 || v[2] != ':' {
		return 0, 0, fmt.Errorf("%q: expected HH:MM", v)
	}
	hour, err = strconv.Atoi(v[:2])
	if err != nil || hour < 0 || hour > 23 || v[0] == '-' || v[0] == '+' {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err = strconv.Atoi(v[3:])
	if err != nil || minute < 0 || minute > 59 || v[3] == '-' || v[3] == '+' {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}

var errNoDays = errors.New("no weekdays listed, so it would never fire")

func parseDays(in []json.RawMessage) ([]time.Weekday, error) {
	if len(in) == 0 {
		return nil, errNoDays
	}
	seen := [7]bool{}
	for _, n := range in {
		// Atoi rejects quoted values, fractions and null.
		v, err := strconv.Atoi(string(bytes.TrimSpace(n)))
		if err != nil {
			return nil, fmt.Errorf("weekday %s is not an integer", n)
		}
		if v < 0 || v > 6 {
			return nil, fmt.Errorf("weekday %d out of range 0..6", v)
		}
		seen[v] = true
	}
	days := make([]time.Weekday, 0, len(in))
	for i, ok := range seen {
		if ok {
			days = append(days, time.Weekday(i))
		}
	}
	return days, nil
}

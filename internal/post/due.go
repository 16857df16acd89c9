package post

import "time"

// IsDue reports whether d fires at now.
//
// One-time schedules are due once their instant is at or before now. Recurring
// schedules match the wall clock of now at minute resolution, so a missed
// minute is not caught up later. The weekday and time of day are taken in
// now's location.
func IsDue(d Descriptor, now time.Time) bool {
	switch d.Kind {
	case KindOnce:
		return !d.instant(now.Location()).After(now)
	case KindDaily:
		return matchesClock(d, now)
	case KindWeekly:
		return matchesClock(d, now) && d.onDay(now.Weekday())
	default:
		return false
	}
}

// instant resolves the one-time timestamp, placing floating wall-clock values
// in loc.
func (d Descriptor) instant(loc *time.Location) time.Time {
	if !d.Floating {
		return d.At
	}
	if loc == nil {
		loc = time.Local
	}
	a := d.At
	return time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), loc)
}

// Instant returns the absolute one-time instant, interpreting floating values
// in loc. It returns the zero time for recurring descriptors.
func (d Descriptor) Instant(loc *time.Location) time.Time {
	if d.Kind != KindOnce {
		return time.Time{}
	}
	return d.instant(loc)
}

func matchesClock(d Descriptor, now time.Time) bool {
	return now.Hour() == d.Hour && now.Minute() == d.Minute
}

func (d Descriptor) onDay(wd time.Weekday) bool {
	for _, x := range d.Days {
		if x == wd {
			return true
		}
	}
	return false
}

// SameMinute reports whether a and b fall in the same wall-clock minute of loc.
func SameMinute(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a = a.In(loc)
	b = b.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay() && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

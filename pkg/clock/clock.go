package clock

import "time"

// Clock supplies the current instant. Injected everywhere time-dependent
// decisions are made so tests can pin the clock.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// dayKeyLayout formats an instant down to its calendar day.
const dayKeyLayout = "2006-01-02"

// DayKey returns the calendar-day key for an instant in its own location.
// Daily quota counters reset when this value changes, so a record written
// just before midnight is simply unreachable after midnight.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// Fixed is a Clock pinned to a settable instant, for tests.
type Fixed struct {
	Instant time.Time
}

func (f *Fixed) Now() time.Time { return f.Instant }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.Instant = f.Instant.Add(d) }

// AdvanceDays moves the fixed clock forward by whole calendar days.
func (f *Fixed) AdvanceDays(days int) { f.Instant = f.Instant.AddDate(0, 0, days) }

package schedule

import (
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// Anchor is the reference occurrence a monthly cadence returns to:
// the Nth given weekday of a month.
type Anchor struct {
	Weekday time.Weekday
	Nth     int
}

// IsZero reports whether the anchor has not been captured yet.
func (a Anchor) IsZero() bool { return a.Nth == 0 }

// AnchorFrom captures the weekday of t and its ordinal within t's month.
func AnchorFrom(t time.Time) Anchor {
	return Anchor{Weekday: t.Weekday(), Nth: WeekdayOccurrence(t)}
}

// WeekdayOccurrence returns which occurrence of its weekday t is within its month (1..5).
func WeekdayOccurrence(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// NthWeekdayOfMonth returns the nth weekday of the month. When the month has
// fewer than n occurrences the last one is returned.
func NthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, nth int) time.Time {
	if nth < 1 {
		nth = 1
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	day := first.AddDate(0, 0, offset+(nth-1)*7)
	for day.Month() != month {
		day = day.AddDate(0, 0, -7)
	}
	return day
}

// Next returns the occurrence after from. Weekly cadences add 7×n days.
// Monthly cadences move n months forward and land on the anchor's
// occurrence; a zero anchor is taken from from itself.
func Next(from time.Time, c Cadence, anchor Anchor) time.Time {
	from = core.Day(from)
	switch {
	case c.IsNone():
		return time.Time{}
	case c.Unit == UnitWeek:
		return from.AddDate(0, 0, 7*c.Interval)
	}

	if anchor.IsZero() {
		anchor = AnchorFrom(from)
	}
	target := time.Date(from.Year(), from.Month()+time.Month(c.Interval), 1, 0, 0, 0, 0, time.UTC)
	return NthWeekdayOfMonth(target.Year(), target.Month(), anchor.Weekday, anchor.Nth)
}

// ShouldTrigger reports whether a cadence due at due fires on current.
func ShouldTrigger(current, due time.Time, c Cadence) bool {
	if c.IsNone() || due.IsZero() {
		return false
	}
	return !core.Day(current).Before(core.Day(due))
}

// Occurrences counts the scheduled dates in [start, end], start included,
// stepping with Next from start under anchor. These are the dates a Tracker
// created on start would come due on.
func Occurrences(start, end time.Time, c Cadence, anchor Anchor) int {
	start, end = core.Day(start), core.Day(end)
	if end.Before(start) {
		return 0
	}
	if c.IsNone() {
		return 1
	}
	n := 1
	for due := Next(start, c, anchor); !due.After(end); due = Next(due, c, anchor) {
		n++
	}
	return n
}

// Tracker follows one consumer's schedule. The next due date is always
// derived from the previous scheduled date, so a holiday that delays one
// execution does not shift later occurrences.
type Tracker struct {
	cadence Cadence
	anchor  Anchor
	due     time.Time
}

// NewTracker starts a schedule whose first occurrence is start itself. The
// first occurrence is normally consumed by the initial purchase, so callers
// follow with Skip or Fire on start.
func NewTracker(c Cadence, anchor Anchor, start time.Time) *Tracker {
	t := &Tracker{cadence: c, anchor: anchor}
	if !c.IsNone() {
		t.due = core.Day(start)
	}
	return t
}

// Cadence returns the tracked cadence.
func (t *Tracker) Cadence() Cadence { return t.cadence }

// Due returns the next scheduled date, zero for None.
func (t *Tracker) Due() time.Time { return t.due }

// Fire reports whether the schedule is due on current and, if so, advances
// the due date past current.
func (t *Tracker) Fire(current time.Time) bool {
	if !ShouldTrigger(current, t.due, t.cadence) {
		return false
	}
	t.advance(current)
	return true
}

// Skip advances the due date past current without reporting a trigger.
func (t *Tracker) Skip(current time.Time) {
	if t.cadence.IsNone() {
		return
	}
	t.advance(current)
}

func (t *Tracker) advance(current time.Time) {
	current = core.Day(current)
	for !t.due.After(current) {
		t.due = Next(t.due, t.cadence, t.anchor)
	}
}

package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in      string
		want    Cadence
		wantErr bool
	}{
		{"none", None(), false},
		{"", None(), false},
		{"weekly_1", Weekly(1), false},
		{"weekly_4", Weekly(4), false},
		{"monthly_3", Monthly(3), false},
		{"Quarterly", Monthly(3), false},
		{"biweekly", Weekly(2), false},
		{"daily_1", Cadence{}, true},
		{"weekly_0", Cadence{}, true},
		{"monthly_x", Cadence{}, true},
		{"fortnightly", Cadence{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCadence(tt.in)
			if tt.wantErr {
				if !errors.Is(err, core.ErrConfigInvalid) {
					t.Fatalf("expected CONFIG_INVALID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCadence(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCadence_String(t *testing.T) {
	for _, c := range []Cadence{None(), Weekly(2), Monthly(12)} {
		back, err := ParseCadence(c.String())
		if err != nil || back != c {
			t.Errorf("round trip of %v gave %v, %v", c, back, err)
		}
	}
}

func TestNthWeekdayOfMonth(t *testing.T) {
	tests := []struct {
		name    string
		year    int
		month   time.Month
		weekday time.Weekday
		nth     int
		wantDay int
	}{
		{"first monday jan 2024", 2024, time.January, time.Monday, 1, 1},
		{"second wednesday jan 2024", 2024, time.January, time.Wednesday, 2, 10},
		{"third friday feb 2024", 2024, time.February, time.Friday, 3, 16},
		{"fourth friday mar 2024", 2024, time.March, time.Friday, 4, 22},
		{"fifth thursday feb 2024 exists", 2024, time.February, time.Thursday, 5, 29},
		{"fifth monday feb 2024 falls back", 2024, time.February, time.Monday, 5, 26},
		{"fifth wednesday feb 2024 falls back", 2024, time.February, time.Wednesday, 5, 28},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NthWeekdayOfMonth(tt.year, tt.month, tt.weekday, tt.nth)
			if got.Day() != tt.wantDay || got.Month() != tt.month {
				t.Errorf("got %s, want day %d", got.Format(core.DateFormat), tt.wantDay)
			}
			if got.Weekday() != tt.weekday {
				t.Errorf("weekday = %v, want %v", got.Weekday(), tt.weekday)
			}
		})
	}
}

func TestWeekdayOccurrence(t *testing.T) {
	if n := WeekdayOccurrence(date(2024, 1, 10)); n != 2 {
		t.Errorf("2024-01-10 occurrence = %d, want 2", n)
	}
	if n := WeekdayOccurrence(date(2024, 1, 31)); n != 5 {
		t.Errorf("2024-01-31 occurrence = %d, want 5", n)
	}
}

func TestNext(t *testing.T) {
	start := date(2024, 1, 10)
	anchor := AnchorFrom(start)

	tests := []struct {
		name    string
		from    time.Time
		cadence Cadence
		anchor  Anchor
		want    time.Time
	}{
		{"weekly", start, Weekly(1), anchor, date(2024, 1, 17)},
		{"biweekly", start, Weekly(2), anchor, date(2024, 1, 24)},
		{"monthly keeps second wednesday", start, Monthly(1), anchor, date(2024, 2, 14)},
		{"quarterly", start, Monthly(3), anchor, date(2024, 4, 10)},
		{"yearly", start, Monthly(12), anchor, date(2025, 1, 8)},
		{"fifth wednesday into february", date(2024, 1, 31), Monthly(1), Anchor{}, date(2024, 2, 28)},
		{"leap day yearly", date(2024, 2, 29), Monthly(12), Anchor{}, date(2025, 2, 27)},
		{"none", start, None(), anchor, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.from, tt.cadence, tt.anchor)
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %s, want %s", got.Format(core.DateFormat), tt.want.Format(core.DateFormat))
			}
		})
	}
}

func TestNext_MonthlySequence(t *testing.T) {
	current := date(2024, 1, 10)
	anchor := AnchorFrom(current)
	want := []int{10, 14, 13, 10, 8, 12, 10, 14, 11, 9, 13, 11}

	for i, day := range want {
		if current.Month() != time.Month(i+1) || current.Day() != day {
			t.Fatalf("step %d = %s, want month %d day %d", i, current.Format(core.DateFormat), i+1, day)
		}
		current = Next(current, Monthly(1), anchor)
	}
}

func TestNext_AnchorSurvivesShortMonth(t *testing.T) {
	anchor := AnchorFrom(date(2024, 1, 31))
	feb := Next(date(2024, 1, 31), Monthly(1), anchor)
	mar := Next(feb, Monthly(1), anchor)
	may := Next(Next(mar, Monthly(1), anchor), Monthly(1), anchor)

	if !feb.Equal(date(2024, 2, 28)) {
		t.Errorf("feb = %s", feb.Format(core.DateFormat))
	}
	if !mar.Equal(date(2024, 3, 27)) {
		t.Errorf("mar = %s", mar.Format(core.DateFormat))
	}
	// May 2024 has five wednesdays.
	if !may.Equal(date(2024, 5, 29)) {
		t.Errorf("may = %s", may.Format(core.DateFormat))
	}
}

func TestShouldTrigger(t *testing.T) {
	due := date(2024, 2, 14)
	if ShouldTrigger(date(2024, 2, 13), due, Monthly(1)) {
		t.Error("should not trigger before due date")
	}
	if !ShouldTrigger(due, due, Monthly(1)) {
		t.Error("should trigger on due date")
	}
	if !ShouldTrigger(date(2024, 2, 15), due, Monthly(1)) {
		t.Error("should trigger after due date")
	}
	if ShouldTrigger(date(2024, 2, 15), due, None()) {
		t.Error("none never triggers")
	}
}

func TestTracker_HolidayDoesNotShiftSchedule(t *testing.T) {
	start := date(2024, 1, 10)
	tr := NewTracker(Monthly(1), AnchorFrom(start), start)
	tr.Skip(start)

	if !tr.Due().Equal(date(2024, 2, 14)) {
		t.Fatalf("due = %s", tr.Due().Format(core.DateFormat))
	}

	// 2024-02-14 is a market holiday; the next trading day picks it up.
	if tr.Fire(date(2024, 2, 13)) {
		t.Error("fired early")
	}
	if !tr.Fire(date(2024, 2, 15)) {
		t.Error("expected trigger on first day after the scheduled date")
	}
	if tr.Fire(date(2024, 2, 16)) {
		t.Error("fired twice for one occurrence")
	}
	if !tr.Due().Equal(date(2024, 3, 13)) {
		t.Errorf("due = %s, want 2024-03-13", tr.Due().Format(core.DateFormat))
	}
}

func TestTracker_LongGapFiresOnce(t *testing.T) {
	start := date(2024, 1, 1)
	tr := NewTracker(Weekly(1), AnchorFrom(start), start)
	tr.Skip(start)

	if !tr.Fire(date(2024, 1, 31)) {
		t.Fatal("expected trigger")
	}
	if tr.Due().Before(date(2024, 2, 1)) {
		t.Errorf("due = %s, want after 2024-01-31", tr.Due().Format(core.DateFormat))
	}
}

func TestTracker_None(t *testing.T) {
	tr := NewTracker(None(), Anchor{}, date(2024, 1, 1))
	for d := 0; d < 60; d++ {
		if tr.Fire(date(2024, 1, 1).AddDate(0, 0, d)) {
			t.Fatal("none cadence fired")
		}
	}
}

func TestOccurrences(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		cadence Cadence
		want    int
	}{
		{"monthly full year", date(2024, 1, 10), date(2024, 12, 31), Monthly(1), 12},
		// the third occurrence is the first Monday of March, 2024-03-04
		{"monthly anchor after end", date(2024, 1, 1), date(2024, 3, 1), Monthly(1), 2},
		{"monthly anchor on end", date(2024, 1, 1), date(2024, 3, 4), Monthly(1), 3},
		{"quarterly", date(2024, 1, 1), date(2024, 12, 31), Monthly(3), 4},
		{"weekly", date(2024, 1, 1), date(2024, 1, 29), Weekly(1), 5},
		{"biweekly", date(2024, 1, 1), date(2024, 1, 29), Weekly(2), 3},
		{"none", date(2024, 1, 1), date(2024, 12, 31), None(), 1},
		{"end before start", date(2024, 2, 1), date(2024, 1, 1), Monthly(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Occurrences(tt.start, tt.end, tt.cadence, AnchorFrom(tt.start)); got != tt.want {
				t.Errorf("Occurrences() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOccurrences_MatchesTracker(t *testing.T) {
	start, end := date(2024, 1, 31), date(2024, 12, 31)
	c := Monthly(1)
	anchor := AnchorFrom(start)

	tr := NewTracker(c, anchor, start)
	tr.Skip(start)
	fired := 1
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if tr.Fire(d) {
			fired++
		}
	}
	if got := Occurrences(start, end, c, anchor); got != fired {
		t.Errorf("Occurrences() = %d, tracker fired %d times", got, fired)
	}
}

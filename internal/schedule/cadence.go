package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/newthinker/portsim/internal/core"
)

// Unit is the calendar unit a cadence counts in.
type Unit int

const (
	UnitNone Unit = iota
	UnitWeek
	UnitMonth
)

// Cadence is a recurrence: never, every N weeks, or every N months.
type Cadence struct {
	Unit     Unit
	Interval int
}

// None returns the cadence that never fires.
func None() Cadence { return Cadence{} }

// Weekly returns a cadence firing every n weeks.
func Weekly(n int) Cadence { return Cadence{Unit: UnitWeek, Interval: n} }

// Monthly returns a cadence firing every n months.
func Monthly(n int) Cadence { return Cadence{Unit: UnitMonth, Interval: n} }

// IsNone reports whether the cadence never fires.
func (c Cadence) IsNone() bool {
	return c.Unit == UnitNone || c.Interval <= 0
}

// String returns the wire form: "none", "weekly_N" or "monthly_N".
func (c Cadence) String() string {
	switch {
	case c.IsNone():
		return "none"
	case c.Unit == UnitWeek:
		return fmt.Sprintf("weekly_%d", c.Interval)
	default:
		return fmt.Sprintf("monthly_%d", c.Interval)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Cadence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cadence) UnmarshalText(b []byte) error {
	parsed, err := ParseCadence(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var aliases = map[string]Cadence{
	"":           None(),
	"none":       None(),
	"weekly":     Weekly(1),
	"biweekly":   Weekly(2),
	"monthly":    Monthly(1),
	"quarterly":  Monthly(3),
	"semiannual": Monthly(6),
	"yearly":     Monthly(12),
	"annually":   Monthly(12),
}

// ParseCadence parses "none", "weekly_N", "monthly_N" and a few named aliases.
func ParseCadence(s string) (Cadence, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := aliases[key]; ok {
		return c, nil
	}

	unit, n, ok := strings.Cut(key, "_")
	if !ok {
		return Cadence{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown cadence %q", s))
	}
	interval, err := strconv.Atoi(n)
	if err != nil || interval <= 0 {
		return Cadence{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid cadence interval %q", s))
	}

	switch unit {
	case "weekly":
		return Weekly(interval), nil
	case "monthly":
		return Monthly(interval), nil
	default:
		return Cadence{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown cadence %q", s))
	}
}

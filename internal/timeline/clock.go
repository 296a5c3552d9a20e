package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of one calendar day on the schedule clock.
const MinutesPerDay = 24 * 60

// Clock is a time of day in minutes since midnight of the timeline's day.
// Values past 1440 belong to following days and are never wrapped.
type Clock int

// ParseClock parses "HH:MM" into a Clock. Hours must be below 24.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("timeline: invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("timeline: invalid clock hour %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("timeline: invalid clock minute %q", s)
	}
	return Clock(h*60 + m), nil
}

// ClockPtr is a convenience for optional clock fields.
func ClockPtr(c Clock) *Clock { return &c }

// String renders the clock as HH:MM. Hours at or above 24 are kept as-is
// ("25:10") so out-of-range values stay visible.
func (c Clock) String() string {
	sign := ""
	v := int(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%02d:%02d", sign, v/60, v%60)
}

// DayOffset returns how many whole days past the timeline's day the clock is.
func (c Clock) DayOffset() int {
	d := int(c) / MinutesPerDay
	if c < 0 && int(c)%MinutesPerDay != 0 {
		d--
	}
	return d
}

// TimeOfDay strips the day offset.
func (c Clock) TimeOfDay() Clock {
	return c - Clock(c.DayOffset()*MinutesPerDay)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timeline: clock: %w", err)
	}
	neg := strings.HasPrefix(s, "-")
	hh, mm, ok := strings.Cut(strings.TrimPrefix(s, "-"), ":")
	if !ok {
		return fmt.Errorf("timeline: invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 {
		return fmt.Errorf("timeline: invalid clock %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("timeline: invalid clock %q", s)
	}
	v := h*60 + m
	if neg {
		v = -v
	}
	*c = Clock(v)
	return nil
}

// Minutes is an optional duration in minutes. The zero value is unset.
type Minutes struct {
	n   int
	set bool
}

// Unset returns an unset duration.
func Unset() Minutes { return Minutes{} }

// MinutesOf returns a set duration of n minutes.
func MinutesOf(n int) Minutes { return Minutes{n: n, set: true} }

// Get returns the value and whether it is set.
func (m Minutes) Get() (int, bool) { return m.n, m.set }

// IsSet reports whether a value was provided.
func (m Minutes) IsSet() bool { return m.set }

// OrZero returns the value, or 0 when unset.
func (m Minutes) OrZero() int {
	if !m.set {
		return 0
	}
	return m.n
}

// String renders an unset duration as "?".
func (m Minutes) String() string {
	if !m.set {
		return "?"
	}
	return strconv.Itoa(m.n)
}

func (m Minutes) MarshalJSON() ([]byte, error) {
	if !m.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(m.n)), nil
}

func (m *Minutes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Minutes{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("timeline: minutes: %w", err)
	}
	*m = MinutesOf(int(f))
	return nil
}

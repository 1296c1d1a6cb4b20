package progress

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date wire format used across sitepulse.
const DateLayout = "2006-01-02"

// DateWindow is the planned window of a phase plus its actual finish, if any.
type DateWindow struct {
	PlanStart    *time.Time
	PlanEnd      *time.Time
	ActualFinish *time.Time
}

// Day strips the time of day, keeping the calendar date t has in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) float64 {
	return Day(to).Sub(Day(from)).Hours() / 24
}

// ceilDays counts whole calendar days from -> to, rounded up, never negative.
func ceilDays(from, to time.Time) int {
	d := math.Ceil(daysBetween(from, to))
	if d < 0 {
		return 0
	}
	return int(d)
}

func dayAfter(a, b time.Time) bool {
	return Day(a).After(Day(b))
}

// ParseDate reads YYYY-MM-DD, RFC3339 and D/M/YY or D/M/YYYY dates.
// Empty strings and "-" are treated as absent.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), true
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if len(parts[2]) == 2 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// OptionalDate is ParseDate returning nil when the value is absent or unparseable.
func OptionalDate(s string) *time.Time {
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}

// FormatDate renders an optional date, "" when absent.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

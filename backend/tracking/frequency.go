// Package tracking implements the habit status rules: which days a habit is
// scheduled on, how a day's status is stored and cycled, and how a week of
// statuses is aggregated for display.
//
// Everything in this package is pure. Dates travel as YYYY-MM-DD strings and
// are turned into civil dates from their components, so a weekday never
// depends on the timezone of the process evaluating it.
package tracking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
)

// DateFormat is the layout of every date exchanged with clients and stored in history.
const DateFormat = "2006-01-02"

// ParseDate reads a YYYY-MM-DD string into a civil date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return time.Time{}, apperrors.Invalid("date", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}
	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	d, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, apperrors.Invalid("date", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises out-of-range values (Feb 30 -> Mar 2); reject those.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, apperrors.Invalid("date", fmt.Sprintf("%q is not a calendar date", s))
	}
	return t, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(DateFormat)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateFormat)
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}

// EveryDay is the schedule assumed for habits stored without a frequency.
func EveryDay() models.Frequency {
	return models.Frequency{
		Monday: true, Tuesday: true, Wednesday: true, Thursday: true,
		Friday: true, Saturday: true, Sunday: true,
	}
}

// IsActive reports whether freq schedules the habit on weekday wd. A nil
// frequency belongs to a legacy record and is treated as every day.
func IsActive(freq *models.Frequency, wd time.Weekday) bool {
	if freq == nil {
		return true
	}
	switch wd {
	case time.Monday:
		return freq.Monday
	case time.Tuesday:
		return freq.Tuesday
	case time.Wednesday:
		return freq.Wednesday
	case time.Thursday:
		return freq.Thursday
	case time.Friday:
		return freq.Friday
	case time.Saturday:
		return freq.Saturday
	case time.Sunday:
		return freq.Sunday
	}
	return false
}

// ActiveDays counts the weekdays freq schedules.
func ActiveDays(freq *models.Frequency) int {
	n := 0
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if IsActive(freq, wd) {
			n++
		}
	}
	return n
}

// IsScheduled reports whether the habit with schedule freq is due on date.
func IsScheduled(freq *models.Frequency, date string) (bool, error) {
	t, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	return IsActive(freq, t.Weekday()), nil
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/jghoshh/habitual/backend/models"
	"github.com/jghoshh/habitual/backend/service"
	"github.com/jghoshh/habitual/backend/tracking"
)

// statusMarks are the single-cell glyphs of the weekly table.
var statusMarks = map[models.DayStatus]string{
	models.StatusCompleted:   "x",
	models.StatusFailed:      "!",
	models.StatusPending:     "?",
	models.StatusNone:        ".",
	models.StatusUnscheduled: " ",
}

func mark(status models.DayStatus) string {
	if m, ok := statusMarks[status]; ok {
		return m
	}
	return "?"
}

// renderWeek draws the weekly table. Rows are numbered so that later commands
// can refer to a habit by its index.
func renderWeek(week *service.WeekResponse) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-4s %-24s", "#", "Habit"))
	for _, date := range week.Dates {
		label := date
		if t, err := tracking.ParseDate(date); err == nil {
			label = t.Weekday().String()[:3]
		}
		if date == week.Today {
			label = "*" + label
		}
		b.WriteString(fmt.Sprintf(" %4s", label))
	}
	b.WriteString("  Goal  Streak\n")

	if len(week.Habits) == 0 {
		b.WriteString("No habits yet. Use 'add' to create one.\n")
		return b.String()
	}

	for i, row := range week.Habits {
		b.WriteString(fmt.Sprintf("%-4d %-24s", i+1, truncate(row.Habit.Name, 24)))
		for _, day := range row.Week.Days {
			b.WriteString(fmt.Sprintf(" %4s", mark(day.Status)))
		}
		b.WriteString(fmt.Sprintf("  %d/%d  %6d\n", row.Week.WeeklyProgress, row.Week.Goal, row.Week.Streak))
	}
	return b.String()
}

// renderDay lists the habits due on one date.
func renderDay(day *service.DayResponse) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Habits for %s\n", day.Date))
	if len(day.Items) == 0 {
		b.WriteString("Nothing scheduled.\n")
		return b.String()
	}
	for i, item := range day.Items {
		b.WriteString(fmt.Sprintf("%-4d [%s] %s%s\n", i+1, mark(item.Status), item.Habit.Name, window(item.Habit)))
	}
	return b.String()
}

// renderHabits lists habits with their schedule.
func renderHabits(habits []models.Habit) string {
	if len(habits) == 0 {
		return "No habits yet. Use 'add' to create one.\n"
	}
	var b strings.Builder
	for i, h := range habits {
		category := h.Category
		if category == "" {
			category = "-"
		}
		b.WriteString(fmt.Sprintf("%-4d %-24s %-14s %-8s goal %d%s\n",
			i+1, truncate(h.Name, 24), truncate(category, 14), weekdays(h.Frequency), h.Goal, window(h)))
	}
	return b.String()
}

// weekdays renders a schedule as one letter per weekday from Monday, with a
// dash for inactive days.
func weekdays(freq *models.Frequency) string {
	if freq == nil {
		freq = &models.Frequency{Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true, Saturday: true, Sunday: true}
	}
	flags := []bool{freq.Monday, freq.Tuesday, freq.Wednesday, freq.Thursday, freq.Friday, freq.Saturday, freq.Sunday}
	letters := "MTWTFSS"
	out := make([]byte, len(flags))
	for i, on := range flags {
		if on {
			out[i] = letters[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// parseWeekdays reads a schedule such as "mon,wed,fri", "weekdays" or "daily".
func parseWeekdays(s string) (*models.Frequency, error) {
	freq := &models.Frequency{}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "daily", "everyday":
		all := tracking.EveryDay()
		return &all, nil
	case "weekdays":
		freq.Monday, freq.Tuesday, freq.Wednesday, freq.Thursday, freq.Friday = true, true, true, true, true
		return freq, nil
	case "weekends":
		freq.Saturday, freq.Sunday = true, true
		return freq, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if len(part) < 3 {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		switch part[:3] {
		case "mon":
			freq.Monday = true
		case "tue":
			freq.Tuesday = true
		case "wed":
			freq.Wednesday = true
		case "thu":
			freq.Thursday = true
		case "fri":
			freq.Friday = true
		case "sat":
			freq.Saturday = true
		case "sun":
			freq.Sunday = true
		default:
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
	}
	return freq, nil
}

func window(h models.Habit) string {
	switch {
	case h.StartTime != "" && h.EndTime != "":
		return fmt.Sprintf(" (%s-%s)", h.StartTime, h.EndTime)
	case h.StartTime != "":
		return fmt.Sprintf(" (%s)", h.StartTime)
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

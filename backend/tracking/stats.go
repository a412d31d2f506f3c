package tracking

import (
	"math"

	"github.com/jghoshh/habitual/backend/models"
)

// CompletionRate is completed days over scheduled days within dates, as a
// fraction in [0, 1]. A window with no scheduled days has rate 0.
func CompletionRate(habit *models.Habit, dates []string, today string) (float64, error) {
	completed, scheduled := 0, 0
	for _, date := range dates {
		slot, err := Resolve(habit, date, today)
		if err != nil {
			return 0, err
		}
		if !slot.Scheduled {
			continue
		}
		scheduled++
		if slot.Status == models.StatusCompleted {
			completed++
		}
	}
	return rate(completed, scheduled), nil
}

// Streak counts consecutive scheduled days ending at today that are
// completed. Unscheduled days neither count nor break the run. Today only
// breaks it once judged failed: an unrecorded today is skipped.
func Streak(habit *models.Habit, today string) (int, error) {
	if ActiveDays(habit.Frequency) == 0 {
		return 0, nil
	}
	day, err := ParseDate(today)
	if err != nil {
		return 0, err
	}

	completed := make(map[string]bool, len(habit.History))
	for _, entry := range habit.History {
		if entry.Status == models.StatusCompleted {
			completed[entry.Date] = true
		}
	}

	streak := 0
	if IsActive(habit.Frequency, day.Weekday()) {
		switch GetStatus(habit.History, today) {
		case models.StatusCompleted:
			streak++
		case models.StatusFailed:
			return 0, nil
		}
	}

	// Every run of seven days holds a scheduled day, and each scheduled day
	// either extends the streak from a finite set of entries or ends it.
	for {
		day = day.AddDate(0, 0, -1)
		if !IsActive(habit.Frequency, day.Weekday()) {
			continue
		}
		if !completed[FormatDate(day)] {
			return streak, nil
		}
		streak++
	}
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*1000) / 1000
}

package tracking

import (
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
)

// DaySlot is the resolved display state of one habit on one date.
type DaySlot struct {
	Date      string           `json:"date"`
	Status    models.DayStatus `json:"status"`
	Scheduled bool             `json:"scheduled"`
}

// WeekView is what a weekly table row shows for a single habit.
type WeekView struct {
	Days           []DaySlot `json:"days"`
	WeeklyProgress int       `json:"weekly_progress"`
	Goal           int       `json:"goal"`
	CompletionRate float64   `json:"completion_rate"`
	Streak         int       `json:"streak"`
}

// DayItem pairs a habit that is due on a date with its status on that date.
type DayItem struct {
	Habit  models.Habit     `json:"habit"`
	Status models.DayStatus `json:"status"`
}

// WeekDates returns the seven dates of the week containing anchor, with the
// week beginning on start.
func WeekDates(anchor string, start time.Weekday) ([]string, error) {
	t, err := ParseDate(anchor)
	if err != nil {
		return nil, err
	}
	offset := (int(t.Weekday()) - int(start) + 7) % 7
	first := t.AddDate(0, 0, -offset)

	dates := make([]string, 7)
	for i := range dates {
		dates[i] = FormatDate(first.AddDate(0, 0, i))
	}
	return dates, nil
}

// Resolve works out the display status of habit on date, given which date is today.
//
// Unscheduled days are StatusUnscheduled. A scheduled day shows its recorded
// status; with nothing recorded it is pending if it is today and none otherwise.
func Resolve(habit *models.Habit, date, today string) (DaySlot, error) {
	scheduled, err := IsScheduled(habit.Frequency, date)
	if err != nil {
		return DaySlot{}, err
	}
	if !scheduled {
		return DaySlot{Date: date, Status: models.StatusUnscheduled}, nil
	}

	status := GetStatus(habit.History, date)
	if status == models.StatusNone && date == today {
		status = models.StatusPending
	}
	return DaySlot{Date: date, Status: status, Scheduled: true}, nil
}

// Week aggregates a window of dates for habit. WeeklyProgress counts the
// resolved completed days; Goal is copied from the habit as stored.
func Week(habit *models.Habit, dates []string, today string) (WeekView, error) {
	if len(dates) != 7 {
		return WeekView{}, apperrors.Invalid("dates", "a week has exactly 7 dates")
	}

	view := WeekView{Days: make([]DaySlot, 0, len(dates)), Goal: habit.Goal}
	scheduled := 0
	for _, date := range dates {
		slot, err := Resolve(habit, date, today)
		if err != nil {
			return WeekView{}, err
		}
		view.Days = append(view.Days, slot)

		if slot.Scheduled {
			scheduled++
		}
		if slot.Status == models.StatusCompleted {
			view.WeeklyProgress++
		}
	}

	view.CompletionRate = rate(view.WeeklyProgress, scheduled)
	streak, err := Streak(habit, today)
	if err != nil {
		return WeekView{}, err
	}
	view.Streak = streak
	return view, nil
}

// Day lists the habits due on date with their resolved status, in input order.
func Day(habits []models.Habit, date, today string) ([]DayItem, error) {
	items := make([]DayItem, 0, len(habits))
	for i := range habits {
		slot, err := Resolve(&habits[i], date, today)
		if err != nil {
			return nil, err
		}
		if !slot.Scheduled {
			continue
		}
		items = append(items, DayItem{Habit: habits[i], Status: slot.Status})
	}
	return items, nil
}

package tracking

import "github.com/jghoshh/habitual/backend/models"

// GetStatus returns the recorded status for date, or StatusNone when the
// history has no entry for it.
func GetStatus(history []models.StatusEntry, date string) models.DayStatus {
	for _, entry := range history {
		if entry.Date == date {
			return entry.Status
		}
	}
	return models.StatusNone
}

// SetStatus returns a new history in which date carries status. Every
// existing entry for date is dropped first, and StatusNone is represented by
// the absence of an entry, so the result never holds more than one entry per
// date and never an explicit none. The input slice is not modified.
func SetStatus(history []models.StatusEntry, date string, status models.DayStatus) []models.StatusEntry {
	next := make([]models.StatusEntry, 0, len(history)+1)
	for _, entry := range history {
		if entry.Date != date {
			next = append(next, entry)
		}
	}
	if status != models.StatusNone {
		next = append(next, models.StatusEntry{Date: date, Status: status})
	}
	return next
}

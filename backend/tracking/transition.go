package tracking

import "github.com/jghoshh/habitual/backend/models"

// Next is the toggle cycle applied when a user taps a day:
//
//	none, pending -> completed -> failed -> none
//
// The input is the display status, so today's unrecorded scheduled day
// arrives as pending and is completed like an empty day. Anything outside
// the four ledger statuses is treated as none.
func Next(current models.DayStatus) models.DayStatus {
	switch current {
	case models.StatusNone, models.StatusPending:
		return models.StatusCompleted
	case models.StatusCompleted:
		return models.StatusFailed
	case models.StatusFailed:
		return models.StatusNone
	}
	return models.StatusCompleted
}

package service

import (
	"context"
	"fmt"

	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/models"
	"github.com/jghoshh/habitual/backend/queue"
	"github.com/jghoshh/habitual/backend/tracking"
)

// Milestones are the streak lengths that trigger a notification.
var Milestones = []int{7, 30, 100, 365}

// crossedMilestone returns the largest milestone m with before < m <= after,
// or 0 when the streak did not pass one. Filling a gap can lengthen a streak
// by more than one day at once.
func crossedMilestone(before, after int) int {
	crossed := 0
	for _, m := range Milestones {
		if before < m && m <= after {
			crossed = m
		}
	}
	return crossed
}

// checkMilestone publishes a notification when the write that turned previous
// into habit made its streak pass a milestone and the caller has an email.
// Failures are logged only.
func (s *Service) checkMilestone(ctx context.Context, previous, habit *models.Habit) {
	if s.notifier == nil {
		return
	}
	to := emailFromContext(ctx)
	if to == "" {
		return
	}

	log := logging.WithContext(ctx).WithField("habit_id", habit.ID.Hex())
	today := s.today()
	before, err := tracking.Streak(previous, today)
	if err != nil {
		log.WithError(err).Warn("Failed to compute streak")
		return
	}
	streak, err := tracking.Streak(habit, today)
	if err != nil {
		log.WithError(err).Warn("Failed to compute streak")
		return
	}
	milestone := crossedMilestone(before, streak)
	if milestone == 0 {
		return
	}

	msg := queue.MilestoneMessage{
		Id:        fmt.Sprintf("%s:%s:%d", habit.ID.Hex(), today, milestone),
		To:        to,
		HabitName: habit.Name,
		Streak:    streak,
	}
	if err := s.notifier.NotifyMilestone(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to publish milestone notification")
		return
	}
	log.WithField("streak", streak).Info("Milestone notification published")
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/models"
	storage "github.com/jghoshh/habitual/backend/storage/persistent"
	"github.com/jghoshh/habitual/backend/tracking"
	"github.com/jghoshh/habitual/lib/utils"
)

// HabitInput is the body of a habit creation.
type HabitInput struct {
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	CategoryID     string            `json:"category_id"`
	Icon           string            `json:"icon"`
	IconColorClass string            `json:"icon_color_class"`
	IconBgClass    string            `json:"icon_bg_class"`
	StartTime      string            `json:"start_time"`
	EndTime        string            `json:"end_time"`
	Frequency      *models.Frequency `json:"frequency"`
	Goal           *int              `json:"goal"`
}

// HabitUpdate is the allow-list of fields a general edit may change. Absent
// fields keep their stored value.
type HabitUpdate struct {
	Name           *string           `json:"name"`
	Category       *string           `json:"category"`
	CategoryID     *string           `json:"category_id"`
	Icon           *string           `json:"icon"`
	IconColorClass *string           `json:"icon_color_class"`
	IconBgClass    *string           `json:"icon_bg_class"`
	StartTime      *string           `json:"start_time"`
	EndTime        *string           `json:"end_time"`
	Frequency      *models.Frequency `json:"frequency"`
	Goal           *int              `json:"goal"`
}

// HabitWeek is one row of the weekly table.
type HabitWeek struct {
	Habit models.Habit      `json:"habit"`
	Week  tracking.WeekView `json:"week"`
}

// WeekResponse is the weekly table of an owner.
type WeekResponse struct {
	Dates   []string    `json:"dates"`
	Today   string      `json:"today"`
	Version int64       `json:"version"`
	Habits  []HabitWeek `json:"habits"`
}

// DayResponse lists the habits due on one date.
type DayResponse struct {
	Date    string             `json:"date"`
	Today   string             `json:"today"`
	Version int64              `json:"version"`
	Items   []tracking.DayItem `json:"items"`
}

// ListHabits returns the owner's habits sorted by start time. Habits without
// a valid start time come last.
func (s *Service) ListHabits(ctx context.Context, owner string) ([]models.Habit, error) {
	habits, err := s.store.FindHabitsByUser(ctx, owner)
	if err != nil {
		return nil, err
	}
	sortByStartTime(habits)
	return habits, nil
}

func sortByStartTime(habits []models.Habit) {
	sort.SliceStable(habits, func(i, j int) bool {
		a, aok := utils.ClockMinutes(habits[i].StartTime)
		b, bok := utils.ClockMinutes(habits[j].StartTime)
		if aok != bok {
			return aok
		}
		return aok && a < b
	})
}

// CreateHabit validates in and stores a new habit for owner. A frequency
// left out means every day and a goal left out is the number of active
// days. A category given by name only is looked up, or created.
func (s *Service) CreateHabit(ctx context.Context, owner string, in HabitInput) (*models.Habit, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	freq := tracking.EveryDay()
	if in.Frequency != nil {
		freq = *in.Frequency
	}
	if err := validateFrequency(&freq); err != nil {
		return nil, err
	}
	goal := tracking.ActiveDays(&freq)
	if in.Goal != nil {
		if err := validateGoal(*in.Goal); err != nil {
			return nil, err
		}
		goal = *in.Goal
	}

	habit := &models.Habit{
		UserID:         owner,
		Name:           name,
		Category:       strings.TrimSpace(in.Category),
		Icon:           in.Icon,
		IconColorClass: in.IconColorClass,
		IconBgClass:    in.IconBgClass,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Frequency:      &freq,
		Goal:           goal,
		History:        []models.StatusEntry{},
	}

	category, err := s.resolveCategory(ctx, owner, habit.Category, in.CategoryID)
	if err != nil {
		return nil, err
	}
	if category != nil {
		habit.Category = category.Name
		habit.CategoryID = &category.ID
	}

	habit.CreatedAt = s.now().UTC()
	habit.UpdatedAt = habit.CreatedAt

	created, err := s.store.AddHabit(ctx, habit)
	if err != nil {
		return nil, err
	}
	s.bumpVersion(ctx, owner)
	logging.WithContext(ctx).WithField("habit_id", created.ID.Hex()).Info("Habit created")
	return created, nil
}

// UpdateHabit applies the allow-listed edit in to the owner's habit id.
// Changing the frequency without a goal recomputes the goal.
func (s *Service) UpdateHabit(ctx context.Context, owner, id string, in HabitUpdate) (*models.Habit, error) {
	habit, err := s.ownedHabit(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	fields := storage.HabitFields{
		Icon:           in.Icon,
		IconColorClass: in.IconColorClass,
		IconBgClass:    in.IconBgClass,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
	}

	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		fields.Name = &name
	}

	start, end := habit.StartTime, habit.EndTime
	if in.StartTime != nil {
		start = *in.StartTime
	}
	if in.EndTime != nil {
		end = *in.EndTime
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}

	if in.Frequency != nil {
		freq := *in.Frequency
		if err := validateFrequency(&freq); err != nil {
			return nil, err
		}
		fields.Frequency = &freq
		if in.Goal == nil {
			goal := tracking.ActiveDays(&freq)
			fields.Goal = &goal
		}
	}
	if in.Goal != nil {
		if err := validateGoal(*in.Goal); err != nil {
			return nil, err
		}
		goal := *in.Goal
		fields.Goal = &goal
	}

	if in.Category != nil || in.CategoryID != nil {
		name, categoryID := "", ""
		if in.Category != nil {
			name = strings.TrimSpace(*in.Category)
		}
		if in.CategoryID != nil {
			categoryID = *in.CategoryID
		}
		category, err := s.resolveCategory(ctx, owner, name, categoryID)
		if err != nil {
			return nil, err
		}
		if category != nil {
			fields.Category = &category.Name
			fields.CategoryID = &category.ID
		} else {
			fields.Category = &name
			fields.UnsetCategoryID = true
		}
	}

	updated, err := s.store.UpdateHabitFields(ctx, habit.ID, fields)
	if err != nil {
		return nil, err
	}
	s.bumpVersion(ctx, owner)
	return updated, nil
}

// SetStatus records status for the owner's habit id on date. Writing none
// clears the day.
func (s *Service) SetStatus(ctx context.Context, owner, id, date string, status models.DayStatus) (*models.Habit, error) {
	if err := requireDate(date); err != nil {
		return nil, err
	}
	if !status.Storable() {
		return nil, apperrors.Invalid("status", fmt.Sprintf("'%s' cannot be recorded, use completed, failed or none", status))
	}

	habit, err := s.ownedHabit(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return s.writeStatus(ctx, habit, date, status)
}

// Toggle advances the displayed status of the owner's habit id on date by
// one step: none or pending to completed, completed to failed, failed to none.
// Days the habit is not scheduled on cannot be toggled.
func (s *Service) Toggle(ctx context.Context, owner, id, date string) (*models.Habit, models.DayStatus, error) {
	if err := requireDate(date); err != nil {
		return nil, "", err
	}

	habit, err := s.ownedHabit(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}

	slot, err := tracking.Resolve(habit, date, s.today())
	if err != nil {
		return nil, "", err
	}
	if !slot.Scheduled {
		return nil, "", apperrors.Invalid("date", fmt.Sprintf("habit is not scheduled on %s", date))
	}

	next := tracking.Next(slot.Status)
	updated, err := s.writeStatus(ctx, habit, date, next)
	if err != nil {
		return nil, "", err
	}
	return updated, next, nil
}

func (s *Service) writeStatus(ctx context.Context, habit *models.Habit, date string, status models.DayStatus) (*models.Habit, error) {
	history := tracking.SetStatus(habit.History, date, status)
	updated, err := s.store.SetHabitHistory(ctx, habit.ID, history)
	if err != nil {
		return nil, err
	}
	s.bumpVersion(ctx, habit.UserID)

	if status == models.StatusCompleted {
		s.checkMilestone(ctx, habit, updated)
	}
	return updated, nil
}

// DeleteHabit removes the owner's habit id.
func (s *Service) DeleteHabit(ctx context.Context, owner, id string) error {
	habit, err := s.ownedHabit(ctx, owner, id)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteHabit(ctx, habit.ID); err != nil {
		return err
	}
	s.bumpVersion(ctx, owner)
	logging.WithContext(ctx).WithField("habit_id", id).Info("Habit deleted")
	return nil
}

// Week builds the weekly table of the week containing anchor, or the
// current week when anchor is empty.
func (s *Service) Week(ctx context.Context, owner, anchor string) (*WeekResponse, error) {
	anchor, err := s.dateOrToday(anchor)
	if err != nil {
		return nil, err
	}
	dates, err := tracking.WeekDates(anchor, s.weekStart)
	if err != nil {
		return nil, err
	}

	habits, err := s.ListHabits(ctx, owner)
	if err != nil {
		return nil, err
	}

	today := s.today()
	resp := &WeekResponse{
		Dates:   dates,
		Today:   today,
		Version: s.currentVersion(ctx, owner),
		Habits:  make([]HabitWeek, 0, len(habits)),
	}
	for i := range habits {
		view, err := tracking.Week(&habits[i], dates, today)
		if err != nil {
			return nil, err
		}
		resp.Habits = append(resp.Habits, HabitWeek{Habit: habits[i], Week: view})
	}
	return resp, nil
}

// Day lists the owner's habits due on date, or today when date is empty.
func (s *Service) Day(ctx context.Context, owner, date string) (*DayResponse, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}

	habits, err := s.ListHabits(ctx, owner)
	if err != nil {
		return nil, err
	}

	today := s.today()
	items, err := tracking.Day(habits, date, today)
	if err != nil {
		return nil, err
	}
	return &DayResponse{
		Date:    date,
		Today:   today,
		Version: s.currentVersion(ctx, owner),
		Items:   items,
	}, nil
}

// validateName trims name and rejects empty names and names carrying
// control characters such as line breaks.
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Invalid("name", "name is required")
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", apperrors.Invalid("name", "name cannot contain control characters")
	}
	return name, nil
}

func validateWindow(start, end string) error {
	startMin, startOK := utils.ClockMinutes(start)
	if start != "" && !startOK {
		return apperrors.Invalid("start_time", fmt.Sprintf("'%s' is not a HH:MM time", start))
	}
	endMin, endOK := utils.ClockMinutes(end)
	if end != "" && !endOK {
		return apperrors.Invalid("end_time", fmt.Sprintf("'%s' is not a HH:MM time", end))
	}
	if startOK && endOK && endMin < startMin {
		return apperrors.Invalid("end_time", "end time is before start time")
	}
	return nil
}

func validateFrequency(freq *models.Frequency) error {
	if tracking.ActiveDays(freq) == 0 {
		return apperrors.Invalid("frequency", "at least one day must be active")
	}
	return nil
}

func validateGoal(goal int) error {
	if goal < 1 || goal > 7 {
		return apperrors.Invalid("goal", "goal must be between 1 and 7")
	}
	return nil
}

// resolveCategory finds the owner's category by id, else by name, creating
// a named one that does not exist yet. Neither given means no category.
func (s *Service) resolveCategory(ctx context.Context, owner, name, id string) (*models.Category, error) {
	if id != "" {
		oid, err := parseID("category_id", id)
		if err != nil {
			return nil, err
		}
		categories, err := s.store.FindCategoriesByUser(ctx, owner)
		if err != nil {
			return nil, err
		}
		for i := range categories {
			if categories[i].ID == oid {
				return &categories[i], nil
			}
		}
		return nil, apperrors.NotFound("category", id)
	}
	if name == "" {
		return nil, nil
	}

	category, err := s.store.FindCategoryByName(ctx, owner, name)
	if err == nil {
		return category, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	category, err = s.store.AddCategory(ctx, &models.Category{
		UserID:    owner,
		Name:      name,
		IsDefault: isDefaultCategory(name),
	})
	if err != nil {
		// Lost a race with a concurrent create of the same name.
		if existing, findErr := s.store.FindCategoryByName(ctx, owner, name); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return category, nil
}


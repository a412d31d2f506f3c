package service

import (
	"context"
	"fmt"

	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/models"
	storage "github.com/jghoshh/habitual/backend/storage/persistent"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCategories are the category names offered to every user.
var DefaultCategories = []string{"Health", "Learning", "Productivity", "Wellness", "Other"}

func isDefaultCategory(name string) bool {
	for _, d := range DefaultCategories {
		if d == name {
			return true
		}
	}
	return false
}

// BackfillResult reports what a category backfill wrote.
type BackfillResult struct {
	CreatedCategories int    `json:"created_categories"`
	UpdatedHabits     int    `json:"updated_habits"`
	Message           string `json:"message"`
}

// PlanBackfill works out the writes that give every habit of owner with a
// category name a matching category reference. One category is planned per
// name that owner does not have yet; habits that already reference a
// category are left alone.
func PlanBackfill(owner string, categories []models.Category, habits []models.Habit) storage.BackfillPlan {
	plan := storage.BackfillPlan{UserID: owner}

	byName := make(map[string]primitive.ObjectID, len(categories))
	for _, c := range categories {
		if c.UserID == owner {
			byName[c.Name] = c.ID
		}
	}

	for _, h := range habits {
		if h.UserID != owner || h.Category == "" {
			continue
		}
		if _, ok := byName[h.Category]; ok {
			continue
		}
		category := models.Category{
			ID:        primitive.NewObjectID(),
			UserID:    owner,
			Name:      h.Category,
			IsDefault: isDefaultCategory(h.Category),
		}
		plan.Categories = append(plan.Categories, category)
		byName[h.Category] = category.ID
	}

	for _, h := range habits {
		if h.UserID != owner || h.CategoryID != nil {
			continue
		}
		if id, ok := byName[h.Category]; ok {
			plan.Assignments = append(plan.Assignments, storage.CategoryAssignment{HabitID: h.ID, CategoryID: id})
		}
	}
	return plan
}

// RunBackfill plans and atomically applies the category backfill of owner.
// A second run right after a successful one writes nothing.
func (s *Service) RunBackfill(ctx context.Context, owner string) (*BackfillResult, error) {
	categories, err := s.store.FindCategoriesByUser(ctx, owner)
	if err != nil {
		return nil, err
	}
	habits, err := s.store.FindHabitsByUser(ctx, owner)
	if err != nil {
		return nil, err
	}

	plan := PlanBackfill(owner, categories, habits)
	if !plan.Empty() {
		if err := s.store.ApplyBackfill(ctx, plan); err != nil {
			return nil, err
		}
		s.bumpVersion(ctx, owner)
	}

	result := &BackfillResult{
		CreatedCategories: len(plan.Categories),
		UpdatedHabits:     len(plan.Assignments),
	}
	result.Message = fmt.Sprintf("Migration complete. Created %d categories. Updated %d habits.",
		result.CreatedCategories, result.UpdatedHabits)

	logging.WithContext(ctx).WithFields(logrus.Fields{
		"created_categories": result.CreatedCategories,
		"updated_habits":     result.UpdatedHabits,
	}).Info("Category backfill finished")
	return result, nil
}

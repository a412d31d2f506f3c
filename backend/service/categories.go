package service

import (
	"context"
	"strings"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
)

// CategoryInput is the body of a category creation.
type CategoryInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ListCategories returns the owner's categories.
func (s *Service) ListCategories(ctx context.Context, owner string) ([]models.Category, error) {
	return s.store.FindCategoriesByUser(ctx, owner)
}

// CreateCategory adds a category named in.Name for owner. Names are unique per owner.
func (s *Service) CreateCategory(ctx context.Context, owner string, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("name", "name is required")
	}
	return s.store.AddCategory(ctx, &models.Category{
		UserID: owner,
		Name:   name,
		Color:  in.Color,
	})
}

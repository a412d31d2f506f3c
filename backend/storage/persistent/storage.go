package storage

import (
	"context"
	"fmt"

	"github.com/jghoshh/habitual/backend/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeleteResult represents the result of a deletion operation in MongoDB,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// HabitFields is the allow-listed set of habit attributes a general edit may
// overwrite. Nil pointers are left untouched. UnsetCategoryID removes the
// category reference and wins over CategoryID.
type HabitFields struct {
	Name           *string
	Category       *string
	CategoryID     *primitive.ObjectID
	Icon           *string
	IconColorClass *string
	IconBgClass    *string
	StartTime      *string
	EndTime        *string
	Frequency      *models.Frequency
	Goal           *int

	UnsetCategoryID bool
}

// CategoryAssignment links one habit to the category it should reference.
type CategoryAssignment struct {
	HabitID    primitive.ObjectID
	CategoryID primitive.ObjectID
}

// BackfillPlan is the complete set of writes of one category backfill. The
// new categories already carry their ids so assignments can reference them.
type BackfillPlan struct {
	UserID      string
	Categories  []models.Category
	Assignments []CategoryAssignment
}

// Empty reports whether applying the plan would write nothing.
func (p BackfillPlan) Empty() bool {
	return len(p.Categories) == 0 && len(p.Assignments) == 0
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement. Lookups of a single record return an error
// matching apperrors.ErrNotFound when nothing matches.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error
	// Adds a new habit and returns it with its assigned id.
	AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error)
	// Finds one habit by id, whoever owns it.
	FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error)
	// Finds every habit owned by userID.
	FindHabitsByUser(ctx context.Context, userID string) ([]models.Habit, error)
	// Overwrites the non-nil fields of a habit.
	UpdateHabitFields(ctx context.Context, id primitive.ObjectID, fields HabitFields) (*models.Habit, error)
	// Replaces the history of a habit.
	SetHabitHistory(ctx context.Context, id primitive.ObjectID, history []models.StatusEntry) (*models.Habit, error)
	// Deletes a habit by id.
	DeleteHabit(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error)
	// Adds a new category and returns it with its assigned id.
	AddCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	// Finds every category owned by userID.
	FindCategoriesByUser(ctx context.Context, userID string) ([]models.Category, error)
	// Finds a category of userID by exact name.
	FindCategoryByName(ctx context.Context, userID, name string) (*models.Category, error)
	// Applies a category backfill atomically: all writes or none.
	ApplyBackfill(ctx context.Context, plan BackfillPlan) error
	// Finds the journal entry of userID for date.
	FindJournalEntry(ctx context.Context, userID, date string) (*models.JournalEntry, error)
	// Creates or replaces the journal entry of userID for date.
	UpsertJournalEntry(ctx context.Context, entry *models.JournalEntry) (*models.JournalEntry, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}

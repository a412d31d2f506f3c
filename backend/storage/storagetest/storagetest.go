// Package storagetest provides in-memory stores for tests.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
	cache "github.com/jghoshh/habitual/backend/storage/cache"
	storage "github.com/jghoshh/habitual/backend/storage/persistent"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ storage.StorageInterface = (*MemoryStore)(nil)
	_ cache.CacheInterface     = (*MemoryCache)(nil)
)

// MemoryStore is an in-memory StorageInterface.
type MemoryStore struct {
	mu         sync.Mutex
	habits     map[primitive.ObjectID]models.Habit
	categories []models.Category
	journal    map[string]models.JournalEntry

	// Backfills counts the applied backfill plans.
	Backfills int
	// BackfillErr, when set, fails every ApplyBackfill.
	BackfillErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		habits:  map[primitive.ObjectID]models.Habit{},
		journal: map[string]models.JournalEntry{},
	}
}

func copyHabit(h models.Habit) *models.Habit {
	h.History = append([]models.StatusEntry{}, h.History...)
	if h.Frequency != nil {
		freq := *h.Frequency
		h.Frequency = &freq
	}
	return &h
}

func (f *MemoryStore) Connect(string, string) error { return nil }
func (f *MemoryStore) Disconnect() error            { return nil }

func (f *MemoryStore) AddHabit(_ context.Context, habit *models.Habit) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	habit.ID = primitive.NewObjectID()
	f.habits[habit.ID] = *copyHabit(*habit)
	return copyHabit(*habit), nil
}

func (f *MemoryStore) FindHabit(_ context.Context, id primitive.ObjectID) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	return copyHabit(h), nil
}

func (f *MemoryStore) FindHabitsByUser(_ context.Context, userID string) ([]models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	habits := []models.Habit{}
	for _, h := range f.habits {
		if h.UserID == userID {
			habits = append(habits, *copyHabit(h))
		}
	}
	// ObjectIDs grow with creation order, matching the created_at sort of MongoStorage.
	sort.Slice(habits, func(i, j int) bool { return habits[i].ID.Hex() < habits[j].ID.Hex() })
	return habits, nil
}

func (f *MemoryStore) UpdateHabitFields(_ context.Context, id primitive.ObjectID, fields storage.HabitFields) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	if fields.Name != nil {
		h.Name = *fields.Name
	}
	if fields.Category != nil {
		h.Category = *fields.Category
	}
	if fields.UnsetCategoryID {
		h.CategoryID = nil
	} else if fields.CategoryID != nil {
		cid := *fields.CategoryID
		h.CategoryID = &cid
	}
	if fields.Icon != nil {
		h.Icon = *fields.Icon
	}
	if fields.IconColorClass != nil {
		h.IconColorClass = *fields.IconColorClass
	}
	if fields.IconBgClass != nil {
		h.IconBgClass = *fields.IconBgClass
	}
	if fields.StartTime != nil {
		h.StartTime = *fields.StartTime
	}
	if fields.EndTime != nil {
		h.EndTime = *fields.EndTime
	}
	if fields.Frequency != nil {
		freq := *fields.Frequency
		h.Frequency = &freq
	}
	if fields.Goal != nil {
		h.Goal = *fields.Goal
	}
	f.habits[id] = h
	return copyHabit(h), nil
}

func (f *MemoryStore) SetHabitHistory(_ context.Context, id primitive.ObjectID, history []models.StatusEntry) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	h.History = append([]models.StatusEntry{}, history...)
	f.habits[id] = h
	return copyHabit(h), nil
}

func (f *MemoryStore) DeleteHabit(_ context.Context, id primitive.ObjectID) (*storage.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.habits[id]; !ok {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	delete(f.habits, id)
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func (f *MemoryStore) AddCategory(_ context.Context, category *models.Category) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.UserID == category.UserID && c.Name == category.Name {
			return nil, apperrors.Invalid("name", fmt.Sprintf("a category named '%s' already exists", category.Name))
		}
	}
	category.ID = primitive.NewObjectID()
	f.categories = append(f.categories, *category)
	c := *category
	return &c, nil
}

func (f *MemoryStore) FindCategoriesByUser(_ context.Context, userID string) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	categories := []models.Category{}
	for _, c := range f.categories {
		if c.UserID == userID {
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (f *MemoryStore) FindCategoryByName(_ context.Context, userID, name string) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.UserID == userID && c.Name == name {
			found := c
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("category", name)
}

func (f *MemoryStore) ApplyBackfill(_ context.Context, plan storage.BackfillPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BackfillErr != nil {
		return f.BackfillErr
	}
	f.Backfills++
	f.categories = append(f.categories, plan.Categories...)
	for _, a := range plan.Assignments {
		h, ok := f.habits[a.HabitID]
		if !ok || h.UserID != plan.UserID || h.CategoryID != nil {
			continue
		}
		cid := a.CategoryID
		h.CategoryID = &cid
		f.habits[a.HabitID] = h
	}
	return nil
}

func (f *MemoryStore) FindJournalEntry(_ context.Context, userID, date string) (*models.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.journal[models.JournalKey(userID, date)]
	if !ok {
		return nil, apperrors.NotFound("journal entry", date)
	}
	return &entry, nil
}

func (f *MemoryStore) UpsertJournalEntry(_ context.Context, entry *models.JournalEntry) (*models.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = models.JournalKey(entry.UserID, entry.Date)
	f.journal[entry.ID] = *entry
	stored := *entry
	return &stored, nil
}

// MemoryCache is an in-memory CacheInterface. Entries never expire.
type MemoryCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64

	// Err, when set, fails every read and write.
	Err error
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: map[string][]byte{}, counters: map[string]int64{}}
}

func (c *MemoryCache) Connect(string) error { return nil }
func (c *MemoryCache) Disconnect() error    { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = b
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	b, ok := c.values[key]
	if !ok {
		return apperrors.NotFound("cache key", key)
	}
	return json.Unmarshal(b, dest)
}

func (c *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	c.counters[key]++
	return c.counters[key], nil
}

func (c *MemoryCache) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.counters[key], nil
}


// Package service holds the operations behind the HTTP API: ownership
// checks, input validation and the orchestration of tracking, storage,
// the version counter and milestone notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/models"
	"github.com/jghoshh/habitual/backend/queue"
	contextKey "github.com/jghoshh/habitual/backend/server/context_key"
	cache "github.com/jghoshh/habitual/backend/storage/cache"
	storage "github.com/jghoshh/habitual/backend/storage/persistent"
	"github.com/jghoshh/habitual/backend/tracking"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MilestoneNotifier publishes streak milestone messages.
type MilestoneNotifier interface {
	NotifyMilestone(ctx context.Context, msg queue.MilestoneMessage) error
}

// Options configures a Service. Every field is optional.
type Options struct {
	// Cache backs the per-owner version counter. Without one the version is always 0.
	Cache cache.CacheInterface
	// Notifier receives streak milestones. Without one none are sent.
	Notifier MilestoneNotifier
	// Location decides which calendar date is today. Defaults to time.Local.
	Location *time.Location
	// WeekStart is the first day of weekly views. Defaults to Monday.
	WeekStart *time.Weekday
	// Now replaces the clock in tests.
	Now func() time.Time
}

// Service implements the habit, category and journal operations for
// authenticated owners.
type Service struct {
	store     storage.StorageInterface
	cache     cache.CacheInterface
	notifier  MilestoneNotifier
	loc       *time.Location
	weekStart time.Weekday
	now       func() time.Time
}

// New returns a Service reading and writing through store.
func New(store storage.StorageInterface, opts Options) *Service {
	s := &Service{
		store:     store,
		cache:     opts.Cache,
		notifier:  opts.Notifier,
		loc:       opts.Location,
		weekStart: time.Monday,
		now:       opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if opts.WeekStart != nil {
		s.weekStart = *opts.WeekStart
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// today is the current calendar date in the configured location.
func (s *Service) today() string {
	return tracking.Today(s.now(), s.loc)
}

func versionKey(owner string) string {
	return "habits:version:" + owner
}

// Version returns the owner's data version. Clients compare it with the
// version of their last read to decide whether to refetch. Without a cache,
// or when the cache fails, the version reads as 0.
func (s *Service) Version(ctx context.Context, owner string) (int64, error) {
	if owner == "" {
		return 0, fmt.Errorf("no owner: %w", apperrors.ErrAuth)
	}
	return s.currentVersion(ctx, owner), nil
}

// bumpVersion increments the owner's data version. The mutation it follows
// has already been written, so failures are only logged.
func (s *Service) bumpVersion(ctx context.Context, owner string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, versionKey(owner)); err != nil {
		logging.WithContext(ctx).WithError(err).Warn("Failed to bump data version")
	}
}

// currentVersion reads the counter, degrading to 0 on a cache failure.
func (s *Service) currentVersion(ctx context.Context, owner string) int64 {
	if s.cache == nil {
		return 0
	}
	v, err := s.cache.Counter(ctx, versionKey(owner))
	if err != nil {
		logging.WithContext(ctx).WithError(err).Warn("Failed to read data version")
		return 0
	}
	return v
}

func parseID(field, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.Invalid(field, fmt.Sprintf("'%s' is not a valid id", id))
	}
	return oid, nil
}

// ownedHabit loads the habit with id and checks that owner owns it.
func (s *Service) ownedHabit(ctx context.Context, owner, id string) (*models.Habit, error) {
	if owner == "" {
		return nil, fmt.Errorf("no owner: %w", apperrors.ErrAuth)
	}
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	habit, err := s.store.FindHabit(ctx, oid)
	if err != nil {
		return nil, err
	}
	if habit.UserID != owner {
		return nil, fmt.Errorf("habit %s: %w", id, apperrors.ErrForbidden)
	}
	return habit, nil
}

// requireDate validates a YYYY-MM-DD request parameter.
func requireDate(date string) error {
	if date == "" {
		return apperrors.Invalid("date", "date is required")
	}
	_, err := tracking.ParseDate(date)
	return err
}

// dateOrToday validates date, defaulting to today when empty.
func (s *Service) dateOrToday(date string) (string, error) {
	if date == "" {
		return s.today(), nil
	}
	if err := requireDate(date); err != nil {
		return "", err
	}
	return date, nil
}

func emailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(contextKey.EmailKey).(string)
	return email
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

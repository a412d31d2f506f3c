package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
	contextKey "github.com/jghoshh/habitual/backend/server/context_key"
	"github.com/jghoshh/habitual/backend/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice"
	bob   = "bob"

	// 2024-01-03 is a Wednesday.
	testToday = "2024-01-03"
)

type fixture struct {
	svc      *Service
	store    *storagetest.MemoryStore
	cache    *storagetest.MemoryCache
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storagetest.NewMemoryStore(), cache: storagetest.NewMemoryCache(), notifier: &fakeNotifier{}}
	f.svc = New(f.store, Options{
		Cache:    f.cache,
		Notifier: f.notifier,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

func mwf() *models.Frequency {
	return &models.Frequency{Monday: true, Wednesday: true, Friday: true}
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func isValidation(err error) bool {
	return errors.Is(err, apperrors.ErrValidation)
}

func (f *fixture) create(t *testing.T, owner string, in HabitInput) *models.Habit {
	t.Helper()
	h, err := f.svc.CreateHabit(context.Background(), owner, in)
	require.NoError(t, err)
	return h
}

func TestCreateHabitDefaults(t *testing.T) {
	f := newFixture(t)

	daily := f.create(t, alice, HabitInput{Name: "  Meditate  "})
	assert.Equal(t, "Meditate", daily.Name)
	assert.Equal(t, 7, daily.Goal)
	require.NotNil(t, daily.Frequency)
	assert.True(t, daily.Frequency.Sunday)
	assert.Nil(t, daily.CategoryID)
	assert.Empty(t, daily.History)

	jog := f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf()})
	assert.Equal(t, 3, jog.Goal)

	explicit := f.create(t, alice, HabitInput{Name: "Read", Frequency: mwf(), Goal: intPtr(2)})
	assert.Equal(t, 2, explicit.Goal)
}

func TestCreateHabitCreatesCategoryOnce(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, alice, HabitInput{Name: "Jog", Category: "Health"})
	second := f.create(t, alice, HabitInput{Name: "Swim", Category: "Health"})
	other := f.create(t, bob, HabitInput{Name: "Jog", Category: "Health"})

	require.NotNil(t, first.CategoryID)
	require.NotNil(t, second.CategoryID)
	require.NotNil(t, other.CategoryID)
	assert.Equal(t, *first.CategoryID, *second.CategoryID)
	assert.NotEqual(t, *first.CategoryID, *other.CategoryID)

	categories, err := f.svc.ListCategories(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.True(t, categories[0].IsDefault)

	custom := f.create(t, alice, HabitInput{Name: "Paint", Category: "Art"})
	category, err := f.store.FindCategoryByName(context.Background(), alice, "Art")
	require.NoError(t, err)
	assert.False(t, category.IsDefault)
	assert.Equal(t, category.ID, *custom.CategoryID)
}

func TestCreateHabitByCategoryID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	category, err := f.svc.CreateCategory(ctx, alice, CategoryInput{Name: "Focus", Color: "#336699"})
	require.NoError(t, err)

	h := f.create(t, alice, HabitInput{Name: "Deep Work", CategoryID: category.ID.Hex()})
	assert.Equal(t, "Focus", h.Category)
	assert.Equal(t, category.ID, *h.CategoryID)

	_, err = f.svc.CreateHabit(ctx, bob, HabitInput{Name: "Deep Work", CategoryID: category.ID.Hex()})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCreateHabitValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    HabitInput
		field string
	}{
		{"missing name", HabitInput{Name: "   "}, "name"},
		{"line break in name", HabitInput{Name: "Jog\r\nX-Injected: yes"}, "name"},
		{"tab in name", HabitInput{Name: "Jog\tfast"}, "name"},
		{"bad start time", HabitInput{Name: "Jog", StartTime: "7am"}, "start_time"},
		{"bad end time", HabitInput{Name: "Jog", EndTime: "25:00"}, "end_time"},
		{"end before start", HabitInput{Name: "Jog", StartTime: "09:00", EndTime: "08:00"}, "end_time"},
		{"empty mask", HabitInput{Name: "Jog", Frequency: &models.Frequency{}}, "frequency"},
		{"goal too small", HabitInput{Name: "Jog", Goal: intPtr(0)}, "goal"},
		{"goal too large", HabitInput{Name: "Jog", Goal: intPtr(8)}, "goal"},
		{"bad category id", HabitInput{Name: "Jog", CategoryID: "nope"}, "category_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateHabit(context.Background(), alice, tt.in)
			require.True(t, isValidation(err), "got %v", err)

			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			habits, err := f.store.FindHabitsByUser(context.Background(), alice)
			require.NoError(t, err)
			assert.Empty(t, habits)
		})
	}
}

func TestListHabitsSortedByStartTime(t *testing.T) {
	f := newFixture(t)
	f.create(t, alice, HabitInput{Name: "Late", StartTime: "21:00"})
	f.create(t, alice, HabitInput{Name: "Any time"})
	f.create(t, alice, HabitInput{Name: "Early", StartTime: "06:30"})
	f.create(t, alice, HabitInput{Name: "Noon", StartTime: "12:00", EndTime: "12:30"})
	f.create(t, bob, HabitInput{Name: "Not mine", StartTime: "05:00"})

	habits, err := f.svc.ListHabits(context.Background(), alice)
	require.NoError(t, err)

	var names []string
	for _, h := range habits {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"Early", "Noon", "Late", "Any time"}, names)
}

func TestUpdateHabit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf(), StartTime: "07:00"})
	_, err := f.svc.SetStatus(ctx, alice, h.ID.Hex(), "2024-01-01", models.StatusCompleted)
	require.NoError(t, err)

	t.Run("frequency without goal recomputes goal", func(t *testing.T) {
		updated, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{
			Frequency: &models.Frequency{Monday: true, Tuesday: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Goal)
		assert.Len(t, updated.History, 1)
		assert.Equal(t, "Jog", updated.Name)
	})

	t.Run("explicit goal wins", func(t *testing.T) {
		updated, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Frequency: mwf(), Goal: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Goal)
	})

	t.Run("plain fields", func(t *testing.T) {
		updated, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{
			Name:    strPtr("Run"),
			Icon:    strPtr("directions_run"),
			EndTime: strPtr("08:00"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Run", updated.Name)
		assert.Equal(t, "directions_run", updated.Icon)
		assert.Equal(t, "07:00", updated.StartTime)
		assert.Equal(t, "08:00", updated.EndTime)
	})

	t.Run("category by name", func(t *testing.T) {
		updated, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Category: strPtr("Wellness")})
		require.NoError(t, err)
		assert.Equal(t, "Wellness", updated.Category)
		assert.NotNil(t, updated.CategoryID)
	})

	t.Run("clear category", func(t *testing.T) {
		for _, edit := range []HabitUpdate{{Category: strPtr("")}, {CategoryID: strPtr("")}} {
			_, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Category: strPtr("Health")})
			require.NoError(t, err)

			updated, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), edit)
			require.NoError(t, err)
			assert.Empty(t, updated.Category)
			assert.Nil(t, updated.CategoryID)

			stored, err := f.store.FindHabit(ctx, h.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.CategoryID)
		}
	})

	t.Run("rejected edits", func(t *testing.T) {
		_, err := f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Name: strPtr("")})
		assert.True(t, isValidation(err))
		_, err = f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Name: strPtr("Run\nBcc: x@example.com")})
		assert.True(t, isValidation(err))
		_, err = f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{EndTime: strPtr("06:00")})
		assert.True(t, isValidation(err))
		_, err = f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Frequency: &models.Frequency{}})
		assert.True(t, isValidation(err))
	})

	t.Run("other owner", func(t *testing.T) {
		_, err := f.svc.UpdateHabit(ctx, bob, h.ID.Hex(), HabitUpdate{Name: strPtr("Mine now")})
		assert.True(t, errors.Is(err, apperrors.ErrForbidden))

		stored, err := f.store.FindHabit(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, "Run", stored.Name)
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		_, err := f.svc.UpdateHabit(ctx, alice, "65a000000000000000000000", HabitUpdate{Name: strPtr("x")})
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		_, err = f.svc.UpdateHabit(ctx, alice, "not-an-id", HabitUpdate{Name: strPtr("x")})
		assert.True(t, isValidation(err))
	})
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf()})
	id := h.ID.Hex()

	once, err := f.svc.SetStatus(ctx, alice, id, "2024-01-01", models.StatusCompleted)
	require.NoError(t, err)
	twice, err := f.svc.SetStatus(ctx, alice, id, "2024-01-01", models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, once.History, twice.History)
	assert.Equal(t, []models.StatusEntry{{Date: "2024-01-01", Status: models.StatusCompleted}}, twice.History)

	cleared, err := f.svc.SetStatus(ctx, alice, id, "2024-01-01", models.StatusNone)
	require.NoError(t, err)
	assert.Empty(t, cleared.History)

	_, err = f.svc.SetStatus(ctx, alice, id, "2024-01-01", models.StatusPending)
	assert.True(t, isValidation(err))
	_, err = f.svc.SetStatus(ctx, alice, id, "2024-01-01", "done")
	assert.True(t, isValidation(err))
	_, err = f.svc.SetStatus(ctx, alice, id, "", models.StatusCompleted)
	assert.True(t, isValidation(err))
	_, err = f.svc.SetStatus(ctx, alice, id, "2024-02-30", models.StatusCompleted)
	assert.True(t, isValidation(err))
	_, err = f.svc.SetStatus(ctx, bob, id, "2024-01-01", models.StatusCompleted)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestToggleCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf()})
	id := h.ID.Hex()

	for _, date := range []string{"2024-01-01", testToday} {
		t.Run(date, func(t *testing.T) {
			want := []models.DayStatus{models.StatusCompleted, models.StatusFailed, models.StatusNone}
			for _, status := range want {
				updated, got, err := f.svc.Toggle(ctx, alice, id, date)
				require.NoError(t, err)
				assert.Equal(t, status, got)
				assert.Equal(t, status, statusOn(updated, date))
			}
			stored, err := f.store.FindHabit(ctx, h.ID)
			require.NoError(t, err)
			assert.Empty(t, stored.History)
		})
	}

	_, _, err := f.svc.Toggle(ctx, alice, id, "2024-01-02")
	assert.True(t, isValidation(err), "tuesday is not scheduled")
	_, _, err = f.svc.Toggle(ctx, bob, id, "2024-01-01")
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestDeleteHabit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, alice, HabitInput{Name: "Jog"})

	assert.True(t, errors.Is(f.svc.DeleteHabit(ctx, bob, h.ID.Hex()), apperrors.ErrForbidden))
	require.NoError(t, f.svc.DeleteHabit(ctx, alice, h.ID.Hex()))
	assert.True(t, errors.Is(f.svc.DeleteHabit(ctx, alice, h.ID.Hex()), apperrors.ErrNotFound))
}

func TestWeekWithoutHistory(t *testing.T) {
	f := newFixture(t)
	f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf(), Goal: intPtr(3)})

	week, err := f.svc.Week(context.Background(), alice, "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06", "2024-01-07",
	}, week.Dates)
	assert.Equal(t, testToday, week.Today)
	require.Len(t, week.Habits, 1)

	view := week.Habits[0].Week
	var got []models.DayStatus
	for _, d := range view.Days {
		got = append(got, d.Status)
	}
	assert.Equal(t, []models.DayStatus{
		models.StatusNone, models.StatusUnscheduled, models.StatusPending, models.StatusUnscheduled,
		models.StatusNone, models.StatusUnscheduled, models.StatusUnscheduled,
	}, got)
	assert.Equal(t, 0, view.WeeklyProgress)
	assert.Equal(t, 3, view.Goal)
}

func TestWeekProgressAndSundayStart(t *testing.T) {
	f := newFixture(t)
	f.svc.weekStart = time.Sunday
	ctx := context.Background()

	h := f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf()})
	_, err := f.svc.SetStatus(ctx, alice, h.ID.Hex(), "2024-01-01", models.StatusCompleted)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, alice, h.ID.Hex(), testToday, models.StatusFailed)
	require.NoError(t, err)

	week, err := f.svc.Week(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", week.Dates[0])
	assert.Equal(t, "2024-01-06", week.Dates[6])

	view := week.Habits[0].Week
	assert.Equal(t, 1, view.WeeklyProgress)
	assert.Equal(t, 0, view.Streak)
	assert.InDelta(t, 0.333, view.CompletionRate, 0.0001)
	assert.Equal(t, int64(3), week.Version)

	_, err = f.svc.Week(ctx, alice, "01/03/2024")
	assert.True(t, isValidation(err))
}

func TestDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, alice, HabitInput{Name: "Jog", Frequency: mwf()})
	weekend := f.create(t, alice, HabitInput{Name: "Hike", Frequency: &models.Frequency{Saturday: true}})
	_, err := f.svc.SetStatus(ctx, alice, weekend.ID.Hex(), "2024-01-06", models.StatusCompleted)
	require.NoError(t, err)

	today, err := f.svc.Day(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, today.Items, 1)
	assert.Equal(t, "Jog", today.Items[0].Habit.Name)
	assert.Equal(t, models.StatusPending, today.Items[0].Status)

	saturday, err := f.svc.Day(ctx, alice, "2024-01-06")
	require.NoError(t, err)
	require.Len(t, saturday.Items, 1)
	assert.Equal(t, models.StatusCompleted, saturday.Items[0].Status)
}

func TestVersionBumpsOnMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.Version(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	h := f.create(t, alice, HabitInput{Name: "Jog"})
	_, _, err = f.svc.Toggle(ctx, alice, h.ID.Hex(), testToday)
	require.NoError(t, err)
	_, err = f.svc.UpdateHabit(ctx, alice, h.ID.Hex(), HabitUpdate{Name: strPtr("Run")})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteHabit(ctx, alice, h.ID.Hex()))

	v, err = f.svc.Version(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	other, err := f.svc.Version(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)

	_, err = f.svc.ListHabits(ctx, alice)
	require.NoError(t, err)
	v, err = f.svc.Version(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v, "reads do not bump")
}

func TestVersionWithoutCache(t *testing.T) {
	svc := New(storagetest.NewMemoryStore(), Options{})
	_, err := svc.CreateHabit(context.Background(), alice, HabitInput{Name: "Jog"})
	require.NoError(t, err)

	v, err := svc.Version(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestVersionWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, alice, HabitInput{Name: "Jog"})
	f.cache.Err = apperrors.Store("counter", errors.New("connection refused"))

	_, _, err := f.svc.Toggle(ctx, alice, h.ID.Hex(), testToday)
	require.NoError(t, err, "writes succeed without the counter")

	v, err := f.svc.Version(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	week, err := f.svc.Week(ctx, alice, testToday)
	require.NoError(t, err)
	assert.Equal(t, v, week.Version)

	_, err = f.svc.Version(ctx, "")
	assert.True(t, errors.Is(err, apperrors.ErrAuth))
}

func TestMilestoneNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.WithValue(context.Background(), contextKey.EmailKey, "alice@example.com")

	h := f.create(t, alice, HabitInput{Name: "Meditate"})
	for _, date := range []string{"2023-12-28", "2023-12-29", "2023-12-30", "2023-12-31", "2024-01-01"} {
		_, err := f.svc.SetStatus(ctx, alice, h.ID.Hex(), date, models.StatusCompleted)
		require.NoError(t, err)
	}
	assert.Empty(t, f.notifier.sent)

	// Six days in a row, no email attached: nothing to send to.
	_, err := f.svc.SetStatus(context.Background(), alice, h.ID.Hex(), "2024-01-02", models.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sent)

	_, status, err := f.svc.Toggle(ctx, alice, h.ID.Hex(), testToday)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, status)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Meditate", msg.HabitName)
	assert.Equal(t, 7, msg.Streak)
	assert.Equal(t, h.ID.Hex()+":"+testToday+":7", msg.Id)
}

func TestMilestoneReachedByFillingAGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.WithValue(context.Background(), contextKey.EmailKey, "alice@example.com")

	h := f.create(t, alice, HabitInput{Name: "Meditate"})
	for _, date := range []string{"2023-12-26", "2023-12-27", "2023-12-28", "2023-12-29", "2023-12-30", "2024-01-01", "2024-01-02", testToday} {
		_, err := f.svc.SetStatus(ctx, alice, h.ID.Hex(), date, models.StatusCompleted)
		require.NoError(t, err)
	}
	assert.Empty(t, f.notifier.sent)

	// The streak jumps from 3 to 9 and passes 7 without landing on it.
	_, err := f.svc.SetStatus(ctx, alice, h.ID.Hex(), "2023-12-31", models.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, 9, f.notifier.sent[0].Streak)
	assert.Equal(t, h.ID.Hex()+":"+testToday+":7", f.notifier.sent[0].Id)

	// Rewriting a day that leaves the streak unchanged passes nothing.
	_, err = f.svc.SetStatus(ctx, alice, h.ID.Hex(), "2023-12-31", models.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)
}

func TestCrossedMilestone(t *testing.T) {
	tests := []struct {
		before, after, want int
	}{
		{5, 6, 0},
		{6, 7, 7},
		{6, 9, 7},
		{7, 8, 0},
		{29, 101, 100},
		{9, 3, 0},
		{364, 365, 365},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, crossedMilestone(tt.before, tt.after), "%d -> %d", tt.before, tt.after)
	}
}

// statusOn reads the stored status of h on date.
func statusOn(h *models.Habit, date string) models.DayStatus {
	for _, e := range h.History {
		if e.Date == date {
			return e.Status
		}
	}
	return models.StatusNone
}

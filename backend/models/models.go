package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DayStatus is the completion state of a habit on a single calendar day.
// Only Completed, Failed and None are ever written by this service; Pending
// may still be read back from records created by older clients.
type DayStatus string

const (
	StatusCompleted DayStatus = "completed"
	StatusFailed    DayStatus = "failed"
	StatusPending   DayStatus = "pending"
	StatusNone      DayStatus = "none"

	// StatusUnscheduled is display only: the habit is not active on that weekday.
	StatusUnscheduled DayStatus = "unscheduled"
)

// Valid reports whether s is one of the four ledger statuses.
func (s DayStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPending, StatusNone:
		return true
	}
	return false
}

// Storable reports whether s may be written to a habit's history by a client.
func (s DayStatus) Storable() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNone:
		return true
	}
	return false
}

// Frequency is the weekly schedule of a habit, one flag per weekday.
type Frequency struct {
	Monday    bool `bson:"monday" json:"monday"`
	Tuesday   bool `bson:"tuesday" json:"tuesday"`
	Wednesday bool `bson:"wednesday" json:"wednesday"`
	Thursday  bool `bson:"thursday" json:"thursday"`
	Friday    bool `bson:"friday" json:"friday"`
	Saturday  bool `bson:"saturday" json:"saturday"`
	Sunday    bool `bson:"sunday" json:"sunday"`
}

// StatusEntry is one dated record in a habit's history.
type StatusEntry struct {
	Date   string    `bson:"date" json:"date"` // YYYY-MM-DD
	Status DayStatus `bson:"status" json:"status"`
}

type Habit struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID         string              `bson:"user_id" json:"user_id"`
	Name           string              `bson:"name" json:"name"`
	Category       string              `bson:"category,omitempty" json:"category,omitempty"`
	CategoryID     *primitive.ObjectID `bson:"category_id,omitempty" json:"category_id,omitempty"`
	Icon           string              `bson:"icon" json:"icon"`
	IconColorClass string              `bson:"icon_color_class" json:"icon_color_class"`
	IconBgClass    string              `bson:"icon_bg_class" json:"icon_bg_class"`
	StartTime      string              `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime        string              `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Frequency      *Frequency          `bson:"frequency,omitempty" json:"frequency,omitempty"`
	Goal           int                 `bson:"goal" json:"goal"`
	History        []StatusEntry       `bson:"history" json:"history"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Name      string             `bson:"name" json:"name"`
	Color     string             `bson:"color,omitempty" json:"color,omitempty"`
	IsDefault bool               `bson:"is_default" json:"is_default"`
}

// JournalEntry holds the rich-text note a user wrote for one day. The ID is
// the owner and date joined by an underscore, so there is one entry per pair.
type JournalEntry struct {
	ID        string    `bson:"_id" json:"-"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Date      string    `bson:"date" json:"date"`
	Content   string    `bson:"content" json:"content"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// JournalKey builds the document key of a journal entry.
func JournalKey(userID, date string) string {
	return userID + "_" + date
}

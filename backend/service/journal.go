package service

import (
	"context"

	"github.com/jghoshh/habitual/backend/models"
)

// JournalInput is the body of a journal write.
type JournalInput struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

// GetJournal returns the owner's entry for date. A day without an entry
// reads as empty content.
func (s *Service) GetJournal(ctx context.Context, owner, date string) (*models.JournalEntry, error) {
	if err := requireDate(date); err != nil {
		return nil, err
	}
	entry, err := s.store.FindJournalEntry(ctx, owner, date)
	if isNotFound(err) {
		return &models.JournalEntry{UserID: owner, Date: date, Content: ""}, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SetJournal creates or replaces the owner's entry for in.Date.
func (s *Service) SetJournal(ctx context.Context, owner string, in JournalInput) (*models.JournalEntry, error) {
	if err := requireDate(in.Date); err != nil {
		return nil, err
	}
	return s.store.UpsertJournalEntry(ctx, &models.JournalEntry{
		UserID:    owner,
		Date:      in.Date,
		Content:   in.Content,
		UpdatedAt: s.now().UTC(),
	})
}

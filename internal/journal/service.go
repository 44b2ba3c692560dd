package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/moodjournal/internal/models"
	"github.com/spacesedan/moodjournal/internal/sentiment"
)

var ErrNoSession = errors.New("no signed-in session")

type EntryStore interface {
	SaveEntry(ctx context.Context, entry models.JournalEntry) error
	BatchSaveEntries(ctx context.Context, entries []models.JournalEntry) error
	ListEntries(ctx context.Context, ownerID string) ([]models.JournalEntry, error)
}

// Identity is the signed-in user entries are recorded for.
type Identity interface {
	UID() string
}

type Service struct {
	analyzer *sentiment.Analyzer
	store    EntryStore
	identity Identity
	now      func() time.Time
}

func NewService(analyzer *sentiment.Analyzer, store EntryStore, identity Identity) *Service {
	return &Service{
		analyzer: analyzer,
		store:    store,
		identity: identity,
		now:      time.Now,
	}
}

func (s *Service) owner() (string, error) {
	if s.identity == nil || s.identity.UID() == "" {
		return "", ErrNoSession
	}
	return s.identity.UID(), nil
}

func (s *Service) newEntry(owner, text string) (models.JournalEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("[Journal] failed to generate entry id: %w", err)
	}

	analysis := s.analyzer.Analyze(text)
	return models.JournalEntry{
		OwnerID:        owner,
		EntryID:        id.String(),
		Text:           text,
		SentimentScore: analysis.Score,
		Mood:           analysis.Mood,
		CreatedAt:      s.now().UTC(),
	}, nil
}

// Record analyses text and stores it as a new entry for the session user.
func (s *Service) Record(ctx context.Context, text string) (models.JournalEntry, error) {
	owner, err := s.owner()
	if err != nil {
		return models.JournalEntry{}, err
	}

	entry, err := s.newEntry(owner, text)
	if err != nil {
		return models.JournalEntry{}, err
	}

	if err := s.store.SaveEntry(ctx, entry); err != nil {
		return models.JournalEntry{}, err
	}
	return entry, nil
}

// Import records every text in one batch write.
func (s *Service) Import(ctx context.Context, texts []string) ([]models.JournalEntry, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}

	entries := make([]models.JournalEntry, 0, len(texts))
	for _, text := range texts {
		entry, err := s.newEntry(owner, text)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	slog.Info("[Journal] Importing entries", slog.Int("count", len(entries)))
	if err := s.store.BatchSaveEntries(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// History lists the session user's entries, newest first.
func (s *Service) History(ctx context.Context) ([]models.JournalEntry, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, owner)
}

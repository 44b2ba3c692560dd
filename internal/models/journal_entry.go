package models

import (
	"time"

	"github.com/spacesedan/moodjournal/internal/sentiment"
)

// JournalEntry is one analysed journal text. SentimentScore is nil when the
// engine produced no usable score.
type JournalEntry struct {
	OwnerID        string         `json:"owner_id" dynamodbav:"owner_id"`
	EntryID        string         `json:"entry_id" dynamodbav:"entry_id"`
	Text           string         `json:"text" dynamodbav:"text"`
	SentimentScore *float64       `json:"sentiment_score,omitempty" dynamodbav:"sentiment_score,omitempty"`
	Mood           sentiment.Mood `json:"mood" dynamodbav:"mood"`
	CreatedAt      time.Time      `json:"created_at" dynamodbav:"created_at,unixtime"`
}

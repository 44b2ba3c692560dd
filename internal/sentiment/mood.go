package sentiment

import (
	"fmt"
	"math"
)

type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
	MoodNeutral Mood = "neutral"
	MoodUnknown Mood = "unknown"
)

// Both thresholds are exclusive: a score equal to either one is neutral.
const (
	HappyThreshold = 0.4
	SadThreshold   = -0.2
)

func (m Mood) String() string {
	return string(m)
}

func (m Mood) Valid() bool {
	switch m {
	case MoodHappy, MoodSad, MoodNeutral, MoodUnknown:
		return true
	}
	return false
}

func ParseMood(s string) (Mood, error) {
	m := Mood(s)
	if !m.Valid() {
		return "", fmt.Errorf("[Sentiment] invalid mood %q", s)
	}
	return m, nil
}

// ClassifyMood maps a compound score to a mood. A nil or NaN score has no
// mood and is reported as unknown.
func ClassifyMood(score *float64) Mood {
	if score == nil || math.IsNaN(*score) {
		return MoodUnknown
	}
	return Classify(*score)
}

func Classify(score float64) Mood {
	switch {
	case math.IsNaN(score):
		return MoodUnknown
	case score > HappyThreshold:
		return MoodHappy
	case score < SadThreshold:
		return MoodSad
	default:
		return MoodNeutral
	}
}

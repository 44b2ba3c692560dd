package sentiment

import "math"

type Analysis struct {
	Text   string   `json:"text"`
	Scores Scores   `json:"scores"`
	Score  *float64 `json:"score"`
	Mood   Mood     `json:"mood"`
}

type AnalyzerOption func(*Analyzer)

// WithScorer replaces the default VADER scorer.
func WithScorer(s Scorer) AnalyzerOption {
	return func(a *Analyzer) {
		a.scorer = s
	}
}

// WithMarkdown strips markdown formatting and links before scoring.
func WithMarkdown() AnalyzerOption {
	return func(a *Analyzer) {
		a.markdown = true
	}
}

type Analyzer struct {
	scorer   Scorer
	markdown bool
}

func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{scorer: defaultScorer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores text and classifies the compound score. Panics raised by the
// scorer are not recovered.
func (a *Analyzer) Analyze(text string) Analysis {
	input := text
	if a.markdown {
		input = ConvertMarkdownToText(text)
	}

	scores := a.scorer.PolarityScores(input)

	var score *float64
	if !math.IsNaN(scores.Compound) {
		compound := scores.Compound
		score = &compound
	}

	return Analysis{
		Text:   text,
		Scores: scores,
		Score:  score,
		Mood:   ClassifyMood(score),
	}
}

// Package sentiment classifies mention text as positive, negative, or
// neutral with a continuous score, falling back through a chain of
// implementations so enrichment keeps making progress when the preferred
// classifier is unavailable.
package sentiment

import (
	"context"

	"github.com/ummatics/impact-monitor/internal/models"
)

// Result is one classification: a normalized score and the label derived
// from it.
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier scores a batch of texts. Implementations must return exactly
// one Result per input text or an error for the whole batch.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, texts []string) ([]Result, error)
}

// Thresholds define where the continuous score is cut into labels. The
// exact boundaries are tunable, not contractual, but must be applied
// consistently everywhere a label is derived.
type Thresholds struct {
	Positive float64
	Negative float64
}

// DefaultThresholds are a reasonable starting point, not a calibrated truth.
var DefaultThresholds = Thresholds{Positive: 0.1, Negative: -0.1}

// Label derives the label for a score. Labels are never stored or
// reported except through this function.
func (t Thresholds) Label(score float64) string {
	switch {
	case score > t.Positive:
		return models.SentimentPositive
	case score < t.Negative:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// Package classifier decides whether a lost item and a found item describe
// the same physical object.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

// ErrUnavailable wraps failures to reach a remote classifier after retries.
var ErrUnavailable = errors.New("classifier unavailable")

// Verdict is a classifier decision. Score is in [0, 1].
type Verdict struct {
	IsMatch bool    `json:"is_match"`
	Reason  string  `json:"reason"`
	Score   float64 `json:"score"`
}

// Classifier compares one lost item with one found item.
type Classifier interface {
	Classify(ctx context.Context, lost, found *model.Item) (Verdict, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, lost, found *model.Item) (Verdict, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, lost, found *model.Item) (Verdict, error) {
	return f(ctx, lost, found)
}

// New builds the classifier selected by cfg.Provider.
func New(ctx context.Context, cfg config.Classifier) (Classifier, error) {
	switch cfg.Provider {
	case config.ProviderHeuristic, "":
		return NewHeuristic(cfg.Threshold), nil
	case config.ProviderHTTP:
		return NewRemote(cfg.URL, cfg.APIKey, WithMaxRetries(cfg.MaxRetries)), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// dayDrift is how far a found date may precede the lost date, covering
// reports filed in different time zones or with only a date.
const dayDrift = 24 * time.Hour

// foundBeforeLost reports whether the found date precedes the lost date by
// more than dayDrift. Missing dates never disqualify a pair.
func foundBeforeLost(lost, found *model.Item) bool {
	if lost.OccurredAt.IsZero() || found.OccurredAt.IsZero() {
		return false
	}
	return found.OccurredAt.Before(lost.OccurredAt.Add(-dayDrift))
}

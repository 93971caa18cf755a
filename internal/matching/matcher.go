// Package matching pairs a newly reported item with same-campus reports of
// the opposite kind and records the pairs a classifier accepts.
package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/najdeno/internal/classifier"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

var (
	// ErrInvalidInput is returned when the item kind or ID is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrItemNotFound is returned when no item of the given kind has the ID.
	ErrItemNotFound = errors.New("item not found")
)

// notifyTimeout bounds recording the notifications of one match.
const notifyTimeout = 5 * time.Second

// Notifier is told about every newly recorded match.
type Notifier interface {
	MatchFound(ctx context.Context, m *model.Match, lost, found *model.Item) int
}

// Options bounds a single matching run.
type Options struct {
	// MaxCandidates caps the candidates considered, newest first. Zero means
	// no cap.
	MaxCandidates int
	// Concurrency is the number of parallel classifier calls.
	Concurrency int
	// ClassifierTimeout bounds each classifier call. Zero means only the
	// run's own deadline applies.
	ClassifierTimeout time.Duration
}

// Result summarizes a matching run.
type Result struct {
	ItemID string         `json:"item_id"`
	Kind   model.ItemKind `json:"kind"`
	// Candidates is the number of opposite-kind items on the same campus.
	Candidates int `json:"candidates"`
	// Capped is set when Candidates hit Options.MaxCandidates.
	Capped bool `json:"capped"`
	// Skipped counts pairs that already had a match.
	Skipped int `json:"skipped"`
	// Evaluated counts classifier calls that returned a verdict.
	Evaluated int `json:"evaluated"`
	// Failures counts classifier and storage errors for single pairs.
	Failures     int `json:"failures"`
	MatchesFound int `json:"matches_found"`
}

// Matcher runs the candidate scan for one item.
type Matcher struct {
	db         *sql.DB
	classifier classifier.Classifier
	notifier   Notifier
	opts       Options
	logger     *zap.Logger
}

// NewMatcher creates a matcher. The notifier and logger may be nil.
func NewMatcher(db *sql.DB, c classifier.Classifier, notifier Notifier, logger *zap.Logger, opts Options) *Matcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxCandidates < 0 {
		opts.MaxCandidates = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		db:         db,
		classifier: c,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
	}
}

type counters struct {
	skipped, evaluated, failures, found atomic.Int64
}

// Run scans the candidates for the item and records accepted pairs.
//
// Invalid input, an unknown item and a failed candidate query abort the run
// with an error. Failures for a single pair are logged and counted. When ctx
// ends mid-scan, the matches recorded so far stay and Run returns the partial
// result together with the context error.
func (m *Matcher) Run(ctx context.Context, kind model.ItemKind, itemID string) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: item type must be \"lost\" or \"found\"", ErrInvalidInput)
	}
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	item, err := store.GetItem(ctx, m.db, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading item: %w", err)
	}
	if item == nil || item.Kind != kind {
		return nil, fmt.Errorf("%w: %s item %s", ErrItemNotFound, kind, itemID)
	}

	log := m.logger.With(zap.String("item_id", item.ID), zap.String("kind", string(kind)), zap.String("campus", item.Campus))

	candidates, err := store.ListCandidates(ctx, m.db, kind.Opposite(), item.Campus, m.opts.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	res := &Result{ItemID: item.ID, Kind: kind, Candidates: len(candidates)}
	if m.opts.MaxCandidates > 0 && len(candidates) >= m.opts.MaxCandidates {
		res.Capped = true
		log.Warn("candidate cap reached, older reports are not considered", zap.Int("cap", m.opts.MaxCandidates))
	}

	var c counters
	var g errgroup.Group
	g.SetLimit(m.opts.Concurrency)
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		candidate := &candidates[i]
		g.Go(func() error {
			m.evaluate(ctx, log, item, candidate, &c)
			return nil
		})
	}
	g.Wait()

	res.Skipped = int(c.skipped.Load())
	res.Evaluated = int(c.evaluated.Load())
	res.Failures = int(c.failures.Load())
	res.MatchesFound = int(c.found.Load())

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("matching interrupted: %w", err)
	}
	return res, nil
}

// evaluate handles one candidate pair. It never returns an error; every
// failure is isolated to the pair.
func (m *Matcher) evaluate(ctx context.Context, log *zap.Logger, item, candidate *model.Item, c *counters) {
	if ctx.Err() != nil {
		return
	}

	lost, found := item, candidate
	if item.Kind == model.KindFound {
		lost, found = candidate, item
	}
	log = log.With(zap.String("lost_id", lost.ID), zap.String("found_id", found.ID))

	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			log.Error("classifier panicked", zap.Any("panic", r))
		}
	}()

	exists, err := store.MatchExists(ctx, m.db, lost.ID, found.ID)
	if err != nil {
		c.failures.Add(1)
		log.Error("checking existing match", zap.Error(err))
		return
	}
	if exists {
		c.skipped.Add(1)
		return
	}

	callCtx := ctx
	if m.opts.ClassifierTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.opts.ClassifierTimeout)
		defer cancel()
	}

	verdict, err := m.classifier.Classify(callCtx, lost, found)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.failures.Add(1)
		log.Warn("classifier failed, treating pair as no match", zap.Error(err))
		return
	}
	c.evaluated.Add(1)
	if !verdict.IsMatch {
		log.Debug("no match", zap.String("reason", verdict.Reason))
		return
	}

	match, err := store.CreateMatch(ctx, m.db, lost.ID, found.ID, verdict.Score, verdict.Reason)
	if errors.Is(err, store.ErrMatchExists) {
		c.skipped.Add(1)
		log.Debug("pair matched concurrently")
		return
	}
	if err != nil {
		c.failures.Add(1)
		log.Error("recording match", zap.Error(err))
		return
	}
	c.found.Add(1)
	log.Info("match recorded", zap.String("match_id", match.ID), zap.Float64("score", match.Score))

	// The match row is committed; its notifications must not be lost to the
	// run's deadline.
	if m.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		m.notifier.MatchFound(notifyCtx, match, lost, found)
	}
}

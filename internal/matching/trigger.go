package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erazemk/najdeno/internal/model"
)

// DefaultTimeout bounds a triggered run when none is configured.
const DefaultTimeout = 15 * time.Second

// ErrClosed is returned for runs requested after Close.
var ErrClosed = errors.New("trigger closed")

// Runner is satisfied by *Matcher.
type Runner interface {
	Run(ctx context.Context, kind model.ItemKind, itemID string) (*Result, error)
}

// Trigger starts matching runs after items are reported. Runs are bounded by
// a timeout, detached from every caller and coalesced per item.
type Trigger struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTrigger creates a trigger. A non-positive timeout selects DefaultTimeout.
func NewTrigger(runner Runner, timeout time.Duration, logger *zap.Logger) *Trigger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run matches the item and waits for the outcome. Concurrent calls for the
// same item share one run, which is bounded by the trigger timeout only; ctx
// ends the wait, never the shared run. Errors are returned as-is, including
// the partial result of a run that hit the timeout.
func (t *Trigger) Run(ctx context.Context, kind model.ItemKind, itemID string) (*Result, error) {
	select {
	case r := <-t.start(kind, itemID):
		res, _ := r.Val.(*Result)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fire starts a background run and returns immediately. Failures are logged.
func (t *Trigger) Fire(kind model.ItemKind, itemID string) {
	if !t.track() {
		t.logger.Warn("trigger closed, skipping match", zap.String("item_id", itemID))
		return
	}
	go func() {
		defer t.wg.Done()
		t.background(kind, itemID)
	}()
}

// FireAndWait starts a background run and waits for it at most the trigger
// timeout or until ctx ends. It returns nil when the run failed or did not
// finish in time; the run itself is never cancelled by ctx.
func (t *Trigger) FireAndWait(ctx context.Context, kind model.ItemKind, itemID string) *Result {
	if !t.track() {
		return nil
	}
	done := make(chan *Result, 1)
	go func() {
		defer t.wg.Done()
		done <- t.background(kind, itemID)
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Close cancels in-flight runs and waits for them to return. Later calls to
// Fire are ignored.
func (t *Trigger) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Trigger) track() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *Trigger) background(kind model.ItemKind, itemID string) *Result {
	log := t.logger.With(zap.String("item_id", itemID), zap.String("kind", string(kind)))
	start := time.Now()

	r := <-t.start(kind, itemID)
	res, _ := r.Val.(*Result)
	switch err := r.Err; {
	case errors.Is(err, context.DeadlineExceeded):
		fields := []zap.Field{zap.Duration("timeout", t.timeout)}
		if res != nil {
			fields = append(fields, zap.Int("matches_found", res.MatchesFound))
		}
		log.Warn("matching timed out", fields...)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		log.Info("matching cancelled")
		return nil
	case err != nil:
		log.Error("matching failed", zap.Error(err))
		return nil
	}

	log.Info("matching finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failures", res.Failures),
		zap.Int("matches_found", res.MatchesFound),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// start joins the run in progress for the item or begins a new one. The run
// only depends on the trigger's own context and timeout, so callers that stop
// waiting do not affect it. Panics become errors.
func (t *Trigger) start(kind model.ItemKind, itemID string) <-chan singleflight.Result {
	return t.group.DoChan(string(kind)+":"+itemID, func() (v any, err error) {
		if !t.track() {
			return nil, ErrClosed
		}
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("matching panicked: %v", r)
			}
		}()
		return t.runner.Run(ctx, kind, itemID)
	})
}

package matching

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erazemk/najdeno/internal/classifier"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/notify"
	"github.com/erazemk/najdeno/internal/store"
)

// TestMain ensures no matching goroutine outlives its run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newItem(t *testing.T, database *sql.DB, kind model.ItemKind, name, campus string) *model.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), database, &model.Item{
		Kind:        kind,
		Name:        name,
		Category:    "Wallet",
		Campus:      campus,
		OccurredAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		ContactName: "Ana",
	})
	require.NoError(t, err)
	return item
}

// pairLog records every pair handed to the classifier.
type pairLog struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (p *pairLog) add(lost, found *model.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs = append(p.pairs, [2]string{lost.ID, found.ID})
}

func (p *pairLog) seen(lostID, foundID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pair := range p.pairs {
		if pair == [2]string{lostID, foundID} {
			return true
		}
	}
	return false
}

func (p *pairLog) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pairs)
}

func always(isMatch bool, log *pairLog) classifier.Func {
	return func(_ context.Context, lost, found *model.Item) (classifier.Verdict, error) {
		if log != nil {
			log.add(lost, found)
		}
		if !isMatch {
			return classifier.Verdict{Reason: "different items"}, nil
		}
		return classifier.Verdict{IsMatch: true, Score: 0.9, Reason: "same item"}, nil
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	matches []*model.Match
}

func (r *recordingNotifier) MatchFound(_ context.Context, m *model.Match, _, _ *model.Item) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, m)
	return 1
}

func TestRunFindsSameCampusMatch(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lost := newItem(t, database, model.KindLost, "Black leather wallet", "North Campus")
	f1 := newItem(t, database, model.KindFound, "Black wallet", "North Campus")
	f2 := newItem(t, database, model.KindFound, "Red umbrella", "North Campus")
	f3 := newItem(t, database, model.KindFound, "Black wallet", "South Campus")

	pairs := &pairLog{}
	c := classifier.Func(func(_ context.Context, l, f *model.Item) (classifier.Verdict, error) {
		pairs.add(l, f)
		if strings.Contains(f.Name, "wallet") {
			return classifier.Verdict{IsMatch: true, Score: 0.8, Reason: "both are black wallets"}, nil
		}
		return classifier.Verdict{Reason: "different items"}, nil
	})
	notifier := &recordingNotifier{}
	m := NewMatcher(database, c, notifier, zaptest.NewLogger(t), Options{Concurrency: 4})

	res, err := m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.MatchesFound)
	assert.False(t, pairs.seen(lost.ID, f3.ID), "other campus must not be evaluated")
	assert.True(t, pairs.seen(lost.ID, f2.ID))

	matches, err := store.ListMatches(ctx, database, store.MatchFilter{ItemID: lost.ID})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, f1.ID, matches[0].FoundItemID)
	assert.Equal(t, model.MatchStatusPending, matches[0].Status)
	assert.Equal(t, "both are black wallets", matches[0].Reason)

	require.Len(t, notifier.matches, 1)
	assert.Equal(t, matches[0].ID, notifier.matches[0].ID)
}

func TestRunFromFoundSideOrientsPair(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lost := newItem(t, database, model.KindLost, "Keys", "West Campus")
	found := newItem(t, database, model.KindFound, "Keys", "West Campus")

	pairs := &pairLog{}
	m := NewMatcher(database, always(true, pairs), nil, nil, Options{})

	res, err := m.Run(ctx, model.KindFound, found.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesFound)
	assert.True(t, pairs.seen(lost.ID, found.ID))

	matches, err := store.ListMatches(ctx, database, store.MatchFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, lost.ID, matches[0].LostItemID)
	assert.Equal(t, found.ID, matches[0].FoundItemID)
}

func TestRunIsIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lost := newItem(t, database, model.KindLost, "Laptop", "North Campus")
	newItem(t, database, model.KindFound, "Laptop", "North Campus")

	pairs := &pairLog{}
	m := NewMatcher(database, always(true, pairs), nil, nil, Options{Concurrency: 2})

	first, err := m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MatchesFound)

	second, err := m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.MatchesFound)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, pairs.len(), "an existing pair must not be re-evaluated")

	matches, err := store.ListMatches(ctx, database, store.MatchFilter{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunNoMatchCreatesNothing(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lost := newItem(t, database, model.KindLost, "Scarf", "East Campus")
	for _, name := range []string{"Phone", "Book", "Umbrella", "Bottle", "Cap"} {
		newItem(t, database, model.KindFound, name, "East Campus")
	}

	m := NewMatcher(database, always(false, nil), nil, nil, Options{Concurrency: 3})
	res, err := m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Evaluated)
	assert.Equal(t, 0, res.MatchesFound)

	matches, err := store.ListMatches(ctx, database, store.MatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunZeroCandidates(t *testing.T) {
	database := db.NewTestDB(t)

	found := newItem(t, database, model.KindFound, "Watch", "Central Campus")
	newItem(t, database, model.KindLost, "Watch", "North Campus")

	pairs := &pairLog{}
	m := NewMatcher(database, always(true, pairs), nil, nil, Options{})
	res, err := m.Run(context.Background(), model.KindFound, found.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Equal(t, 0, res.MatchesFound)
	assert.Equal(t, 0, pairs.len())
}

func TestRunIsolatesClassifierFailures(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lost := newItem(t, database, model.KindLost, "Wallet", "North Campus")
	newItem(t, database, model.KindFound, "errors", "North Campus")
	newItem(t, database, model.KindFound, "panics", "North Campus")
	good := newItem(t, database, model.KindFound, "Wallet", "North Campus")

	c := classifier.Func(func(_ context.Context, _, f *model.Item) (classifier.Verdict, error) {
		switch f.Name {
		case "errors":
			return classifier.Verdict{}, classifier.ErrUnavailable
		case "panics":
			panic("boom")
		}
		return classifier.Verdict{IsMatch: true, Score: 1}, nil
	})

	core, logs := observer.New(zap.WarnLevel)
	m := NewMatcher(database, c, nil, zap.New(core), Options{Concurrency: 3})

	res, err := m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesFound)
	assert.Equal(t, 2, res.Failures)
	assert.Equal(t, 1, logs.FilterMessage("classifier failed, treating pair as no match").Len())
	assert.Equal(t, 1, logs.FilterMessage("classifier panicked").Len())

	matches, err := store.ListMatches(ctx, database, store.MatchFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, good.ID, matches[0].FoundItemID)
}

func TestRunRejectsBadInput(t *testing.T) {
	database := db.NewTestDB(t)
	lost := newItem(t, database, model.KindLost, "Bag", "North Campus")
	m := NewMatcher(database, always(true, nil), nil, nil, Options{})
	ctx := context.Background()

	_, err := m.Run(ctx, "stolen", lost.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Run(ctx, model.KindLost, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Run(ctx, model.KindLost, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = m.Run(ctx, model.KindFound, lost.ID)
	assert.ErrorIs(t, err, ErrItemNotFound, "kind must match the stored item")
}

func TestRunWarnsWhenCapped(t *testing.T) {
	database := db.NewTestDB(t)

	lost := newItem(t, database, model.KindLost, "Pen", "South Campus")
	for _, name := range []string{"Pen", "Pencil", "Marker"} {
		newItem(t, database, model.KindFound, name, "South Campus")
	}

	core, logs := observer.New(zap.WarnLevel)
	m := NewMatcher(database, always(false, nil), nil, zap.New(core), Options{MaxCandidates: 2})

	res, err := m.Run(context.Background(), model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.True(t, res.Capped)
	assert.Equal(t, 1, logs.FilterMessage("candidate cap reached, older reports are not considered").Len())
}

func TestRunDeadlineKeepsPartialResult(t *testing.T) {
	database := db.NewTestDB(t)

	lost := newItem(t, database, model.KindLost, "Wallet", "North Campus")
	fast := newItem(t, database, model.KindFound, "fast", "North Campus")
	newItem(t, database, model.KindFound, "slow", "North Campus")

	c := classifier.Func(func(ctx context.Context, _, f *model.Item) (classifier.Verdict, error) {
		if f.Name == "slow" {
			<-ctx.Done()
			return classifier.Verdict{}, ctx.Err()
		}
		return classifier.Verdict{IsMatch: true, Score: 1}, nil
	})
	m := NewMatcher(database, c, nil, nil, Options{Concurrency: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := m.Run(ctx, model.KindLost, lost.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.MatchesFound)
	assert.Equal(t, 0, res.Failures, "a deadline is not a classifier failure")

	matches, err := store.ListMatches(context.Background(), database, store.MatchFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, fast.ID, matches[0].FoundItemID)
}

func TestClassifierTimeoutIsPerCall(t *testing.T) {
	database := db.NewTestDB(t)

	lost := newItem(t, database, model.KindLost, "Wallet", "North Campus")
	newItem(t, database, model.KindFound, "hangs", "North Campus")
	newItem(t, database, model.KindFound, "Wallet", "North Campus")

	c := classifier.Func(func(ctx context.Context, _, f *model.Item) (classifier.Verdict, error) {
		if f.Name == "hangs" {
			<-ctx.Done()
			return classifier.Verdict{}, ctx.Err()
		}
		return classifier.Verdict{IsMatch: true, Score: 1}, nil
	})
	m := NewMatcher(database, c, nil, nil, Options{Concurrency: 1, ClassifierTimeout: 50 * time.Millisecond})

	res, err := m.Run(context.Background(), model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesFound)
	assert.Equal(t, 1, res.Failures)
}

func TestConcurrentRunsFromBothSidesCreateOneMatch(t *testing.T) {
	database := db.NewTestDB(t)

	lost := newItem(t, database, model.KindLost, "Headphones", "North Campus")
	found := newItem(t, database, model.KindFound, "Headphones", "North Campus")

	// Both runs reach the classifier before either records the pair.
	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	c := classifier.Func(func(ctx context.Context, _, _ *model.Item) (classifier.Verdict, error) {
		arrived.Done()
		select {
		case <-release:
		case <-ctx.Done():
			return classifier.Verdict{}, ctx.Err()
		}
		return classifier.Verdict{IsMatch: true, Score: 0.9}, nil
	})
	m := NewMatcher(database, c, nil, nil, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i, side := range []struct {
		kind model.ItemKind
		id   string
	}{{model.KindLost, lost.ID}, {model.KindFound, found.ID}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.Run(ctx, side.kind, side.id)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, results[0].MatchesFound+results[1].MatchesFound)
	assert.Equal(t, 1, results[0].Skipped+results[1].Skipped)

	matches, err := store.ListMatches(context.Background(), database, store.MatchFilter{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunStorageFailure(t *testing.T) {
	database := db.NewTestDB(t)
	lost := newItem(t, database, model.KindLost, "Bag", "North Campus")

	m := NewMatcher(database, always(true, nil), nil, nil, Options{})
	require.NoError(t, database.Close())

	_, err := m.Run(context.Background(), model.KindLost, lost.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrItemNotFound))
	assert.False(t, errors.Is(err, ErrInvalidInput))
}

type notifierFunc func(ctx context.Context, m *model.Match, lost, found *model.Item) int

func (f notifierFunc) MatchFound(ctx context.Context, m *model.Match, lost, found *model.Item) int {
	return f(ctx, m, lost, found)
}

// slowMailer holds every delivery until release is closed.
type slowMailer struct {
	release chan struct{}
}

func (s *slowMailer) Send(ctx context.Context, _ notify.Message) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunRecordsNotificationsWhenDeadlinePassesAfterMatch(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ana, err := store.CreateUser(ctx, database, "ana", "ana@example.com", "hash", model.RoleMember)
	require.NoError(t, err)
	bor, err := store.CreateUser(ctx, database, "bor", "bor@example.com", "hash", model.RoleMember)
	require.NoError(t, err)
	report := func(kind model.ItemKind, owner int64) *model.Item {
		item, err := store.CreateItem(ctx, database, &model.Item{
			Kind: kind, Name: "Wallet", Category: "Wallet", Campus: "North Campus",
			OccurredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), ContactName: "Ana", OwnerID: &owner,
		})
		require.NoError(t, err)
		return item
	}
	lost := report(model.KindLost, ana.ID)
	report(model.KindFound, bor.ID)

	mailer := &slowMailer{release: make(chan struct{})}
	svc := notify.NewService(database, mailer, "", zaptest.NewLogger(t))

	// The run ends right after the match row is committed.
	runCtx, cancelRun := context.WithTimeout(ctx, 5*time.Second)
	defer cancelRun()
	notifier := notifierFunc(func(ctx context.Context, m *model.Match, l, f *model.Item) int {
		cancelRun()
		return svc.MatchFound(ctx, m, l, f)
	})

	m := NewMatcher(database, always(true, nil), notifier, zaptest.NewLogger(t), Options{})
	res, err := m.Run(runCtx, model.KindLost, lost.ID)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.MatchesFound)

	for _, userID := range []int64{ana.ID, bor.ID} {
		list, err := store.ListNotifications(ctx, database, userID, false)
		require.NoError(t, err)
		require.Len(t, list, 1, "user %d", userID)
		assert.Equal(t, model.ChannelInApp, list[0].Channel)
	}

	close(mailer.release)
	svc.Wait()
	list, err := store.ListNotifications(ctx, database, ana.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ChannelEmail, list[0].Channel)

	res, err = m.Run(ctx, model.KindLost, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.MatchesFound)
}

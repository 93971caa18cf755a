package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdeno/internal/model"
)

func item(kind model.ItemKind, name, description, category, location string, day int) *model.Item {
	return &model.Item{
		Kind:        kind,
		Name:        name,
		Description: description,
		Category:    category,
		Location:    location,
		Campus:      "North Campus",
		OccurredAt:  time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestHeuristicMatchesSimilarReports(t *testing.T) {
	lost := item(model.KindLost, "Blue umbrella", "Blue umbrella with wooden handle", "Other", "Library", 10)
	found := item(model.KindFound, "Umbrella (blue)", "Found a blue umbrella, wooden handle", "Other", "Library 2nd floor", 11)

	v, err := NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.True(t, v.IsMatch, "verdict: %+v", v)
	assert.Greater(t, v.Score, DefaultThreshold)
	assert.Contains(t, v.Reason, "umbrella")
}

func TestHeuristicRejectsDifferentCategories(t *testing.T) {
	lost := item(model.KindLost, "Black wallet", "", "Wallet", "Cafeteria", 10)
	found := item(model.KindFound, "Black wallet", "", "Bag", "Cafeteria", 10)

	v, err := NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.False(t, v.IsMatch)
	assert.Zero(t, v.Score)
}

func TestHeuristicRejectsFoundBeforeLost(t *testing.T) {
	lost := item(model.KindLost, "Keys", "Car keys", "Keys", "Gym", 10)
	found := item(model.KindFound, "Keys", "Car keys", "Keys", "Gym", 5)

	v, err := NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.False(t, v.IsMatch)

	// Same day reports in different time zones still match.
	found.OccurredAt = lost.OccurredAt.Add(-12 * time.Hour)
	v, err = NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.True(t, v.IsMatch)
}

func TestHeuristicRejectsUnrelatedReports(t *testing.T) {
	lost := item(model.KindLost, "Calculator", "Casio scientific calculator", "Electronics", "Room 101", 10)
	found := item(model.KindFound, "Headphones", "Sony wireless headphones", "Electronics", "Auditorium", 11)

	v, err := NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.False(t, v.IsMatch)
	assert.Equal(t, "no words in common", v.Reason)
}

func TestHeuristicFoldsDiacritics(t *testing.T) {
	lost := item(model.KindLost, "Ključi", "Ključi s peresom", "Keys", "", 10)
	found := item(model.KindFound, "KLJUCI", "kljuci s peresom", "Keys", "", 10)

	v, err := NewHeuristic(0).Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.True(t, v.IsMatch, "verdict: %+v", v)
	assert.InDelta(t, 1.0, v.Score, 0.001)
}

func TestHeuristicHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristic(0).Classify(ctx, &model.Item{}, &model.Item{})
	assert.ErrorIs(t, err, context.Canceled)
}

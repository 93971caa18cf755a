package classifier

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/erazemk/najdeno/internal/model"
)

// DefaultThreshold is the score a pair needs to count as a match.
const DefaultThreshold = 0.45

// Field weights. Fields empty on either side are left out and the remaining
// weights are renormalized.
const (
	nameWeight        = 0.5
	descriptionWeight = 0.3
	locationWeight    = 0.2
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "with": true, "for": true, "my": true, "it": true, "is": true,
	"was": true, "near": true, "from": true, "by": true, "or": true, "lost": true, "found": true,
}

// Heuristic is a local classifier comparing words of the two reports.
// It needs no network and is deterministic.
type Heuristic struct {
	threshold float64
}

// NewHeuristic returns a heuristic classifier. A non-positive threshold
// selects DefaultThreshold.
func NewHeuristic(threshold float64) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{threshold: threshold}
}

// Classify implements Classifier.
func (h *Heuristic) Classify(ctx context.Context, lost, found *model.Item) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	if lost.Category != "" && found.Category != "" && fold(lost.Category) != fold(found.Category) {
		return Verdict{Reason: fmt.Sprintf("different categories (%s, %s)", lost.Category, found.Category)}, nil
	}
	if foundBeforeLost(lost, found) {
		return Verdict{Reason: "found before it was lost"}, nil
	}

	fields := []struct {
		weight      float64
		lost, found string
	}{
		{nameWeight, lost.Name, found.Name},
		{descriptionWeight, lost.Name + " " + lost.Description, found.Name + " " + found.Description},
		{locationWeight, lost.Location, found.Location},
	}

	var score, total float64
	shared := map[string]bool{}
	for _, f := range fields {
		a, b := tokens(f.lost), tokens(f.found)
		if len(a) == 0 || len(b) == 0 {
			continue
		}
		total += f.weight
		score += f.weight * dice(a, b, shared)
	}
	if total > 0 {
		score /= total
	}
	score = clampScore(score)

	words := make([]string, 0, len(shared))
	for w := range shared {
		words = append(words, w)
	}
	slices.Sort(words)

	v := Verdict{IsMatch: score >= h.threshold, Score: score}
	switch {
	case len(words) == 0:
		v.Reason = "no words in common"
	case v.IsMatch:
		v.Reason = "shared words: " + strings.Join(words, ", ")
	default:
		v.Reason = fmt.Sprintf("too little in common (%.2f): %s", score, strings.Join(words, ", "))
	}
	return v, nil
}

// dice returns the Dice coefficient of two word sets and records the
// intersection in shared.
func dice(a, b map[string]bool, shared map[string]bool) float64 {
	common := 0
	for w := range a {
		if b[w] {
			common++
			shared[w] = true
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}

// tokens splits folded text into a set of meaningful words.
func tokens(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 2 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// fold case-folds s and strips diacritics so "Ključi" and "kljuci" compare
// equal. Transformers keep state, so a fresh chain is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

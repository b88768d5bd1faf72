// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package collaborative

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoEstimate reports that the matrix carries too little signal to estimate
// a preference for the (user, item) pair. Callers must treat it as "unknown",
// never as a zero preference.
var ErrNoEstimate = errors.New("no preference estimate")

// Estimator predicts the preference a user would express for an item.
type Estimator interface {
	// Estimate returns a preference in [-1,1] or ErrNoEstimate.
	Estimate(m *Matrix, user, item string) (float64, error)
}

// UserNeighborhoodEstimator predicts from the k most similar users who rated
// the item, weighting their preferences by cosine similarity over the rows.
type UserNeighborhoodEstimator struct {
	// Neighbors caps how many similar users contribute.
	Neighbors int

	// MinSimilarity excludes weakly similar users entirely.
	MinSimilarity float64
}

type neighbor struct {
	user       string
	similarity float64
}

// Estimate computes the similarity-weighted mean preference of the item's
// raters among the user's nearest neighbors.
func (e UserNeighborhoodEstimator) Estimate(m *Matrix, user, item string) (float64, error) {
	own := m.UserRow(user)
	if len(own) == 0 {
		return 0, fmt.Errorf("user %s has no preferences: %w", user, ErrNoEstimate)
	}
	raters := m.ItemColumn(item)
	delete(raters, user)
	if len(raters) == 0 {
		return 0, fmt.Errorf("item %s has no raters: %w", item, ErrNoEstimate)
	}

	neighbors := make([]neighbor, 0, len(raters))
	for other := range raters {
		sim := rowCosine(own, m.UserRow(other))
		if sim >= e.MinSimilarity && sim > 0 {
			neighbors = append(neighbors, neighbor{user: other, similarity: sim})
		}
	}
	if len(neighbors) == 0 {
		return 0, fmt.Errorf("no neighbors above similarity floor: %w", ErrNoEstimate)
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].similarity != neighbors[j].similarity {
			return neighbors[i].similarity > neighbors[j].similarity
		}
		return neighbors[i].user < neighbors[j].user
	})
	if e.Neighbors > 0 && len(neighbors) > e.Neighbors {
		neighbors = neighbors[:e.Neighbors]
	}

	var weighted, mass float64
	for _, n := range neighbors {
		weighted += n.similarity * raters[n.user]
		mass += n.similarity
	}
	if mass == 0 {
		return 0, fmt.Errorf("zero similarity mass: %w", ErrNoEstimate)
	}
	return clampPreference(weighted / mass), nil
}

// SlopeOneEstimator predicts from the average pairwise preference difference
// between the target item and the items the user already rated.
type SlopeOneEstimator struct{}

// Estimate applies weighted slope one over the user's rated items.
func (SlopeOneEstimator) Estimate(m *Matrix, user, item string) (float64, error) {
	own := m.UserRow(user)
	delete(own, item)
	if len(own) == 0 {
		return 0, fmt.Errorf("user %s has no other preferences: %w", user, ErrNoEstimate)
	}
	target := m.ItemColumn(item)
	delete(target, user)
	if len(target) == 0 {
		return 0, fmt.Errorf("item %s has no raters: %w", item, ErrNoEstimate)
	}

	var weighted float64
	var support int
	for other, ownPref := range own {
		col := m.ItemColumn(other)
		diff, n := averageDiff(target, col)
		if n == 0 {
			continue
		}
		weighted += float64(n) * (ownPref + diff)
		support += n
	}
	if support == 0 {
		return 0, fmt.Errorf("no co-rated items: %w", ErrNoEstimate)
	}
	return clampPreference(weighted / float64(support)), nil
}

// averageDiff returns the mean of target-other over users who rated both,
// plus the co-rater count.
func averageDiff(target, other map[string]float64) (float64, int) {
	var sum float64
	n := 0
	for user, tp := range target {
		op, ok := other[user]
		if !ok {
			continue
		}
		sum += tp - op
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func rowCosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for k, av := range a {
		if bv, ok := b[k]; ok {
			dot += av * bv
		}
		normA += av * av
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clampPreference(p float64) float64 {
	if p < -1 {
		return -1
	}
	if p > 1 {
		return 1
	}
	return p
}

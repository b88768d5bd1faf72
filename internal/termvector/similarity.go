// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package termvector

import (
	"math"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// EntryWeight resolves the externally visible weight of a model entry. The
// integration strategy of the active user model provides this; the similarity
// strategies stay agnostic of plain vs time-binned models.
type EntryWeight func(entry *models.UserModelEntry) float64

// SimilarityStrategy combines a message's term vector M (each term weight 1
// from extraction) with a user's matching entries E into one scalar. The
// per-term entry contribution is entryWeight(t) * importance(t) where the
// entry exists, else 0. Cosine is normalized into [0,1]; average and max are
// bounded by the largest per-term contribution and can exceed 1 when the
// importance weights do, so callers needing a [0,1] feature clamp the result.
type SimilarityStrategy interface {
	Name() string
	Similarity(messageTerms []*models.ScoredTerm, entries map[string]*models.UserModelEntry, weight WeightStrategy, entryWeight EntryWeight) float64
}

// entryValue computes entryWeight(t) * importance(t) for one message term.
func entryValue(t *models.ScoredTerm, entries map[string]*models.UserModelEntry, weight WeightStrategy, entryWeight EntryWeight) float64 {
	e, ok := entries[t.Term.Key()]
	if !ok {
		return 0
	}
	return entryWeight(e) * weight.Weight(e.ScoredTerm.Term)
}

// CosineSimilarity is the normalized dot product over the union of message
// terms and matching entries.
type CosineSimilarity struct{}

// Name returns the strategy identifier.
func (CosineSimilarity) Name() string { return "cosine" }

// Similarity returns dot(M, E') / (|M| * |E'|) where E'(t) = entryWeight(t) *
// importance(t). An empty side yields 0.
func (CosineSimilarity) Similarity(messageTerms []*models.ScoredTerm, entries map[string]*models.UserModelEntry, weight WeightStrategy, entryWeight EntryWeight) float64 {
	var dot, msgNorm float64
	for _, t := range messageTerms {
		msgNorm += t.Weight * t.Weight
		dot += t.Weight * entryValue(t, entries, weight, entryWeight)
	}
	var entryNorm float64
	for _, e := range entries {
		v := entryWeight(e) * weight.Weight(e.ScoredTerm.Term)
		entryNorm += v * v
	}
	if dot == 0 || msgNorm == 0 || entryNorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(msgNorm) * math.Sqrt(entryNorm))
}

// AverageSimilarity averages the per-term entry contributions over all
// message terms, counting missing entries as 0.
type AverageSimilarity struct{}

// Name returns the strategy identifier.
func (AverageSimilarity) Name() string { return "average" }

// Similarity returns sum(entryWeight(t)*importance(t)) / |M|.
func (AverageSimilarity) Similarity(messageTerms []*models.ScoredTerm, entries map[string]*models.UserModelEntry, weight WeightStrategy, entryWeight EntryWeight) float64 {
	if len(messageTerms) == 0 {
		return 0
	}
	var sum float64
	for _, t := range messageTerms {
		sum += entryValue(t, entries, weight, entryWeight)
	}
	return sum / float64(len(messageTerms))
}

// MaxSimilarity takes the strongest per-term entry contribution.
type MaxSimilarity struct{}

// Name returns the strategy identifier.
func (MaxSimilarity) Name() string { return "max" }

// Similarity returns max over t in M of entryWeight(t)*importance(t).
func (MaxSimilarity) Similarity(messageTerms []*models.ScoredTerm, entries map[string]*models.UserModelEntry, weight WeightStrategy, entryWeight EntryWeight) float64 {
	var best float64
	for _, t := range messageTerms {
		if v := entryValue(t, entries, weight, entryWeight); v > best {
			best = v
		}
	}
	return best
}

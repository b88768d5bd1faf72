// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package termvector implements the content-matching subsystem: term
// importance weighting over global occurrence counts and term-vector
// similarity between a message and a user's matching model entries.
package termvector

import (
	"math"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// FrequencyProvider supplies the global counts the weighting strategies need:
// N, the total number of messages, and per-term occurrence counts carried on
// the terms themselves.
type FrequencyProvider interface {
	MessageCount() int64
}

// StaticFrequency is a FrequencyProvider pinned to a fixed message count.
type StaticFrequency int64

// MessageCount returns the pinned count.
func (f StaticFrequency) MessageCount() int64 { return int64(f) }

// WeightStrategy computes the importance weight of a term. All strategies are
// monotonically non-increasing in the term's occurrence count: frequent terms
// matter less.
type WeightStrategy interface {
	Name() string
	Weight(term *models.Term) float64
}

// TrivialWeight weighs every term 1.
type TrivialWeight struct{}

// Name returns the strategy identifier.
func (TrivialWeight) Name() string { return "trivial" }

// Weight returns 1 for every term.
func (TrivialWeight) Weight(_ *models.Term) float64 { return 1 }

// InverseFrequencyWeight computes ln(N/n) for a term occurring in n of N
// messages.
type InverseFrequencyWeight struct {
	Frequency FrequencyProvider
}

// Name returns the strategy identifier.
func (w InverseFrequencyWeight) Name() string { return "inverse_frequency" }

// Weight returns ln(N/n). Unseen terms (n=0) and an empty corpus yield 0.
func (w InverseFrequencyWeight) Weight(term *models.Term) float64 {
	n := term.Count
	total := w.Frequency.MessageCount()
	if n <= 0 || total <= 0 {
		return 0
	}
	return math.Log(float64(total) / float64(n))
}

// LinearInverseFrequencyWeight computes 1 - n/N clamped to [Min, Max].
type LinearInverseFrequencyWeight struct {
	Frequency FrequencyProvider
	Min       float64
	Max       float64
}

// Name returns the strategy identifier.
func (w LinearInverseFrequencyWeight) Name() string { return "linear_inverse_frequency" }

// Weight returns clamp(1 - n/N, Min, Max).
func (w LinearInverseFrequencyWeight) Weight(term *models.Term) float64 {
	total := w.Frequency.MessageCount()
	if total <= 0 {
		return w.Min
	}
	v := 1 - float64(term.Count)/float64(total)
	if v < w.Min {
		return w.Min
	}
	if v > w.Max {
		return w.Max
	}
	return v
}

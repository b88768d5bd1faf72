// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package usermodel implements how learning events fold into user model
// entries: the plain running-average integration and the time-binned variant
// with optional per-bin decay.
package usermodel

import (
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
)

// IntegrationStrategy routes one learning event into an entry and derives the
// entry's externally visible weight.
type IntegrationStrategy interface {
	Name() string

	// Integrate folds one observed interest into the entry at the given
	// logical time.
	Integrate(entry *models.UserModelEntry, interest float64, now time.Time)

	// Weight derives the entry's externally visible weight.
	Weight(entry *models.UserModelEntry) float64
}

// PlainIntegration keeps a running average of observed interests: the weight
// is seeded at the first observed interest and converges toward subsequent
// ones.
type PlainIntegration struct{}

// Name returns the strategy identifier.
func (PlainIntegration) Name() string { return "plain" }

// Integrate adds the interest to the running sum.
func (PlainIntegration) Integrate(entry *models.UserModelEntry, interest float64, _ time.Time) {
	entry.ScoreSum += interest
	entry.ScoreCount++
	entry.ScoredTerm.Weight = entry.ScoreSum / float64(entry.ScoreCount)
}

// Weight returns scoreSum / scoreCount; an empty entry weighs 0.
func (PlainIntegration) Weight(entry *models.UserModelEntry) float64 {
	if entry.ScoreCount == 0 {
		return 0
	}
	return entry.ScoreSum / float64(entry.ScoreCount)
}

// TimeBinnedIntegration routes each event into the bin covering the logical
// time of the event and aggregates across bins with optional decay.
//
// Writes into bin k never alter what bin k+1 contributes; only the aggregate
// recomputation sees all bins.
type TimeBinnedIntegration struct {
	// BinWidth is the logical width of one bin.
	BinWidth time.Duration

	// Decay in (0,1] is applied once per bin of age when aggregating: a bin
	// that is a bins older than the newest contributes with factor Decay^a.
	// 1 disables decay.
	Decay float64
}

// Name returns the strategy identifier.
func (TimeBinnedIntegration) Name() string { return "time_binned" }

// Integrate routes the interest into the bin covering now and recomputes the
// entry's visible weight over all bins.
func (s TimeBinnedIntegration) Integrate(entry *models.UserModelEntry, interest float64, now time.Time) {
	bin := entry.Bin(timeframe.BinStart(now, s.BinWidth).Unix())
	bin.ScoreSum += interest
	bin.ScoreCount++
	entry.ScoreSum += interest
	entry.ScoreCount++
	entry.ScoredTerm.Weight = s.Weight(entry)
}

// Weight aggregates the bins ordered by BinStart, decaying older bins.
func (s TimeBinnedIntegration) Weight(entry *models.UserModelEntry) float64 {
	if len(entry.TimeBins) == 0 {
		return 0
	}
	decay := s.Decay
	if decay <= 0 || decay > 1 {
		decay = 1
	}
	// Bins are kept sorted by BinStart; the last one is the newest.
	newest := entry.TimeBins[len(entry.TimeBins)-1].BinStart
	width := int64(s.BinWidth / time.Second)

	var sum, weight float64
	for i := range entry.TimeBins {
		b := &entry.TimeBins[i]
		factor := 1.0
		if width > 0 && decay < 1 {
			age := (newest - b.BinStart) / width
			for a := int64(0); a < age; a++ {
				factor *= decay
			}
		}
		sum += factor * b.ScoreSum
		weight += factor * float64(b.ScoreCount)
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// CleanupResult reports what a profile cleanup pass removed.
type CleanupResult struct {
	Inspected int
	Removed   int
}

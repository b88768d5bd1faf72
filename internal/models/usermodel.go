// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package models

import "time"

// Well-known user model types. A user may own several independent models,
// one per type.
const (
	// UserModelTypeDefault is the global interest profile.
	UserModelTypeDefault = "default"
	// UserModelTypeMessageGroup is the message-group-specific profile.
	UserModelTypeMessageGroup = "message_group"
)

// UserModel identifies one interest profile of one user. The entries hang off
// the model in the store; the model row itself is just identity.
type UserModel struct {
	ID           int64  `json:"id"`
	UserGlobalID string `json:"user_global_id"`
	ModelType    string `json:"model_type"`
}

// UserModelEntryTimeBin is one time bucket of a time-binned entry. BinStart
// is the inclusive start of the bucket on the logical clock.
type UserModelEntryTimeBin struct {
	BinStart   int64   `json:"bin_start"`
	ScoreSum   float64 `json:"score_sum"`
	ScoreCount int     `json:"score_count"`
}

// UserModelEntry associates one term with a user's learned interest in it.
//
// The externally visible weight of the entry (ScoredTerm.Weight) is derived
// from ScoreSum/ScoreCount by the model's integration strategy, or from the
// time bins ordered by BinStart for time-binned models. Entries are mutated
// only by the learner and the adaptation handler, and removed only by an
// explicit cleanup pass.
type UserModelEntry struct {
	ID         int64       `json:"id"`
	ScoredTerm *ScoredTerm `json:"scored_term"`
	ScoreSum   float64     `json:"score_sum"`
	ScoreCount int         `json:"score_count"`

	// Adapted marks entries that were propagated from a similar user's model
	// rather than learned from the user's own activity.
	Adapted bool `json:"adapted,omitempty"`

	// TimeBins are present only for models using time-binned integration,
	// ordered by BinStart.
	TimeBins []UserModelEntryTimeBin `json:"time_bins,omitempty"`
}

// Bin returns the time bin starting at binStart, creating it in order if
// missing.
func (e *UserModelEntry) Bin(binStart int64) *UserModelEntryTimeBin {
	idx := len(e.TimeBins)
	for i := range e.TimeBins {
		if e.TimeBins[i].BinStart == binStart {
			return &e.TimeBins[i]
		}
		if e.TimeBins[i].BinStart > binStart {
			idx = i
			break
		}
	}
	e.TimeBins = append(e.TimeBins, UserModelEntryTimeBin{})
	copy(e.TimeBins[idx+1:], e.TimeBins[idx:])
	e.TimeBins[idx] = UserModelEntryTimeBin{BinStart: binStart}
	return &e.TimeBins[idx]
}

// TotalBinCount sums ScoreCount across all bins.
func (e *UserModelEntry) TotalBinCount() int {
	n := 0
	for i := range e.TimeBins {
		n += e.TimeBins[i].ScoreCount
	}
	return n
}

// Clone returns a deep copy of the entry. Used by the adaptation handler so
// that propagated entries never alias the source model's state.
func (e *UserModelEntry) Clone() *UserModelEntry {
	c := *e
	if e.ScoredTerm != nil {
		st := *e.ScoredTerm
		c.ScoredTerm = &st
	}
	if e.TimeBins != nil {
		c.TimeBins = make([]UserModelEntryTimeBin, len(e.TimeBins))
		copy(c.TimeBins, e.TimeBins)
	}
	return &c
}

// UserSimilarity is a directional, optionally group-scoped similarity between
// two users, recomputed in batch and consumed by the adaptation handler.
type UserSimilarity struct {
	FromUserGlobalID string    `json:"from_user_global_id"`
	ToUserGlobalID   string    `json:"to_user_global_id"`
	GroupGlobalID    string    `json:"group_global_id,omitempty"`
	Similarity       float64   `json:"similarity"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package learner

import (
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// EffectiveInterest resolves the single interest value a set of observations
// expresses for one (user, message) pair.
//
// Selection order: higher Priority wins; within a priority, the observation
// type appearing later in precedence wins; within a type, an observation
// carrying an explicit interest beats one without, then the higher interest
// wins, then the later timestamp. The winner's interest pointer is returned
// as-is, so a winning observation without an explicit interest yields nil.
func EffectiveInterest(observations []*models.Observation, precedence []models.ObservationType) (*models.Interest, bool) {
	if len(precedence) == 0 {
		precedence = models.DefaultObservationPrecedence
	}
	rank := make(map[models.ObservationType]int, len(precedence))
	for i, t := range precedence {
		rank[t] = i
	}

	var best *models.Observation
	for _, obs := range observations {
		if best == nil || stronger(obs, best, rank) {
			best = obs
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Interest, true
}

func stronger(a, b *models.Observation, rank map[models.ObservationType]int) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if ra, rb := rank[a.Type], rank[b.Type]; ra != rb {
		return ra > rb
	}
	switch {
	case a.Interest != nil && b.Interest == nil:
		return true
	case a.Interest == nil && b.Interest != nil:
		return false
	case a.Interest != nil && *a.Interest != *b.Interest:
		return *a.Interest > *b.Interest
	}
	return a.Timestamp.After(b.Timestamp)
}

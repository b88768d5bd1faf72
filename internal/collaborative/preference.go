// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package collaborative

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/learner"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// ScoreToPreference maps a relevance score in [0,1] onto the signed
// preference scale [-1,1] the estimators work on.
func ScoreToPreference(score float64) float64 {
	return score*2 - 1
}

// PreferenceFromEstimate maps an estimated preference back into a clamped
// relevance score. PreferenceFromEstimate(ScoreToPreference(s)) == s for any
// s in [0,1].
func PreferenceFromEstimate(estimate float64) float64 {
	s := (estimate + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Matrix is a sparse user-item preference matrix. Items are message global
// IDs or term keys depending on the configured item axis; zero preferences
// are never stored, so "no entry" and "indifferent" coincide.
type Matrix struct {
	mu sync.RWMutex

	// byUser[user][item] = preference in [-1,1] \ {0}
	byUser map[string]map[string]float64
	// byItem[item][user] mirrors byUser for item-centric estimators.
	byItem map[string]map[string]float64
}

// NewMatrix returns an empty preference matrix.
func NewMatrix() *Matrix {
	return &Matrix{
		byUser: make(map[string]map[string]float64),
		byItem: make(map[string]map[string]float64),
	}
}

// Set records a preference, dropping zero values.
func (m *Matrix) Set(user, item string, pref float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pref == 0 {
		delete(m.byUser[user], item)
		delete(m.byItem[item], user)
		return
	}
	if m.byUser[user] == nil {
		m.byUser[user] = make(map[string]float64)
	}
	if m.byItem[item] == nil {
		m.byItem[item] = make(map[string]float64)
	}
	m.byUser[user][item] = pref
	m.byItem[item][user] = pref
}

// Preference returns the stored preference and whether one exists.
func (m *Matrix) Preference(user, item string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byUser[user][item]
	return p, ok
}

// UserRow returns a copy of one user's preferences.
func (m *Matrix) UserRow(user string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row := make(map[string]float64, len(m.byUser[user]))
	for item, p := range m.byUser[user] {
		row[item] = p
	}
	return row
}

// ItemColumn returns a copy of one item's preferences across users.
func (m *Matrix) ItemColumn(item string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col := make(map[string]float64, len(m.byItem[item]))
	for user, p := range m.byItem[item] {
		col[user] = p
	}
	return col
}

// Users lists every user with at least one preference, sorted.
func (m *Matrix) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.byUser))
	for u, row := range m.byUser {
		if len(row) > 0 {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// Items lists every item with at least one preference, sorted.
func (m *Matrix) Items() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]string, 0, len(m.byItem))
	for it, col := range m.byItem {
		if len(col) > 0 {
			items = append(items, it)
		}
	}
	sort.Strings(items)
	return items
}

// Len returns the number of stored preferences.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, row := range m.byUser {
		n += len(row)
	}
	return n
}

// MatrixBuilder fills preference matrices from stored observations.
type MatrixBuilder struct {
	Store persistence.Store

	// Item selects the item axis: whole messages or single terms.
	Item config.CollaborativeItem

	// Precedence orders observation types for interest resolution; empty
	// means the default precedence.
	Precedence []models.ObservationType
}

// Build constructs the matrix over every user's observations. When the item
// axis is terms, a message's preference is fanned out to each of its terms.
func (b *MatrixBuilder) Build(ctx context.Context) (*Matrix, error) {
	userIDs, err := b.Store.GetUserGlobalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	m := NewMatrix()
	for _, userID := range userIDs {
		if err := b.addUser(ctx, m, userID); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (b *MatrixBuilder) addUser(ctx context.Context, m *Matrix, userID string) error {
	observations, err := b.Store.GetObservationsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load observations of %s: %w", userID, err)
	}
	byMessage := make(map[string][]*models.Observation)
	for _, obs := range observations {
		byMessage[obs.MessageGlobalID] = append(byMessage[obs.MessageGlobalID], obs)
	}
	for msgID, obs := range byMessage {
		interest, ok := learner.EffectiveInterest(obs, b.Precedence)
		if !ok || interest == nil {
			continue
		}
		pref := ScoreToPreference(float64(*interest))
		switch b.Item {
		case config.CollaborativeItemTerm:
			msg, err := b.Store.GetMessageByGlobalID(ctx, msgID)
			if err != nil {
				// Observation outlived the message; skip it.
				continue
			}
			for _, st := range msg.Terms {
				m.Set(userID, st.Term.Key(), pref)
			}
		default:
			m.Set(userID, msgID, pref)
		}
	}
	return nil
}

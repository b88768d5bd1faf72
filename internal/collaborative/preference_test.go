// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package collaborative

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence/memstore"
)

var prefNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func TestPreferenceMapping(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, -1},
		{0.25, -0.5},
		{0.5, 0},
		{0.75, 0.5},
		{1, 1},
	}
	for _, tt := range tests {
		if got := ScoreToPreference(tt.score); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ScoreToPreference(%v) = %v, want %v", tt.score, got, tt.want)
		}
		// Round trip back to the score scale.
		if got := PreferenceFromEstimate(tt.want); math.Abs(got-tt.score) > 1e-9 {
			t.Errorf("PreferenceFromEstimate(%v) = %v, want %v", tt.want, got, tt.score)
		}
	}
}

func TestPreferenceFromEstimateClamps(t *testing.T) {
	if got := PreferenceFromEstimate(-1.5); got != 0 {
		t.Errorf("PreferenceFromEstimate(-1.5) = %v, want 0", got)
	}
	if got := PreferenceFromEstimate(2.3); got != 1 {
		t.Errorf("PreferenceFromEstimate(2.3) = %v, want 1", got)
	}
}

func TestMatrixSetAndLookup(t *testing.T) {
	m := NewMatrix()
	m.Set("alice", "m1", 0.5)
	m.Set("alice", "m2", -1)
	m.Set("bob", "m1", 1)

	if p, ok := m.Preference("alice", "m1"); !ok || p != 0.5 {
		t.Errorf("Preference(alice, m1) = %v, %v, want 0.5, true", p, ok)
	}
	if _, ok := m.Preference("alice", "m3"); ok {
		t.Error("Preference for an unset item reported present")
	}
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}

	users := m.Users()
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("Users = %v, want [alice bob]", users)
	}
	items := m.Items()
	if len(items) != 2 || items[0] != "m1" || items[1] != "m2" {
		t.Errorf("Items = %v, want [m1 m2]", items)
	}
}

func TestMatrixZeroDropsEntry(t *testing.T) {
	m := NewMatrix()
	m.Set("alice", "m1", 0.5)
	m.Set("alice", "m1", 0)

	if _, ok := m.Preference("alice", "m1"); ok {
		t.Error("zero preference still stored")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
	if got := len(m.ItemColumn("m1")); got != 0 {
		t.Errorf("item column size = %d, want 0", got)
	}
}

func TestMatrixReturnsCopies(t *testing.T) {
	m := NewMatrix()
	m.Set("alice", "m1", 0.5)

	row := m.UserRow("alice")
	row["m1"] = -1
	if p, _ := m.Preference("alice", "m1"); p != 0.5 {
		t.Errorf("mutating a returned row changed the matrix: %v", p)
	}

	col := m.ItemColumn("m1")
	col["alice"] = -1
	if p, _ := m.Preference("alice", "m1"); p != 0.5 {
		t.Errorf("mutating a returned column changed the matrix: %v", p)
	}
}

func ratingObservation(user, message string, interest models.Interest) *models.Observation {
	return &models.Observation{
		UserGlobalID:    user,
		MessageGlobalID: message,
		Type:            models.ObservationRating,
		Priority:        models.PriorityUser,
		Interest:        &interest,
		Timestamp:       prefNow,
	}
}

func buildFixtureStore(t *testing.T) persistence.Store {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, u := range []string{"alice", "bob"} {
		if _, err := store.GetOrCreateUser(ctx, u); err != nil {
			t.Fatalf("GetOrCreateUser: %v", err)
		}
	}

	var scored []*models.ScoredTerm
	for _, v := range []string{"linux", "kernel"} {
		term, err := store.GetOrCreateTerm(ctx, models.TermCategoryTerm, v)
		if err != nil {
			t.Fatalf("GetOrCreateTerm: %v", err)
		}
		scored = append(scored, &models.ScoredTerm{Term: term, Weight: 1})
	}
	err := store.StoreMessage(ctx, &models.Message{
		GlobalID:        "m1",
		GroupGlobalID:   "g1",
		PublicationDate: prefNow.Add(-time.Hour),
		Terms:           scored,
	})
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	for _, obs := range []*models.Observation{
		ratingObservation("alice", "m1", models.InterestExtreme),
		ratingObservation("bob", "m1", models.InterestNone),
	} {
		if err := store.StoreObservation(ctx, obs); err != nil {
			t.Fatalf("StoreObservation: %v", err)
		}
	}
	return store
}

func TestMatrixBuilderMessageAxis(t *testing.T) {
	store := buildFixtureStore(t)
	b := &MatrixBuilder{Store: store, Item: config.CollaborativeItemMessage}
	m, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if p, ok := m.Preference("alice", "m1"); !ok || math.Abs(p-1) > 1e-9 {
		t.Errorf("alice/m1 = %v, %v, want 1, true", p, ok)
	}
	if p, ok := m.Preference("bob", "m1"); !ok || math.Abs(p+1) > 1e-9 {
		t.Errorf("bob/m1 = %v, %v, want -1, true", p, ok)
	}
}

func TestMatrixBuilderTermAxis(t *testing.T) {
	store := buildFixtureStore(t)
	b := &MatrixBuilder{Store: store, Item: config.CollaborativeItemTerm}
	m, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The message preference fans out to both of its terms.
	for _, item := range []string{
		models.TermKey(models.TermCategoryTerm, "linux"),
		models.TermKey(models.TermCategoryTerm, "kernel"),
	} {
		if p, ok := m.Preference("alice", item); !ok || math.Abs(p-1) > 1e-9 {
			t.Errorf("alice/%s = %v, %v, want 1, true", item, p, ok)
		}
	}
	if p, ok := m.Preference("bob", models.TermKey(models.TermCategoryTerm, "linux")); !ok || math.Abs(p+1) > 1e-9 {
		t.Errorf("bob/linux = %v, %v, want -1, true", p, ok)
	}
}

func TestMatrixBuilderSkipsUnresolvableMessages(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	if _, err := store.GetOrCreateUser(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	// Observation for a message that was never stored.
	if err := store.StoreObservation(ctx, ratingObservation("alice", "gone", models.InterestHigh)); err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}

	b := &MatrixBuilder{Store: store, Item: config.CollaborativeItemTerm}
	m, err := b.Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0 for unresolvable messages on the term axis", m.Len())
	}
}

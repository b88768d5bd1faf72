// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package storetest runs the persistence contract against any Store
// implementation. Both backends import it from their tests, so behavior
// differences between memory and badger surface as test failures.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// Run exercises the full Store contract against a fresh, empty store.
func Run(t *testing.T, store persistence.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("users", func(t *testing.T) { testUsers(t, ctx, store) })
	t.Run("terms", func(t *testing.T) { testTerms(t, ctx, store) })
	t.Run("user models", func(t *testing.T) { testUserModels(t, ctx, store) })
	t.Run("messages", func(t *testing.T) { testMessages(t, ctx, store) })
	t.Run("scores", func(t *testing.T) { testScores(t, ctx, store) })
	t.Run("similarities", func(t *testing.T) { testSimilarities(t, ctx, store) })
	t.Run("observations", func(t *testing.T) { testObservations(t, ctx, store) })
	t.Run("statistics", func(t *testing.T) { testStatistics(t, ctx, store) })
}

func testUsers(t *testing.T, ctx context.Context, store persistence.Store) {
	if _, err := store.GetUser(ctx, "nobody"); !errors.Is(err, persistence.ErrUnknownUser) {
		t.Errorf("GetUser(unknown) = %v, want ErrUnknownUser", err)
	}

	u, err := store.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if u.GlobalID != "alice" {
		t.Errorf("GlobalID = %s, want alice", u.GlobalID)
	}
	again, err := store.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser again: %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("second create returned a new user: %d vs %d", again.ID, u.ID)
	}

	if _, err := store.GetOrCreateUser(ctx, "bob"); err != nil {
		t.Fatalf("GetOrCreateUser bob: %v", err)
	}
	ids, err := store.GetUserGlobalIDs(ctx)
	if err != nil {
		t.Fatalf("GetUserGlobalIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("user ids = %v, want 2 entries", ids)
	}
}

func testTerms(t *testing.T, ctx context.Context, store persistence.Store) {
	term, err := store.GetOrCreateTerm(ctx, models.TermCategoryTerm, "coffee")
	if err != nil {
		t.Fatalf("GetOrCreateTerm: %v", err)
	}
	if term.Count != 0 {
		t.Errorf("fresh term count = %d, want 0", term.Count)
	}

	if err := store.IncrementTermCounts(ctx, []*models.Term{term}); err != nil {
		t.Fatalf("IncrementTermCounts: %v", err)
	}
	if err := store.IncrementTermCounts(ctx, []*models.Term{term}); err != nil {
		t.Fatalf("IncrementTermCounts: %v", err)
	}
	reread, err := store.GetOrCreateTerm(ctx, models.TermCategoryTerm, "coffee")
	if err != nil {
		t.Fatalf("GetOrCreateTerm reread: %v", err)
	}
	if reread.Count != 2 {
		t.Errorf("count = %d, want 2", reread.Count)
	}
	if reread.ID != term.ID {
		t.Errorf("same value resolved to a different term: %d vs %d", reread.ID, term.ID)
	}
}

func testUserModels(t *testing.T, ctx context.Context, store persistence.Store) {
	model, err := store.GetOrCreateUserModelByUser(ctx, "alice", models.UserModelTypeDefault)
	if err != nil {
		t.Fatalf("GetOrCreateUserModelByUser: %v", err)
	}

	term, err := store.GetOrCreateTerm(ctx, models.TermCategoryTerm, "espresso")
	if err != nil {
		t.Fatalf("GetOrCreateTerm: %v", err)
	}
	entry := &models.UserModelEntry{
		ScoredTerm: &models.ScoredTerm{Term: term, Weight: 0.8},
		ScoreSum:   0.8,
		ScoreCount: 1,
	}
	if err := store.StoreOrUpdateUserModelEntries(ctx, model, []*models.UserModelEntry{entry}); err != nil {
		t.Fatalf("StoreOrUpdateUserModelEntries: %v", err)
	}

	got, err := store.GetUserModelEntriesForTerms(ctx, model, []*models.Term{term})
	if err != nil {
		t.Fatalf("GetUserModelEntriesForTerms: %v", err)
	}
	stored, ok := got[term.Key()]
	if !ok {
		t.Fatalf("entry for %s missing", term.Key())
	}
	if stored.ScoredTerm.Weight != 0.8 || stored.ScoreCount != 1 {
		t.Errorf("stored entry = %+v, want weight 0.8, count 1", stored)
	}
	if stored.ID == 0 {
		t.Error("stored entry did not receive an id")
	}

	// Mutating the returned entry must not corrupt the store.
	stored.ScoreSum = 42
	fresh, err := store.GetAllUserModelEntries(ctx, model)
	if err != nil {
		t.Fatalf("GetAllUserModelEntries: %v", err)
	}
	if fresh[term.Key()].ScoreSum == 42 {
		t.Error("returned entries alias store internals")
	}

	// Group-specific models are independent.
	groupModel, err := store.GetOrCreateUserModelByUser(ctx, "alice", models.UserModelTypeMessageGroup)
	if err != nil {
		t.Fatalf("GetOrCreateUserModelByUser group: %v", err)
	}
	groupEntries, err := store.GetAllUserModelEntries(ctx, groupModel)
	if err != nil {
		t.Fatalf("GetAllUserModelEntries group: %v", err)
	}
	if len(groupEntries) != 0 {
		t.Errorf("group model entries = %d, want 0", len(groupEntries))
	}

	if err := store.RemoveUserModelEntry(ctx, model, term.Key()); err != nil {
		t.Fatalf("RemoveUserModelEntry: %v", err)
	}
	after, err := store.GetAllUserModelEntries(ctx, model)
	if err != nil {
		t.Fatalf("GetAllUserModelEntries after remove: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("entries after remove = %d, want 0", len(after))
	}

	users, err := store.GetUsersWithUserModel(ctx, []*models.Term{term}, models.UserModelTypeDefault, persistence.MatchAny)
	if err != nil {
		t.Fatalf("GetUsersWithUserModel: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users with removed entry = %v, want none", users)
	}
}

func testMessages(t *testing.T, ctx context.Context, store persistence.Store) {
	if _, err := store.GetMessageByGlobalID(ctx, "nope"); !errors.Is(err, persistence.ErrUnknownMessage) {
		t.Errorf("GetMessageByGlobalID(unknown) = %v, want ErrUnknownMessage", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &models.Message{
			GlobalID:        id,
			AuthorGlobalID:  "alice",
			GroupGlobalID:   "g1",
			PublicationDate: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.StoreMessage(ctx, msg); err != nil {
			t.Fatalf("StoreMessage %s: %v", id, err)
		}
	}

	count, err := store.GetMessageCount(ctx)
	if err != nil {
		t.Fatalf("GetMessageCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	since, err := store.GetMessagesSince(ctx, "g1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetMessagesSince: %v", err)
	}
	if len(since) != 2 || since[0].GlobalID != "m2" || since[1].GlobalID != "m3" {
		t.Errorf("GetMessagesSince = %v, want [m2 m3] in publication order", ids(since))
	}

	rel := &models.MessageRelation{Type: models.RelationDiscussion, RelatedGlobalIDs: []string{"m1", "m2"}}
	if err := store.StoreMessageRelation(ctx, "m2", rel); err != nil {
		t.Fatalf("StoreMessageRelation: %v", err)
	}
	gotRel, err := store.GetMessageRelation(ctx, "m2")
	if err != nil {
		t.Fatalf("GetMessageRelation: %v", err)
	}
	if gotRel == nil || len(gotRel.RelatedGlobalIDs) != 2 {
		t.Errorf("relation = %+v, want 2 related ids", gotRel)
	}
	noRel, err := store.GetMessageRelation(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageRelation absent: %v", err)
	}
	if noRel != nil {
		t.Errorf("relation for m1 = %+v, want nil", noRel)
	}
}

func testScores(t *testing.T, ctx context.Context, store persistence.Store) {
	if _, err := store.GetMessageScore(ctx, "alice", "m1"); !errors.Is(err, persistence.ErrNoSuchScore) {
		t.Errorf("GetMessageScore(absent) = %v, want ErrNoSuchScore", err)
	}

	score := &models.UserMessageScore{
		UserGlobalID:    "alice",
		MessageGlobalID: "m1",
		Score:           0.7,
		UpdatedAt:       time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := store.StoreOrUpdateMessageScore(ctx, score); err != nil {
		t.Fatalf("StoreOrUpdateMessageScore: %v", err)
	}
	score.Score = 0.9
	score.BasedOnAdaptedTerms = true
	if err := store.StoreOrUpdateMessageScore(ctx, score); err != nil {
		t.Fatalf("StoreOrUpdateMessageScore update: %v", err)
	}

	got, err := store.GetMessageScore(ctx, "alice", "m1")
	if err != nil {
		t.Fatalf("GetMessageScore: %v", err)
	}
	if got.Score != 0.9 || !got.BasedOnAdaptedTerms {
		t.Errorf("score = %+v, want the updated value", got)
	}
}

func testSimilarities(t *testing.T, ctx context.Context, store persistence.Store) {
	rows := []*models.UserSimilarity{
		{FromUserGlobalID: "alice", ToUserGlobalID: "bob", Similarity: 0.9},
		{FromUserGlobalID: "alice", ToUserGlobalID: "carol", Similarity: 0.3},
		{FromUserGlobalID: "bob", ToUserGlobalID: "alice", Similarity: 0.8},
	}
	for _, r := range rows {
		r.ComputedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		if err := store.StoreUserSimilarity(ctx, r); err != nil {
			t.Fatalf("StoreUserSimilarity: %v", err)
		}
	}

	got, err := store.GetUserSimilarities(ctx, "alice", nil, "", 0.5)
	if err != nil {
		t.Fatalf("GetUserSimilarities: %v", err)
	}
	if len(got) != 1 || got[0].ToUserGlobalID != "bob" {
		t.Errorf("similarities = %+v, want only alice->bob above 0.5", got)
	}

	// Upsert replaces the directional row.
	if err := store.StoreUserSimilarity(ctx, &models.UserSimilarity{
		FromUserGlobalID: "alice", ToUserGlobalID: "bob", Similarity: 0.2,
	}); err != nil {
		t.Fatalf("StoreUserSimilarity upsert: %v", err)
	}
	got, err = store.GetUserSimilarities(ctx, "alice", nil, "", 0.5)
	if err != nil {
		t.Fatalf("GetUserSimilarities after upsert: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("similarities after upsert = %+v, want none above 0.5", got)
	}
}

func testObservations(t *testing.T, ctx context.Context, store persistence.Store) {
	high := models.InterestHigh
	obs := []*models.Observation{
		{UserGlobalID: "alice", MessageGlobalID: "m1", Type: models.ObservationMessage, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{UserGlobalID: "alice", MessageGlobalID: "m1", Type: models.ObservationRating, Interest: &high, Priority: models.PriorityUser, Timestamp: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)},
		{UserGlobalID: "alice", MessageGlobalID: "m2", Type: models.ObservationLike, Timestamp: time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC)},
	}
	for _, o := range obs {
		if err := store.StoreObservation(ctx, o); err != nil {
			t.Fatalf("StoreObservation: %v", err)
		}
		if o.ID == 0 {
			t.Error("observation did not receive an id")
		}
	}

	forPair, err := store.GetObservations(ctx, "alice", "m1", nil)
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if len(forPair) != 2 {
		t.Errorf("observations for (alice, m1) = %d, want 2", len(forPair))
	}

	ratingsOnly, err := store.GetObservations(ctx, "alice", "m1", []models.ObservationType{models.ObservationRating})
	if err != nil {
		t.Fatalf("GetObservations typed: %v", err)
	}
	if len(ratingsOnly) != 1 || ratingsOnly[0].Interest == nil || *ratingsOnly[0].Interest != models.InterestHigh {
		t.Errorf("rating observations = %+v, want the single rating", ratingsOnly)
	}

	all, err := store.GetObservationsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetObservationsByUser: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("observations for alice = %d, want 3", len(all))
	}
}

func testStatistics(t *testing.T, ctx context.Context, store persistence.Store) {
	stats, err := store.ComputeStatistics(ctx)
	if err != nil {
		t.Fatalf("ComputeStatistics: %v", err)
	}
	if stats.Users == 0 || stats.Messages == 0 || stats.Observations == 0 {
		t.Errorf("statistics = %+v, want non-zero users, messages, observations", stats)
	}
}

func ids(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.GlobalID
	}
	return out
}

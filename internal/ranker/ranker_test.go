// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/collaborative"
	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/extraction"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence/memstore"
	"github.com/spektrumprojekt/spektrum-sub000/internal/termvector"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

var rankNow = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func buildConfig(t *testing.T, mutate func(*config.Settings)) *config.Configuration {
	t.Helper()
	b := config.NewBuilder()
	if mutate != nil {
		mutate(&b.Settings)
	}
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return cfg
}

// nopCommunicator satisfies the communicator for tests that never deliver.
type nopCommunicator struct{}

func (nopCommunicator) RegisterMessageHandler(communicator.MessageHandler) error { return nil }
func (nopCommunicator) Open() error                                              { return nil }
func (nopCommunicator) Deliver(communicator.CommunicationMessage) error          { return nil }
func (nopCommunicator) Drain(context.Context) error                              { return nil }
func (nopCommunicator) HasErrors() bool                                          { return false }
func (nopCommunicator) Close() error                                             { return nil }

type rankerFixture struct {
	ranker *Ranker
	store  persistence.Store
	clock  *timeframe.LogicalClock
}

func newFixture(t *testing.T, mutate func(*config.Settings), comm communicator.Communicator) *rankerFixture {
	t.Helper()
	return newCollabFixture(t, mutate, comm, nil)
}

func newCollabFixture(t *testing.T, mutate func(*config.Settings), comm communicator.Communicator, collab CollaborativeScorer) *rankerFixture {
	t.Helper()
	cfg := buildConfig(t, mutate)
	store := memstore.New()
	clock := timeframe.NewLogicalClock(rankNow.Add(-24*time.Hour), cfg.Learning().BinWidth)
	if comm == nil {
		comm = nopCommunicator{}
	}
	members := MemberResolverFunc(func(ctx context.Context, _ string) ([]string, error) {
		return store.GetUserGlobalIDs(ctx)
	})
	r, err := NewRanker(cfg, store, comm, clock, &extraction.TokenExtractor{Store: store}, members, collab, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	return &rankerFixture{ranker: r, store: store, clock: clock}
}

func plainMessage(id, author, text string, at time.Time) *models.Message {
	return &models.Message{
		GlobalID:        id,
		AuthorGlobalID:  author,
		GroupGlobalID:   "g1",
		PublicationDate: at,
		Parts: []models.MessagePart{
			{MimeType: models.MimeTypeTextPlain, Content: text},
		},
	}
}

func TestNewRankerNilConfiguration(t *testing.T) {
	_, err := NewRanker(nil, memstore.New(), nopCommunicator{}, nil, nil, nil, nil, zerolog.Nop())
	if !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Errorf("NewRanker(nil) error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestNewRankerChainTopology(t *testing.T) {
	fullFeatureChain := []string{
		"content-match-feature",
		"author-feature",
		"mention-feature",
		"discussion-participation-feature",
		"discussion-mention-feature",
		"discussion-root-feature",
	}
	tests := []struct {
		name         string
		mutate       func(*config.Settings)
		collab       CollaborativeScorer
		wantFeatures []string
		wantScoring  []string
		wantPrimary  []string
	}{
		{
			name:         "defaults",
			wantFeatures: fullFeatureChain,
			wantScoring:  []string{"compute-message-score"},
			wantPrimary: []string{
				"extract-terms",
				"store-message",
				"for-each-user:user-features",
				"for-each-user:user-score",
				"for-each-user:triggers",
			},
		},
		{
			name: "content matcher disabled",
			mutate: func(s *config.Settings) {
				s.Flags.DoNotUseContentMatcherFeature = true
			},
			wantFeatures: fullFeatureChain[1:],
		},
		{
			name: "discussion features disabled",
			mutate: func(s *config.Settings) {
				s.Flags.DoNotUseDiscussionFeatures = true
			},
			wantFeatures: []string{
				"content-match-feature",
				"author-feature",
				"mention-feature",
			},
		},
		{
			name: "similar-user content match enabled",
			mutate: func(s *config.Settings) {
				s.Flags.UseContentMatchFeatureOfSimilarUsers = true
			},
			wantFeatures: fullFeatureChain,
			wantScoring:  []string{"similar-users-content-match", "compute-message-score"},
		},
		{
			name: "collaborative enabled",
			mutate: func(s *config.Settings) {
				s.Collaborative.Enabled = true
			},
			collab:       &stubCollaborativeScorer{},
			wantFeatures: fullFeatureChain,
			wantScoring:  []string{"compute-message-score", "collaborative-score"},
		},
		{
			name: "extraction disabled",
			mutate: func(s *config.Settings) {
				s.Flags.NoInformationExtraction = true
			},
			wantFeatures: fullFeatureChain,
			wantPrimary: []string{
				"store-message",
				"for-each-user:user-features",
				"for-each-user:user-score",
				"for-each-user:triggers",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCollabFixture(t, tt.mutate, nil, tt.collab)
			assertChainNames := func(label string, got, want []string) {
				t.Helper()
				if want == nil {
					return
				}
				if len(got) != len(want) {
					t.Fatalf("%s chain = %v, want %v", label, got, want)
				}
				for i := range got {
					if got[i] != want[i] {
						t.Errorf("%s chain[%d] = %q, want %q", label, i, got[i], want[i])
					}
				}
			}
			assertChainNames("feature", f.ranker.featureChain.CommandNames(), tt.wantFeatures)
			assertChainNames("scoring", f.ranker.scoringChain.CommandNames(), tt.wantScoring)
			assertChainNames("primary", f.ranker.primaryChain.CommandNames(), tt.wantPrimary)
		})
	}
}

func TestScoreAuthorOutranksBystander(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	msg := plainMessage("m1", "alice", "release notes for the parser", rankNow)
	fc, err := f.ranker.Score(ctx, msg, nil, []string{"alice", "bob"}, false)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	alice := fc.Users["alice"]
	bob := fc.Users["bob"]
	if alice == nil || alice.Score == nil || bob == nil || bob.Score == nil {
		t.Fatal("missing user score in the feature context")
	}

	// Both cold-start users share every feature except authorship, so only
	// the author and root weights separate them.
	w := buildConfig(t, nil).RankWeights()
	mass := w.ContentMatch + w.Author + w.Mention + w.DiscussionParticipation + w.DiscussionMention + w.DiscussionRoot
	wantAlice := (w.Author + w.DiscussionRoot) / mass
	wantBob := w.DiscussionRoot / mass
	if math.Abs(alice.Score.Score-wantAlice) > 1e-9 {
		t.Errorf("alice score = %v, want %v", alice.Score.Score, wantAlice)
	}
	if math.Abs(bob.Score.Score-wantBob) > 1e-9 {
		t.Errorf("bob score = %v, want %v", bob.Score.Score, wantBob)
	}
	if alice.Score.InteractionLevel != models.InteractionDirect {
		t.Errorf("alice interaction = %v, want direct", alice.Score.InteractionLevel)
	}
	if bob.Score.InteractionLevel != models.InteractionNone {
		t.Errorf("bob interaction = %v, want none", bob.Score.InteractionLevel)
	}

	stored, err := f.store.GetMessageScore(ctx, "alice", "m1")
	if err != nil {
		t.Fatalf("GetMessageScore: %v", err)
	}
	if stored.Score != alice.Score.Score {
		t.Errorf("persisted score = %v, want %v", stored.Score, alice.Score.Score)
	}
	if _, err := f.store.GetMessageByGlobalID(ctx, "m1"); err != nil {
		t.Errorf("message not persisted: %v", err)
	}
}

func TestScoreMentionCountsAsDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	msg := plainMessage("m1", "alice", "ping", rankNow)
	msg.Properties = map[string]string{models.PropertyMentions: "bob, carol"}
	fc, err := f.ranker.Score(ctx, msg, nil, []string{"bob", "dave"}, false)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if v, _ := fc.Users["bob"].Feature(FeatureMention); v != 1 {
		t.Errorf("bob mention feature = %v, want 1", v)
	}
	if fc.Users["bob"].Score.InteractionLevel != models.InteractionDirect {
		t.Errorf("bob interaction = %v, want direct", fc.Users["bob"].Score.InteractionLevel)
	}
	if v, _ := fc.Users["dave"].Feature(FeatureMention); v != 0 {
		t.Errorf("dave mention feature = %v, want 0", v)
	}
}

func TestScoreLearnOnlySkipsPersistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	msg := plainMessage("m1", "alice", "transient", rankNow)
	fc, err := f.ranker.Score(ctx, msg, nil, []string{"alice"}, true)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if fc.Users["alice"].Score == nil {
		t.Fatal("score not computed in learn-only mode")
	}
	if _, err := f.store.GetMessageScore(ctx, "alice", "m1"); !errors.Is(err, persistence.ErrNoSuchScore) {
		t.Errorf("GetMessageScore = %v, want ErrNoSuchScore in learn-only mode", err)
	}
}

func TestScoreRejectsOutOfOrderMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	first := plainMessage("m1", "alice", "first", rankNow)
	if _, err := f.ranker.Score(ctx, first, nil, []string{"alice"}, false); err != nil {
		t.Fatalf("Score m1: %v", err)
	}

	stale := plainMessage("m2", "alice", "stale", rankNow.Add(-time.Minute))
	_, err := f.ranker.Score(ctx, stale, nil, []string{"alice"}, false)
	if !errors.Is(err, timeframe.ErrClockMovedBackwards) {
		t.Errorf("Score error = %v, want ErrClockMovedBackwards", err)
	}

	// The failed call must not have persisted anything.
	if _, err := f.store.GetMessageByGlobalID(ctx, "m2"); !errors.Is(err, persistence.ErrUnknownMessage) {
		t.Errorf("stale message lookup = %v, want ErrUnknownMessage", err)
	}
}

func TestScoreResolvesGroupMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)
	for _, u := range []string{"alice", "bob"} {
		if _, err := f.store.GetOrCreateUser(ctx, u); err != nil {
			t.Fatalf("GetOrCreateUser: %v", err)
		}
	}

	msg := plainMessage("m1", "alice", "to the whole group", rankNow)
	fc, err := f.ranker.Score(ctx, msg, nil, nil, false)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	order := fc.UserOrder()
	if len(order) != 2 || order[0] != "alice" || order[1] != "bob" {
		t.Errorf("scored users = %v, want [alice bob]", order)
	}
}

func TestRescoreReproducesScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	msg := plainMessage("m1", "alice", "deterministic pipeline", rankNow)
	fc, err := f.ranker.Score(ctx, msg, nil, []string{"alice"}, false)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := fc.Users["alice"].Score.Score

	re, err := f.ranker.Rescore(ctx, "m1", "alice")
	if err != nil {
		t.Fatalf("Rescore: %v", err)
	}
	got := re.Users["alice"].Score.Score
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("rescored = %v, want the original %v", got, want)
	}
}

func TestResortMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)

	for i, id := range []string{"m1", "m2", "m3"} {
		msg := plainMessage(id, "alice", "message body", rankNow.Add(time.Duration(i)*time.Minute))
		if _, err := f.ranker.Score(ctx, msg, nil, []string{"alice", "bob"}, false); err != nil {
			t.Fatalf("Score %s: %v", id, err)
		}
	}

	n, err := f.ranker.ResortMessages(ctx, "bob", "g1", rankNow)
	if err != nil {
		t.Fatalf("ResortMessages: %v", err)
	}
	if n != 3 {
		t.Errorf("resorted = %d, want 3", n)
	}
}

type deliveryRecorder struct {
	mu        sync.Mutex
	delivered []communicator.CommunicationMessage
}

func (r *deliveryRecorder) RegisterMessageHandler(communicator.MessageHandler) error { return nil }
func (r *deliveryRecorder) Open() error                                              { return nil }
func (r *deliveryRecorder) Drain(context.Context) error                              { return nil }
func (r *deliveryRecorder) HasErrors() bool                                          { return false }
func (r *deliveryRecorder) Close() error                                             { return nil }

func (r *deliveryRecorder) Deliver(msg communicator.CommunicationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, msg)
	return nil
}

func (r *deliveryRecorder) byType(msgType string) []communicator.CommunicationMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []communicator.CommunicationMessage
	for _, m := range r.delivered {
		if m.Type() == msgType {
			out = append(out, m)
		}
	}
	return out
}

func TestScoreEmitsLearningMessages(t *testing.T) {
	ctx := context.Background()
	rec := &deliveryRecorder{}
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.LearnFromEveryMessage = true
	}, rec)

	msg := plainMessage("m1", "alice", "learn this", rankNow)
	if _, err := f.ranker.Score(ctx, msg, nil, []string{"alice", "bob"}, false); err != nil {
		t.Fatalf("Score: %v", err)
	}

	learning := rec.byType(communicator.TypeLearning)
	if len(learning) != 2 {
		t.Fatalf("learning messages = %d, want 2", len(learning))
	}
	for _, m := range learning {
		lm := m.(*communicator.LearningMessage)
		if lm.MessageGlobalID != "m1" || lm.Trigger != "every_message" {
			t.Errorf("learning message = %+v, want m1/every_message", lm)
		}
	}
}

func TestScoreTriggersAdaptation(t *testing.T) {
	ctx := context.Background()
	rec := &deliveryRecorder{}
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
		s.Flags.UseDirectedUserModelAdaptation = true
		// A zero floor makes every computed content match qualify.
		s.Thresholds.MessageRankThreshold = 0
		s.Thresholds.MinContentMessageScore = 0
	}, rec)

	msg := plainMessage("m1", "alice", "propagate me", rankNow)
	if _, err := f.ranker.Score(ctx, msg, nil, []string{"alice"}, false); err != nil {
		t.Fatalf("Score: %v", err)
	}

	adaptations := rec.byType(communicator.TypeAdaptation)
	if len(adaptations) != 1 {
		t.Fatalf("adaptation messages = %d, want 1", len(adaptations))
	}
	am := adaptations[0].(*communicator.AdaptationMessage)
	if am.UserGlobalID != "alice" || am.MessageGlobalID != "m1" {
		t.Errorf("adaptation message = %+v, want alice/m1", am)
	}
}

func TestSimilarUsersContentMatchSubstitution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
		s.Flags.UseContentMatchFeatureOfSimilarUsers = true
		s.Matching.Weight = config.WeightTrivial
	}, nil)

	// Bob knows the term; alice has an empty profile but is similar to bob.
	term, err := f.store.GetOrCreateTerm(ctx, models.TermCategoryTerm, "golang")
	if err != nil {
		t.Fatalf("GetOrCreateTerm: %v", err)
	}
	model, err := f.store.GetOrCreateUserModelByUser(ctx, "bob", models.UserModelTypeDefault)
	if err != nil {
		t.Fatalf("GetOrCreateUserModelByUser: %v", err)
	}
	entry := &models.UserModelEntry{
		ScoredTerm: &models.ScoredTerm{Term: term, Weight: 1},
		ScoreSum:   1,
		ScoreCount: 1,
	}
	if err := f.store.StoreOrUpdateUserModelEntries(ctx, model, []*models.UserModelEntry{entry}); err != nil {
		t.Fatalf("StoreOrUpdateUserModelEntries: %v", err)
	}
	err = f.store.StoreUserSimilarity(ctx, &models.UserSimilarity{
		FromUserGlobalID: "alice",
		ToUserGlobalID:   "bob",
		GroupGlobalID:    "g1",
		Similarity:       0.9,
		ComputedAt:       rankNow,
	})
	if err != nil {
		t.Fatalf("StoreUserSimilarity: %v", err)
	}

	// Alice is deliberately processed first: the substitution pass runs after
	// every own match is computed, so order must not matter.
	msg := plainMessage("m1", "carol", "golang", rankNow)
	fc, err := f.ranker.Score(ctx, msg, nil, []string{"alice", "bob"}, false)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	bobMatch, _ := fc.Users["bob"].Feature(FeatureContentMatch)
	if math.Abs(bobMatch-1) > 1e-9 {
		t.Fatalf("bob content match = %v, want 1", bobMatch)
	}
	aliceMatch, _ := fc.Users["alice"].Feature(FeatureContentMatch)
	if math.Abs(aliceMatch-bobMatch) > 1e-9 {
		t.Errorf("alice content match = %v, want bob's %v borrowed via similarity", aliceMatch, bobMatch)
	}
}

// stubCollaborativeScorer returns canned estimates per user and
// ErrNoEstimate for everyone else.
type stubCollaborativeScorer struct {
	scores map[string]float64
}

func (s *stubCollaborativeScorer) Score(_ context.Context, userGlobalID string, _ *models.Message) (float64, error) {
	v, ok := s.scores[userGlobalID]
	if !ok {
		return 0, collaborative.ErrNoEstimate
	}
	return v, nil
}

func TestScoreCollaborativeFallback(t *testing.T) {
	ctx := context.Background()
	stub := &stubCollaborativeScorer{scores: map[string]float64{"bob": 0.8}}
	f := newCollabFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
		s.Collaborative.Enabled = true
	}, nil, stub)

	root := plainMessage("m0", "carol", "thread opener", rankNow.Add(-time.Minute))
	if _, err := f.ranker.Score(ctx, root, nil, []string{"carol"}, false); err != nil {
		t.Fatalf("Score m0: %v", err)
	}

	// Bob is a bystander on a reply: no content match, no authorship, no
	// discussion signal. The content-based score is 0 and the collaborative
	// estimate fills in.
	reply := plainMessage("m1", "carol", "follow up", rankNow)
	relation := &models.MessageRelation{
		Type:             models.RelationDiscussion,
		RelatedGlobalIDs: []string{"m0", "m1"},
	}
	fc, err := f.ranker.Score(ctx, reply, relation, []string{"carol", "bob"}, false)
	if err != nil {
		t.Fatalf("Score m1: %v", err)
	}

	if got := fc.Users["bob"].Score.Score; math.Abs(got-0.8) > 1e-9 {
		t.Errorf("bob score = %v, want the collaborative estimate 0.8", got)
	}
	stored, err := f.store.GetMessageScore(ctx, "bob", "m1")
	if err != nil {
		t.Fatalf("GetMessageScore: %v", err)
	}
	if math.Abs(stored.Score-0.8) > 1e-9 {
		t.Errorf("persisted bob score = %v, want 0.8", stored.Score)
	}

	// Carol authored the reply, so her content-based score stands untouched.
	if got := fc.Users["carol"].Score.Score; got == 0 || math.Abs(got-0.8) < 1e-9 {
		t.Errorf("carol score = %v, want her own content-based score", got)
	}
}

// constantWeight pins every term's importance for tests.
type constantWeight struct{ v float64 }

func (w constantWeight) Name() string                { return "constant" }
func (w constantWeight) Weight(*models.Term) float64 { return w.v }

func TestContentMatchFeatureClamped(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	term, err := store.GetOrCreateTerm(ctx, models.TermCategoryTerm, "golang")
	if err != nil {
		t.Fatalf("GetOrCreateTerm: %v", err)
	}
	model, err := store.GetOrCreateUserModelByUser(ctx, "alice", models.UserModelTypeDefault)
	if err != nil {
		t.Fatalf("GetOrCreateUserModelByUser: %v", err)
	}
	entry := &models.UserModelEntry{
		ScoredTerm: &models.ScoredTerm{Term: term, Weight: 1},
		ScoreSum:   1,
		ScoreCount: 1,
	}
	if err := store.StoreOrUpdateUserModelEntries(ctx, model, []*models.UserModelEntry{entry}); err != nil {
		t.Fatalf("StoreOrUpdateUserModelEntries: %v", err)
	}

	// Max similarity with an importance weight of 3 yields a raw value of 3;
	// the recorded feature must stay within [0,1].
	cmd := &ContentMatchFeatureCommand{
		Store:       store,
		ModelType:   models.UserModelTypeDefault,
		Similarity:  termvector.MaxSimilarity{},
		Integration: usermodel.PlainIntegration{},
		WeightFactory: func(termvector.FrequencyProvider) termvector.WeightStrategy {
			return constantWeight{v: 3}
		},
	}
	msg := &models.Message{
		GlobalID: "m1",
		Terms:    []*models.ScoredTerm{{Term: term, Weight: 1}},
	}
	fc := NewMessageFeatureContext(msg, nil)
	uc := &UserContext{MessageFeatureContext: fc, User: fc.AddUser("alice")}
	if err := cmd.Process(ctx, uc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got, ok := uc.User.Feature(FeatureContentMatch); !ok || got != 1 {
		t.Errorf("content match = %v (present=%v), want 1 after clamping", got, ok)
	}
}

func TestHandleMessageUnknownMessage(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) {
		s.Flags.NoLearningOnlyScoring = true
	}, nil)
	err := f.ranker.HandleMessage(context.Background(), &communicator.ScoreRequestMessage{
		MessageGlobalID:     "missing",
		TargetUserGlobalIDs: []string{"alice"},
	})
	if !errors.Is(err, persistence.ErrUnknownMessage) {
		t.Errorf("HandleMessage error = %v, want ErrUnknownMessage", err)
	}
}

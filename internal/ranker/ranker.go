// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/chain"
	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/extraction"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/termvector"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

// MemberResolver yields the scoring audience of a message group when the
// caller does not pass an explicit user list. Group membership lives outside
// the engine.
type MemberResolver interface {
	MembersOf(ctx context.Context, groupGlobalID string) ([]string, error)
}

// MemberResolverFunc adapts a function to a MemberResolver.
type MemberResolverFunc func(ctx context.Context, groupGlobalID string) ([]string, error)

// MembersOf invokes the function.
func (f MemberResolverFunc) MembersOf(ctx context.Context, groupGlobalID string) ([]string, error) {
	return f(ctx, groupGlobalID)
}

// Ranker scores incoming messages for their candidate users and triggers
// learning and adaptation. Construction wires a fixed chain topology from the
// configuration; the per-user sub-chain instances are shared between the
// primary and the re-score chain.
type Ranker struct {
	store     persistence.Store
	comm      communicator.Communicator
	clock     *timeframe.LogicalClock
	extractor extraction.TermExtractor
	members   MemberResolver
	logger    zerolog.Logger
	flags     config.Flags

	primaryChain *chain.Chain[*MessageFeatureContext]
	rescoreChain *chain.Chain[*MessageFeatureContext]
	featureChain *chain.Chain[*UserContext]
	scoringChain *chain.Chain[*UserContext]
}

// NewRanker builds the scoring pipeline. The topology is decided here, once;
// configuration problems surface now and never at scoring time.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRanker(
	cfg *config.Configuration,
	store persistence.Store,
	comm communicator.Communicator,
	clock *timeframe.LogicalClock,
	extractor extraction.TermExtractor,
	members MemberResolver,
	collab CollaborativeScorer,
	logger zerolog.Logger,
) (*Ranker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is required", config.ErrInvalidConfiguration)
	}
	logger = logger.With().Str("component", "ranker").Logger()

	integration, err := IntegrationStrategy(cfg)
	if err != nil {
		return nil, err
	}
	similarity, err := similarityStrategy(cfg.Matching().Similarity)
	if err != nil {
		return nil, err
	}
	weightFactory, err := weightFactory(cfg.Matching())
	if err != nil {
		return nil, err
	}

	r := &Ranker{
		store:     store,
		comm:      comm,
		clock:     clock,
		extractor: extractor,
		members:   members,
		logger:    logger,
		flags:     cfg.Flags(),
	}

	modelType := models.UserModelTypeDefault
	if cfg.Flags().UseMessageGroupSpecificUserModel {
		modelType = models.UserModelTypeMessageGroup
	}

	// Per-user feature sub-chain. Scoring runs as a second pass over all
	// users, so commands that read other users' features always see every own
	// value computed, regardless of processing order.
	features := chain.New[*UserContext]("user-features", logger)
	if !cfg.Flags().DoNotUseContentMatcherFeature {
		features.Add(&ContentMatchFeatureCommand{
			Store:         store,
			ModelType:     modelType,
			Similarity:    similarity,
			Integration:   integration,
			WeightFactory: weightFactory,
		})
	}
	features.Add(AuthorFeatureCommand{})
	features.Add(MentionFeatureCommand{})
	if !cfg.Flags().DoNotUseDiscussionFeatures {
		features.Add(&DiscussionParticipationCommand{Store: store})
		features.Add(&DiscussionMentionCommand{Store: store})
		features.Add(DiscussionRootCommand{})
	}
	r.featureChain = features

	// Per-user scoring sub-chain: substitution, aggregation, and the
	// collaborative fill-in.
	scoring := chain.New[*UserContext]("user-score", logger)
	if cfg.Flags().UseContentMatchFeatureOfSimilarUsers {
		scoring.Add(&SimilarUsersContentMatchCommand{
			Store:         store,
			MinSimilarity: cfg.Thresholds().MinUserSimilarity,
		})
	}
	scoring.Add(&ComputeMessageScoreCommand{
		Store:                  store,
		Weights:                cfg.RankWeights(),
		NonParticipationFactor: cfg.Thresholds().NonParticipationFactor,
		Clock:                  clock,
	})
	if cfg.Collaborative().Enabled && collab != nil {
		scoring.Add(&CollaborativeScoreCommand{Store: store, Scorer: collab})
	}
	r.scoringChain = scoring

	// Primary chain: extraction and persistence, the shared user sub-chains,
	// then the learner and adaptation triggers.
	primary := chain.New[*MessageFeatureContext]("score", logger)
	if !cfg.Flags().NoInformationExtraction {
		primary.Add(&extractTermsCommand{extractor: extractor})
	}
	primary.Add(&storeMessageCommand{store: store})
	primary.Add(&forEachUserCommand{users: features})
	primary.Add(&forEachUserCommand{users: scoring})

	triggers := chain.New[*UserContext]("triggers", logger)
	triggers.Add(&InvokeLearnerCommand{
		Communicator:    comm,
		Store:           store,
		Flags:           cfg.Flags(),
		LearningWeights: cfg.LearningWeights(),
		ScoreThreshold:  cfg.Thresholds().MessageScoreThreshold,
	})
	if cfg.Flags().UseDirectedUserModelAdaptation {
		triggers.Add(&TriggerAdaptationCommand{
			Communicator:           comm,
			RankThreshold:          cfg.Thresholds().MessageRankThreshold,
			MinContentMessageScore: cfg.Thresholds().MinContentMessageScore,
		})
	}
	primary.Add(&forEachUserCommand{users: triggers})
	r.primaryChain = primary

	// Re-score chain: the same user sub-chains, no extraction, no triggers.
	// Re-running it without an intervening model change reproduces the score.
	rescore := chain.New[*MessageFeatureContext]("rescore", logger)
	rescore.Add(&forEachUserCommand{users: features})
	rescore.Add(&forEachUserCommand{users: scoring})
	r.rescoreChain = rescore

	logger.Info().
		Strs("primary", primary.CommandNames()).
		Strs("user_features", features.CommandNames()).
		Strs("user_score", scoring.CommandNames()).
		Msg("scoring pipeline assembled")
	return r, nil
}

// IntegrationStrategy resolves the configured user-model integration. Shared
// with the learner and the adaptation handler so every component derives
// entry weights identically.
func IntegrationStrategy(cfg *config.Configuration) (usermodel.IntegrationStrategy, error) {
	switch cfg.Learning().Integration {
	case config.IntegrationPlain:
		return usermodel.PlainIntegration{}, nil
	case config.IntegrationTimeBinned:
		return usermodel.TimeBinnedIntegration{
			BinWidth: cfg.Learning().BinWidth,
			Decay:    cfg.Learning().BinDecay,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown integration strategy %q",
			config.ErrInvalidConfiguration, cfg.Learning().Integration)
	}
}

func similarityStrategy(s config.SimilarityStrategy) (termvector.SimilarityStrategy, error) {
	switch s {
	case config.SimilarityCosine:
		return termvector.CosineSimilarity{}, nil
	case config.SimilarityAverage:
		return termvector.AverageSimilarity{}, nil
	case config.SimilarityMax:
		return termvector.MaxSimilarity{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown similarity strategy %q", config.ErrInvalidConfiguration, s)
	}
}

func weightFactory(m config.Matching) (func(termvector.FrequencyProvider) termvector.WeightStrategy, error) {
	switch m.Weight {
	case config.WeightTrivial:
		return func(termvector.FrequencyProvider) termvector.WeightStrategy {
			return termvector.TrivialWeight{}
		}, nil
	case config.WeightInverseFrequency:
		return func(freq termvector.FrequencyProvider) termvector.WeightStrategy {
			return termvector.InverseFrequencyWeight{Frequency: freq}
		}, nil
	case config.WeightLinearInverseFrequency:
		minW, maxW := m.MinWeight, m.MaxWeight
		return func(freq termvector.FrequencyProvider) termvector.WeightStrategy {
			return termvector.LinearInverseFrequencyWeight{Frequency: freq, Min: minW, Max: maxW}
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown weight strategy %q", config.ErrInvalidConfiguration, m.Weight)
	}
}

// extractTermsCommand runs information extraction unless the message already
// carries its term vector.
type extractTermsCommand struct {
	extractor extraction.TermExtractor
}

func (*extractTermsCommand) Name() string { return "extract-terms" }

func (cmd *extractTermsCommand) Process(ctx context.Context, c *MessageFeatureContext) error {
	if c.Message.HasTerms() {
		return nil
	}
	if err := cmd.extractor.ExtractTerms(ctx, c.Message); err != nil {
		return fmt.Errorf("extract terms: %w", err)
	}
	return nil
}

// storeMessageCommand persists the message and its relation so later
// discussion features and re-scoring resolve them.
type storeMessageCommand struct {
	store persistence.Store
}

func (*storeMessageCommand) Name() string { return "store-message" }

func (cmd *storeMessageCommand) Process(ctx context.Context, c *MessageFeatureContext) error {
	if err := cmd.store.StoreMessage(ctx, c.Message); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	if c.Relation != nil {
		if err := cmd.store.StoreMessageRelation(ctx, c.Message.GlobalID, c.Relation); err != nil {
			return fmt.Errorf("store relation: %w", err)
		}
	}
	return nil
}

// Score builds the feature context for one message, resolves the target
// users, and runs the primary chain. Messages must arrive in non-decreasing
// publication order; a violation is a contract error surfaced through the
// logical clock.
func (r *Ranker) Score(
	ctx context.Context,
	msg *models.Message,
	relation *models.MessageRelation,
	targetUserIDs []string,
	learnOnly bool,
) (*MessageFeatureContext, error) {
	start := time.Now()
	if err := r.clock.Advance(msg.PublicationDate); err != nil {
		return nil, fmt.Errorf("message %s out of order: %w", msg.GlobalID, err)
	}

	users := targetUserIDs
	if len(users) == 0 {
		if r.members == nil {
			return nil, fmt.Errorf("message %s: no target users and no member resolver", msg.GlobalID)
		}
		var err error
		users, err = r.members.MembersOf(ctx, msg.GroupGlobalID)
		if err != nil {
			return nil, fmt.Errorf("resolve group members of %q: %w", msg.GroupGlobalID, err)
		}
	}

	fc := NewMessageFeatureContext(msg, relation)
	fc.LearnOnly = learnOnly
	for _, id := range users {
		fc.AddUser(id)
	}

	if err := r.primaryChain.Process(ctx, fc); err != nil {
		return nil, err
	}
	metrics.MessagesScored.Inc()
	metrics.ObserveScoreDuration(start)
	return fc, nil
}

// Rescore re-runs content match and aggregation for one user over an already
// extracted and stored message. No learning, no adaptation, no extraction.
func (r *Ranker) Rescore(ctx context.Context, messageGlobalID, userGlobalID string) (*MessageFeatureContext, error) {
	msg, err := r.store.GetMessageByGlobalID(ctx, messageGlobalID)
	if err != nil {
		return nil, fmt.Errorf("rescore %s: %w", messageGlobalID, err)
	}
	relation, err := r.store.GetMessageRelation(ctx, messageGlobalID)
	if err != nil {
		return nil, fmt.Errorf("rescore %s: load relation: %w", messageGlobalID, err)
	}

	fc := NewMessageFeatureContext(msg, relation)
	fc.AddUser(userGlobalID)
	if err := r.rescoreChain.Process(ctx, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// ResortMessages re-scores every stored message of a group for one user in
// publication order, typically after a model change.
func (r *Ranker) ResortMessages(ctx context.Context, userGlobalID, groupGlobalID string, since time.Time) (int, error) {
	msgs, err := r.store.GetMessagesSince(ctx, groupGlobalID, since)
	if err != nil {
		return 0, fmt.Errorf("resort for %s: %w", userGlobalID, err)
	}
	for _, msg := range msgs {
		if _, err := r.Rescore(ctx, msg.GlobalID, userGlobalID); err != nil {
			return 0, err
		}
	}
	return len(msgs), nil
}

// MessageType declares the communicator subtype the ranker consumes.
func (r *Ranker) MessageType() string { return communicator.TypeScoreRequest }

// HandleMessage is the communicator entry point: it unwraps the score request
// and delegates to Score. An unresolvable message id is a data-integrity
// failure and aborts this message's processing.
func (r *Ranker) HandleMessage(ctx context.Context, msg communicator.CommunicationMessage) error {
	req, ok := msg.(*communicator.ScoreRequestMessage)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	stored, err := r.store.GetMessageByGlobalID(ctx, req.MessageGlobalID)
	if err != nil {
		return fmt.Errorf("score request %s: %w", req.MessageGlobalID, err)
	}
	_, err = r.Score(ctx, stored, req.Relation, req.TargetUserGlobalIDs, req.LearnOnly)
	return err
}

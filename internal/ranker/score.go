// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
)

// featureWeight returns the aggregation weight for one feature.
func featureWeight(w config.FeatureWeights, f Feature) float64 {
	switch f {
	case FeatureContentMatch:
		return w.ContentMatch
	case FeatureAuthor:
		return w.Author
	case FeatureMention:
		return w.Mention
	case FeatureDiscussionParticipation:
		return w.DiscussionParticipation
	case FeatureDiscussionMention:
		return w.DiscussionMention
	case FeatureDiscussionRoot:
		return w.DiscussionRoot
	default:
		return 0
	}
}

// allFeatures is the aggregation order; iteration over the feature map would
// be fine numerically but this keeps logs deterministic.
var allFeatures = []Feature{
	FeatureContentMatch,
	FeatureAuthor,
	FeatureMention,
	FeatureDiscussionParticipation,
	FeatureDiscussionMention,
	FeatureDiscussionRoot,
}

// aggregate combines the present features into one value. With
// NormalizeByPresent the weighted sum is divided by the weight mass of the
// features that are actually present, so a cold-start gap does not pull the
// score toward zero.
func aggregate(u *UserFeatureContext, w config.FeatureWeights) float64 {
	var sum, mass float64
	for _, f := range allFeatures {
		v, ok := u.Feature(f)
		if !ok {
			continue
		}
		fw := featureWeight(w, f)
		sum += fw * v
		mass += fw
	}
	if w.NormalizeByPresent {
		if mass == 0 {
			return 0
		}
		sum /= mass
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// interactionLevel derives the categorical relationship strength from the
// computed features.
func interactionLevel(u *UserFeatureContext) models.InteractionLevel {
	if v, ok := u.Feature(FeatureAuthor); ok && v > 0 {
		return models.InteractionDirect
	}
	if v, ok := u.Feature(FeatureMention); ok && v > 0 {
		return models.InteractionDirect
	}
	if v, ok := u.Feature(FeatureDiscussionParticipation); ok && v > 0 {
		return models.InteractionIndirect
	}
	if v, ok := u.Feature(FeatureDiscussionMention); ok && v > 0 {
		return models.InteractionIndirect
	}
	return models.InteractionNone
}

// ComputeMessageScoreCommand folds the feature map into the final
// UserMessageScore and persists it. Output is clamped to [0,1].
type ComputeMessageScoreCommand struct {
	Store                  persistence.Store
	Weights                config.FeatureWeights
	NonParticipationFactor float64
	Clock                  timeframe.TimeProvider
}

// Name returns the command identifier.
func (*ComputeMessageScoreCommand) Name() string { return "compute-message-score" }

// Process aggregates, dampens non-participants, clamps, and persists.
func (cmd *ComputeMessageScoreCommand) Process(ctx context.Context, c *UserContext) error {
	score := aggregate(c.User, cmd.Weights)

	// Dampen messages of a discussion the user is not part of. Roots are not
	// dampened: every user is a legitimate audience for a new discussion.
	if part, ok := c.User.Feature(FeatureDiscussionParticipation); ok && part == 0 {
		if root, rok := c.User.Feature(FeatureDiscussionRoot); rok && root == 0 {
			if level := interactionLevel(c.User); level == models.InteractionNone {
				score *= cmd.NonParticipationFactor
			}
		}
	}
	score = clamp01(score)

	c.User.Score = &models.UserMessageScore{
		UserGlobalID:        c.User.UserGlobalID,
		MessageGlobalID:     c.Message.GlobalID,
		Score:               score,
		InteractionLevel:    interactionLevel(c.User),
		BasedOnAdaptedTerms: c.User.BasedOnAdaptedTerms,
		UpdatedAt:           cmd.Clock.Now(),
	}
	metrics.UserScoresComputed.Inc()

	if c.LearnOnly {
		return nil
	}
	if err := cmd.Store.StoreOrUpdateMessageScore(ctx, c.User.Score); err != nil {
		return fmt.Errorf("persist score: %w", err)
	}
	return nil
}

// InvokeLearnerCommand decides, per user, whether to emit a LearningMessage.
// The decision runs on the learning feature weights, which are independent of
// the ranking weights.
type InvokeLearnerCommand struct {
	Communicator    communicator.Communicator
	Store           persistence.Store
	Flags           config.Flags
	LearningWeights config.FeatureWeights
	ScoreThreshold  float64
}

// Name returns the command identifier.
func (*InvokeLearnerCommand) Name() string { return "invoke-learner" }

// Process emits at most one learning message for the (user, message) pair.
func (cmd *InvokeLearnerCommand) Process(ctx context.Context, c *UserContext) error {
	if cmd.Flags.NoLearningOnlyScoring {
		return nil
	}

	learningScore := clamp01(aggregate(c.User, cmd.LearningWeights))

	trigger := ""
	switch {
	case cmd.Flags.LearnFromEveryMessage:
		trigger = "every_message"
	case learningScore >= cmd.ScoreThreshold:
		trigger = "threshold"
	case cmd.Flags.LearnNegative && learningScore <= 1-cmd.ScoreThreshold:
		trigger = "negative"
	}

	if trigger == "" {
		// Explicit feedback learns regardless of the score.
		obs, err := cmd.Store.GetObservations(ctx, c.User.UserGlobalID, c.Message.GlobalID,
			[]models.ObservationType{models.ObservationRating, models.ObservationLike})
		if err != nil {
			return fmt.Errorf("load observations: %w", err)
		}
		if len(obs) > 0 {
			trigger = "observation"
		}
	}
	if trigger == "" {
		return nil
	}

	err := cmd.Communicator.Deliver(&communicator.LearningMessage{
		UserGlobalID:    c.User.UserGlobalID,
		MessageGlobalID: c.Message.GlobalID,
		Trigger:         trigger,
	})
	if err != nil {
		return fmt.Errorf("deliver learning message: %w", err)
	}
	metrics.LearningMessagesEmitted.WithLabelValues(trigger).Inc()
	return nil
}

// TriggerAdaptationCommand emits an AdaptationMessage when the user's content
// match and score cross the adaptation thresholds. The adaptation handler
// decides which similar users receive the propagated entries.
type TriggerAdaptationCommand struct {
	Communicator           communicator.Communicator
	RankThreshold          float64
	MinContentMessageScore float64
}

// Name returns the command identifier.
func (*TriggerAdaptationCommand) Name() string { return "trigger-adaptation" }

// Process checks the thresholds and emits the adaptation request.
func (cmd *TriggerAdaptationCommand) Process(_ context.Context, c *UserContext) error {
	match, ok := c.User.Feature(FeatureContentMatch)
	if !ok || match < cmd.RankThreshold {
		return nil
	}
	if c.User.Score == nil || c.User.Score.Score < cmd.MinContentMessageScore {
		return nil
	}
	err := cmd.Communicator.Deliver(&communicator.AdaptationMessage{
		UserGlobalID:    c.User.UserGlobalID,
		MessageGlobalID: c.Message.GlobalID,
		ContentMatch:    match,
		Score:           c.User.Score.Score,
	})
	if err != nil {
		return fmt.Errorf("deliver adaptation message: %w", err)
	}
	return nil
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/collaborative"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// CollaborativeScorer estimates a user's relevance score for a message from
// observed preferences rather than term content. *collaborative.Scorer
// implements it.
type CollaborativeScorer interface {
	Score(ctx context.Context, userGlobalID string, msg *models.Message) (float64, error)
}

// CollaborativeScoreCommand fills in the collaborative estimate when the
// content-based path produced no signal for the user. It runs after the
// aggregation command so a zero content-based score is distinguishable from a
// collaborative one. A missing estimate is a cold start, not a failure.
type CollaborativeScoreCommand struct {
	Store  persistence.Store
	Scorer CollaborativeScorer
}

// Name returns the command identifier.
func (*CollaborativeScoreCommand) Name() string { return "collaborative-score" }

// Process consults the estimator and, on success, replaces the zero score.
func (cmd *CollaborativeScoreCommand) Process(ctx context.Context, c *UserContext) error {
	if c.User.Score == nil || c.User.Score.Score > 0 {
		return nil
	}
	est, err := cmd.Scorer.Score(ctx, c.User.UserGlobalID, c.Message)
	if err != nil {
		if errors.Is(err, collaborative.ErrNoEstimate) {
			return nil
		}
		return fmt.Errorf("collaborative estimate for %s: %w", c.User.UserGlobalID, err)
	}
	c.User.Score.Score = clamp01(est)
	if c.LearnOnly {
		return nil
	}
	if err := cmd.Store.StoreOrUpdateMessageScore(ctx, c.User.Score); err != nil {
		return fmt.Errorf("persist collaborative score: %w", err)
	}
	return nil
}

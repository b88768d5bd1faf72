// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/termvector"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

// ContentMatchFeatureCommand compares the message's term vector against the
// user's matching model entries. A brand-new user without a model contributes
// a zero match; that is a cold start, not a failure.
type ContentMatchFeatureCommand struct {
	Store       persistence.Store
	ModelType   string
	Similarity  termvector.SimilarityStrategy
	Integration usermodel.IntegrationStrategy

	// WeightFactory builds the importance weighting against the current
	// message count. Resolved per message so inverse-frequency weights follow
	// the growing corpus.
	WeightFactory func(freq termvector.FrequencyProvider) termvector.WeightStrategy
}

// Name returns the command identifier.
func (*ContentMatchFeatureCommand) Name() string { return "content-match-feature" }

// Process loads the matching entries, computes the similarity, and records
// both on the user context.
func (cmd *ContentMatchFeatureCommand) Process(ctx context.Context, c *UserContext) error {
	model, err := cmd.Store.GetOrCreateUserModelByUser(ctx, c.User.UserGlobalID, cmd.ModelType)
	if err != nil {
		return fmt.Errorf("resolve user model: %w", err)
	}

	terms := make([]*models.Term, 0, len(c.Message.Terms))
	for _, st := range c.Message.Terms {
		terms = append(terms, st.Term)
	}
	entries, err := cmd.Store.GetUserModelEntriesForTerms(ctx, model, terms)
	if err != nil {
		return fmt.Errorf("load matching entries: %w", err)
	}
	c.User.MatchingEntries = entries
	for _, e := range entries {
		if e.Adapted {
			c.User.BasedOnAdaptedTerms = true
			break
		}
	}

	messageCount, err := cmd.Store.GetMessageCount(ctx)
	if err != nil {
		return fmt.Errorf("message count: %w", err)
	}
	weight := cmd.WeightFactory(termvector.StaticFrequency(messageCount))

	// Average and max strategies can exceed 1 under importance weights above
	// 1; the feature contract is [0,1].
	sim := cmd.Similarity.Similarity(c.Message.Terms, entries, weight, cmd.Integration.Weight)
	return c.User.SetFeature(FeatureContentMatch, clamp01(sim))
}

// SimilarUsersContentMatchCommand substitutes the content match of similar
// users when the scored user's own match is empty: the collaborative
// adjustment of the content-based path. It runs in the scoring pass, after
// the feature pass finished for every user, so each user's own match is
// available to borrow regardless of processing order.
type SimilarUsersContentMatchCommand struct {
	Store         persistence.Store
	MinSimilarity float64
}

// Name returns the command identifier.
func (*SimilarUsersContentMatchCommand) Name() string { return "similar-users-content-match" }

// Process weights the other users' content-match values by their similarity
// to the scored user and records the mean as the user's match when the own
// match is zero.
func (cmd *SimilarUsersContentMatchCommand) Process(ctx context.Context, c *UserContext) error {
	own, ok := c.User.Feature(FeatureContentMatch)
	if !ok || own > 0 {
		return nil
	}

	group := ""
	if c.Message != nil {
		group = c.Message.GroupGlobalID
	}
	sims, err := cmd.Store.GetUserSimilarities(ctx, c.User.UserGlobalID, c.UserOrder(), group, cmd.MinSimilarity)
	if err != nil {
		return fmt.Errorf("load user similarities: %w", err)
	}

	var weighted, mass float64
	for _, sim := range sims {
		other, found := c.Users[sim.ToUserGlobalID]
		if !found || other == c.User {
			continue
		}
		if v, has := other.Feature(FeatureContentMatch); has {
			weighted += sim.Similarity * v
			mass += sim.Similarity
		}
	}
	if mass == 0 {
		return nil
	}
	// The primary command recorded the zero match; replacing it here is the
	// one sanctioned overwrite, so bypass the write-once guard.
	c.User.Features[FeatureContentMatch] = weighted / mass
	return nil
}

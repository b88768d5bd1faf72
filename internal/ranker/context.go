// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package ranker computes per-user relevance scores for incoming messages.
//
// The scorer is a command chain over a per-message feature context owning one
// sub-context per candidate user. Feature commands each contribute one named
// value; the aggregation command folds them into a persisted UserMessageScore
// and the learner-invocation command decides whether to feed the message back
// into the user's model. The chain topology is fixed at construction time
// from the configuration flags; the per-user sub-chain instances are shared
// between the primary chain and the re-score chain so both paths compute
// identical feature semantics. Features are computed for every user before
// the scoring pass runs, so commands that read other users' features never
// depend on processing order.
package ranker

import (
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// Feature names one bounded scoring signal.
type Feature string

// Defined features.
const (
	FeatureContentMatch            Feature = "content_match"
	FeatureAuthor                  Feature = "author"
	FeatureMention                 Feature = "mention"
	FeatureDiscussionParticipation Feature = "discussion_participation"
	FeatureDiscussionMention       Feature = "discussion_mention"
	FeatureDiscussionRoot          Feature = "discussion_root"
)

// MessageFeatureContext is the transient per-message scratch space of one
// scoring call. It is created fresh per call and discarded after the chain
// completes; only the UserMessageScores survive in the store.
type MessageFeatureContext struct {
	Message  *models.Message
	Relation *models.MessageRelation

	// LearnOnly suppresses score persistence; feature computation still runs
	// to drive the learner.
	LearnOnly bool

	// Users holds one sub-context per scored user. userOrder fixes the
	// sequential processing order.
	Users     map[string]*UserFeatureContext
	userOrder []string
}

// NewMessageFeatureContext builds an empty context for one message.
func NewMessageFeatureContext(msg *models.Message, relation *models.MessageRelation) *MessageFeatureContext {
	return &MessageFeatureContext{
		Message:  msg,
		Relation: relation,
		Users:    make(map[string]*UserFeatureContext),
	}
}

// AddUser registers a user sub-context, preserving insertion order. Adding
// the same user twice is a no-op.
func (c *MessageFeatureContext) AddUser(userGlobalID string) *UserFeatureContext {
	if uc, ok := c.Users[userGlobalID]; ok {
		return uc
	}
	uc := &UserFeatureContext{
		UserGlobalID: userGlobalID,
		Features:     make(map[Feature]float64),
	}
	c.Users[userGlobalID] = uc
	c.userOrder = append(c.userOrder, userGlobalID)
	return uc
}

// UserOrder returns the user global IDs in processing order.
func (c *MessageFeatureContext) UserOrder() []string {
	return c.userOrder
}

// UserFeatureContext accumulates the feature values of one (message, user)
// pair.
type UserFeatureContext struct {
	UserGlobalID string

	// Features maps feature name to value. Commands write their own key once;
	// later commands read but never overwrite earlier values.
	Features map[Feature]float64

	// MatchingEntries is the subset of the user's model entries whose term
	// occurred in the message, keyed by term key.
	MatchingEntries map[string]*models.UserModelEntry

	// BasedOnAdaptedTerms is set when any matching entry was propagated from
	// a similar user.
	BasedOnAdaptedTerms bool

	// Score is the resolved outcome, populated by the aggregation command.
	Score *models.UserMessageScore
}

// SetFeature stores a feature value. Overwriting an existing value is a
// programming error in the chain topology and fails fatally.
func (u *UserFeatureContext) SetFeature(f Feature, value float64) error {
	if _, ok := u.Features[f]; ok {
		return fmt.Errorf("feature %s already set for user %s", f, u.UserGlobalID)
	}
	u.Features[f] = value
	return nil
}

// Feature returns the value and whether the feature was computed.
func (u *UserFeatureContext) Feature(f Feature) (float64, bool) {
	v, ok := u.Features[f]
	return v, ok
}

// UserContext is the context type of the per-user sub-chain: the shared
// message context plus the user being processed.
type UserContext struct {
	*MessageFeatureContext
	User *UserFeatureContext
}

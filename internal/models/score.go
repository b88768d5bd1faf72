// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package models

import "time"

// InteractionLevel is the categorical strength of a user's relationship to a
// message.
type InteractionLevel string

// Interaction levels.
const (
	// InteractionNone means the user neither authored the message nor is
	// mentioned nor participated in its discussion.
	InteractionNone InteractionLevel = "none"
	// InteractionIndirect means the user participated in the message's
	// discussion without being directly addressed.
	InteractionIndirect InteractionLevel = "indirect"
	// InteractionDirect means the user authored the message or is mentioned
	// in it.
	InteractionDirect InteractionLevel = "direct"
)

// UserMessageScore is the persisted outcome of scoring one message for one
// user. Unique per (user, message); re-scoring updates it in place.
type UserMessageScore struct {
	UserGlobalID     string           `json:"user_global_id"`
	MessageGlobalID  string           `json:"message_global_id"`
	Score            float64          `json:"score"`
	InteractionLevel InteractionLevel `json:"interaction_level"`

	// BasedOnAdaptedTerms marks scores whose content match used at least one
	// entry propagated from a similar user's model.
	BasedOnAdaptedTerms bool `json:"based_on_adapted_terms,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the unique (user, message) key of the score.
func (s *UserMessageScore) Key() string {
	return s.UserGlobalID + "|" + s.MessageGlobalID
}

// Statistics summarizes the persisted entity counts of a store.
type Statistics struct {
	Users        int64 `json:"users"`
	Messages     int64 `json:"messages"`
	Terms        int64 `json:"terms"`
	Observations int64 `json:"observations"`
	Scores       int64 `json:"scores"`
	ModelEntries int64 `json:"model_entries"`
}

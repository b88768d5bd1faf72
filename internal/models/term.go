// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package models

// TermCategory classifies the origin of a term.
type TermCategory string

// Term categories produced by information extraction.
const (
	// TermCategoryTerm is a plain token extracted from message text.
	TermCategoryTerm TermCategory = "term"
	// TermCategoryKeyphrase is a multi-token phrase.
	TermCategoryKeyphrase TermCategory = "keyphrase"
)

// Term is a deduplicated vocabulary entry. When group-scoped user models are
// enabled the Value carries the message-group prefix, so scoping is part of
// term identity.
type Term struct {
	ID       int64        `json:"id"`
	Category TermCategory `json:"category"`
	Value    string       `json:"value"`

	// Count is the number of messages the term occurred in, maintained by the
	// store on extraction. Drives inverse-frequency weighting.
	Count int64 `json:"count"`
}

// Key returns the identity key of the term within its store.
func (t *Term) Key() string {
	return string(t.Category) + ":" + t.Value
}

// TermKey builds the identity key for a (category, value) pair without
// requiring a Term instance.
func TermKey(category TermCategory, value string) string {
	return string(category) + ":" + value
}

// GroupScopedValue prefixes a term value with its message group so that
// group-specific models never share term identity across groups.
func GroupScopedValue(groupGlobalID, value string) string {
	if groupGlobalID == "" {
		return value
	}
	return groupGlobalID + "#" + value
}

// ScoredTerm attaches a weight to a term: the term's relevance inside one
// message (extraction output) or one user model entry (learned interest).
type ScoredTerm struct {
	Term   *Term   `json:"term"`
	Weight float64 `json:"weight"`
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package models defines the persistent data model of the relevance engine.
//
// # Entities
//
//   - Message: an incoming stream item with ordered parts, author, publication
//     date, optional message-group membership and discussion relation. Once
//     information extraction has attached scored terms the message is treated
//     as immutable.
//   - Term / ScoredTerm: the vocabulary of the content matcher. Terms are
//     deduplicated by (category, value) — optionally scoped by message group —
//     and carry a global occurrence count for inverse-frequency weighting.
//   - UserModel / UserModelEntry: a user's evolving interest profile. An entry
//     associates one term with a learned weight derived from a running score
//     sum and count, optionally routed through time bins.
//   - Observation: one unit of explicit or implicit feedback (message seen,
//     rating, like) consumed by the learner.
//   - UserMessageScore: the persisted outcome of scoring one message for one
//     user.
//   - UserSimilarity: a directional, group-scoped similarity between two
//     users, consumed by the adaptation handler.
//
// All cross-entity references use global identifiers (strings) so that the
// in-memory and durable store implementations share one contract.
package models

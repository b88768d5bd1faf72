// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package ranker scores messages for their candidate users.
//
// # Architecture
//
// Scoring runs as a command chain over a per-message feature context. The
// outer chain handles extraction and persistence; a nested per-user chain
// computes the features:
//
//   - Content match: similarity between the message term vector and the
//     user's interest profile
//   - Author, mention: direct interaction signals
//   - Discussion participation, mention, root: thread-level signals
//   - Similar-users content match: fallback for users without a usable
//     profile, borrowing the match of similar users
//
// A final command aggregates the features with configured weights, dampens
// non-participants, clamps the result to [0,1], and persists the score.
//
// # Chains
//
// The primary chain additionally emits learning and adaptation requests
// through the communicator. The re-score chain shares the per-user sub-chain
// instance with the primary chain, so re-running it without an intervening
// model change reproduces the stored score exactly.
//
// # Ordering
//
// Messages must be scored in non-decreasing publication order. The logical
// clock enforces this and drives time-binned profile integration.
package ranker

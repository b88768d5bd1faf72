// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package learner maintains user interest profiles from scored messages and
// explicit feedback.
//
// The learner consumes learning messages emitted by the scorer, resolves the
// interest the user expressed for the message from stored observations, and
// folds the message's term vector into the user's model through the
// configured integration strategy. Explicit feedback (likes, ratings) is
// ingested through Observe, which stores the observation and triggers an
// immediate learning pass.
//
// Interest resolution across conflicting observations is deterministic:
// priority first, then observation-type precedence, then explicit over
// implicit, then the higher interest.
package learner

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package collaborative estimates message relevance from the preferences of
// other users, independent of message content.
//
// Observed interests map onto a signed preference scale: a relevance score s
// in [0,1] becomes the preference s*2-1 in [-1,1], and estimates map back
// with clamping. Zero preferences are never stored, so the sparse matrix
// treats "indifferent" and "unobserved" alike.
//
// Two estimators are provided: a user-neighborhood estimator (similarity-
// weighted mean over the k nearest raters) and weighted slope one. Either can
// run globally or partitioned per message group. An estimator that cannot
// produce a prediction returns ErrNoEstimate, which callers must propagate as
// "unknown" rather than flattening it to a zero score.
package collaborative

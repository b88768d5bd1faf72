// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package adaptation propagates interest-model entries between similar users.
//
// When the scorer finds a message matching a user's profile well, it emits an
// adaptation request. The Adapter then copies that user's entries for the
// message's terms into the models of users similar to them, scaled by the
// similarity, and marks the copies as adapted so scores derived from them are
// distinguishable from scores earned by the user's own activity. Entries a
// receiving user learned themselves are never overwritten.
//
// The SimilarityComputer maintains the directional similarity rows the
// Adapter reads, derived from how comparably two users rated the same
// messages.
package adaptation

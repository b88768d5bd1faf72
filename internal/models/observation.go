// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package models

import "time"

// ObservationType classifies how the feedback was produced.
type ObservationType string

// Observation types, weakest to strongest by default precedence.
const (
	// ObservationMessage records that the user authored or received the
	// message; the interest is inferred, not explicit.
	ObservationMessage ObservationType = "message"
	// ObservationLike is an explicit like.
	ObservationLike ObservationType = "like"
	// ObservationRating is an explicit numeric rating.
	ObservationRating ObservationType = "rating"
)

// DefaultObservationPrecedence orders observation types for tie-breaking when
// two observations share a priority. Later entries win.
var DefaultObservationPrecedence = []ObservationType{
	ObservationMessage,
	ObservationLike,
	ObservationRating,
}

// ObservationPriority ranks observations of the same (user, message) pair.
// Higher values dominate.
type ObservationPriority int

// Observation priorities.
const (
	PriorityDefault ObservationPriority = 0
	PrioritySecond  ObservationPriority = 1
	PriorityFirst   ObservationPriority = 2
	// PriorityUser marks direct user feedback, which always wins.
	PriorityUser ObservationPriority = 3
)

// Interest is a normalized interest value in [0,1].
type Interest float64

// Interest anchor values matching the legacy five-step scale.
const (
	InterestNone    Interest = 0
	InterestLow     Interest = 0.25
	InterestNormal  Interest = 0.5
	InterestHigh    Interest = 0.75
	InterestExtreme Interest = 1
)

// Observation is the atomic unit of feedback the learner consumes. Interest
// is a pointer: an observation may record an event without asserting an
// interest value, and the tie-break rule prefers observations whose interest
// is present.
type Observation struct {
	ID              int64               `json:"id"`
	UserGlobalID    string              `json:"user_global_id"`
	MessageGlobalID string              `json:"message_global_id"`
	Type            ObservationType     `json:"type"`
	Priority        ObservationPriority `json:"priority"`
	Interest        *Interest           `json:"interest,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

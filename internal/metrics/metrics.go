// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package metrics exposes Prometheus instrumentation for the relevance engine:
// scoring throughput and latency, learner activity, adaptation propagation,
// collaborative estimation outcomes, and communicator delivery failures.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

var (
	// MessagesScored counts messages run through the scorer chain.
	MessagesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spektrum_messages_scored_total",
			Help: "Total number of messages processed by the scorer chain",
		},
	)

	// UserScoresComputed counts per-user scores produced.
	UserScoresComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spektrum_user_scores_computed_total",
			Help: "Total number of per-user message scores computed",
		},
	)

	// ScoreDuration tracks end-to-end scoring latency per message.
	ScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spektrum_score_duration_seconds",
			Help:    "Duration of message scoring in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LearningMessagesEmitted counts learning messages sent to the learner,
	// partitioned by trigger (threshold, observation, every_message).
	LearningMessagesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spektrum_learning_messages_total",
			Help: "Total number of learning messages emitted by the scorer",
		},
		[]string{"trigger"},
	)

	// ModelEntriesUpdated counts user-model entry writes, partitioned by
	// origin (learner, adaptation).
	ModelEntriesUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spektrum_model_entries_updated_total",
			Help: "Total number of user model entries created or updated",
		},
		[]string{"origin"},
	)

	// AdaptationsPerformed counts cross-user model adaptations. The counter is
	// observability only; repeated triggers for the same message/user pair are
	// safe and still counted.
	AdaptationsPerformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spektrum_adaptations_total",
			Help: "Total number of directed user model adaptations performed",
		},
	)

	// CollaborativeEstimates counts collaborative estimation outcomes,
	// partitioned by result (ok, no_estimate).
	CollaborativeEstimates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spektrum_collaborative_estimates_total",
			Help: "Total number of collaborative preference estimates",
		},
		[]string{"result"},
	)

	// DeliveryErrors counts communicator-level delivery failures.
	DeliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spektrum_delivery_errors_total",
			Help: "Total number of communicator delivery failures",
		},
	)

	// StoreEntities reports entity counts from the persistence layer,
	// partitioned by entity (users, messages, terms, observations, scores,
	// model_entries). Populated by RecordStoreEntities.
	StoreEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spektrum_store_entities",
			Help: "Current number of persisted entities by type",
		},
		[]string{"entity"},
	)
)

// ObserveScoreDuration records the latency of one scoring call.
func ObserveScoreDuration(start time.Time) {
	ScoreDuration.Observe(time.Since(start).Seconds())
}

// RecordStoreEntities publishes one statistics snapshot to the entity gauge.
func RecordStoreEntities(s *models.Statistics) {
	StoreEntities.WithLabelValues("users").Set(float64(s.Users))
	StoreEntities.WithLabelValues("messages").Set(float64(s.Messages))
	StoreEntities.WithLabelValues("terms").Set(float64(s.Terms))
	StoreEntities.WithLabelValues("observations").Set(float64(s.Observations))
	StoreEntities.WithLabelValues("scores").Set(float64(s.Scores))
	StoreEntities.WithLabelValues("model_entries").Set(float64(s.ModelEntries))
}

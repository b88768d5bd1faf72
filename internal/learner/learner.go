// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package learner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

// TriggerNegative marks a learning message emitted for a low-scoring message.
// The learner maps it to zero interest instead of the positive default.
const TriggerNegative = "negative"

// Learner folds message term vectors into user interest profiles. It consumes
// learning messages from the communicator, one at a time per topic, so writes
// to a single user's model never race.
type Learner struct {
	Store       persistence.Store
	Clock       timeframe.TimeProvider
	Integration usermodel.IntegrationStrategy

	// ModelType selects which profile the learner writes, matching the
	// profile the scorer reads.
	ModelType string

	// Precedence orders observation types for interest resolution; empty
	// means the default precedence.
	Precedence []models.ObservationType

	Logger zerolog.Logger
}

// MessageType declares the communicator subtype the learner consumes.
func (*Learner) MessageType() string { return communicator.TypeLearning }

// HandleMessage learns from one (user, message) pair. An unresolvable message
// id is a data-integrity failure and aborts processing.
func (l *Learner) HandleMessage(ctx context.Context, msg communicator.CommunicationMessage) error {
	lm, ok := msg.(*communicator.LearningMessage)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	return l.Learn(ctx, lm.UserGlobalID, lm.MessageGlobalID, lm.Trigger)
}

// Learn integrates the message's terms into the user's model with the
// interest resolved from stored observations, falling back to a default
// derived from the trigger.
func (l *Learner) Learn(ctx context.Context, userGlobalID, messageGlobalID, trigger string) error {
	msg, err := l.Store.GetMessageByGlobalID(ctx, messageGlobalID)
	if err != nil {
		return fmt.Errorf("learn %s for %s: %w", messageGlobalID, userGlobalID, err)
	}
	if !msg.HasTerms() {
		l.Logger.Debug().
			Str("message", messageGlobalID).
			Str("user", userGlobalID).
			Msg("message has no terms, nothing to learn")
		return nil
	}

	interest, err := l.resolveInterest(ctx, userGlobalID, messageGlobalID, trigger)
	if err != nil {
		return err
	}

	model, err := l.Store.GetOrCreateUserModelByUser(ctx, userGlobalID, l.ModelType)
	if err != nil {
		return fmt.Errorf("resolve model for %s: %w", userGlobalID, err)
	}
	n, err := l.integrate(ctx, model, msg.Terms, float64(interest), l.Clock.Now())
	if err != nil {
		return err
	}

	metrics.ModelEntriesUpdated.WithLabelValues("learner").Add(float64(n))
	l.Logger.Debug().
		Str("user", userGlobalID).
		Str("message", messageGlobalID).
		Str("trigger", trigger).
		Float64("interest", float64(interest)).
		Int("entries", n).
		Msg("learned from message")
	return nil
}

// resolveInterest prefers an explicit observation; absent one, a negative
// trigger means no interest and every other trigger means high interest,
// since the scorer only forwards messages it found relevant.
func (l *Learner) resolveInterest(ctx context.Context, userGlobalID, messageGlobalID, trigger string) (models.Interest, error) {
	observations, err := l.Store.GetObservations(ctx, userGlobalID, messageGlobalID, nil)
	if err != nil {
		return 0, fmt.Errorf("load observations for %s/%s: %w", userGlobalID, messageGlobalID, err)
	}
	if interest, ok := EffectiveInterest(observations, l.Precedence); ok && interest != nil {
		return *interest, nil
	}
	if trigger == TriggerNegative {
		return models.InterestNone, nil
	}
	return models.InterestHigh, nil
}

func (l *Learner) integrate(
	ctx context.Context,
	model *models.UserModel,
	terms []*models.ScoredTerm,
	interest float64,
	now time.Time,
) (int, error) {
	termList := make([]*models.Term, 0, len(terms))
	for _, st := range terms {
		termList = append(termList, st.Term)
	}
	entries, err := l.Store.GetUserModelEntriesForTerms(ctx, model, termList)
	if err != nil {
		return 0, fmt.Errorf("load model entries: %w", err)
	}

	updated := make([]*models.UserModelEntry, 0, len(terms))
	for _, st := range terms {
		entry, ok := entries[st.Term.Key()]
		if !ok {
			entry = &models.UserModelEntry{
				ScoredTerm: &models.ScoredTerm{Term: st.Term},
			}
		}
		l.Integration.Integrate(entry, interest, now)
		entry.ScoredTerm.Weight = l.Integration.Weight(entry)
		updated = append(updated, entry)
	}
	if err := l.Store.StoreOrUpdateUserModelEntries(ctx, model, updated); err != nil {
		return 0, fmt.Errorf("store model entries: %w", err)
	}
	return len(updated), nil
}

// Observe records explicit user feedback and immediately triggers learning
// for the rated message, so a rating takes effect without waiting for the
// next scoring pass.
func (l *Learner) Observe(ctx context.Context, comm communicator.Communicator, obs *models.Observation) error {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = l.Clock.Now()
	}
	if err := l.Store.StoreObservation(ctx, obs); err != nil {
		return fmt.Errorf("store observation: %w", err)
	}
	return comm.Deliver(&communicator.LearningMessage{
		UserGlobalID:    obs.UserGlobalID,
		MessageGlobalID: obs.MessageGlobalID,
		Trigger:         "observation",
	})
}

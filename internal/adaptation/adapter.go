// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package adaptation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/chain"
	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

// RescoreFunc re-runs scoring for one (message, user) pair after the user's
// model changed. Wired from the ranker at assembly time.
type RescoreFunc func(ctx context.Context, messageGlobalID, userGlobalID string) error

// Adapter propagates well-matching model entries from a user to users similar
// to them. It consumes adaptation messages emitted by the scorer when a user's
// content match cleared the configured thresholds.
type Adapter struct {
	Store       persistence.Store
	Integration usermodel.IntegrationStrategy

	// ModelType selects which profile is read from the source user and
	// written to the similar users.
	ModelType string

	// MinSimilarity gates which similarity rows take part.
	MinSimilarity float64

	// PartitionByGroup restricts adaptation to similarities computed within
	// the message's group.
	PartitionByGroup bool

	// Rescore, when set, recomputes the receiving user's score for the
	// triggering message so the adapted entries become visible immediately.
	Rescore RescoreFunc

	Logger zerolog.Logger
}

// MessageType declares the communicator subtype the adapter consumes.
func (*Adapter) MessageType() string { return communicator.TypeAdaptation }

// HandleMessage adapts the models of users similar to the triggering user.
// An unresolvable message id is a data-integrity failure; a missing model on
// a similar user is created on the fly.
func (a *Adapter) HandleMessage(ctx context.Context, msg communicator.CommunicationMessage) error {
	am, ok := msg.(*communicator.AdaptationMessage)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	return a.Adapt(ctx, am.UserGlobalID, am.MessageGlobalID)
}

// Adapt copies the source user's entries for the message's terms into the
// models of sufficiently similar users, scaled by the similarity. Entries a
// receiving user already learned on their own are never overwritten.
func (a *Adapter) Adapt(ctx context.Context, sourceUserGlobalID, messageGlobalID string) error {
	msg, err := a.Store.GetMessageByGlobalID(ctx, messageGlobalID)
	if err != nil {
		return fmt.Errorf("adapt from %s for %s: %w", sourceUserGlobalID, messageGlobalID, err)
	}
	if !msg.HasTerms() {
		return nil
	}
	terms := make([]*models.Term, 0, len(msg.Terms))
	for _, st := range msg.Terms {
		terms = append(terms, st.Term)
	}

	sourceModel, err := a.Store.GetOrCreateUserModelByUser(ctx, sourceUserGlobalID, a.ModelType)
	if err != nil {
		return fmt.Errorf("resolve source model for %s: %w", sourceUserGlobalID, err)
	}
	sourceEntries, err := a.Store.GetUserModelEntriesForTerms(ctx, sourceModel, terms)
	if err != nil {
		return fmt.Errorf("load source entries: %w", err)
	}
	if len(sourceEntries) == 0 {
		return nil
	}

	group := ""
	if a.PartitionByGroup {
		group = msg.GroupGlobalID
	}
	candidates, err := a.Store.GetUserGlobalIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	sims, err := a.Store.GetUserSimilarities(ctx, sourceUserGlobalID, candidates, group, a.MinSimilarity)
	if err != nil {
		return fmt.Errorf("load similarities of %s: %w", sourceUserGlobalID, err)
	}

	var errs []error
	for _, sim := range sims {
		if sim.ToUserGlobalID == sourceUserGlobalID {
			continue
		}
		if err := a.adaptOne(ctx, sim, terms, sourceEntries, messageGlobalID); err != nil {
			// One unreachable receiver must not starve the rest.
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return chain.Recoverable(errors.Join(errs...))
	}
	return nil
}

func (a *Adapter) adaptOne(
	ctx context.Context,
	sim *models.UserSimilarity,
	terms []*models.Term,
	sourceEntries map[string]*models.UserModelEntry,
	messageGlobalID string,
) error {
	target := sim.ToUserGlobalID
	model, err := a.Store.GetOrCreateUserModelByUser(ctx, target, a.ModelType)
	if err != nil {
		return fmt.Errorf("resolve model for %s: %w", target, err)
	}
	existing, err := a.Store.GetUserModelEntriesForTerms(ctx, model, terms)
	if err != nil {
		return fmt.Errorf("load entries for %s: %w", target, err)
	}

	adapted := make([]*models.UserModelEntry, 0, len(sourceEntries))
	for key, src := range sourceEntries {
		if cur, ok := existing[key]; ok && !cur.Adapted {
			// The user learned this term themselves, keep their signal.
			continue
		}
		e := src.Clone()
		e.ID = 0
		e.Adapted = true
		e.ScoreSum *= sim.Similarity
		for i := range e.TimeBins {
			e.TimeBins[i].ScoreSum *= sim.Similarity
		}
		e.ScoredTerm.Weight = a.Integration.Weight(e)
		adapted = append(adapted, e)
	}
	if len(adapted) == 0 {
		return nil
	}
	if err := a.Store.StoreOrUpdateUserModelEntries(ctx, model, adapted); err != nil {
		return fmt.Errorf("store adapted entries for %s: %w", target, err)
	}

	metrics.AdaptationsPerformed.Inc()
	metrics.ModelEntriesUpdated.WithLabelValues("adaptation").Add(float64(len(adapted)))
	a.Logger.Debug().
		Str("source", sim.FromUserGlobalID).
		Str("target", target).
		Float64("similarity", sim.Similarity).
		Int("entries", len(adapted)).
		Msg("adapted user model")

	if a.Rescore != nil {
		if err := a.Rescore(ctx, messageGlobalID, target); err != nil {
			return fmt.Errorf("rescore %s for %s: %w", messageGlobalID, target, err)
		}
	}
	return nil
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package adaptation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/learner"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
)

// SimilarityComputer batch-recomputes directional user similarities from
// observation overlap. Two users are similar when they expressed comparable
// interest for the same messages.
type SimilarityComputer struct {
	Store persistence.Store
	Clock timeframe.TimeProvider

	// PartitionByGroup computes one similarity row per message group instead
	// of one global row per user pair.
	PartitionByGroup bool

	// Precedence orders observation types when a user has several
	// observations for one message; empty means the default precedence.
	Precedence []models.ObservationType

	Logger zerolog.Logger
}

// interestVector is one user's resolved interest per message, keyed by group
// when partitioning is on ("" otherwise).
type interestVector map[string]map[string]float64

// ComputeAll recomputes and stores similarities for every ordered user pair.
// Pairs without any shared observed message get no row, which the reader
// treats as zero similarity. Returns the number of rows written.
func (s *SimilarityComputer) ComputeAll(ctx context.Context) (int, error) {
	userIDs, err := s.Store.GetUserGlobalIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	vectors := make(map[string]interestVector, len(userIDs))
	for _, id := range userIDs {
		v, err := s.vectorOf(ctx, id)
		if err != nil {
			return 0, err
		}
		vectors[id] = v
	}

	now := s.Clock.Now()
	written := 0
	for _, from := range userIDs {
		for _, to := range userIDs {
			if from == to {
				continue
			}
			for group, fromVec := range vectors[from] {
				toVec, ok := vectors[to][group]
				if !ok {
					continue
				}
				sim, shared := cosine(fromVec, toVec)
				if shared == 0 {
					continue
				}
				row := &models.UserSimilarity{
					FromUserGlobalID: from,
					ToUserGlobalID:   to,
					GroupGlobalID:    group,
					Similarity:       sim,
					ComputedAt:       now,
				}
				if err := s.Store.StoreUserSimilarity(ctx, row); err != nil {
					return written, fmt.Errorf("store similarity %s->%s: %w", from, to, err)
				}
				written++
			}
		}
	}
	s.Logger.Info().
		Int("users", len(userIDs)).
		Int("rows", written).
		Msg("recomputed user similarities")
	return written, nil
}

// vectorOf resolves one interest value per (group, message) for a user,
// applying the same observation precedence the learner applies.
func (s *SimilarityComputer) vectorOf(ctx context.Context, userGlobalID string) (interestVector, error) {
	observations, err := s.Store.GetObservationsByUser(ctx, userGlobalID)
	if err != nil {
		return nil, fmt.Errorf("load observations of %s: %w", userGlobalID, err)
	}

	byMessage := make(map[string][]*models.Observation)
	for _, obs := range observations {
		byMessage[obs.MessageGlobalID] = append(byMessage[obs.MessageGlobalID], obs)
	}

	v := make(interestVector)
	for msgID, group := range s.groupsOf(ctx, byMessage) {
		interest, ok := learner.EffectiveInterest(byMessage[msgID], s.Precedence)
		if !ok || interest == nil {
			continue
		}
		if v[group] == nil {
			v[group] = make(map[string]float64)
		}
		v[group][msgID] = float64(*interest)
	}
	return v, nil
}

// groupsOf maps each observed message to its partition key. Messages that can
// no longer be resolved fall into the global partition.
func (s *SimilarityComputer) groupsOf(ctx context.Context, byMessage map[string][]*models.Observation) map[string]string {
	groups := make(map[string]string, len(byMessage))
	for msgID := range byMessage {
		group := ""
		if s.PartitionByGroup {
			if msg, err := s.Store.GetMessageByGlobalID(ctx, msgID); err == nil {
				group = msg.GroupGlobalID
			}
		}
		groups[msgID] = group
	}
	return groups
}

// cosine computes the cosine similarity over the messages both vectors share.
// The second return is the number of shared messages.
func cosine(a, b map[string]float64) (float64, int) {
	var dot, normA, normB float64
	shared := 0
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			continue
		}
		shared++
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if shared == 0 || normA == 0 || normB == 0 {
		return 0, shared
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), shared
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package collaborative

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// ErrRouterEstimate reports a direct Estimate call on the group router, which
// cannot know the group of a bare item key.
var ErrRouterEstimate = errors.New("group router requires EstimateInGroup")

// GroupPartitionedEstimator routes estimation to one independent matrix and
// estimator per message group.
type GroupPartitionedEstimator struct {
	mu        sync.RWMutex
	matrices  map[string]*Matrix
	estimator Estimator
}

// NewGroupPartitionedEstimator wraps a shared estimator over per-group
// matrices.
func NewGroupPartitionedEstimator(estimator Estimator) *GroupPartitionedEstimator {
	return &GroupPartitionedEstimator{
		matrices:  make(map[string]*Matrix),
		estimator: estimator,
	}
}

// SetMatrix installs or replaces one group's matrix.
func (g *GroupPartitionedEstimator) SetMatrix(groupGlobalID string, m *Matrix) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.matrices[groupGlobalID] = m
}

// EstimateInGroup estimates within one group's matrix. A group without a
// matrix yields ErrNoEstimate.
func (g *GroupPartitionedEstimator) EstimateInGroup(groupGlobalID, user, item string) (float64, error) {
	g.mu.RLock()
	m, ok := g.matrices[groupGlobalID]
	g.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("group %s has no matrix: %w", groupGlobalID, ErrNoEstimate)
	}
	return g.estimator.Estimate(m, user, item)
}

// Estimate always fails: the router cannot resolve an item to a group.
func (g *GroupPartitionedEstimator) Estimate(*Matrix, string, string) (float64, error) {
	return 0, ErrRouterEstimate
}

// Scorer produces collaborative relevance scores in [0,1], compatible with
// the content-based path. Matrices are rebuilt on Refresh, not per score.
type Scorer struct {
	Store    persistence.Store
	Settings config.Collaborative

	// Precedence orders observation types for interest resolution; empty
	// means the default precedence.
	Precedence []models.ObservationType

	Logger zerolog.Logger

	mu        sync.RWMutex
	matrix    *Matrix
	router    *GroupPartitionedEstimator
	estimator Estimator
}

// NewScorer builds a scorer for the configured estimator and item axis.
func NewScorer(store persistence.Store, settings config.Collaborative, logger zerolog.Logger) (*Scorer, error) {
	var est Estimator
	switch settings.Estimator {
	case config.EstimatorNeighborhood:
		est = UserNeighborhoodEstimator{
			Neighbors:     settings.Neighbors,
			MinSimilarity: settings.MinSimilarity,
		}
	case config.EstimatorSlopeOne:
		est = SlopeOneEstimator{}
	default:
		return nil, fmt.Errorf("%w: unknown collaborative estimator %q",
			config.ErrInvalidConfiguration, settings.Estimator)
	}
	s := &Scorer{
		Store:     store,
		Settings:  settings,
		Logger:    logger.With().Str("component", "collaborative").Logger(),
		estimator: est,
	}
	if settings.PartitionByGroup {
		s.router = NewGroupPartitionedEstimator(est)
	}
	return s, nil
}

// Refresh rebuilds the preference matrices from the current observations.
func (s *Scorer) Refresh(ctx context.Context) error {
	builder := &MatrixBuilder{Store: s.Store, Item: s.Settings.Item, Precedence: s.Precedence}

	if !s.Settings.PartitionByGroup {
		m, err := builder.Build(ctx)
		if err != nil {
			return fmt.Errorf("build preference matrix: %w", err)
		}
		s.mu.Lock()
		s.matrix = m
		s.mu.Unlock()
		s.Logger.Debug().Int("preferences", m.Len()).Msg("rebuilt preference matrix")
		return nil
	}

	// Partitioned: build the global matrix once, then split by the group of
	// each observed message.
	global, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build preference matrix: %w", err)
	}
	byGroup := make(map[string]*Matrix)
	for _, user := range global.Users() {
		for item, pref := range global.UserRow(user) {
			group := s.groupOfItem(ctx, item)
			if byGroup[group] == nil {
				byGroup[group] = NewMatrix()
			}
			byGroup[group].Set(user, item, pref)
		}
	}
	for group, m := range byGroup {
		s.router.SetMatrix(group, m)
	}
	s.Logger.Debug().Int("groups", len(byGroup)).Msg("rebuilt partitioned preference matrices")
	return nil
}

// groupOfItem resolves an item key to its message group. Term items and
// unresolvable messages land in the global partition.
func (s *Scorer) groupOfItem(ctx context.Context, item string) string {
	if s.Settings.Item != config.CollaborativeItemMessage {
		return ""
	}
	if msg, err := s.Store.GetMessageByGlobalID(ctx, item); err == nil {
		return msg.GroupGlobalID
	}
	return ""
}

// Score estimates the user's relevance score for the message. ErrNoEstimate
// means the matrix carries no usable signal; it is never reported as a zero
// score.
func (s *Scorer) Score(ctx context.Context, userGlobalID string, msg *models.Message) (float64, error) {
	pref, err := s.estimate(userGlobalID, msg)
	if err != nil {
		if errors.Is(err, ErrNoEstimate) {
			metrics.CollaborativeEstimates.WithLabelValues("no_estimate").Inc()
		}
		return 0, err
	}
	metrics.CollaborativeEstimates.WithLabelValues("ok").Inc()
	return PreferenceFromEstimate(pref), nil
}

func (s *Scorer) estimate(userGlobalID string, msg *models.Message) (float64, error) {
	if s.Settings.Item == config.CollaborativeItemTerm {
		return s.estimateOverTerms(userGlobalID, msg)
	}
	if s.router != nil {
		return s.router.EstimateInGroup(msg.GroupGlobalID, userGlobalID, msg.GlobalID)
	}
	s.mu.RLock()
	m := s.matrix
	s.mu.RUnlock()
	if m == nil {
		return 0, fmt.Errorf("matrix not built: %w", ErrNoEstimate)
	}
	return s.estimator.Estimate(m, userGlobalID, msg.GlobalID)
}

// estimateOverTerms averages the per-term estimates that succeed; all terms
// failing means no estimate for the message.
func (s *Scorer) estimateOverTerms(userGlobalID string, msg *models.Message) (float64, error) {
	if !msg.HasTerms() {
		return 0, fmt.Errorf("message %s has no terms: %w", msg.GlobalID, ErrNoEstimate)
	}
	s.mu.RLock()
	m := s.matrix
	s.mu.RUnlock()
	if m == nil && s.router == nil {
		return 0, fmt.Errorf("matrix not built: %w", ErrNoEstimate)
	}

	var sum float64
	n := 0
	for _, st := range msg.Terms {
		var est float64
		var err error
		if s.router != nil {
			est, err = s.router.EstimateInGroup("", userGlobalID, st.Term.Key())
		} else {
			est, err = s.estimator.Estimate(m, userGlobalID, st.Term.Key())
		}
		if err != nil {
			if errors.Is(err, ErrNoEstimate) {
				continue
			}
			return 0, err
		}
		sum += est
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no term estimates for %s: %w", msg.GlobalID, ErrNoEstimate)
	}
	return sum / float64(n), nil
}

// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package memstore implements the persistence contract in memory. It backs
// tests and the evaluation driver; one coarse RWMutex gives it stronger
// atomicity than the contract demands.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// MemStore is an in-memory persistence.Store. Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	nextID int64

	users      map[string]*models.User
	userModels map[string]*models.UserModel
	// entries: model key -> term key -> entry
	entries      map[string]map[string]*models.UserModelEntry
	terms        map[string]*models.Term
	messages     map[string]*models.Message
	relations    map[string]*models.MessageRelation
	scores       map[string]*models.UserMessageScore
	similarities map[string]*models.UserSimilarity
	observations []*models.Observation
}

// New creates an empty store.
func New() *MemStore {
	return &MemStore{
		users:        make(map[string]*models.User),
		userModels:   make(map[string]*models.UserModel),
		entries:      make(map[string]map[string]*models.UserModelEntry),
		terms:        make(map[string]*models.Term),
		messages:     make(map[string]*models.Message),
		relations:    make(map[string]*models.MessageRelation),
		scores:       make(map[string]*models.UserMessageScore),
		similarities: make(map[string]*models.UserSimilarity),
	}
}

var _ persistence.Store = (*MemStore)(nil)

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

func modelKey(userGlobalID, modelType string) string {
	return userGlobalID + "|" + modelType
}

func simKey(from, to, group string) string {
	return from + "|" + to + "|" + group
}

// GetOrCreateUser resolves a user, creating it on first use.
func (s *MemStore) GetOrCreateUser(_ context.Context, globalID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[globalID]; ok {
		return u, nil
	}
	u := &models.User{ID: s.id(), GlobalID: globalID}
	s.users[globalID] = u
	return u, nil
}

// GetUser resolves a user or returns ErrUnknownUser.
func (s *MemStore) GetUser(_ context.Context, globalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[globalID]
	if !ok {
		return nil, persistence.ErrUnknownUser
	}
	return u, nil
}

// GetUserGlobalIDs lists every known user.
func (s *MemStore) GetUserGlobalIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetOrCreateUserModelByUser resolves the (user, modelType) model.
func (s *MemStore) GetOrCreateUserModelByUser(_ context.Context, userGlobalID, modelType string) (*models.UserModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userGlobalID]; !ok {
		s.users[userGlobalID] = &models.User{ID: s.id(), GlobalID: userGlobalID}
	}
	key := modelKey(userGlobalID, modelType)
	if m, ok := s.userModels[key]; ok {
		return m, nil
	}
	m := &models.UserModel{ID: s.id(), UserGlobalID: userGlobalID, ModelType: modelType}
	s.userModels[key] = m
	s.entries[key] = make(map[string]*models.UserModelEntry)
	return m, nil
}

// GetUserModelEntriesForTerms returns entries for the given terms.
func (s *MemStore) GetUserModelEntriesForTerms(_ context.Context, model *models.UserModel, terms []*models.Term) (map[string]*models.UserModelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byTerm := s.entries[modelKey(model.UserGlobalID, model.ModelType)]
	out := make(map[string]*models.UserModelEntry)
	for _, t := range terms {
		if e, ok := byTerm[t.Key()]; ok {
			out[t.Key()] = e.Clone()
		}
	}
	return out, nil
}

// GetAllUserModelEntries returns every entry of the model.
func (s *MemStore) GetAllUserModelEntries(_ context.Context, model *models.UserModel) (map[string]*models.UserModelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byTerm := s.entries[modelKey(model.UserGlobalID, model.ModelType)]
	out := make(map[string]*models.UserModelEntry, len(byTerm))
	for k, e := range byTerm {
		out[k] = e.Clone()
	}
	return out, nil
}

// StoreOrUpdateUserModelEntries upserts entries.
func (s *MemStore) StoreOrUpdateUserModelEntries(_ context.Context, model *models.UserModel, entries []*models.UserModelEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := modelKey(model.UserGlobalID, model.ModelType)
	byTerm, ok := s.entries[key]
	if !ok {
		return persistence.ErrUnknownModel
	}
	for _, e := range entries {
		stored := e.Clone()
		if stored.ID == 0 {
			stored.ID = s.id()
		}
		byTerm[e.ScoredTerm.Term.Key()] = stored
	}
	return nil
}

// RemoveUserModelEntry deletes one entry.
func (s *MemStore) RemoveUserModelEntry(_ context.Context, model *models.UserModel, termKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTerm, ok := s.entries[modelKey(model.UserGlobalID, model.ModelType)]
	if !ok {
		return persistence.ErrUnknownModel
	}
	delete(byTerm, termKey)
	return nil
}

// GetOrCreateTerm resolves a term, creating it lazily with zero count.
func (s *MemStore) GetOrCreateTerm(_ context.Context, category models.TermCategory, value string) (*models.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.TermKey(category, value)
	if t, ok := s.terms[key]; ok {
		return t, nil
	}
	t := &models.Term{ID: s.id(), Category: category, Value: value}
	s.terms[key] = t
	return t, nil
}

// IncrementTermCounts bumps occurrence counts by one per term.
func (s *MemStore) IncrementTermCounts(_ context.Context, terms []*models.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range terms {
		if stored, ok := s.terms[t.Key()]; ok {
			stored.Count++
			t.Count = stored.Count
		}
	}
	return nil
}

// GetMessageCount returns the number of stored messages.
func (s *MemStore) GetMessageCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

// StoreMessage persists a message.
func (s *MemStore) StoreMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == 0 {
		msg.ID = s.id()
	}
	s.messages[msg.GlobalID] = msg
	return nil
}

// GetMessageByGlobalID resolves a message or returns ErrUnknownMessage.
func (s *MemStore) GetMessageByGlobalID(_ context.Context, globalID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[globalID]
	if !ok {
		return nil, persistence.ErrUnknownMessage
	}
	return m, nil
}

// GetMessagesSince lists messages in publication order.
func (s *MemStore) GetMessagesSince(_ context.Context, groupGlobalID string, since time.Time) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, m := range s.messages {
		if m.PublicationDate.Before(since) {
			continue
		}
		if groupGlobalID != "" && m.GroupGlobalID != groupGlobalID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PublicationDate.Equal(out[j].PublicationDate) {
			return out[i].GlobalID < out[j].GlobalID
		}
		return out[i].PublicationDate.Before(out[j].PublicationDate)
	})
	return out, nil
}

// StoreMessageRelation persists the relation of a message.
func (s *MemStore) StoreMessageRelation(_ context.Context, messageGlobalID string, relation *models.MessageRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[messageGlobalID] = relation
	return nil
}

// GetMessageRelation returns the stored relation or nil.
func (s *MemStore) GetMessageRelation(_ context.Context, messageGlobalID string) (*models.MessageRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relations[messageGlobalID], nil
}

// StoreOrUpdateMessageScore upserts the unique (user, message) score.
func (s *MemStore) StoreOrUpdateMessageScore(_ context.Context, score *models.UserMessageScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *score
	s.scores[score.Key()] = &stored
	return nil
}

// GetMessageScore returns the stored score or ErrNoSuchScore.
func (s *MemStore) GetMessageScore(_ context.Context, userGlobalID, messageGlobalID string) (*models.UserMessageScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[userGlobalID+"|"+messageGlobalID]
	if !ok {
		return nil, persistence.ErrNoSuchScore
	}
	out := *sc
	return &out, nil
}

// GetUsersWithUserModel lists users whose model matches the terms.
func (s *MemStore) GetUsersWithUserModel(_ context.Context, terms []*models.Term, modelType string, mode persistence.MatchMode) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key, model := range s.userModels {
		if model.ModelType != modelType {
			continue
		}
		byTerm := s.entries[key]
		matched := 0
		for _, t := range terms {
			if _, ok := byTerm[t.Key()]; ok {
				matched++
			}
		}
		switch mode {
		case persistence.MatchAll:
			if matched == len(terms) && len(terms) > 0 {
				out = append(out, model.UserGlobalID)
			}
		default:
			if matched > 0 {
				out = append(out, model.UserGlobalID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// StoreUserSimilarity upserts a directional similarity row.
func (s *MemStore) StoreUserSimilarity(_ context.Context, sim *models.UserSimilarity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *sim
	s.similarities[simKey(sim.FromUserGlobalID, sim.ToUserGlobalID, sim.GroupGlobalID)] = &stored
	return nil
}

// GetUserSimilarities returns outgoing similarities of fromGlobalID.
func (s *MemStore) GetUserSimilarities(_ context.Context, fromGlobalID string, toGlobalIDs []string, groupGlobalID string, minSimilarity float64) ([]*models.UserSimilarity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(toGlobalIDs))
	for _, id := range toGlobalIDs {
		wanted[id] = true
	}
	var out []*models.UserSimilarity
	for _, sim := range s.similarities {
		if sim.FromUserGlobalID != fromGlobalID {
			continue
		}
		if sim.GroupGlobalID != groupGlobalID {
			continue
		}
		if len(wanted) > 0 && !wanted[sim.ToUserGlobalID] {
			continue
		}
		if sim.Similarity < minSimilarity {
			continue
		}
		c := *sim
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToUserGlobalID < out[j].ToUserGlobalID })
	return out, nil
}

// StoreObservation appends an observation.
func (s *MemStore) StoreObservation(_ context.Context, obs *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *obs
	if stored.ID == 0 {
		stored.ID = s.id()
	}
	obs.ID = stored.ID
	s.observations = append(s.observations, &stored)
	return nil
}

// GetObservations returns observations for the (user, message) pair.
func (s *MemStore) GetObservations(_ context.Context, userGlobalID, messageGlobalID string, types []models.ObservationType) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	typeSet := make(map[models.ObservationType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var out []*models.Observation
	for _, o := range s.observations {
		if o.UserGlobalID != userGlobalID || o.MessageGlobalID != messageGlobalID {
			continue
		}
		if len(typeSet) > 0 && !typeSet[o.Type] {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

// GetObservationsByUser returns every observation of one user.
func (s *MemStore) GetObservationsByUser(_ context.Context, userGlobalID string) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Observation
	for _, o := range s.observations {
		if o.UserGlobalID == userGlobalID {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

// ComputeStatistics summarizes entity counts.
func (s *MemStore) ComputeStatistics(_ context.Context) (*models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.Statistics{
		Users:        int64(len(s.users)),
		Messages:     int64(len(s.messages)),
		Terms:        int64(len(s.terms)),
		Observations: int64(len(s.observations)),
		Scores:       int64(len(s.scores)),
	}
	for _, byTerm := range s.entries {
		stats.ModelEntries += int64(len(byTerm))
	}
	return stats, nil
}

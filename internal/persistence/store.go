// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package persistence defines the storage contract consumed by the scoring
// core, together with an in-memory implementation (memstore) and a durable
// Badger-backed one (badgerstore).
//
// The persistence boundary is the only shared mutable resource of the
// engine. The core does not lock; implementations guarantee at least
// per-entity atomicity, so a read-modify-write of a single user model entry
// never races across two concurrently scored messages.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// Sentinel errors of the storage contract. Unknown user and message are
// data-integrity failures: callers referencing them abort the current
// message's processing.
var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownMessage = errors.New("unknown message")
	ErrUnknownModel   = errors.New("unknown user model")
	ErrNoSuchScore    = errors.New("no score for user and message")
)

// MatchMode controls how GetUsersWithUserModel matches terms.
type MatchMode string

// Match modes.
const (
	// MatchAny selects models containing an entry for at least one term.
	MatchAny MatchMode = "any"
	// MatchAll selects models containing entries for every term.
	MatchAll MatchMode = "all"
)

// Store is the persistence contract of the relevance engine.
type Store interface {
	// GetOrCreateUser resolves a user by global ID, creating it on first use.
	GetOrCreateUser(ctx context.Context, globalID string) (*models.User, error)

	// GetUser resolves a user or returns ErrUnknownUser.
	GetUser(ctx context.Context, globalID string) (*models.User, error)

	// GetUserGlobalIDs lists every known user.
	GetUserGlobalIDs(ctx context.Context) ([]string, error)

	// GetOrCreateUserModelByUser resolves the (user, modelType) model,
	// creating it on first use. The user is created as needed.
	GetOrCreateUserModelByUser(ctx context.Context, userGlobalID, modelType string) (*models.UserModel, error)

	// GetUserModelEntriesForTerms returns the model's entries for the given
	// terms, keyed by term key. Terms without an entry are absent from the
	// result.
	GetUserModelEntriesForTerms(ctx context.Context, model *models.UserModel, terms []*models.Term) (map[string]*models.UserModelEntry, error)

	// GetAllUserModelEntries returns every entry of the model keyed by term key.
	GetAllUserModelEntries(ctx context.Context, model *models.UserModel) (map[string]*models.UserModelEntry, error)

	// StoreOrUpdateUserModelEntries upserts the given entries atomically per
	// entry.
	StoreOrUpdateUserModelEntries(ctx context.Context, model *models.UserModel, entries []*models.UserModelEntry) error

	// RemoveUserModelEntry deletes one entry. Only the profile cleanup pass
	// calls this.
	RemoveUserModelEntry(ctx context.Context, model *models.UserModel, termKey string) error

	// GetOrCreateTerm resolves a term by (category, value), creating it with
	// zero count on first occurrence.
	GetOrCreateTerm(ctx context.Context, category models.TermCategory, value string) (*models.Term, error)

	// IncrementTermCounts increments the occurrence count of each term by
	// one, for a message containing them.
	IncrementTermCounts(ctx context.Context, terms []*models.Term) error

	// GetMessageCount returns the number of stored messages (the N of
	// inverse-frequency weighting).
	GetMessageCount(ctx context.Context) (int64, error)

	// StoreMessage persists a message.
	StoreMessage(ctx context.Context, msg *models.Message) error

	// GetMessageByGlobalID resolves a message or returns ErrUnknownMessage.
	GetMessageByGlobalID(ctx context.Context, globalID string) (*models.Message, error)

	// GetMessagesSince lists messages published at or after since, optionally
	// restricted to one group, ordered by publication date.
	GetMessagesSince(ctx context.Context, groupGlobalID string, since time.Time) ([]*models.Message, error)

	// StoreMessageRelation persists the discussion relation of a message.
	StoreMessageRelation(ctx context.Context, messageGlobalID string, relation *models.MessageRelation) error

	// GetMessageRelation returns the stored relation or nil when absent.
	GetMessageRelation(ctx context.Context, messageGlobalID string) (*models.MessageRelation, error)

	// StoreOrUpdateMessageScore upserts the unique (user, message) score.
	StoreOrUpdateMessageScore(ctx context.Context, score *models.UserMessageScore) error

	// GetMessageScore returns the stored score or ErrNoSuchScore.
	GetMessageScore(ctx context.Context, userGlobalID, messageGlobalID string) (*models.UserMessageScore, error)

	// GetUsersWithUserModel returns the global IDs of users whose model of
	// the given type has entries matching the terms under the match mode.
	GetUsersWithUserModel(ctx context.Context, terms []*models.Term, modelType string, mode MatchMode) ([]string, error)

	// StoreUserSimilarity upserts a directional similarity row.
	StoreUserSimilarity(ctx context.Context, sim *models.UserSimilarity) error

	// GetUserSimilarities returns similarities directed from fromGlobalID,
	// optionally restricted to the given targets and group scope, with
	// similarity >= minSimilarity.
	GetUserSimilarities(ctx context.Context, fromGlobalID string, toGlobalIDs []string, groupGlobalID string, minSimilarity float64) ([]*models.UserSimilarity, error)

	// StoreObservation appends an observation.
	StoreObservation(ctx context.Context, obs *models.Observation) error

	// GetObservations returns observations for the (user, message) pair,
	// optionally filtered by type.
	GetObservations(ctx context.Context, userGlobalID, messageGlobalID string, types []models.ObservationType) ([]*models.Observation, error)

	// GetObservationsByUser returns every observation of one user.
	GetObservationsByUser(ctx context.Context, userGlobalID string) ([]*models.Observation, error)

	// ComputeStatistics summarizes persisted entity counts.
	ComputeStatistics(ctx context.Context) (*models.Statistics, error)
}

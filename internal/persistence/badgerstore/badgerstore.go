// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package badgerstore implements the persistence contract on BadgerDB for
// durable operation. Values are JSON-encoded; Badger transactions give the
// per-entity atomicity the contract requires.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// Key prefixes for BadgerDB storage.
const (
	userKeyPrefix  = "user:"
	modelKeyPrefix = "model:"
	entryKeyPrefix = "entry:"
	termKeyPrefix  = "term:"
	msgKeyPrefix   = "msg:"
	relKeyPrefix   = "rel:"
	scoreKeyPrefix = "score:"
	simKeyPrefix   = "sim:"
	obsKeyPrefix   = "obs:"
	idSequenceKey  = "seq:ids"
)

// BadgerStore is a durable persistence.Store backed by BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ persistence.Store = (*BadgerStore)(nil)

// Open opens (or creates) a store at the given directory.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	seq, err := db.GetSequence([]byte(idSequenceKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open id sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the sequence and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release id sequence: %w", err)
	}
	return s.db.Close()
}

func (s *BadgerStore) nextID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return int64(n) + 1, nil
}

// get unmarshals the value at key into out. Returns badger.ErrKeyNotFound
// untouched so callers can map it to a contract error.
func (s *BadgerStore) get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// iterate walks every value under prefix, unmarshalling into a fresh T and
// passing it to fn.
func iterate[T any](s *BadgerStore, prefix string, fn func(key string, v *T) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var v T
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), &v); err != nil {
				return err
			}
		}
		return nil
	})
}

func count(s *BadgerStore, prefix string) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func modelKey(userGlobalID, modelType string) string {
	return userGlobalID + "|" + modelType
}

// GetOrCreateUser resolves a user, creating it on first use.
func (s *BadgerStore) GetOrCreateUser(_ context.Context, globalID string) (*models.User, error) {
	var u models.User
	err := s.get(userKeyPrefix+globalID, &u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	id, err := s.nextID()
	if err != nil {
		return nil, err
	}
	u = models.User{ID: id, GlobalID: globalID}
	if err := s.set(userKeyPrefix+globalID, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser resolves a user or returns ErrUnknownUser.
func (s *BadgerStore) GetUser(_ context.Context, globalID string) (*models.User, error) {
	var u models.User
	err := s.get(userKeyPrefix+globalID, &u)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserGlobalIDs lists every known user.
func (s *BadgerStore) GetUserGlobalIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := iterate(s, userKeyPrefix, func(_ string, u *models.User) error {
		ids = append(ids, u.GlobalID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// GetOrCreateUserModelByUser resolves the (user, modelType) model.
func (s *BadgerStore) GetOrCreateUserModelByUser(ctx context.Context, userGlobalID, modelType string) (*models.UserModel, error) {
	if _, err := s.GetOrCreateUser(ctx, userGlobalID); err != nil {
		return nil, err
	}
	key := modelKeyPrefix + modelKey(userGlobalID, modelType)
	var m models.UserModel
	err := s.get(key, &m)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	id, err := s.nextID()
	if err != nil {
		return nil, err
	}
	m = models.UserModel{ID: id, UserGlobalID: userGlobalID, ModelType: modelType}
	if err := s.set(key, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func entryKey(model *models.UserModel, termKey string) string {
	return entryKeyPrefix + modelKey(model.UserGlobalID, model.ModelType) + ":" + termKey
}

// GetUserModelEntriesForTerms returns entries for the given terms.
func (s *BadgerStore) GetUserModelEntriesForTerms(_ context.Context, model *models.UserModel, terms []*models.Term) (map[string]*models.UserModelEntry, error) {
	out := make(map[string]*models.UserModelEntry)
	for _, t := range terms {
		var e models.UserModelEntry
		err := s.get(entryKey(model, t.Key()), &e)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[t.Key()] = &e
	}
	return out, nil
}

// GetAllUserModelEntries returns every entry of the model keyed by term key.
func (s *BadgerStore) GetAllUserModelEntries(_ context.Context, model *models.UserModel) (map[string]*models.UserModelEntry, error) {
	prefix := entryKeyPrefix + modelKey(model.UserGlobalID, model.ModelType) + ":"
	out := make(map[string]*models.UserModelEntry)
	err := iterate(s, prefix, func(key string, e *models.UserModelEntry) error {
		out[key[len(prefix):]] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StoreOrUpdateUserModelEntries upserts entries, one transaction per entry.
func (s *BadgerStore) StoreOrUpdateUserModelEntries(_ context.Context, model *models.UserModel, entries []*models.UserModelEntry) error {
	for _, e := range entries {
		if e.ID == 0 {
			id, err := s.nextID()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if err := s.set(entryKey(model, e.ScoredTerm.Term.Key()), e); err != nil {
			return err
		}
	}
	return nil
}

// RemoveUserModelEntry deletes one entry.
func (s *BadgerStore) RemoveUserModelEntry(_ context.Context, model *models.UserModel, termKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(entryKey(model, termKey)))
	})
}

// GetOrCreateTerm resolves a term, creating it lazily with zero count.
func (s *BadgerStore) GetOrCreateTerm(_ context.Context, category models.TermCategory, value string) (*models.Term, error) {
	key := termKeyPrefix + models.TermKey(category, value)
	var t models.Term
	err := s.get(key, &t)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	id, err := s.nextID()
	if err != nil {
		return nil, err
	}
	t = models.Term{ID: id, Category: category, Value: value}
	if err := s.set(key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// IncrementTermCounts bumps occurrence counts inside one transaction per term.
func (s *BadgerStore) IncrementTermCounts(_ context.Context, terms []*models.Term) error {
	for _, t := range terms {
		key := []byte(termKeyPrefix + t.Key())
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var stored models.Term
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			stored.Count++
			t.Count = stored.Count
			data, err := json.Marshal(&stored)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if err != nil {
			return fmt.Errorf("increment term %s: %w", t.Key(), err)
		}
	}
	return nil
}

// GetMessageCount returns the number of stored messages.
func (s *BadgerStore) GetMessageCount(_ context.Context) (int64, error) {
	return count(s, msgKeyPrefix)
}

// StoreMessage persists a message.
func (s *BadgerStore) StoreMessage(_ context.Context, msg *models.Message) error {
	if msg.ID == 0 {
		id, err := s.nextID()
		if err != nil {
			return err
		}
		msg.ID = id
	}
	return s.set(msgKeyPrefix+msg.GlobalID, msg)
}

// GetMessageByGlobalID resolves a message or returns ErrUnknownMessage.
func (s *BadgerStore) GetMessageByGlobalID(_ context.Context, globalID string) (*models.Message, error) {
	var m models.Message
	err := s.get(msgKeyPrefix+globalID, &m)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.ErrUnknownMessage
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessagesSince lists messages in publication order.
func (s *BadgerStore) GetMessagesSince(_ context.Context, groupGlobalID string, since time.Time) ([]*models.Message, error) {
	var out []*models.Message
	err := iterate(s, msgKeyPrefix, func(_ string, m *models.Message) error {
		if m.PublicationDate.Before(since) {
			return nil
		}
		if groupGlobalID != "" && m.GroupGlobalID != groupGlobalID {
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
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
func (s *BadgerStore) StoreMessageRelation(_ context.Context, messageGlobalID string, relation *models.MessageRelation) error {
	return s.set(relKeyPrefix+messageGlobalID, relation)
}

// GetMessageRelation returns the stored relation or nil.
func (s *BadgerStore) GetMessageRelation(_ context.Context, messageGlobalID string) (*models.MessageRelation, error) {
	var r models.MessageRelation
	err := s.get(relKeyPrefix+messageGlobalID, &r)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil //nolint:nilnil // absent relation is not an error
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StoreOrUpdateMessageScore upserts the unique (user, message) score.
func (s *BadgerStore) StoreOrUpdateMessageScore(_ context.Context, score *models.UserMessageScore) error {
	return s.set(scoreKeyPrefix+score.Key(), score)
}

// GetMessageScore returns the stored score or ErrNoSuchScore.
func (s *BadgerStore) GetMessageScore(_ context.Context, userGlobalID, messageGlobalID string) (*models.UserMessageScore, error) {
	var sc models.UserMessageScore
	err := s.get(scoreKeyPrefix+userGlobalID+"|"+messageGlobalID, &sc)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.ErrNoSuchScore
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetUsersWithUserModel lists users whose model matches the terms.
func (s *BadgerStore) GetUsersWithUserModel(ctx context.Context, terms []*models.Term, modelType string, mode persistence.MatchMode) ([]string, error) {
	var out []string
	err := iterate(s, modelKeyPrefix, func(_ string, m *models.UserModel) error {
		if m.ModelType != modelType {
			return nil
		}
		matched := 0
		for _, t := range terms {
			var e models.UserModelEntry
			err := s.get(entryKey(m, t.Key()), &e)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			matched++
		}
		switch mode {
		case persistence.MatchAll:
			if matched == len(terms) && len(terms) > 0 {
				out = append(out, m.UserGlobalID)
			}
		default:
			if matched > 0 {
				out = append(out, m.UserGlobalID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// StoreUserSimilarity upserts a directional similarity row.
func (s *BadgerStore) StoreUserSimilarity(_ context.Context, sim *models.UserSimilarity) error {
	key := simKeyPrefix + sim.FromUserGlobalID + "|" + sim.ToUserGlobalID + "|" + sim.GroupGlobalID
	return s.set(key, sim)
}

// GetUserSimilarities returns outgoing similarities of fromGlobalID.
func (s *BadgerStore) GetUserSimilarities(_ context.Context, fromGlobalID string, toGlobalIDs []string, groupGlobalID string, minSimilarity float64) ([]*models.UserSimilarity, error) {
	wanted := make(map[string]bool, len(toGlobalIDs))
	for _, id := range toGlobalIDs {
		wanted[id] = true
	}
	var out []*models.UserSimilarity
	err := iterate(s, simKeyPrefix+fromGlobalID+"|", func(_ string, sim *models.UserSimilarity) error {
		if sim.GroupGlobalID != groupGlobalID {
			return nil
		}
		if len(wanted) > 0 && !wanted[sim.ToUserGlobalID] {
			return nil
		}
		if sim.Similarity < minSimilarity {
			return nil
		}
		out = append(out, sim)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToUserGlobalID < out[j].ToUserGlobalID })
	return out, nil
}

// StoreObservation appends an observation.
func (s *BadgerStore) StoreObservation(_ context.Context, obs *models.Observation) error {
	if obs.ID == 0 {
		id, err := s.nextID()
		if err != nil {
			return err
		}
		obs.ID = id
	}
	key := obsKeyPrefix + obs.UserGlobalID + "|" + obs.MessageGlobalID + ":" + strconv.FormatInt(obs.ID, 10)
	return s.set(key, obs)
}

// GetObservations returns observations for the (user, message) pair.
func (s *BadgerStore) GetObservations(_ context.Context, userGlobalID, messageGlobalID string, types []models.ObservationType) ([]*models.Observation, error) {
	typeSet := make(map[models.ObservationType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var out []*models.Observation
	prefix := obsKeyPrefix + userGlobalID + "|" + messageGlobalID + ":"
	err := iterate(s, prefix, func(_ string, o *models.Observation) error {
		if len(typeSet) > 0 && !typeSet[o.Type] {
			return nil
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetObservationsByUser returns every observation of one user.
func (s *BadgerStore) GetObservationsByUser(_ context.Context, userGlobalID string) ([]*models.Observation, error) {
	var out []*models.Observation
	err := iterate(s, obsKeyPrefix+userGlobalID+"|", func(_ string, o *models.Observation) error {
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeStatistics summarizes entity counts.
func (s *BadgerStore) ComputeStatistics(_ context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{}
	counts := []struct {
		prefix string
		dst    *int64
	}{
		{userKeyPrefix, &stats.Users},
		{msgKeyPrefix, &stats.Messages},
		{termKeyPrefix, &stats.Terms},
		{obsKeyPrefix, &stats.Observations},
		{scoreKeyPrefix, &stats.Scores},
		{entryKeyPrefix, &stats.ModelEntries},
	}
	for _, c := range counts {
		n, err := count(s, c.prefix)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return stats, nil
}

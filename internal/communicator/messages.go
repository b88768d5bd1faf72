// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package communicator implements the in-process message dispatch between the
// scorer, the learner, and the adaptation handler on top of Watermill's
// gochannel Pub/Sub.
//
// Delivery is asynchronous relative to the caller, at-least-once, and in
// order per target handler (one consumer goroutine per message type). The
// orchestrator calls Drain before reading back persisted results and checks
// HasErrors afterwards; delivery failures never surface as per-message
// exceptions.
package communicator

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

// CommunicationMessage is any payload the communicator can route. Type keys
// the handler dispatch.
type CommunicationMessage interface {
	Type() string
}

// Message types.
const (
	TypeScoreRequest = "score_request"
	TypeLearning     = "learning"
	TypeAdaptation   = "adaptation"
)

// ScoreRequestMessage asks the scorer to process one stream message.
type ScoreRequestMessage struct {
	MessageGlobalID     string                  `json:"message_global_id"`
	Relation            *models.MessageRelation `json:"relation,omitempty"`
	TargetUserGlobalIDs []string                `json:"target_user_global_ids,omitempty"`
	LearnOnly           bool                    `json:"learn_only,omitempty"`
}

// Type returns the message type key.
func (*ScoreRequestMessage) Type() string { return TypeScoreRequest }

// LearningMessage asks the learner to fold one message into one user's model.
type LearningMessage struct {
	UserGlobalID    string `json:"user_global_id"`
	MessageGlobalID string `json:"message_global_id"`

	// Trigger names why the scorer emitted this: threshold, observation, or
	// every_message.
	Trigger string `json:"trigger,omitempty"`
}

// Type returns the message type key.
func (*LearningMessage) Type() string { return TypeLearning }

// AdaptationMessage asks the adaptation handler to propagate a user's
// newly learned entries to similar users.
type AdaptationMessage struct {
	UserGlobalID    string  `json:"user_global_id"`
	MessageGlobalID string  `json:"message_global_id"`
	ContentMatch    float64 `json:"content_match"`
	Score           float64 `json:"score"`
}

// Type returns the message type key.
func (*AdaptationMessage) Type() string { return TypeAdaptation }

// envelope is the wire form of a routed message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// factories builds empty payloads for decoding, keyed by type.
var (
	factoriesMu sync.RWMutex
	factories   = map[string]func() CommunicationMessage{
		TypeScoreRequest: func() CommunicationMessage { return &ScoreRequestMessage{} },
		TypeLearning:     func() CommunicationMessage { return &LearningMessage{} },
		TypeAdaptation:   func() CommunicationMessage { return &AdaptationMessage{} },
	}
)

// RegisterMessageType registers a payload factory for a custom message type.
func RegisterMessageType(msgType string, factory func() CommunicationMessage) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[msgType] = factory
}

func encode(msg CommunicationMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Payload: payload})
}

func decode(data []byte) (CommunicationMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	factoriesMu.RLock()
	factory, ok := factories[env.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	msg := factory()
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return msg, nil
}

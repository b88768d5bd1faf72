// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package models

import (
	"strings"
	"time"
)

// User is a participant of the message stream.
type User struct {
	ID       int64  `json:"id"`
	GlobalID string `json:"global_id"`
}

// MessageGroup partitions the message stream (for example one group per topic
// or community). Group-specific user models and group-scoped terms hang off
// this entity.
type MessageGroup struct {
	ID       int64  `json:"id"`
	GlobalID string `json:"global_id"`
}

// MessagePart is one ordered content part of a message.
type MessagePart struct {
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

// MimeTypeTextPlain is the content type handled by the default extractor.
const MimeTypeTextPlain = "text/plain"

// Well-known message property keys.
const (
	// PropertyMentions holds a comma-separated list of mentioned user global IDs.
	PropertyMentions = "mentions"
)

// Message is one item of the stream. Identity is carried twice: GlobalID for
// external references and ID for store-internal joins.
//
// Once Terms has been populated by information extraction the message is
// immutable; re-running extraction yields the same scored terms.
type Message struct {
	ID              int64             `json:"id"`
	GlobalID        string            `json:"global_id"`
	AuthorGlobalID  string            `json:"author_global_id"`
	PublicationDate time.Time         `json:"publication_date"`
	Parts           []MessagePart     `json:"parts,omitempty"`
	GroupGlobalID   string            `json:"group_global_id,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`

	// Terms is the extraction output: the message's term vector. Each scored
	// term carries weight 1 from the default extractor.
	Terms []*ScoredTerm `json:"terms,omitempty"`
}

// HasTerms reports whether information extraction already ran for the message.
func (m *Message) HasTerms() bool {
	return len(m.Terms) > 0
}

// Mentions returns the user global IDs named in the mention property.
func (m *Message) Mentions() []string {
	raw, ok := m.Properties[PropertyMentions]
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MentionsUser reports whether the given user is named in the mention property.
func (m *Message) MentionsUser(userGlobalID string) bool {
	for _, id := range m.Mentions() {
		if id == userGlobalID {
			return true
		}
	}
	return false
}

// MessageRelationType classifies a relation between messages.
type MessageRelationType string

// Relation types.
const (
	// RelationDiscussion relates a message to the other messages of its
	// thread. RelatedGlobalIDs lists every message of the discussion; the
	// first entry is the discussion root.
	RelationDiscussion MessageRelationType = "discussion"
)

// MessageRelation connects a message to other messages, typically the thread
// it belongs to.
type MessageRelation struct {
	Type             MessageRelationType `json:"type"`
	RelatedGlobalIDs []string            `json:"related_global_ids"`
}

// IsRoot reports whether the given message is the first message of the
// relation (the discussion root). An empty relation treats every message as a
// root.
func (r *MessageRelation) IsRoot(messageGlobalID string) bool {
	if r == nil || len(r.RelatedGlobalIDs) == 0 {
		return true
	}
	return r.RelatedGlobalIDs[0] == messageGlobalID
}

// Contains reports whether the relation references the given message.
func (r *MessageRelation) Contains(messageGlobalID string) bool {
	if r == nil {
		return false
	}
	for _, id := range r.RelatedGlobalIDs {
		if id == messageGlobalID {
			return true
		}
	}
	return false
}

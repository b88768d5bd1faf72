// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package extraction is the seam to the information-extraction black box.
// The core only requires scored terms per message; tokenization and stemming
// quality is the extractor's concern.
package extraction

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// TermExtractor annotates a message with its term vector. Extraction is
// idempotent: re-running over an already annotated message produces the same
// scored terms and must not bump occurrence counts again.
type TermExtractor interface {
	ExtractTerms(ctx context.Context, msg *models.Message) error
}

// TokenExtractor is the deterministic default extractor: it lowercases the
// text/plain parts, splits on non-letter runes, drops short tokens, resolves
// each distinct token to a term, and attaches every term with weight 1.
type TokenExtractor struct {
	Store persistence.Store

	// GroupScoped prefixes term values with the message group, giving
	// group-specific models disjoint vocabularies.
	GroupScoped bool

	// MinTokenLength drops tokens shorter than this; 0 means 2.
	MinTokenLength int
}

var _ TermExtractor = (*TokenExtractor)(nil)

// ExtractTerms tokenizes the message and attaches scored terms. No-op when
// the message already carries terms.
func (e *TokenExtractor) ExtractTerms(ctx context.Context, msg *models.Message) error {
	if msg.HasTerms() {
		return nil
	}
	minLen := e.MinTokenLength
	if minLen <= 0 {
		minLen = 2
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, part := range msg.Parts {
		if part.MimeType != models.MimeTypeTextPlain {
			continue
		}
		for _, tok := range splitTokens(part.Content) {
			if len(tok) < minLen || seen[tok] {
				continue
			}
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)

	terms := make([]*models.Term, 0, len(tokens))
	scored := make([]*models.ScoredTerm, 0, len(tokens))
	for _, tok := range tokens {
		value := tok
		if e.GroupScoped {
			value = models.GroupScopedValue(msg.GroupGlobalID, tok)
		}
		term, err := e.Store.GetOrCreateTerm(ctx, models.TermCategoryTerm, value)
		if err != nil {
			return err
		}
		terms = append(terms, term)
		scored = append(scored, &models.ScoredTerm{Term: term, Weight: 1})
	}
	if err := e.Store.IncrementTermCounts(ctx, terms); err != nil {
		return err
	}
	msg.Terms = scored
	return nil
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

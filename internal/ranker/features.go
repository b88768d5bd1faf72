// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package ranker

import (
	"context"
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/chain"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// AuthorFeatureCommand sets FeatureAuthor to 1 when the scored user authored
// the message.
type AuthorFeatureCommand struct{}

// Name returns the command identifier.
func (AuthorFeatureCommand) Name() string { return "author-feature" }

// Process computes the author feature.
func (AuthorFeatureCommand) Process(_ context.Context, c *UserContext) error {
	v := 0.0
	if c.Message.AuthorGlobalID == c.User.UserGlobalID {
		v = 1
	}
	return c.User.SetFeature(FeatureAuthor, v)
}

// MentionFeatureCommand sets FeatureMention to 1 when the scored user is
// named in the message's mention property.
type MentionFeatureCommand struct{}

// Name returns the command identifier.
func (MentionFeatureCommand) Name() string { return "mention-feature" }

// Process computes the mention feature.
func (MentionFeatureCommand) Process(_ context.Context, c *UserContext) error {
	v := 0.0
	if c.Message.MentionsUser(c.User.UserGlobalID) {
		v = 1
	}
	return c.User.SetFeature(FeatureMention, v)
}

// discussionMessages resolves the other messages of the context's discussion
// relation. Unresolvable related messages are a data-integrity problem and
// fail fatally.
func discussionMessages(ctx context.Context, store persistence.Store, c *UserContext) ([]*models.Message, error) {
	if c.Relation == nil || c.Relation.Type != models.RelationDiscussion {
		return nil, nil
	}
	var out []*models.Message
	for _, id := range c.Relation.RelatedGlobalIDs {
		if id == c.Message.GlobalID {
			continue
		}
		m, err := store.GetMessageByGlobalID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve discussion message %s: %w", id, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// DiscussionParticipationCommand sets FeatureDiscussionParticipation to 1
// when the scored user authored any other message of the discussion.
type DiscussionParticipationCommand struct {
	Store persistence.Store
}

// Name returns the command identifier.
func (*DiscussionParticipationCommand) Name() string { return "discussion-participation-feature" }

// Process computes the participation feature.
func (cmd *DiscussionParticipationCommand) Process(ctx context.Context, c *UserContext) error {
	related, err := discussionMessages(ctx, cmd.Store, c)
	if err != nil {
		return err
	}
	v := 0.0
	for _, m := range related {
		if m.AuthorGlobalID == c.User.UserGlobalID {
			v = 1
			break
		}
	}
	return c.User.SetFeature(FeatureDiscussionParticipation, v)
}

// DiscussionMentionCommand sets FeatureDiscussionMention to 1 when the scored
// user is mentioned anywhere in the discussion.
type DiscussionMentionCommand struct {
	Store persistence.Store
}

// Name returns the command identifier.
func (*DiscussionMentionCommand) Name() string { return "discussion-mention-feature" }

// Process computes the discussion mention feature.
func (cmd *DiscussionMentionCommand) Process(ctx context.Context, c *UserContext) error {
	related, err := discussionMessages(ctx, cmd.Store, c)
	if err != nil {
		return err
	}
	v := 0.0
	for _, m := range related {
		if m.MentionsUser(c.User.UserGlobalID) {
			v = 1
			break
		}
	}
	return c.User.SetFeature(FeatureDiscussionMention, v)
}

// DiscussionRootCommand sets FeatureDiscussionRoot to 1 when the message is
// the root of its discussion (or has no discussion).
type DiscussionRootCommand struct{}

// Name returns the command identifier.
func (DiscussionRootCommand) Name() string { return "discussion-root-feature" }

// Process computes the discussion root feature.
func (DiscussionRootCommand) Process(_ context.Context, c *UserContext) error {
	v := 0.0
	if c.Relation.IsRoot(c.Message.GlobalID) {
		v = 1
	}
	return c.User.SetFeature(FeatureDiscussionRoot, v)
}

// forEachUserCommand bridges the per-message chain into the per-user
// sub-chain, processing users sequentially in registration order.
type forEachUserCommand struct {
	users *chain.Chain[*UserContext]
}

// Name returns the command identifier.
func (f *forEachUserCommand) Name() string { return "for-each-user:" + f.users.Name() }

// Process runs the user sub-chain for every user context. A missing user is
// a structural problem; per-user cold-start gaps are handled inside the
// feature commands, never here.
func (f *forEachUserCommand) Process(ctx context.Context, c *MessageFeatureContext) error {
	for _, userID := range c.UserOrder() {
		uc := &UserContext{MessageFeatureContext: c, User: c.Users[userID]}
		if err := f.users.Process(ctx, uc); err != nil {
			return err
		}
	}
	return nil
}

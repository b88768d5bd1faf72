// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package usermodel

import (
	"context"
	"fmt"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
)

// Cleanup removes entries whose visible weight fell below floor. This is the
// only sanctioned path that deletes user model entries.
func Cleanup(ctx context.Context, store persistence.Store, model *models.UserModel, strategy IntegrationStrategy, floor float64) (*CleanupResult, error) {
	entries, err := store.GetAllUserModelEntries(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	res := &CleanupResult{Inspected: len(entries)}
	for termKey, e := range entries {
		if strategy.Weight(e) >= floor {
			continue
		}
		if err := store.RemoveUserModelEntry(ctx, model, termKey); err != nil {
			return nil, fmt.Errorf("remove entry %s: %w", termKey, err)
		}
		res.Removed++
	}
	return res, nil
}

// CleanupAll sweeps the modelType model of every known user and returns the
// combined result. The periodic cleanup job runs this with the configured
// interest-term floor.
func CleanupAll(ctx context.Context, store persistence.Store, modelType string, strategy IntegrationStrategy, floor float64) (*CleanupResult, error) {
	users, err := store.GetUserGlobalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	total := &CleanupResult{}
	for _, user := range users {
		model, err := store.GetOrCreateUserModelByUser(ctx, user, modelType)
		if err != nil {
			return nil, fmt.Errorf("resolve model of %s: %w", user, err)
		}
		res, err := Cleanup(ctx, store, model, strategy, floor)
		if err != nil {
			return nil, fmt.Errorf("cleanup %s: %w", user, err)
		}
		total.Inspected += res.Inspected
		total.Removed += res.Removed
	}
	return total, nil
}

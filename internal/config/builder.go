// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Builder is the mutable first phase of configuration. Mutate Settings
// freely, then call Build to obtain the immutable Configuration consumed by
// the engine. The builder stays usable afterwards; further mutation never
// affects an already built Configuration.
type Builder struct {
	Settings Settings
}

// NewBuilder returns a builder seeded with defaults.
func NewBuilder() *Builder {
	return &Builder{Settings: DefaultSettings()}
}

// Build validates the collected settings and freezes them into a
// Configuration. All numeric thresholds must lie in [0,1]; violations are
// reported as ErrInvalidConfiguration at build time, never at run time.
func (b *Builder) Build() (*Configuration, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(b.Settings); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	if b.Settings.Matching.MinWeight > b.Settings.Matching.MaxWeight {
		return nil, fmt.Errorf("%w: matching min_weight %v exceeds max_weight %v",
			ErrInvalidConfiguration, b.Settings.Matching.MinWeight, b.Settings.Matching.MaxWeight)
	}
	if b.Settings.Learning.Integration == IntegrationTimeBinned && b.Settings.Learning.BinWidth <= 0 {
		return nil, fmt.Errorf("%w: time_binned integration requires a positive bin_width",
			ErrInvalidConfiguration)
	}
	if b.Settings.Flags.NoLearningOnlyScoring && b.Settings.Flags.LearnFromEveryMessage {
		return nil, fmt.Errorf("%w: no_learning_only_scoring conflicts with learn_from_every_message",
			ErrInvalidConfiguration)
	}
	if b.Settings.Storage.Backend == StorageBadger && b.Settings.Storage.Dir == "" {
		return nil, fmt.Errorf("%w: badger storage requires a data dir", ErrInvalidConfiguration)
	}

	return &Configuration{settings: b.Settings}, nil
}

// Configuration is the immutable second phase. It exposes the settings
// through read-only accessors; there is no way to mutate it after Build.
type Configuration struct {
	settings Settings
}

// Flags returns the pipeline assembly flags.
func (c *Configuration) Flags() Flags { return c.settings.Flags }

// Thresholds returns the numeric parameters.
func (c *Configuration) Thresholds() Thresholds { return c.settings.Thresholds }

// Matching returns the content-matching strategy selection.
func (c *Configuration) Matching() Matching { return c.settings.Matching }

// Learning returns the learner parameters.
func (c *Configuration) Learning() Learning { return c.settings.Learning }

// Collaborative returns the collaborative path parameters.
func (c *Configuration) Collaborative() Collaborative { return c.settings.Collaborative }

// RankWeights returns the feature weights used for score aggregation.
func (c *Configuration) RankWeights() FeatureWeights { return c.settings.RankWeights }

// LearningWeights returns the feature weights used for the learning decision.
func (c *Configuration) LearningWeights() FeatureWeights { return c.settings.LearningWeights }

// Logging returns the logging settings.
func (c *Configuration) Logging() Logging { return c.settings.Logging }

// Storage returns the persistence backend selection.
func (c *Configuration) Storage() Storage { return c.settings.Storage }

// Jobs returns the background job intervals.
func (c *Configuration) Jobs() Jobs { return c.settings.Jobs }

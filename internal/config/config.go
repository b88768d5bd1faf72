// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package config assembles the configuration surface of the relevance engine.
//
// Configuration is two-phase: a mutable Builder collects flags, thresholds,
// and weights (from code, a YAML file, and SPEKTRUM_ environment variables via
// koanf), then Build validates everything and produces an immutable
// Configuration value. The pipeline topology is decided once at construction
// time from that value; nothing re-reads configuration at run time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfiguration is returned when Build rejects the collected
// settings. Configuration failures are fatal at construction time, never at
// run time.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "SPEKTRUM_"

// DefaultConfigPaths lists where Load searches for a config file, in order.
var DefaultConfigPaths = []string{
	"spektrum.yaml",
	"spektrum.yml",
	"/etc/spektrum/spektrum.yaml",
}

// Flags is the stable flag vocabulary controlling pipeline assembly. Field
// names mirror the legacy flag names; they are consumed once at
// pipeline-construction time.
type Flags struct {
	// UseMessageGroupSpecificUserModel scopes term identity and user models
	// by message group.
	UseMessageGroupSpecificUserModel bool `koanf:"use_message_group_specific_user_model"`

	// DoNotUseContentMatcherFeature removes the content-match command from
	// the chain.
	DoNotUseContentMatcherFeature bool `koanf:"do_not_use_content_matcher_feature"`

	// DoNotUseDiscussionFeatures removes the discussion commands from the
	// chain.
	DoNotUseDiscussionFeatures bool `koanf:"do_not_use_discussion_features"`

	// UseDirectedUserModelAdaptation registers the adaptation handler on the
	// communicator.
	UseDirectedUserModelAdaptation bool `koanf:"use_directed_user_model_adaptation"`

	// UseContentMatchFeatureOfSimilarUsers enables the collaborative
	// content-match adjustment command.
	UseContentMatchFeatureOfSimilarUsers bool `koanf:"use_content_match_feature_of_similar_users"`

	// LearnNegative also feeds low-interest messages into the learner.
	LearnNegative bool `koanf:"learn_negative"`

	// LearnFromEveryMessage triggers learning unconditionally, ignoring the
	// learn threshold.
	LearnFromEveryMessage bool `koanf:"learn_from_every_message"`

	// NoLearningOnlyScoring disables the learner invocation entirely.
	NoLearningOnlyScoring bool `koanf:"no_learning_only_scoring"`

	// NoInformationExtraction skips the extraction command; messages must
	// arrive with their term vector attached.
	NoInformationExtraction bool `koanf:"no_information_extraction"`
}

// Thresholds carries the numeric parameters of the engine, all in [0,1].
type Thresholds struct {
	// MinUserSimilarity gates which similar users receive adapted entries.
	MinUserSimilarity float64 `koanf:"min_user_similarity" validate:"gte=0,lte=1"`

	// MinContentMessageScore is the content-feature floor for adaptation.
	MinContentMessageScore float64 `koanf:"min_content_message_score" validate:"gte=0,lte=1"`

	// MessageScoreThreshold gates learner invocation on the final score.
	MessageScoreThreshold float64 `koanf:"message_score_threshold" validate:"gte=0,lte=1"`

	// MessageRankThreshold is the content-match floor for adaptation
	// triggering.
	MessageRankThreshold float64 `koanf:"message_rank_threshold" validate:"gte=0,lte=1"`

	// InterestTermThreshold is the entry-weight floor below which the profile
	// cleanup pass removes entries.
	InterestTermThreshold float64 `koanf:"interest_term_threshold" validate:"gte=0,lte=1"`

	// NonParticipationFactor scales the score of users who did not
	// participate in the message's discussion.
	NonParticipationFactor float64 `koanf:"non_participation_factor" validate:"gte=0,lte=1"`
}

// WeightStrategy selects a term importance weighting.
type WeightStrategy string

// Weight strategies.
const (
	WeightTrivial                WeightStrategy = "trivial"
	WeightInverseFrequency       WeightStrategy = "inverse_frequency"
	WeightLinearInverseFrequency WeightStrategy = "linear_inverse_frequency"
)

// SimilarityStrategy selects the term-vector similarity aggregation.
type SimilarityStrategy string

// Similarity strategies.
const (
	SimilarityCosine  SimilarityStrategy = "cosine"
	SimilarityAverage SimilarityStrategy = "average"
	SimilarityMax     SimilarityStrategy = "max"
)

// IntegrationStrategy selects how learning events fold into model entries.
type IntegrationStrategy string

// Integration strategies.
const (
	IntegrationPlain      IntegrationStrategy = "plain"
	IntegrationTimeBinned IntegrationStrategy = "time_binned"
)

// CollaborativeItem selects the item axis of the preference matrix.
type CollaborativeItem string

// Collaborative item axes.
const (
	CollaborativeItemMessage CollaborativeItem = "message"
	CollaborativeItemTerm    CollaborativeItem = "term"
)

// CollaborativeEstimator selects the preference estimator.
type CollaborativeEstimator string

// Collaborative estimators.
const (
	EstimatorNeighborhood CollaborativeEstimator = "neighborhood"
	EstimatorSlopeOne     CollaborativeEstimator = "slope_one"
)

// Matching holds the content-matching strategy selection.
type Matching struct {
	Weight     WeightStrategy     `koanf:"weight" validate:"oneof=trivial inverse_frequency linear_inverse_frequency"`
	Similarity SimilarityStrategy `koanf:"similarity" validate:"oneof=cosine average max"`

	// MinWeight and MaxWeight clamp the linear inverse-frequency weight.
	MinWeight float64 `koanf:"min_weight" validate:"gte=0,lte=1"`
	MaxWeight float64 `koanf:"max_weight" validate:"gte=0,lte=1"`
}

// Learning holds the learner parameters.
type Learning struct {
	Integration IntegrationStrategy `koanf:"integration" validate:"oneof=plain time_binned"`

	// BinWidth is the logical width of one time bin.
	BinWidth time.Duration `koanf:"bin_width"`

	// BinDecay is the per-bin decay factor applied to older bins when
	// aggregating a time-binned entry, in (0,1]. 1 disables decay.
	BinDecay float64 `koanf:"bin_decay" validate:"gt=0,lte=1"`
}

// Collaborative holds the collaborative scoring path parameters.
type Collaborative struct {
	Enabled       bool                   `koanf:"enabled"`
	Item          CollaborativeItem      `koanf:"item" validate:"oneof=message term"`
	Estimator     CollaborativeEstimator `koanf:"estimator" validate:"oneof=neighborhood slope_one"`
	Neighbors     int                    `koanf:"neighbors" validate:"gte=1"`
	MinSimilarity float64                `koanf:"min_similarity" validate:"gte=0,lte=1"`

	// PartitionByGroup runs one independent estimator per message group.
	PartitionByGroup bool `koanf:"partition_by_group"`
}

// FeatureWeights maps feature names to their aggregation weight. Two
// independent maps exist: one ranks, one decides learning, so "rank on X,
// learn on Y" configurations stay expressible.
type FeatureWeights struct {
	ContentMatch            float64 `koanf:"content_match" validate:"gte=0"`
	Author                  float64 `koanf:"author" validate:"gte=0"`
	Mention                 float64 `koanf:"mention" validate:"gte=0"`
	DiscussionParticipation float64 `koanf:"discussion_participation" validate:"gte=0"`
	DiscussionMention       float64 `koanf:"discussion_mention" validate:"gte=0"`
	DiscussionRoot          float64 `koanf:"discussion_root" validate:"gte=0"`

	// NormalizeByPresent divides the weighted sum by the weight mass of the
	// features actually present, so cold-start gaps do not zero the score.
	NormalizeByPresent bool `koanf:"normalize_by_present"`
}

// Logging mirrors internal/logging.Config for file/env configuration.
type Logging struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageBackend selects the persistence implementation.
type StorageBackend string

// Supported storage backends.
const (
	StorageMemory StorageBackend = "memory"
	StorageBadger StorageBackend = "badger"
)

// Storage configures the persistence layer.
type Storage struct {
	Backend StorageBackend `koanf:"backend" validate:"oneof=memory badger"`

	// Dir is the badger data directory, required for the badger backend.
	Dir string `koanf:"dir"`
}

// Jobs configures the periodic background work.
type Jobs struct {
	// SimilarityInterval is how often user similarities are recomputed from
	// observation overlap. Zero disables the job.
	SimilarityInterval time.Duration `koanf:"similarity_interval"`

	// CollaborativeRefreshInterval is how often the collaborative preference
	// matrices are rebuilt. Zero disables the job.
	CollaborativeRefreshInterval time.Duration `koanf:"collaborative_refresh_interval"`

	// StatsInterval is how often store statistics are computed and exported
	// to the entity gauges. Zero disables the job.
	StatsInterval time.Duration `koanf:"stats_interval"`

	// CleanupInterval is how often user models are swept for entries whose
	// weight fell below thresholds.interest_term_threshold. Zero disables the
	// job.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Settings is the full mutable configuration tree loaded by koanf.
type Settings struct {
	Flags           Flags          `koanf:"flags"`
	Thresholds      Thresholds     `koanf:"thresholds"`
	Matching        Matching       `koanf:"matching"`
	Learning        Learning       `koanf:"learning"`
	Collaborative   Collaborative  `koanf:"collaborative"`
	RankWeights     FeatureWeights `koanf:"rank_weights"`
	LearningWeights FeatureWeights `koanf:"learning_weights"`
	Logging         Logging        `koanf:"logging"`
	Storage         Storage        `koanf:"storage"`
	Jobs            Jobs           `koanf:"jobs"`
}

// DefaultSettings returns the defaults applied before file and env overrides.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: Thresholds{
			MinUserSimilarity:      0.5,
			MinContentMessageScore: 0.5,
			MessageScoreThreshold:  0.75,
			MessageRankThreshold:   0.75,
			InterestTermThreshold:  0.01,
			NonParticipationFactor: 1.0,
		},
		Matching: Matching{
			Weight:     WeightInverseFrequency,
			Similarity: SimilarityCosine,
			MinWeight:  0.1,
			MaxWeight:  0.9,
		},
		Learning: Learning{
			Integration: IntegrationPlain,
			BinWidth:    7 * 24 * time.Hour,
			BinDecay:    1.0,
		},
		Collaborative: Collaborative{
			Enabled:       false,
			Item:          CollaborativeItemMessage,
			Estimator:     EstimatorNeighborhood,
			Neighbors:     20,
			MinSimilarity: 0.1,
		},
		RankWeights: FeatureWeights{
			ContentMatch:            1.0,
			Author:                  1.0,
			Mention:                 1.0,
			DiscussionParticipation: 1.0,
			DiscussionMention:       1.0,
			DiscussionRoot:          0.5,
			NormalizeByPresent:      true,
		},
		LearningWeights: FeatureWeights{
			ContentMatch:            1.0,
			Author:                  1.0,
			Mention:                 1.0,
			DiscussionParticipation: 1.0,
			DiscussionMention:       1.0,
			DiscussionRoot:          0.5,
			NormalizeByPresent:      true,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Storage: Storage{Backend: StorageMemory},
		Jobs: Jobs{
			SimilarityInterval:           time.Hour,
			CollaborativeRefreshInterval: 15 * time.Minute,
			StatsInterval:                time.Minute,
			CleanupInterval:              24 * time.Hour,
		},
	}
}

// Load builds a Builder from defaults, an optional YAML file, and SPEKTRUM_
// environment variables. path may be empty to use DefaultConfigPaths.
func Load(path string) (*Builder, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		for _, p := range DefaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Double underscore separates nesting levels so single underscores stay
	// part of the key: SPEKTRUM_THRESHOLDS__MIN_USER_SIMILARITY=0.4 maps to
	// thresholds.min_user_similarity.
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &Builder{Settings: settings}, nil
}

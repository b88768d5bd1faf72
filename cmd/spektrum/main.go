// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package main is the entry point for the Spektrum relevance engine.
//
// Spektrum scores incoming messages for every candidate user, learns each
// user's interest profile from the messages they engage with, and propagates
// profile entries between similar users. The engine is driven entirely
// through its in-process communicator; this binary assembles the components,
// places them under a supervisor, and runs until interrupted.
//
// # Startup Order
//
//  1. Configuration: defaults, optional YAML file, SPEKTRUM_ env overrides
//  2. Logging: zerolog, JSON or console format
//  3. Storage: in-memory or BadgerDB, per storage.backend
//  4. Communicator: Watermill in-process pub/sub
//  5. Pipeline: ranker, learner, and (optionally) the adaptation handler
//  6. Background jobs: user-similarity recompute, collaborative refresh,
//     store statistics, user-model cleanup
//  7. Supervisor: suture tree restarting failed services
//
// # Configuration
//
// Settings load through Koanf v2 with layered sources, highest priority last:
// built-in defaults, a YAML file (-config flag or the default search paths),
// then SPEKTRUM_ environment variables where a double underscore separates
// nesting levels (SPEKTRUM_THRESHOLDS__MESSAGE_SCORE_THRESHOLD=0.8).
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor, which drains the communicator and
// closes the store before exit.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/adaptation"
	"github.com/spektrumprojekt/spektrum-sub000/internal/collaborative"
	"github.com/spektrumprojekt/spektrum-sub000/internal/communicator"
	"github.com/spektrumprojekt/spektrum-sub000/internal/config"
	"github.com/spektrumprojekt/spektrum-sub000/internal/extraction"
	"github.com/spektrumprojekt/spektrum-sub000/internal/learner"
	"github.com/spektrumprojekt/spektrum-sub000/internal/logging"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence/badgerstore"
	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence/memstore"
	"github.com/spektrumprojekt/spektrum-sub000/internal/ranker"
	"github.com/spektrumprojekt/spektrum-sub000/internal/timeframe"
	"github.com/spektrumprojekt/spektrum-sub000/internal/usermodel"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	builder, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg, err := builder.Build()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging().Level,
		Format: cfg.Logging().Format,
	})
	logging.Info().
		Str("storage", string(cfg.Storage().Backend)).
		Str("weight", string(cfg.Matching().Weight)).
		Str("similarity", string(cfg.Matching().Similarity)).
		Str("integration", string(cfg.Learning().Integration)).
		Msg("Starting Spektrum")

	store, closeStore, err := openStore(cfg.Storage())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	comm := communicator.NewVirtualCommunicator(logging.Logger())
	// The clock seeds at the zero time so a replayed backlog whose publication
	// dates predate process start is still in order; the first message sets
	// the effective origin.
	clock := timeframe.NewLogicalClock(time.Time{}, cfg.Learning().BinWidth)

	modelType := models.UserModelTypeDefault
	if cfg.Flags().UseMessageGroupSpecificUserModel {
		modelType = models.UserModelTypeMessageGroup
	}

	extractor := &extraction.TokenExtractor{
		Store:       store,
		GroupScoped: cfg.Flags().UseMessageGroupSpecificUserModel,
	}

	// Absent an external membership source, every known user is a scoring
	// candidate for every message.
	members := ranker.MemberResolverFunc(func(ctx context.Context, _ string) ([]string, error) {
		return store.GetUserGlobalIDs(ctx)
	})

	var collab *collaborative.Scorer
	var collabScorer ranker.CollaborativeScorer
	if cfg.Collaborative().Enabled {
		s, err := collaborative.NewScorer(store, cfg.Collaborative(), logging.Logger())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to build collaborative scorer")
		}
		collab = s
		collabScorer = s
	}

	rk, err := ranker.NewRanker(cfg, store, comm, clock, extractor, members, collabScorer, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to assemble scoring pipeline")
	}
	if err := comm.RegisterMessageHandler(rk); err != nil {
		logging.Fatal().Err(err).Msg("Failed to register ranker")
	}

	integration, err := ranker.IntegrationStrategy(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve integration strategy")
	}
	if !cfg.Flags().NoLearningOnlyScoring {
		lrn := &learner.Learner{
			Store:       store,
			Clock:       clock,
			Integration: integration,
			ModelType:   modelType,
			Logger:      logging.Logger(),
		}
		if err := comm.RegisterMessageHandler(lrn); err != nil {
			logging.Fatal().Err(err).Msg("Failed to register learner")
		}
	}

	if cfg.Flags().UseDirectedUserModelAdaptation {
		adapter := &adaptation.Adapter{
			Store:            store,
			Integration:      integration,
			ModelType:        modelType,
			MinSimilarity:    cfg.Thresholds().MinUserSimilarity,
			PartitionByGroup: cfg.Flags().UseMessageGroupSpecificUserModel,
			Rescore: func(ctx context.Context, messageGlobalID, userGlobalID string) error {
				_, err := rk.Rescore(ctx, messageGlobalID, userGlobalID)
				return err
			},
			Logger: logging.Logger(),
		}
		if err := comm.RegisterMessageHandler(adapter); err != nil {
			logging.Fatal().Err(err).Msg("Failed to register adaptation handler")
		}
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	sup := suture.New("spektrum", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	sup.Add(comm)

	if interval := cfg.Jobs().SimilarityInterval; interval > 0 {
		computer := &adaptation.SimilarityComputer{
			Store:            store,
			Clock:            clock,
			PartitionByGroup: cfg.Flags().UseMessageGroupSpecificUserModel,
			Logger:           logging.Logger(),
		}
		sup.Add(&periodicService{
			name:     "similarity-recompute",
			interval: interval,
			run: func(ctx context.Context) error {
				_, err := computer.ComputeAll(ctx)
				return err
			},
		})
	}

	if collab != nil {
		if interval := cfg.Jobs().CollaborativeRefreshInterval; interval > 0 {
			sup.Add(&periodicService{
				name:     "collaborative-refresh",
				interval: interval,
				run:      collab.Refresh,
			})
		}
	}

	if interval := cfg.Jobs().StatsInterval; interval > 0 {
		sup.Add(&periodicService{
			name:     "store-statistics",
			interval: interval,
			run: func(ctx context.Context) error {
				stats, err := store.ComputeStatistics(ctx)
				if err != nil {
					return err
				}
				metrics.RecordStoreEntities(stats)
				return nil
			},
		})
	}

	if interval := cfg.Jobs().CleanupInterval; interval > 0 {
		floor := cfg.Thresholds().InterestTermThreshold
		sup.Add(&periodicService{
			name:     "model-cleanup",
			interval: interval,
			run: func(ctx context.Context) error {
				res, err := usermodel.CleanupAll(ctx, store, modelType, integration, floor)
				if err != nil {
					return err
				}
				if res.Removed > 0 {
					logging.Info().
						Int("inspected", res.Inspected).
						Int("removed", res.Removed).
						Msg("Removed stale user model entries")
				}
				return nil
			},
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Spektrum started")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Spektrum stopped")
}

// openStore builds the configured persistence backend and its close func.
func openStore(s config.Storage) (persistence.Store, func() error, error) {
	switch s.Backend {
	case config.StorageBadger:
		bs, err := badgerstore.Open(s.Dir)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	default:
		return memstore.New(), func() error { return nil }, nil
	}
}

// periodicService runs a job on a fixed interval under the supervisor. The
// first run happens one interval after start, not immediately, so restarts
// after a crash do not hot-loop the job.
type periodicService struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func (p *periodicService) String() string { return p.name }

func (p *periodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.run(ctx); err != nil {
				logging.Error().Err(err).Str("job", p.name).Msg("Periodic job failed")
			}
		}
	}
}

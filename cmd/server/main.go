// Package main is the entry point for the Lodestar decision engine.
// Lodestar runs a cross-sectional long/short momentum strategy: it screens a
// universe snapshot, ranks instruments by momentum, constructs signed target
// weights and applies a layered risk overlay before handing the final targets
// to the execution collaborator.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/clients/execution"
	"github.com/dstav/lodestar/internal/clients/marketdata"
	"github.com/dstav/lodestar/internal/config"
	"github.com/dstav/lodestar/internal/database"
	"github.com/dstav/lodestar/internal/engine"
	"github.com/dstav/lodestar/internal/events"
	"github.com/dstav/lodestar/internal/modules/construction"
	"github.com/dstav/lodestar/internal/modules/history"
	"github.com/dstav/lodestar/internal/modules/risk"
	"github.com/dstav/lodestar/internal/modules/signals"
	"github.com/dstav/lodestar/internal/modules/universe"
	"github.com/dstav/lodestar/internal/reliability"
	"github.com/dstav/lodestar/internal/scheduler"
	"github.com/dstav/lodestar/internal/server"
	"github.com/dstav/lodestar/pkg/logger"
)

const (
	// Decision cycle fires shortly before the US close on weekdays; the
	// orchestrator's calendar gate makes extra firings harmless
	decisionCycleSchedule = "0 50 20 * * MON-FRI"
	pruneSchedule         = "0 30 1 * * *"
	checkpointSchedule    = "0 0 */6 * * *"

	historyRetentionDays = 400
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("strategy", cfg.Strategy.Construction).
		Int("lookback_days", cfg.Strategy.LookbackDays).
		Msg("Starting Lodestar")

	// Durable engine state and the ephemeral price cache live in separate
	// databases with different durability profiles
	stateDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/state.db",
		Profile: database.ProfileState,
		Name:    "state",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer stateDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/history.db",
		Profile: database.ProfileCache,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	bus := events.NewBus(log)

	historyStore, err := history.NewStore(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}

	riskRepo, err := risk.NewRepository(stateDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize risk repository")
	}

	strategy := cfg.Strategy

	screener := universe.NewScreener(universe.Config{
		UniverseSize:    strategy.UniverseSize,
		MinPrice:        strategy.MinPrice,
		MinDollarVolume: strategy.MinDollarVolume,
		MinMarketCap:    strategy.MinMarketCap,
	}, log)

	ranker := signals.NewRanker(signals.Config{
		LookbackDays:       strategy.LookbackDays,
		NLong:              strategy.NLong,
		NShort:             strategy.NShort,
		RiskAdjusted:       strategy.RiskAdjusted,
		VolatilityLookback: strategy.VolatilityLookback,
	}, log)

	constructor, err := construction.NewConstructor(construction.Config{
		Strategy:          strategy.Construction,
		MaxPositionWeight: strategy.MaxPositionWeight,
		MaxGrossExposure:  strategy.MaxGrossExposure,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create portfolio constructor")
	}

	overlay, err := risk.NewOverlay(risk.Config{
		MaxDrawdownPct:      strategy.MaxDrawdownPct,
		DailyLossLimit:      strategy.DailyLossLimit,
		PositionStopLossPct: strategy.PositionStopLoss,
		TrailingStopPct:     strategy.TrailingStopPct,
		MaxGrossExposure:    strategy.MaxGrossExposure,
		VolScalingEnabled:   strategy.VolScalingEnabled,
		VIXHighThreshold:    strategy.VixHighThreshold,
		VIXExtremeThreshold: strategy.VixExtremeThreshold,
		SectorExposureCap:   strategy.SectorExposureCap,
	}, riskRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore risk overlay state")
	}

	provider := marketdata.NewClient(cfg.MarketDataURL, historyStore, log)
	executionClient := execution.NewLoggingClient(log)

	orchestrator := engine.NewOrchestrator(engine.Deps{
		Provider:           provider,
		Portfolio:          provider,
		Execution:          executionClient,
		VolProxy:           provider,
		Screener:           screener,
		Ranker:             ranker,
		Constructor:        constructor,
		Overlay:            overlay,
		VolatilityLookback: strategy.VolatilityLookback,
		Bus:                bus,
	}, log)

	// Optional live price stream, informational only
	var stream *marketdata.PriceStream
	if cfg.StreamURL != "" {
		stream = marketdata.NewPriceStream(cfg.StreamURL, bus, log)
		if err := stream.Start(); err != nil {
			log.Warn().Err(err).Msg("Price stream unavailable, continuing without it")
		}
		defer stream.Stop()
	}

	sched := scheduler.New(log)
	mustAddJob(log, sched, decisionCycleSchedule, scheduler.NewDecisionCycleJob(orchestrator))
	mustAddJob(log, sched, pruneSchedule, scheduler.NewHistoryPruneJob(historyStore, historyRetentionDays, log))
	mustAddJob(log, sched, checkpointSchedule, scheduler.NewWALCheckpointJob(log, stateDB, historyDB))

	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup.Region, cfg.Backup.Bucket, cfg.Backup.Prefix, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		backupService := reliability.NewBackupService(s3Client, cfg.DataDir, cfg.Backup.Keep, log, stateDB, historyDB)
		mustAddJob(log, sched, cfg.Backup.Schedule, reliability.NewBackupJob(backupService))
	}

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Orchestrator: orchestrator,
		Overlay:      overlay,
		Bus:          bus,
		StateDB:      stateDB,
		HistoryDB:    historyDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func mustAddJob(log zerolog.Logger, sched *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}

// cmd/tourney/main.go
// This is the main entry point for the tournament engine CLI. It loads a
// tournament configuration document, wires up the telemetry and
// standings backends, and drives the orchestrator to completion.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenttourney/internal/config"
	"agenttourney/internal/orchestrator"
	"agenttourney/internal/standings"
	"agenttourney/internal/telemetry"
)

func main() {
	tournamentPath := flag.String("config", "", "path to the tournament configuration document (required)")
	flag.Parse()

	logger := setupLogger()

	if *tournamentPath == "" {
		logger.Fatalf("usage: tourney -config tournament.json")
	}

	runtimeCfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load runtime configuration: %v", err)
	}

	tournamentCfg, err := config.LoadTournamentConfig(*tournamentPath)
	if err != nil {
		logger.Fatalf("failed to load tournament configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gracefulCancel(cancel, logger)

	store, err := initializeStandings(ctx, runtimeCfg, logger)
	if err != nil {
		logger.Fatalf("failed to initialize standings store: %v", err)
	}
	defer store.Close()

	telemetryCfg := telemetry.Config{
		Dir:                   runtimeCfg.Telemetry.LogDir,
		StoreURI:              runtimeCfg.Telemetry.StoreURI,
		StoreDatabase:         runtimeCfg.Telemetry.StoreDatabase,
		PromptVerbatimInStore: runtimeCfg.Telemetry.PromptVerbatim,
	}

	// One document sink for the whole process: every match's Logger
	// enqueues onto this same background writer instead of opening its
	// own MongoDB connection, per spec §3.3/§4.6/§5.
	docSink := telemetry.OpenDocSink(ctx, telemetryCfg, logger)
	defer docSink.Close()

	orch, err := orchestrator.New(ctx, tournamentCfg, logger, orchestrator.Options{
		Engines:    engineRegistry(),
		Strategies: offlineStrategyRegistry(),
		Telemetry:  telemetryCfg,
		DocSink:    docSink,
		Standings:  store,
		Limiter:    orchestrator.BuildRateLimiter(runtimeCfg.RateLimit.Addr, runtimeCfg.RateLimit.Password, runtimeCfg.RateLimit.DB),
	})
	if err != nil {
		logger.Fatalf("failed to construct orchestrator: %v", err)
	}

	logger.Printf("starting tournament %q (run %s, seed %d)", tournamentCfg.Name, tournamentCfg.RunID, tournamentCfg.Seed)

	report, runErr := orch.Run(ctx)
	logger.Printf("tournament finished: %d matches scheduled, %d failed", report.TotalMatches, len(report.Failures))
	for _, f := range report.Failures {
		logger.Printf("match failure: %v", f)
	}

	if runErr != nil {
		logger.Fatalf("tournament run reported errors: %v", runErr)
	}
}

// initializeStandings opens the optional cross-tournament leaderboard
// with a bounded startup timeout; an empty DSN yields a nil, safely
// no-op *standings.Store rather than an error.
func initializeStandings(ctx context.Context, cfg *config.RuntimeConfig, logger *log.Logger) (*standings.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return standings.Open(openCtx, standings.Config{
		DSN:             cfg.Standings.DSN,
		MaxOpenConns:    cfg.Standings.MaxOpenConns,
		MaxIdleConns:    cfg.Standings.MaxIdleConns,
		ConnMaxLifetime: cfg.Standings.ConnMaxLifetime,
	})
}

// setupLogger configures process-wide logging. A more sophisticated
// structured logger is unnecessary here: every operationally interesting
// event already flows through the telemetry and standings sinks, so this
// logger only ever carries operator-facing status lines.
func setupLogger() *log.Logger {
	return log.New(os.Stdout, "[tourney] ", log.LstdFlags)
}

// gracefulCancel cancels ctx on SIGINT/SIGTERM, letting any
// currently-running match finish its in-flight turn and reach its
// guaranteed FinalizeMatch call rather than being killed mid-write.
func gracefulCancel(cancel context.CancelFunc, logger *log.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("received shutdown signal, finishing in-flight matches...")
	cancel()
}

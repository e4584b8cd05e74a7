// Package orchestrator composes the seed manager, sanitizer, action
// parser, adapter layer, fidelity referee, and telemetry pipeline into
// the tournament's scheduler and per-match turn loop (spec §4.7).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"agenttourney/internal/adapter"
	"agenttourney/internal/config"
	"agenttourney/internal/standings"
	"agenttourney/internal/telemetry"
)

// Orchestrator schedules and drives every match in a tournament.
// Adapter clients are treated as opaque: Run builds one instance per
// agent and shares it across every concurrently running match; there is
// no per-worker instance.
type Orchestrator struct {
	cfg        *config.TournamentConfig
	logger     *log.Logger
	engines    map[string]EngineFactory
	strategies offlineStrategies
	telemetry  telemetry.Config
	docSink    *telemetry.DocSink
	standings  *standings.Store
	limiter    adapter.RateLimiter
}

// Options configures an Orchestrator beyond the tournament config itself.
type Options struct {
	Engines    map[string]EngineFactory
	Strategies offlineStrategies
	Telemetry  telemetry.Config
	Standings  *standings.Store
	Limiter    adapter.RateLimiter

	// DocSink is the process-wide telemetry document sink, opened once
	// (typically in cmd/tourney/main.go via telemetry.OpenDocSink) and
	// shared across every match this Orchestrator runs. If nil, New opens
	// one itself from Telemetry, matching the single-background-writer
	// requirement of spec §3.3/§4.6/§5.
	DocSink *telemetry.DocSink
}

// New constructs an Orchestrator, opening the process-wide document sink
// when opts.DocSink is nil; its error result is always nil. Adapters are not
// built here: Run builds every agent's adapter eagerly before scheduling,
// so configuration errors (missing credential, unknown provider) are
// raised before any match starts, per spec §7.
func New(ctx context.Context, cfg *config.TournamentConfig, logger *log.Logger, opts Options) (*Orchestrator, error) {
	if opts.Limiter == nil {
		opts.Limiter = adapter.NoopRateLimiter{}
	}

	docSink := opts.DocSink
	if docSink == nil {
		docSink = telemetry.OpenDocSink(ctx, opts.Telemetry, logger)
	}

	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		engines:    opts.Engines,
		strategies: opts.Strategies,
		telemetry:  opts.Telemetry,
		docSink:    docSink,
		standings:  opts.Standings,
		limiter:    opts.Limiter,
	}, nil
}

// DocSink exposes the process-wide telemetry document sink so the CLI
// entrypoint (or a test) can defer its Close after Run returns, without
// needing to have constructed it itself.
func (o *Orchestrator) DocSink() *telemetry.DocSink {
	return o.docSink
}

// Report summarizes one tournament run, returned by Run.
type Report struct {
	TotalMatches int
	Results      []runResult
	Failures     []error
}

// Run builds the full match schedule, then drives it through a bounded
// worker pool sized by compute_caps.max_parallel_matches (default 1).
// Within a single match the turn loop is strictly sequential; there is
// no speculative or parallel evaluation of agent responses (spec §5).
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	adapters, err := o.buildAdapters()
	if err != nil {
		return Report{}, fmt.Errorf("orchestrator: %w", err)
	}

	scheduler := NewScheduler(o.cfg.Seed)
	matches, err := scheduler.Build(o.cfg)
	if err != nil {
		return Report{}, fmt.Errorf("orchestrator: build schedule: %w", err)
	}

	eventMix := o.eventMixSummary()
	if err := o.standings.RegisterRun(ctx, o.cfg.RunID, o.cfg.Name, eventMix, time.Now()); err != nil {
		o.logger.Printf("standings: register run failed: %v", err)
	}

	parallel := o.cfg.ComputeCaps.MaxParallelMatches
	if parallel <= 0 {
		parallel = 1
	}

	report := Report{TotalMatches: len(matches)}
	results := make([]runResult, len(matches))
	errs := make([]error, len(matches))

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, match := range matches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, match Match) {
			defer wg.Done()
			defer func() { <-sem }()

			runner := &matchRunner{
				logger:    o.logger,
				engines:   o.engines,
				agents:    o.cfg.Agents,
				adapters:  adapters,
				caps:      o.cfg.ComputeCaps,
				telemetry: o.telemetry,
				docSink:   o.docSink,
				standings: o.standings,
			}

			result, runErr := runner.run(ctx, match)
			results[i] = result
			errs[i] = runErr
		}(i, match)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			report.Failures = append(report.Failures, e)
		}
	}
	report.Results = results

	champion := o.champion(results)
	if err := o.standings.FinishRun(ctx, o.cfg.RunID, time.Now(), champion); err != nil {
		o.logger.Printf("standings: finish run failed: %v", err)
	}

	if len(report.Failures) > 0 {
		return report, fmt.Errorf("orchestrator: %d match(es) failed with a non-recoverable error", len(report.Failures))
	}
	return report, nil
}

func (o *Orchestrator) buildAdapters() (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter, len(o.cfg.Agents))
	for name, agentCfg := range o.cfg.Agents {
		built, err := buildAdapter(name, agentCfg, o.limiter, o.strategies)
		if err != nil {
			return nil, err
		}
		adapters[name] = built
	}
	return adapters, nil
}

func (o *Orchestrator) eventMixSummary() string {
	var names []string
	for name := range o.cfg.Events {
		names = append(names, name)
	}
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += name
	}
	return out
}

// champion picks the agent with the most match wins across this run's
// results. A match's winning seat is resolved to its bound agent name
// via runResult.Binding, since seat labels (player_a, player_b) are only
// unique within a single match, not across the tournament. Ties resolve
// to the first agent encountered, which is deterministic given the
// schedule's fixed iteration order.
func (o *Orchestrator) champion(results []runResult) string {
	wins := map[string]int{}
	var order []string
	for _, r := range results {
		if len(r.FinalScores) == 0 {
			continue
		}
		bestSeat := ""
		bestScore := 0.0
		tied := false
		first := true
		for seat, score := range r.FinalScores {
			switch {
			case first || score > bestScore:
				bestSeat, bestScore, first, tied = seat, score, false, false
			case score == bestScore:
				tied = true
			}
		}
		if bestSeat == "" || tied {
			continue
		}
		if agentName, ok := r.Binding[bestSeat]; ok {
			if wins[agentName] == 0 {
				order = append(order, agentName)
			}
			wins[agentName]++
		}
	}

	champion := ""
	championWins := -1
	for _, agent := range order {
		if count := wins[agent]; count > championWins {
			champion, championWins = agent, count
		}
	}
	return champion
}

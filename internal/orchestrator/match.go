package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"agenttourney/internal/action"
	"agenttourney/internal/adapter"
	"agenttourney/internal/config"
	"agenttourney/internal/gameengine"
	"agenttourney/internal/referee"
	"agenttourney/internal/standings"
	"agenttourney/internal/telemetry"
)

// EngineFactory constructs a fresh game engine for one match. Game
// engines' rule implementations are out of this module's scope (spec
// §1); callers (the CLI entrypoint, or a test) register one factory per
// event kind they actually run.
type EngineFactory func(seats []string, params json.RawMessage) (gameengine.Engine, error)

// matchRunner drives exactly one match from pending to finalized. It owns
// no state shared with any other match except docSink and standings,
// which are process-wide singletons (one background writer, one DB
// connection) passed in rather than reconstructed per match, per spec
// §3.3/§4.6/§5. The referee, telemetry file sink, and game engine are
// all constructed fresh per match.
type matchRunner struct {
	logger    *log.Logger
	engines   map[string]EngineFactory
	agents    map[string]config.Agent
	adapters  map[string]adapter.Adapter
	caps      config.ComputeCaps
	telemetry telemetry.Config
	docSink   *telemetry.DocSink
	standings *standings.Store
}

// runResult is everything the orchestrator needs after a match finishes,
// to feed the standings aggregator and console reporting.
type runResult struct {
	MatchID     string
	FinalScores map[string]float64
	Binding     map[string]string
	Ruling      string
	EngineErr   string
}

// run drives match to completion. Once the telemetry logger is open, every
// exit path calls logger.FinalizeMatch before returning, including an
// engine panic — recovered here and turned into an engine_error summary,
// per SPEC_FULL.md §4.7's scoped-acquisition guarantee. The one exception
// is a failed turn-log write to the file sink, which is returned as an
// error without a summary.
func (mr *matchRunner) run(ctx context.Context, match Match) (result runResult, err error) {
	result.MatchID = match.MatchID
	result.Binding = match.Binding

	tlog, openErr := telemetry.Open(ctx, mr.telemetry, match.MatchID, mr.logger, mr.docSink)
	if openErr != nil {
		return result, fmt.Errorf("open telemetry for match %s: %w", match.MatchID, openErr)
	}
	defer tlog.Close()

	startedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Ruling = "engine_error"
			result.EngineErr = fmt.Sprintf("panic: %v", r)
			mr.finalizeCrash(tlog, match, result, startedAt)
		}
	}()

	engine, buildErr := mr.engines[match.EventKind](match.Seats, nil)
	if buildErr != nil {
		result.Ruling = "engine_error"
		result.EngineErr = buildErr.Error()
		mr.finalizeCrash(tlog, match, result, startedAt)
		return result, nil
	}
	engine.Reset(match.Seed)

	refCfg := referee.Config{SeatCount: len(match.Seats), BaseForfeitThreshold: mr.caps.MatchForfeitThreshold}
	if len(mr.caps.StrikeViolationKinds) > 0 {
		refCfg.StrikeKinds = make(map[referee.ViolationKind]bool, len(mr.caps.StrikeViolationKinds))
		for _, kind := range mr.caps.StrikeViolationKinds {
			refCfg.StrikeKinds[referee.ViolationKind(kind)] = true
		}
	}
	ref := referee.New(refCfg)
	schema, schemaErr := action.CompileSchema(engine.GetActionSchema())
	if schemaErr != nil {
		mr.logger.Printf("match %s: failed to compile action schema: %v", match.MatchID, schemaErr)
		schema = nil
	}

	turnNumber := 0
	for !engine.IsTerminal() {
		turnNumber++
		ref.NewTurn(match.Seats...)

		seat := engine.CurrentPlayer()
		agentName := match.Binding[seat]
		ag := mr.adapters[agentName]
		agentCfg := mr.agents[agentName]

		prompt := engine.GetPrompt(seat)
		maxTokens := computeCap(agentCfg.MaxOutputTokens, mr.caps.MaxOutputTokens)
		shotClock := time.Duration(computeCap(agentCfg.TimeoutSeconds, mr.caps.TimeoutSeconds)) * time.Second

		attempt := attemptTurn(ctx, seat, ag, prompt, engine, ref, schema, maxTokens, shotClock)

		record := buildTurnRecord(match, turnNumber, seat, agentName, attempt, engine, ref, mr.caps)
		record.PromptText = prompt
		if logErr := tlog.LogTurn(record); logErr != nil {
			return result, fmt.Errorf("match %s: telemetry write failed: %w", match.MatchID, logErr)
		}

		switch attempt.outcome {
		case outcomeApplied:
			engine.ApplyAction(seat, attempt.action)
		case outcomeForfeited:
			engine.ForfeitTurn(seat)
		}

		if forfeited, _ := ref.MatchForfeited(); forfeited {
			break
		}

		select {
		case <-ctx.Done():
			result.Ruling = "cancelled"
			mr.finalizeCrash(tlog, match, result, startedAt)
			return result, nil
		default:
		}
	}

	result.FinalScores = engine.GetScores()
	forfeited, forfeitedBy := ref.MatchForfeited()
	if forfeited {
		result.Ruling = "forfeited_by:" + forfeitedBy
	} else {
		result.Ruling = "completed"
	}

	summary := telemetry.MatchSummary{
		FinalScores:    result.FinalScores,
		Ruling:         result.Ruling,
		HighlightHands: engine.GetHighlightHands(),
		TotalTurns:     turnNumber,
		Duration:       time.Since(startedAt),
		Timestamp:      time.Now(),
	}
	summary.FidelityReport = fidelityReportDocs(ref, match.Seats)

	if finalizeErr := tlog.FinalizeMatch(summary, match.Binding); finalizeErr != nil {
		return result, fmt.Errorf("match %s: finalize failed: %w", match.MatchID, finalizeErr)
	}

	mr.recordStandings(ctx, match, summary)
	return result, nil
}

// finalizeCrash emits a stub MatchSummary for a match that never reached
// its own finalize call — preferable to silent loss, per spec §5's
// "Resource discipline" note.
func (mr *matchRunner) finalizeCrash(tlog *telemetry.Logger, match Match, result runResult, startedAt time.Time) {
	summary := telemetry.MatchSummary{
		Ruling:       result.Ruling,
		EngineErrMsg: result.EngineErr,
		Duration:     time.Since(startedAt),
		Timestamp:    time.Now(),
	}
	if err := tlog.FinalizeMatch(summary, match.Binding); err != nil {
		mr.logger.Printf("match %s: crash-stub finalize also failed: %v", match.MatchID, err)
	}
}

func (mr *matchRunner) recordStandings(ctx context.Context, match Match, summary telemetry.MatchSummary) {
	if mr.standings == nil {
		return
	}
	var results []standings.MatchResult
	for seat, agentName := range match.Binding {
		outcome := "draw"
		if score, ok := summary.FinalScores[seat]; ok {
			best := score
			tied := false
			for otherSeat, otherScore := range summary.FinalScores {
				if otherSeat == seat {
					continue
				}
				if otherScore > best {
					best = otherScore
					tied = false
				} else if otherScore == best {
					tied = true
				}
			}
			switch {
			case score < best:
				outcome = "loss"
			case tied:
				outcome = "draw"
			default:
				outcome = "win"
			}
		}

		violations := map[string]int{}
		if report, ok := summary.FidelityReport[seat]; ok {
			for kind, count := range report.Totals {
				violations[kind] = count
			}
		}

		results = append(results, standings.MatchResult{
			ModelID:     agentName,
			DisplayName: agentName,
			Outcome:     outcome,
			Violations:  violations,
			Forfeited:   summary.FidelityReport[seat].TriggeredForfeit,
			PlayedAt:    summary.Timestamp,
		})
	}

	if err := mr.standings.RecordMatch(ctx, results); err != nil {
		mr.logger.Printf("match %s: standings record failed: %v", match.MatchID, err)
	}
}

func computeCap(perAgent, global int) int {
	if perAgent > 0 {
		return perAgent
	}
	return global
}

func fidelityReportDocs(ref *referee.Referee, seats []string) map[string]telemetry.FidelityReportDoc {
	report := ref.GetFidelityReport()
	out := make(map[string]telemetry.FidelityReportDoc, len(seats))
	for _, seat := range seats {
		totals := make(map[string]int)
		for kind, count := range report.Totals[seat] {
			totals[string(kind)] = count
		}
		out[seat] = telemetry.FidelityReportDoc{
			Totals:           totals,
			SeveritySum:      report.SeveritySum[seat],
			RetriesConsumed:  report.RetriesConsumed[seat],
			TurnForfeits:     report.TurnForfeits[seat],
			TriggeredForfeit: report.TriggeredForfeit[seat],
		}
	}
	return out
}

func buildTurnRecord(
	match Match,
	turnNumber int,
	seat, agentName string,
	attempt attemptResult,
	engine gameengine.Engine,
	ref *referee.Referee,
	caps config.ComputeCaps,
) telemetry.TurnRecord {
	record := telemetry.TurnRecord{
		TurnNumber:        turnNumber,
		SeatID:            seat,
		AgentID:           agentName,
		RawOutput:         attempt.rawOutput,
		ParseSuccess:      attempt.parseSuccess,
		GameStateSnapshot: engine.GetStateSnapshot(),
		InputTokens:       attempt.inputTokens,
		OutputTokens:      attempt.outputTokens,
		LatencyMS:         attempt.latencyMS,
		StrikeLimit:       caps.MatchForfeitThreshold,
		Timestamp:         time.Now(),
	}
	if attempt.violationKind != "" {
		record.ViolationKind = string(attempt.violationKind)
		record.ValidationOutcome = "rejected"
	} else {
		record.ValidationOutcome = "accepted"
	}
	if attempt.ruling != "" {
		record.Ruling = string(attempt.ruling)
	}
	if report := ref.GetFidelityReport(); true {
		record.CumulativeStrikes = report.TurnForfeits[seat]
	}
	return record
}

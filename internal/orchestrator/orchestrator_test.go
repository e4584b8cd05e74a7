package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenttourney/internal/adapter"
	"agenttourney/internal/config"
	"agenttourney/internal/gameengine"
	"agenttourney/internal/telemetry"
	"agenttourney/internal/testgame"
)

func testConfig(t *testing.T, agents map[string]config.Agent, events map[string]config.Event) *config.TournamentConfig {
	t.Helper()
	return &config.TournamentConfig{
		Name:   "end-to-end",
		Seed:   42,
		RunID:  "run-1",
		Agents: agents,
		Events: events,
		ComputeCaps: config.ComputeCaps{
			MaxOutputTokens:       256,
			TimeoutSeconds:        2,
			MatchForfeitThreshold: 3,
			MaxParallelMatches:    2,
		},
	}
}

func highCardEngines() map[string]EngineFactory {
	return map[string]EngineFactory{
		"highcard": func(seats []string, params json.RawMessage) (gameengine.Engine, error) {
			return testgame.New(seats[0], seats[1], 10), nil
		},
	}
}

func drawAlways() adapter.Strategy {
	return adapter.AlwaysRespond(`{"action": "draw"}`)
}

func newTestLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

// TestDeterministicRunProducesIdenticalResults covers spec P1 at the
// orchestrator level: running the same tournament config twice with the
// same seed must produce byte-identical final scores and rulings.
func TestDeterministicRunProducesIdenticalResults(t *testing.T) {
	agents := map[string]config.Agent{
		"alice": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bob":   {Provider: "offline-deterministic", Strategy: "always-draw"},
	}
	events := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 2, Matchups: config.MatchupSpec{Format: "round_robin"}},
	}

	run := func() Report {
		cfg := testConfig(t, agents, events)
		tmpDir := t.TempDir()
		orch, err := New(context.Background(), cfg, newTestLogger(), Options{
			Engines:    highCardEngines(),
			Strategies: map[string]adapter.Strategy{"always-draw": drawAlways()},
			Telemetry:  telemetry.Config{Dir: tmpDir},
		})
		require.NoError(t, err)
		report, err := orch.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run()
	second := run()

	require.Equal(t, first.TotalMatches, second.TotalMatches)
	require.Equal(t, len(first.Results), len(second.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].FinalScores, second.Results[i].FinalScores)
		assert.Equal(t, first.Results[i].Ruling, second.Results[i].Ruling)
	}
}

// TestSeedIsolationAcrossEventsAndRounds covers spec P2: each match's
// seed depends only on (event, round, match_index), never on how many
// other matches exist or what order the scheduler happened to visit
// them in.
func TestSeedIsolationAcrossEventsAndRounds(t *testing.T) {
	agents := map[string]config.Agent{
		"alice": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bob":   {Provider: "offline-deterministic", Strategy: "always-draw"},
		"carol": {Provider: "offline-deterministic", Strategy: "always-draw"},
	}

	baseEvents := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{Format: "round_robin"}},
	}
	widerEvents := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{Format: "round_robin"}},
		"rematch":  {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{Format: "round_robin"}},
	}

	schedBase := NewScheduler(7)
	baseMatches, err := schedBase.Build(testConfig(t, agents, baseEvents))
	require.NoError(t, err)

	schedWider := NewScheduler(7)
	widerMatches, err := schedWider.Build(testConfig(t, agents, widerEvents))
	require.NoError(t, err)

	seedByID := make(map[string]int64, len(baseMatches))
	for _, m := range baseMatches {
		seedByID[m.MatchID] = m.Seed
	}
	for _, m := range widerMatches {
		if m.EventName != "showdown" {
			continue
		}
		assert.Equal(t, seedByID[m.MatchID], m.Seed, "adding an unrelated event must not shift showdown's seeds")
	}
}

// TestForfeitedAgentLosesToCompliantOpponent covers an end-to-end
// scenario from spec §8: an agent that only ever emits malformed JSON
// accumulates violations until the match is forfeited in its opponent's
// favor, while telemetry and standings are still recorded.
func TestForfeitedAgentLosesToCompliantOpponent(t *testing.T) {
	agents := map[string]config.Agent{
		"good": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bad":  {Provider: "offline-deterministic", Strategy: "garbage"},
	}
	events := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"good", "bad"}},
		}},
	}
	cfg := testConfig(t, agents, events)
	tmpDir := t.TempDir()

	orch, err := New(context.Background(), cfg, newTestLogger(), Options{
		Engines: highCardEngines(),
		Strategies: map[string]adapter.Strategy{
			"always-draw": drawAlways(),
			"garbage":     adapter.AlwaysRespond("THIS IS NOT JSON AT ALL"),
		},
		Telemetry: telemetry.Config{Dir: tmpDir},
	})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	assert.Contains(t, result.Ruling, "forfeited_by:")
	assert.Equal(t, "player_b", func() string {
		for seat, name := range result.Binding {
			if name == "bad" {
				return seat
			}
		}
		return ""
	}())
}

// TestScoreConservationAcrossFullOrchestratedMatch covers spec P5 at the
// orchestrator level: two compliant agents playing to completion must
// conserve total chips exactly.
func TestScoreConservationAcrossFullOrchestratedMatch(t *testing.T) {
	agents := map[string]config.Agent{
		"alice": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bob":   {Provider: "offline-deterministic", Strategy: "always-draw"},
	}
	events := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"alice", "bob"}},
		}},
	}
	cfg := testConfig(t, agents, events)
	tmpDir := t.TempDir()

	orch, err := New(context.Background(), cfg, newTestLogger(), Options{
		Engines:    highCardEngines(),
		Strategies: map[string]adapter.Strategy{"always-draw": drawAlways()},
		Telemetry:  telemetry.Config{Dir: tmpDir},
	})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	total := 0.0
	for _, score := range report.Results[0].FinalScores {
		total += score
	}
	assert.Equal(t, 200.0, total)
}

// TestUnknownProviderFailsFastBeforeAnyMatchRuns covers spec §7's
// configuration-error contract: a bad provider name aborts Run before
// any match is scheduled or played, never mid-tournament.
func TestUnknownProviderFailsFastBeforeAnyMatchRuns(t *testing.T) {
	agents := map[string]config.Agent{
		"alice": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"mystery": {Provider: "unknown-provider"},
	}
	events := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"alice", "mystery"}},
		}},
	}
	cfg := testConfig(t, agents, events)
	tmpDir := t.TempDir()

	orch, err := New(context.Background(), cfg, newTestLogger(), Options{
		Engines:    highCardEngines(),
		Strategies: map[string]adapter.Strategy{"always-draw": drawAlways()},
		Telemetry:  telemetry.Config{Dir: tmpDir},
	})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Report{}, report)
}

// TestChampionResolvesSeatLabelsToAgentIdentity guards against
// champion() tallying by raw per-match seat label (player_a, player_b),
// which is not unique across the tournament, instead of the bound agent
// name.
func TestChampionResolvesSeatLabelsToAgentIdentity(t *testing.T) {
	o := &Orchestrator{}
	results := []runResult{
		{
			FinalScores: map[string]float64{"player_a": 110, "player_b": 90},
			Binding:     map[string]string{"player_a": "alice", "player_b": "bob"},
		},
		{
			// Same seat labels, different agents bound to them — this is
			// the scenario that breaks a label-keyed tally.
			FinalScores: map[string]float64{"player_a": 80, "player_b": 120},
			Binding:     map[string]string{"player_a": "carol", "player_b": "alice"},
		},
	}
	assert.Equal(t, "alice", o.champion(results))
}

// panickingEngine wraps a working engine but panics on CurrentPlayer,
// simulating a game implementation bug surfacing mid-match. Everything
// else delegates to the embedded engine.
type panickingEngine struct {
	gameengine.Engine
}

func (panickingEngine) CurrentPlayer() string {
	panic("boom: game engine crashed mid-match")
}

// TestEnginePanicMidMatchProducesCrashStubWithoutHaltingOtherMatches
// covers spec §8 scenario 5: a panicking engine must not take down the
// whole tournament run. The panicking match resolves to an engine_error
// crash stub via matchRunner.run's deferred recovery, while an unrelated
// match scheduled in the same run completes normally.
func TestEnginePanicMidMatchProducesCrashStubWithoutHaltingOtherMatches(t *testing.T) {
	agents := map[string]config.Agent{
		"alice": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bob":   {Provider: "offline-deterministic", Strategy: "always-draw"},
	}
	events := map[string]config.Event{
		"boom": {Kind: "highcard-boom", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"alice", "bob"}},
		}},
		"safe": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"alice", "bob"}},
		}},
	}
	cfg := testConfig(t, agents, events)
	tmpDir := t.TempDir()

	engines := highCardEngines()
	engines["highcard-boom"] = func(seats []string, params json.RawMessage) (gameengine.Engine, error) {
		return panickingEngine{Engine: testgame.New(seats[0], seats[1], 10)}, nil
	}

	orch, err := New(context.Background(), cfg, newTestLogger(), Options{
		Engines:    engines,
		Strategies: map[string]adapter.Strategy{"always-draw": drawAlways()},
		Telemetry:  telemetry.Config{Dir: tmpDir},
	})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	var boom, safe *runResult
	for i := range report.Results {
		r := &report.Results[i]
		switch {
		case strings.HasPrefix(r.MatchID, "boom-"):
			boom = r
		case strings.HasPrefix(r.MatchID, "safe-"):
			safe = r
		}
	}
	require.NotNil(t, boom)
	require.NotNil(t, safe)

	assert.Equal(t, "engine_error", boom.Ruling)
	assert.Contains(t, boom.EngineErr, "boom: game engine crashed mid-match")
	assert.Empty(t, boom.FinalScores)

	assert.Equal(t, "completed", safe.Ruling)
	assert.NotEmpty(t, safe.FinalScores)
}

// TestEliminationViaStuckLoopFiresBeforeOrdinaryThreshold covers spec §8
// scenario 6: three identical consecutive violations eliminate a seat
// through loop.go's isStuck() override, distinct from the ordinary
// cumulative-forfeit-threshold path. malformed_json is deliberately not a
// default strike kind (referee.Config.strikeKinds), so the ordinary
// threshold in RecordViolation can never escalate this match on its
// own — ruling out the ordinary path leaves the stuck-loop override as
// the only mechanism that can have produced a forfeited match here.
func TestEliminationViaStuckLoopFiresBeforeOrdinaryThreshold(t *testing.T) {
	agents := map[string]config.Agent{
		"good": {Provider: "offline-deterministic", Strategy: "always-draw"},
		"bad":  {Provider: "offline-deterministic", Strategy: "garbage"},
	}
	events := map[string]config.Event{
		"showdown": {Kind: "highcard", Rounds: 1, Matchups: config.MatchupSpec{
			Explicit: [][]string{{"good", "bad"}},
		}},
	}
	cfg := testConfig(t, agents, events)
	tmpDir := t.TempDir()

	orch, err := New(context.Background(), cfg, newTestLogger(), Options{
		Engines: highCardEngines(),
		Strategies: map[string]adapter.Strategy{
			"always-draw": drawAlways(),
			// Identical malformed output on every attempt: isStuck()'s
			// same-kind-same-details window is satisfied by the third
			// consecutive violation, regardless of turn boundaries.
			"garbage": adapter.AlwaysRespond("THIS IS NOT JSON AT ALL"),
		},
		Telemetry: telemetry.Config{Dir: tmpDir},
	})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	require.Contains(t, result.Ruling, "forfeited_by:")

	var badSeat string
	for seat, name := range result.Binding {
		if name == "bad" {
			badSeat = seat
		}
	}
	require.NotEmpty(t, badSeat)

	// The ordinary cumulative-forfeit path requires turn_forfeits to reach
	// the scaled threshold (3, for a 2-seat match) on a configured strike
	// kind; malformed_json is not a default strike kind, so that path can
	// never fire here regardless of how many turns elapse (see
	// TestIllegalMoveIsNotAStrikeByDefault's non-strike-kind analog in
	// referee_test.go). Finding a forfeited match with turn_forfeits well
	// under that threshold rules out the ordinary path and leaves the
	// rolling same-kind-same-details window in isStuck() as the only
	// mechanism that could have produced it.
	raw, err := os.ReadFile(filepath.Join(tmpDir, result.MatchID+".log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var summary struct {
		FidelityReport map[string]struct {
			Totals       map[string]int `json:"totals_by_kind"`
			TurnForfeits int            `json:"turn_forfeits"`
		} `json:"fidelity_report"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &summary))

	badReport, ok := summary.FidelityReport[badSeat]
	require.True(t, ok)
	assert.Equal(t, 3, badReport.Totals["malformed_json"], "isStuck() fires on exactly the third identical violation")
	assert.Less(t, badReport.TurnForfeits, 3, "turn_forfeits stayed below the ordinary match-forfeit threshold: elimination did not come from the cumulative-threshold path")
}

// TestTiedMatchAwardsNoWin ensures a tied final score does not count
// toward either agent's win tally.
func TestTiedMatchAwardsNoWin(t *testing.T) {
	o := &Orchestrator{}
	results := []runResult{
		{
			FinalScores: map[string]float64{"player_a": 100, "player_b": 100},
			Binding:     map[string]string{"player_a": "alice", "player_b": "bob"},
		},
	}
	assert.Equal(t, "", o.champion(results))
}

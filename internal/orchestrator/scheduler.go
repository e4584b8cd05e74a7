package orchestrator

import (
	"fmt"
	"sort"

	"agenttourney/internal/config"
	"agenttourney/internal/seedmgr"
)

// Match is a scheduled match descriptor, realized eagerly by
// Scheduler.Build before any match runs. Lifecycle: pending (this
// struct's existence) → running → finalized, tracked by the
// orchestrator, never by this struct itself.
type Match struct {
	MatchID    string
	EventName  string
	EventKind  string
	Round      int
	MatchIndex int
	Seed       int64

	// Seats, in seat order (player_a, player_b, ...).
	Seats []string
	// Binding maps seat → agent name (key into TournamentConfig.Agents).
	Binding map[string]string

	Stake float64
}

// Scheduler realizes the full match list for a tournament config up
// front, so the seed-isolation invariant — adding, removing, or
// reordering matches must not shift any other match's seed — is
// inspectable by construction: seeds are derived solely from
// (event, round, match_index), never from position in the returned slice.
type Scheduler struct {
	seeds *seedmgr.Manager
}

// NewScheduler creates a Scheduler keyed on the tournament's seed.
func NewScheduler(tournamentSeed int64) *Scheduler {
	return &Scheduler{seeds: seedmgr.New(tournamentSeed)}
}

// Build enumerates every match across every event in cfg, in a stable,
// deterministic order: events sorted by name, then round, then match
// index within round.
func (s *Scheduler) Build(cfg *config.TournamentConfig) ([]Match, error) {
	var matches []Match

	eventNames := make([]string, 0, len(cfg.Events))
	for name := range cfg.Events {
		eventNames = append(eventNames, name)
	}
	sort.Strings(eventNames)

	for _, eventName := range eventNames {
		event := cfg.Events[eventName]
		rounds := event.Rounds
		if rounds <= 0 {
			rounds = 1
		}

		pairings, err := s.pairingsFor(event, cfg)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", eventName, err)
		}

		for round := 0; round < rounds; round++ {
			for idx, agents := range pairings {
				seed := s.seeds.MatchSeed(eventName, round, idx)
				seats, binding := seatsAndBinding(agents)
				matches = append(matches, Match{
					MatchID:    matchID(eventName, round, idx),
					EventName:  eventName,
					EventKind:  event.Kind,
					Round:      round,
					MatchIndex: idx,
					Seed:       seed,
					Seats:      seats,
					Binding:    binding,
				})
			}
		}
	}

	return matches, nil
}

// pairingsFor expands an event's matchup spec into a list of seat-name
// lists, one per match, per spec's round_robin / bracket / explicit
// formats.
func (s *Scheduler) pairingsFor(event agentsEvent, cfg *config.TournamentConfig) ([][]string, error) {
	if len(event.Matchups.Explicit) > 0 {
		return event.Matchups.Explicit, nil
	}

	agentNames := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		agentNames = append(agentNames, name)
	}
	sort.Strings(agentNames)

	switch event.Matchups.Format {
	case "round_robin", "":
		return roundRobinPairings(agentNames), nil
	case "bracket":
		return bracketPairings(agentNames), nil
	default:
		return nil, fmt.Errorf("unknown matchup format %q", event.Matchups.Format)
	}
}

// agentsEvent is a type alias so pairingsFor reads naturally without
// importing config.Event under two names.
type agentsEvent = config.Event

// roundRobinPairings returns every unordered pair of agents exactly once.
func roundRobinPairings(agents []string) [][]string {
	var pairings [][]string
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			pairings = append(pairings, []string{agents[i], agents[j]})
		}
	}
	return pairings
}

// bracketPairings pairs agents by adjacent index (single-elimination
// first round); callers needing subsequent rounds supply an explicit
// matchup list once winners are known, since winners are a runtime
// outcome this scheduler cannot see ahead of time.
func bracketPairings(agents []string) [][]string {
	var pairings [][]string
	for i := 0; i+1 < len(agents); i += 2 {
		pairings = append(pairings, []string{agents[i], agents[i+1]})
	}
	return pairings
}

var seatLabels = []string{"player_a", "player_b", "player_c", "player_d", "player_e", "player_f", "player_g", "player_h", "player_i"}

// seatsAndBinding assigns seat labels (player_a, player_b, ...) to agents
// in order, up to the 9-seat limit spec.md fixes for Match.Seats.
func seatsAndBinding(agents []string) ([]string, map[string]string) {
	seats := make([]string, 0, len(agents))
	binding := make(map[string]string, len(agents))
	for i, agent := range agents {
		label := agent
		if i < len(seatLabels) {
			label = seatLabels[i]
		}
		seats = append(seats, label)
		binding[label] = agent
	}
	return seats, binding
}

func matchID(event string, round, idx int) string {
	return fmt.Sprintf("%s-r%d-m%d", event, round, idx)
}

package main

import (
	"encoding/json"
	"fmt"

	"agenttourney/internal/adapter"
	"agenttourney/internal/gameengine"
	"agenttourney/internal/orchestrator"
	"agenttourney/internal/testgame"
)

// engineRegistry maps an event's configured "kind" to the factory that
// builds its game engine. Individual games' rule implementations are
// out of this module's scope (spec §1); highcard is the one reference
// engine this repository ships, used by its own tests and by operators
// wiring up an offline-only smoke run.
func engineRegistry() map[string]orchestrator.EngineFactory {
	return map[string]orchestrator.EngineFactory{
		"highcard": func(seats []string, params json.RawMessage) (gameengine.Engine, error) {
			if len(seats) != 2 {
				return nil, fmt.Errorf("highcard: exactly two seats required, got %d", len(seats))
			}
			stake := highCardStake(params)
			return testgame.New(seats[0], seats[1], stake), nil
		},
	}
}

// highCardStake reads an optional {"stake": <number>} from an event's
// params, defaulting to 10 when absent or malformed — operator error in
// an event's params document should not be a construction-time failure.
func highCardStake(params json.RawMessage) float64 {
	if len(params) == 0 {
		return 10
	}
	var decoded struct {
		Stake float64 `json:"stake"`
	}
	if err := json.Unmarshal(params, &decoded); err != nil || decoded.Stake == 0 {
		return 10
	}
	return decoded.Stake
}

// offlineStrategyRegistry provides the built-in offline-deterministic
// strategies an agent's config may select by name, for mock participants
// and scripted opponents that never call a real model back-end.
func offlineStrategyRegistry() map[string]adapter.Strategy {
	return map[string]adapter.Strategy{
		"always-draw": adapter.AlwaysRespond(`{"action": "draw"}`),
		"always-fold": adapter.AlwaysRespond(`{"action": "fold"}`),
	}
}

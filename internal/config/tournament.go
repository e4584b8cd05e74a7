package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// TournamentConfig is the structured document described in spec §6.4.
// Immutable after LoadTournamentConfig returns: nothing downstream may
// mutate it, since the seed-derivation triple and the eagerly-built
// schedule both assume it never changes mid-run.
type TournamentConfig struct {
	Name    string `json:"name"`
	Seed    int64  `json:"seed"`
	Version string `json:"version"`

	// RunID distinguishes two runs of an identically-named tournament in
	// the document store and the standings leaderboard. It plays no
	// part in seed derivation, which stays a pure function of
	// (event_name, round_number, match_index).
	RunID string `json:"-"`

	Agents map[string]Agent `json:"models"`
	Events map[string]Event `json:"events"`

	ComputeCaps ComputeCaps `json:"compute_caps"`
}

// Agent is a participant descriptor (spec §3.1).
type Agent struct {
	Provider    string `json:"provider"` // offline-deterministic | openai-compatible | anthropic-style | openrouter-routed
	ModelID     string `json:"model_id,omitempty"`
	Strategy    string `json:"strategy,omitempty"` // offline adapter only
	Temperature float64 `json:"temperature"`

	MaxOutputTokens int    `json:"max_output_tokens"`
	TimeoutSeconds  int    `json:"timeout_s"`
	APIKeyEnv       string `json:"api_key_env,omitempty"`
	BaseURL         string `json:"base_url,omitempty"`
	SiteURL         string `json:"site_url,omitempty"`
	AppName         string `json:"app_name,omitempty"`
}

// Event is one game kind plus its per-event parameters (spec §3.1).
// Game-specific fields (hands-per-match, stack sizes, dice rules, ...)
// are intentionally untyped here: the core does not know what any
// specific game needs, so Params is handed to the game engine as-is.
type Event struct {
	Kind   string          `json:"kind"`
	Weight float64         `json:"weight"`
	Rounds int             `json:"rounds"`
	Params json.RawMessage `json:"params,omitempty"`

	Matchups MatchupSpec `json:"matchups"`
}

// MatchupSpec names either a generation format or an explicit table.
// Exactly one of Format or Explicit should be set; Scheduler.Build
// treats Format == "" with a non-empty Explicit as the explicit case.
type MatchupSpec struct {
	Format   string       `json:"format,omitempty"` // "round_robin" | "bracket"
	Explicit [][]string   `json:"explicit,omitempty"`
}

// ComputeCaps fixes global defaults (spec §3.1, §6.4); per-agent fields
// in Agent override these when set to a non-zero value.
type ComputeCaps struct {
	MaxOutputTokens       int      `json:"max_output_tokens"`
	TimeoutSeconds        int      `json:"timeout_s"`
	MatchForfeitThreshold int      `json:"match_forfeit_threshold"`
	StrikeViolationKinds  []string `json:"strike_violation_kinds"`
	MaxRetries            int      `json:"max_retries"`
	MaxParallelMatches    int      `json:"max_parallel_matches"`
}

// LoadTournamentConfig reads and parses a tournament configuration
// document. Parsing format itself is out of spec scope beyond fixing
// JSON as the serialization already used throughout the rest of the
// system (the document sink, the telemetry records); this loader exists
// purely so the CLI entrypoint has something concrete to call.
func LoadTournamentConfig(path string) (*TournamentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tournament config %s: %w", path, err)
	}

	var cfg TournamentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tournament config %s: %w", path, err)
	}

	cfg.RunID = uuid.NewString()
	applyComputeCapDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tournament config %s: %w", path, err)
	}

	return &cfg, nil
}

func applyComputeCapDefaults(cfg *TournamentConfig) {
	if cfg.ComputeCaps.MaxParallelMatches <= 0 {
		cfg.ComputeCaps.MaxParallelMatches = 1
	}
	if cfg.ComputeCaps.MaxRetries <= 0 {
		cfg.ComputeCaps.MaxRetries = 1
	}
	if cfg.ComputeCaps.MatchForfeitThreshold <= 0 {
		cfg.ComputeCaps.MatchForfeitThreshold = 3
	}
}

// Validate checks the structural requirements the orchestrator relies
// on before scheduling a single match.
func (c *TournamentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("tournament.name is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("tournament must declare at least one agent")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("tournament must declare at least one event")
	}
	for name, agent := range c.Agents {
		if err := agent.validate(name); err != nil {
			return err
		}
	}
	for name, event := range c.Events {
		if event.Kind == "" {
			return fmt.Errorf("event %q: kind is required", name)
		}
	}
	return nil
}

func (a Agent) validate(name string) error {
	switch a.Provider {
	case "offline-deterministic", "openai-compatible", "anthropic-style", "openrouter-routed":
	default:
		return fmt.Errorf("agent %q: unknown provider %q", name, a.Provider)
	}
	if a.Provider == "offline-deterministic" && a.Strategy == "" {
		return fmt.Errorf("agent %q: offline-deterministic provider requires a strategy", name)
	}
	if a.Provider != "offline-deterministic" && a.APIKeyEnv == "" {
		return fmt.Errorf("agent %q: %s provider requires api_key_env", name, a.Provider)
	}
	return nil
}

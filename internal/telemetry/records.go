// Package telemetry implements the dual-sink pipeline: a durable
// append-only log file per match, and an optional asynchronous document
// store. finalize_match is guaranteed to run for every match that starts.
package telemetry

import (
	"encoding/json"
	"time"
)

// TurnRecord is the record of one turn, applied or forfeited. The match
// loop writes one per turn: when the turn was retried, the record carries
// the last attempt made, and the earlier attempt has no record of its own.
type TurnRecord struct {
	RecordType string `json:"record_type"` // always "turn"

	MatchID  string `json:"match_id"`
	TurnNumber int  `json:"turn_number"`
	HandNumber int  `json:"hand_number"`
	Street     string `json:"street,omitempty"`

	SeatID       string `json:"seat_id"`
	AgentID      string `json:"agent_id"`
	AgentVersion string `json:"agent_version,omitempty"`

	PromptText    string `json:"prompt_text,omitempty"`
	PromptHash    string `json:"prompt_hash,omitempty"`
	RawOutput     string `json:"raw_output"`
	ReasoningText string `json:"reasoning_text,omitempty"`

	ParsedAction       map[string]interface{} `json:"parsed_action,omitempty"`
	ParseSuccess       bool                    `json:"parse_success"`
	ValidationOutcome  string                  `json:"validation_outcome"`
	ViolationKind      string                  `json:"violation_kind,omitempty"`
	Ruling             string                  `json:"ruling,omitempty"`

	GameStateSnapshot interface{} `json:"game_state_snapshot,omitempty"`

	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	LatencyMS    int64 `json:"latency_ms"`

	ShotClockBudgetMS int64 `json:"shot_clock_budget_ms"`
	ShotClockExceeded bool  `json:"shot_clock_exceeded"`

	CumulativeStrikes int `json:"cumulative_strikes"`
	StrikeLimit       int `json:"strike_limit"`

	EngineVersion       string `json:"engine_version,omitempty"`
	PromptSchemaVersion string `json:"prompt_schema_version,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// FidelityReportDoc is the JSON-serializable shape of one seat's fidelity
// report. MatchSummary.FidelityReport keys a map of these by seat ID.
type FidelityReportDoc struct {
	Totals           map[string]int `json:"totals_by_kind"`
	SeveritySum      int            `json:"severity_sum"`
	RetriesConsumed  int            `json:"retries_consumed"`
	TurnForfeits     int            `json:"turn_forfeits"`
	TriggeredForfeit bool           `json:"triggered_match_forfeit"`
}

// MatchSummary is emitted exactly once at match end.
type MatchSummary struct {
	RecordType string `json:"record_type"` // always "match_summary"

	MatchID        string             `json:"match_id"`
	FinalScores    map[string]float64 `json:"final_scores"`
	FidelityReport map[string]FidelityReportDoc `json:"fidelity_report"`
	Ruling         string             `json:"ruling"` // "completed", "forfeited_by:<seat>", "engine_error"

	HighlightHands []string `json:"highlight_hands,omitempty"`

	TotalTurns   int           `json:"total_turns"`
	Duration     time.Duration `json:"duration_ns"`
	EngineErrMsg string        `json:"engine_error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSONL serializes v as a single JSON line (no trailing newline).
func MarshalJSONL(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

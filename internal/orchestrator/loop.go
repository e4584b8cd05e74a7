package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"agenttourney/internal/action"
	"agenttourney/internal/adapter"
	"agenttourney/internal/gameengine"
	"agenttourney/internal/referee"
	"agenttourney/internal/sanitize"
)

// turnOutcome is the result of attemptTurn, telling the caller what to do
// to the game engine next.
type turnOutcome string

const (
	outcomeApplied   turnOutcome = "APPLIED"
	outcomeForfeited turnOutcome = "FORFEITED"
)

// attemptResult carries everything loop-level telemetry needs, beyond the
// bare turnOutcome.
type attemptResult struct {
	outcome           turnOutcome
	action            map[string]interface{}
	rawOutput         string
	violationKind     referee.ViolationKind
	ruling            referee.Ruling
	parseSuccess      bool
	injectionDetected bool
	inputTokens       int
	outputTokens      int
	latencyMS         int64
}

// stuckWindow is the size of the rolling identical-violation window per
// spec §4.7.4.
const stuckWindow = 3

// attemptTurn implements spec §4.7.3 exactly: one query, at most one
// retry, governed by a single shot-clock window that is not refreshed
// between attempts. schema may be nil if the engine's action schema
// failed to compile; Parse then skips schema validation.
func attemptTurn(
	ctx context.Context,
	seatID string,
	ag adapter.Adapter,
	prompt string,
	engine gameengine.Engine,
	ref *referee.Referee,
	schema *gojsonschema.Schema,
	maxTokens int,
	shotClock time.Duration,
) attemptResult {
	deadline := time.Now().Add(shotClock)
	shotCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	first := tryOnce(shotCtx, seatID, ag, prompt, engine, schema, maxTokens)
	if first.ok {
		return appliedResult(ref, seatID, first)
	}

	ruling := ref.RecordViolation(seatID, first.violationKind, first.details)
	if isStuck(ref, seatID) {
		ruling = ref.Eliminate(seatID)
	}
	if ruling != referee.RulingRetry {
		return forfeitedResult(first, ruling)
	}

	ref.ConsumeRetry(seatID)

	if time.Now().After(deadline) {
		// The shot-clock window expired between attempts; the second
		// attempt is skipped and the turn forfeits per spec §4.7.4.
		secondRuling := ref.RecordViolation(seatID, first.violationKind, first.details)
		return forfeitedResult(first, secondRuling)
	}

	retryPrompt := engine.GetRetryPrompt(seatID, first.details)
	second := tryOnce(shotCtx, seatID, ag, retryPrompt, engine, schema, maxTokens)
	if second.ok {
		return appliedResult(ref, seatID, second)
	}

	secondRuling := ref.RecordViolation(seatID, second.violationKind, second.details)
	if isStuck(ref, seatID) {
		secondRuling = ref.Eliminate(seatID)
	}
	return forfeitedResult(second, secondRuling)
}

// rawAttempt is the outcome of a single query+parse+validate cycle.
type rawAttempt struct {
	ok                bool
	action            map[string]interface{}
	rawOutput         string
	violationKind     referee.ViolationKind
	details           string
	injectionDetected bool
	inputTokens       int
	outputTokens      int
	latencyMS         int64
}

func tryOnce(ctx context.Context, seatID string, ag adapter.Adapter, prompt string, engine gameengine.Engine, schema *gojsonschema.Schema, maxTokens int) rawAttempt {
	resp, err := ag.Query(ctx, []adapter.Message{{Role: adapter.RoleUser, Content: prompt}}, maxTokens)
	if err != nil {
		return rawAttempt{
			ok:            false,
			violationKind: classifyAdapterError(err),
			details:       err.Error(),
		}
	}

	raw := resp.RawText
	clean := sanitize.Sanitize(raw)
	parsed := action.Parse(clean, schema)

	base := rawAttempt{
		rawOutput:         raw,
		injectionDetected: parsed.InjectionDetected,
		inputTokens:       resp.InputTokens,
		outputTokens:      resp.OutputTokens,
		latencyMS:         resp.LatencyMS,
	}

	if !parsed.Success {
		base.violationKind = referee.ViolationMalformedJSON
		base.details = parsed.Err.Error()
		return base
	}

	validation := engine.ValidateAction(seatID, parsed.Action)
	if !validation.Legal {
		base.violationKind = referee.ViolationIllegalMove
		base.details = validation.Reason
		return base
	}

	base.ok = true
	base.action = parsed.Action
	return base
}

// classifyAdapterError implements spec §4.7.3 step 2's grouping: an empty
// response is its own violation kind; everything else (timeout, rate
// limit, api error) is grouped under timeout because it is externally
// indistinguishable from an unresponsive agent at this layer.
func classifyAdapterError(err error) referee.ViolationKind {
	if errors.Is(err, adapter.ErrEmptyResponse) {
		return referee.ViolationEmptyResponse
	}
	return referee.ViolationTimeout
}

// appliedResult records an INJECTION_ATTEMPT violation when the parser
// flagged one, per spec §4.7.3 step 6, then returns APPLIED regardless —
// injection detection is a telemetry flag, never a block.
func appliedResult(ref *referee.Referee, seatID string, result rawAttempt) attemptResult {
	if result.injectionDetected {
		ref.RecordViolation(seatID, referee.ViolationInjectionAttempt, "prompt-injection pattern detected in raw output")
	}
	return attemptResult{
		outcome:           outcomeApplied,
		action:            result.action,
		rawOutput:         result.rawOutput,
		parseSuccess:      true,
		injectionDetected: result.injectionDetected,
		inputTokens:       result.inputTokens,
		outputTokens:      result.outputTokens,
		latencyMS:         result.latencyMS,
	}
}

func forfeitedResult(result rawAttempt, ruling referee.Ruling) attemptResult {
	return attemptResult{
		outcome:           outcomeForfeited,
		rawOutput:         result.rawOutput,
		violationKind:     result.violationKind,
		ruling:            ruling,
		parseSuccess:      false,
		injectionDetected: result.injectionDetected,
		inputTokens:       result.inputTokens,
		outputTokens:      result.outputTokens,
		latencyMS:         result.latencyMS,
	}
}

// isStuck implements the rolling-last-three-identical-violations
// stuck-loop detector from spec §4.7.4: if a seat's last three recorded
// violations share both kind and details, it is eliminated immediately,
// independent of the ordinary threshold.
func isStuck(ref *referee.Referee, seatID string) bool {
	violations := ref.Violations(seatID)
	if len(violations) < stuckWindow {
		return false
	}
	last := violations[len(violations)-stuckWindow:]
	kind, details := last[0].Kind, last[0].Details
	for _, v := range last[1:] {
		if v.Kind != kind || v.Details != details {
			return false
		}
	}
	return true
}

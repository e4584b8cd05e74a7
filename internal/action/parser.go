// Package action extracts and validates the first well-formed JSON action
// object embedded in raw, prose-wrapped model output.
package action

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"agenttourney/internal/sanitize"
)

// ParseResult is the outcome of parsing one raw model response.
type ParseResult struct {
	Success          bool
	Action           map[string]interface{}
	RawJSON          string
	Err              error
	InjectionDetected bool
}

// Parse scans text for candidate JSON objects in left-to-right order and
// returns the first one that both decodes and validates against schema.
// Injection detection runs over the full raw text independent of whether a
// valid action is ultimately found.
func Parse(text string, schema *gojsonschema.Schema) ParseResult {
	injected := sanitize.DetectInjection(text)

	candidates := extractCandidates(text)
	if len(candidates) == 0 {
		return ParseResult{
			Success:           false,
			Err:               fmt.Errorf("no candidate JSON object found in output"),
			InjectionDetected: injected,
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
			lastErr = fmt.Errorf("json decode failed: %w", err)
			continue
		}

		if schema != nil {
			result, err := schema.Validate(gojsonschema.NewGoLoader(decoded))
			if err != nil {
				lastErr = fmt.Errorf("schema validation error: %w", err)
				continue
			}
			if !result.Valid() {
				lastErr = fmt.Errorf("schema validation failed: %v", result.Errors())
				continue
			}
		}

		return ParseResult{
			Success:           true,
			Action:            decoded,
			RawJSON:           candidate,
			InjectionDetected: injected,
		}
	}

	return ParseResult{
		Success:           false,
		Err:               lastErr,
		InjectionDetected: injected,
	}
}

// extractCandidates returns the top-level balanced-brace spans in text, in
// the order they appear. Agents often prose-wrap their answer
// ("I'll raise. {...} — good move."); scanning for '{' ... matching '}'
// spans, left to right, lets the first one that actually parses and
// validates win without privileging trailing or malformed text.
func extractCandidates(text string) []string {
	var candidates []string
	depth := 0
	start := -1

	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

// Package sanitize strips control characters from raw model output and
// flags (without ever blocking) common prompt-injection patterns.
package sanitize

import (
	"regexp"
	"strings"
)

// zeroWidth is the set of zero-width / BOM runes stripped from model output.
var zeroWidth = map[rune]bool{
	'​': true, // zero width space
	'‌': true, // zero width non-joiner
	'‍': true, // zero width joiner
	'⁠': true, // word joiner
	'﻿': true, // byte order mark
	'­': true, // soft hyphen
}

// isStrippedControl reports whether r is an ASCII control character that
// sanitize removes. \t, \n, \r are explicitly preserved.
func isStrippedControl(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r >= 0x00 && r <= 0x08:
		return true
	case r >= 0x0b && r <= 0x0c:
		return true
	case r >= 0x0e && r <= 0x1f:
		return true
	case r == 0x7f:
		return true
	default:
		return false
	}
}

// Sanitize removes control characters and zero-width/BOM runes, preserving
// all other Unicode verbatim. Sanitize is idempotent: Sanitize(Sanitize(x))
// == Sanitize(x).
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isStrippedControl(r) || zeroWidth[r] {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// injectionPatterns are case-insensitive regexes matching common
// prompt-hijack attempts. Detection is a telemetry flag only; it never
// blocks a turn.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?prior\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(the\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)</?system>`),
	regexp.MustCompile(`(?i)</?assistant>`),
	regexp.MustCompile(`(?i)\[/?inst\]`),
	regexp.MustCompile(`(?i)"role"\s*:\s*"system"`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(unbound|unrestricted|free|jailbroken)`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s+prompt\s*:`),
}

// DetectInjection reports whether text matches any known prompt-hijack
// pattern. A positive result is a heuristic flag, never a block — the turn
// still proceeds normally. False positives on legitimate game commentary
// are expected and accepted.
func DetectInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

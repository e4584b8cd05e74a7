// Package referee is the single source of truth for what happens after a
// seat misbehaves — retry, forfeit the turn, eliminate the seat, or
// forfeit the match — isolating that policy from any individual game's
// rules.
package referee

import "fmt"

// ViolationKind classifies why a turn failed.
type ViolationKind string

const (
	ViolationMalformedJSON   ViolationKind = "malformed_json"
	ViolationIllegalMove     ViolationKind = "illegal_move"
	ViolationTimeout         ViolationKind = "timeout"
	ViolationEmptyResponse   ViolationKind = "empty_response"
	ViolationInjectionAttempt ViolationKind = "injection_attempt"
)

// severities is the fixed severity assigned to each violation kind.
var severities = map[ViolationKind]int{
	ViolationMalformedJSON:    2,
	ViolationIllegalMove:      1,
	ViolationTimeout:          2,
	ViolationEmptyResponse:    2,
	ViolationInjectionAttempt: 3,
}

// Severity returns the configured severity for kind.
func Severity(kind ViolationKind) int { return severities[kind] }

// Ruling is the referee's decision after a violation.
type Ruling string

const (
	RulingRetry            Ruling = "RETRY"
	RulingForfeitTurn      Ruling = "FORFEIT_TURN"
	RulingEliminatePlayer  Ruling = "ELIMINATE_PLAYER"
	RulingForfeitMatch     Ruling = "FORFEIT_MATCH"
)

// Violation is one recorded misbehavior.
type Violation struct {
	Seat     string
	Kind     ViolationKind
	Severity int
	Details  string
}

// seatState is the per-seat accounting the referee tracks for the whole
// match.
type seatState struct {
	violations           []Violation
	turnForfeits         int
	retriesConsumedTotal int

	// per-turn, reset by NewTurn
	turnViolations int
	retryConsumed  bool
}

// Config controls the referee's ruling policy thresholds.
type Config struct {
	// BaseForfeitThreshold is the cumulative turn-forfeit count, before
	// seat-count scaling, that triggers a match forfeit / elimination.
	// Defaults to 3 when zero.
	BaseForfeitThreshold int

	// StrikeKinds are the violation kinds that count toward the
	// cumulative match-forfeit threshold. Defaults to
	// {timeout, empty_response} when nil.
	StrikeKinds map[ViolationKind]bool

	// SeatCount is the number of seats in the match, used to scale the
	// threshold: base + max(0, seatCount-6).
	SeatCount int
}

func (c Config) threshold() int {
	base := c.BaseForfeitThreshold
	if base == 0 {
		base = 3
	}
	scale := c.SeatCount - 6
	if scale < 0 {
		scale = 0
	}
	return base + scale
}

func (c Config) strikeKinds() map[ViolationKind]bool {
	if c.StrikeKinds != nil {
		return c.StrikeKinds
	}
	return map[ViolationKind]bool{
		ViolationTimeout:       true,
		ViolationEmptyResponse: true,
	}
}

// Referee tracks per-match violation accounting for every seat and decides
// rulings. A Referee is owned exclusively by one match-driving routine;
// its counters are never shared across matches.
type Referee struct {
	cfg            Config
	seats          map[string]*seatState
	matchForfeited bool
	forfeitedBy    string
}

// New creates a fresh Referee for one match.
func New(cfg Config) *Referee {
	return &Referee{
		cfg:   cfg,
		seats: make(map[string]*seatState),
	}
}

func (r *Referee) seat(id string) *seatState {
	s, ok := r.seats[id]
	if !ok {
		s = &seatState{}
		r.seats[id] = s
	}
	return s
}

// NewTurn resets per-turn state for every seat the referee has seen so
// far, plus the given current seats (so seats are tracked even before
// their first violation).
func (r *Referee) NewTurn(seats ...string) {
	for _, id := range seats {
		r.seat(id) // ensure tracked
	}
	for _, s := range r.seats {
		s.turnViolations = 0
		s.retryConsumed = false
	}
}

// ConsumeRetry marks seat as having used its one retry for the current
// turn. The caller must call this before re-asking after a RETRY ruling.
func (r *Referee) ConsumeRetry(seatID string) {
	s := r.seat(seatID)
	s.retryConsumed = true
	s.retriesConsumedTotal++
}

// MatchForfeited reports whether this match has been forfeited, and by
// which seat (the offending seat, i.e. the loser).
func (r *Referee) MatchForfeited() (bool, string) {
	return r.matchForfeited, r.forfeitedBy
}

// RecordViolation appends a violation for seatID and returns the ruling,
// per spec §4.5's policy:
//
//  1. Append the violation, increment the seat's turn-violation counter.
//  2. If this is the seat's first violation this turn and it hasn't
//     consumed its retry yet, return RETRY.
//  3. Otherwise return FORFEIT_TURN and increment the seat's cumulative
//     turn-forfeit counter.
//  4. If kind is a configured strike kind and the seat's cumulative
//     turn-forfeit count has met the scaled threshold, additionally mark
//     the match forfeited and return FORFEIT_MATCH (2-player) or
//     ELIMINATE_PLAYER (3+ player).
func (r *Referee) RecordViolation(seatID string, kind ViolationKind, details string) Ruling {
	s := r.seat(seatID)
	v := Violation{Seat: seatID, Kind: kind, Severity: Severity(kind), Details: details}
	s.violations = append(s.violations, v)
	s.turnViolations++

	if s.turnViolations == 1 && !s.retryConsumed {
		return RulingRetry
	}

	s.turnForfeits++

	if r.cfg.strikeKinds()[kind] && s.turnForfeits >= r.cfg.threshold() {
		return r.escalate(seatID)
	}

	return RulingForfeitTurn
}

// Eliminate forces elimination/match-forfeit for seatID independent of
// the ordinary threshold — used by the match loop's stuck-loop detector
// when a seat produces three identical consecutive violations.
func (r *Referee) Eliminate(seatID string) Ruling {
	return r.escalate(seatID)
}

func (r *Referee) escalate(seatID string) Ruling {
	r.matchForfeited = true
	r.forfeitedBy = seatID
	if r.cfg.SeatCount <= 2 {
		return RulingForfeitMatch
	}
	return RulingEliminatePlayer
}

// FidelityReport is the per-seat aggregation emitted at match end.
type FidelityReport struct {
	Totals           map[string]map[ViolationKind]int
	SeveritySum      map[string]int
	RetriesConsumed  map[string]int
	TurnForfeits     map[string]int
	TriggeredForfeit map[string]bool
}

// GetFidelityReport summarizes all violations recorded over the match.
func (r *Referee) GetFidelityReport() FidelityReport {
	report := FidelityReport{
		Totals:           make(map[string]map[ViolationKind]int),
		SeveritySum:      make(map[string]int),
		RetriesConsumed:  make(map[string]int),
		TurnForfeits:     make(map[string]int),
		TriggeredForfeit: make(map[string]bool),
	}

	for seatID, s := range r.seats {
		kindTotals := make(map[ViolationKind]int)
		severitySum := 0
		for _, v := range s.violations {
			kindTotals[v.Kind]++
			severitySum += v.Severity
		}
		report.Totals[seatID] = kindTotals
		report.SeveritySum[seatID] = severitySum
		report.RetriesConsumed[seatID] = s.retriesConsumedTotal
		report.TurnForfeits[seatID] = s.turnForfeits
		report.TriggeredForfeit[seatID] = r.matchForfeited && r.forfeitedBy == seatID
	}

	return report
}

// Violations returns the ordered list of violations recorded for seatID,
// used by the match loop's stuck-loop rolling-window check.
func (r *Referee) Violations(seatID string) []Violation {
	return r.seat(seatID).violations
}

// ErrUnknownSeat describes a lookup against a seat never seen by this
// referee. No Referee method returns it: lookups such as Violations
// register an unseen seat on first use instead.
type ErrUnknownSeat struct {
	SeatID string
}

func (e *ErrUnknownSeat) Error() string {
	return fmt.Sprintf("referee: unknown seat %q", e.SeatID)
}

// Package testgame provides highcard, a deterministic two-seat reference
// game used only by this repository's own tests and the end-to-end
// scenarios the match loop is exercised against. It is test scaffolding,
// not a product deliverable — individual games' rule implementations are
// out of this module's scope (spec §1).
package testgame

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"agenttourney/internal/gameengine"
)

const actionSchemaJSON = `{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["draw", "fold"]}
	},
	"required": ["action"],
	"additionalProperties": false
}`

// HighCard is a trivial seeded card-draw duel between exactly two seats:
// each seat either draws (reveals a card from a shuffled 1-52 deck) or
// folds (forfeits the hand, conceding the pot to the opponent). Highest
// card across both seats' draws wins the pot; a fold before drawing
// concedes immediately. Stakes are fixed per hand and always conserved.
type HighCard struct {
	seats   []string
	deck    []int
	rng     *rand.Rand
	handNum int
	stake   float64

	scores   map[string]float64
	drawn    map[string]int
	folded   map[string]bool
	terminal bool

	highlights []string
}

// New creates a HighCard engine for exactly the two given seats, with a
// per-hand stake.
func New(seatA, seatB string, stake float64) *HighCard {
	return &HighCard{
		seats: []string{seatA, seatB},
		stake: stake,
	}
}

var _ gameengine.Engine = (*HighCard)(nil)

// Reset (re)initializes the deck and scores from seed. Hand number resets
// to 1. Must be called before any other method.
func (h *HighCard) Reset(seed int64) {
	h.rng = rand.New(rand.NewSource(seed))
	h.handNum = 1
	h.scores = map[string]float64{h.seats[0]: 100, h.seats[1]: 100}
	h.terminal = false
	h.highlights = nil
	h.newHand()
}

func (h *HighCard) newHand() {
	h.deck = make([]int, 52)
	for i := range h.deck {
		h.deck[i] = i + 1
	}
	h.rng.Shuffle(len(h.deck), func(i, j int) { h.deck[i], h.deck[j] = h.deck[j], h.deck[i] })
	h.drawn = map[string]int{}
	h.folded = map[string]bool{}
}

// CurrentPlayer returns the first seat (in seat order) that has neither
// drawn nor folded this hand.
func (h *HighCard) CurrentPlayer() string {
	for _, seat := range h.seats {
		if _, drew := h.drawn[seat]; !drew && !h.folded[seat] {
			return seat
		}
	}
	return ""
}

// GetPrompt returns a freshly generated prompt for seatID.
func (h *HighCard) GetPrompt(seatID string) string {
	return fmt.Sprintf(
		"Hand %d. You are %s. Respond with JSON {\"action\": \"draw\"} or {\"action\": \"fold\"}.",
		h.handNum, seatID,
	)
}

// GetRetryPrompt asks seatID to correct its last attempt.
func (h *HighCard) GetRetryPrompt(seatID string, reason string) string {
	return fmt.Sprintf(
		"Your last response was rejected: %s. Respond again with JSON {\"action\": \"draw\"} or {\"action\": \"fold\"}.",
		reason,
	)
}

// GetActionSchema returns the fixed draw/fold schema.
func (h *HighCard) GetActionSchema() json.RawMessage {
	return json.RawMessage(actionSchemaJSON)
}

// ValidateAction checks that action is legal for seatID: the action key
// must be "draw" or "fold", and seatID must be the current player.
func (h *HighCard) ValidateAction(seatID string, action map[string]interface{}) gameengine.ValidationResult {
	if seatID != h.CurrentPlayer() {
		return gameengine.ValidationResult{Legal: false, Reason: "not your turn"}
	}
	kind, ok := action["action"].(string)
	if !ok {
		return gameengine.ValidationResult{Legal: false, Reason: "missing action field"}
	}
	if kind != "draw" && kind != "fold" {
		return gameengine.ValidationResult{Legal: false, Reason: "action must be draw or fold"}
	}
	return gameengine.ValidationResult{Legal: true}
}

// ApplyAction commits a validated draw or fold.
func (h *HighCard) ApplyAction(seatID string, action map[string]interface{}) {
	kind := action["action"].(string)
	if kind == "fold" {
		h.applyFold(seatID)
		return
	}
	h.applyDraw(seatID)
}

func (h *HighCard) applyDraw(seatID string) {
	card := h.deck[0]
	h.deck = h.deck[1:]
	h.drawn[seatID] = card
	h.advanceIfHandComplete()
}

func (h *HighCard) applyFold(seatID string) {
	h.folded[seatID] = true
	h.settleFold(seatID)
}

// ForfeitTurn applies the engine's default for a seat that failed to
// produce a legal action: an automatic fold. This always succeeds,
// conserves score, and settles the hand, so play moves on to the next
// hand (opened again by the first seat) or the match ends.
func (h *HighCard) ForfeitTurn(seatID string) {
	h.applyFold(seatID)
}

func (h *HighCard) opponent(seatID string) string {
	if seatID == h.seats[0] {
		return h.seats[1]
	}
	return h.seats[0]
}

func (h *HighCard) settleFold(folder string) {
	winner := h.opponent(folder)
	h.scores[folder] -= h.stake
	h.scores[winner] += h.stake
	h.highlights = append(h.highlights, fmt.Sprintf("hand %d: %s folded, %s takes the pot", h.handNum, folder, winner))
	h.nextHandOrEnd()
}

func (h *HighCard) advanceIfHandComplete() {
	if len(h.drawn) != 2 {
		return
	}
	seatA, seatB := h.seats[0], h.seats[1]
	cardA, cardB := h.drawn[seatA], h.drawn[seatB]

	switch {
	case cardA > cardB:
		h.scores[seatA] += h.stake
		h.scores[seatB] -= h.stake
		h.highlights = append(h.highlights, fmt.Sprintf("hand %d: %s wins %d-%d", h.handNum, seatA, cardA, cardB))
	case cardB > cardA:
		h.scores[seatB] += h.stake
		h.scores[seatA] -= h.stake
		h.highlights = append(h.highlights, fmt.Sprintf("hand %d: %s wins %d-%d", h.handNum, seatB, cardB, cardA))
	default:
		h.highlights = append(h.highlights, fmt.Sprintf("hand %d: push at %d", h.handNum, cardA))
	}
	h.nextHandOrEnd()
}

// handLimit fixes the match at 5 hands, enough to exercise every code
// path (wins, folds, pushes) under a fixed seed without an unbounded
// match.
const handLimit = 5

func (h *HighCard) nextHandOrEnd() {
	if h.handNum >= handLimit {
		h.terminal = true
		return
	}
	h.handNum++
	h.newHand()
}

// IsTerminal reports whether the fixed hand count has been reached.
func (h *HighCard) IsTerminal() bool { return h.terminal }

// GetScores returns each seat's current score.
func (h *HighCard) GetScores() map[string]float64 {
	out := make(map[string]float64, len(h.scores))
	for seat, score := range h.scores {
		out[seat] = score
	}
	return out
}

// stateSnapshot is the JSON-serializable view GetStateSnapshot returns.
type stateSnapshot struct {
	HandNumber int                `json:"hand_number"`
	Scores     map[string]float64 `json:"scores"`
	Drawn      map[string]int     `json:"drawn"`
	Folded     map[string]bool    `json:"folded"`
}

// GetStateSnapshot returns a JSON-serializable view of the current state.
func (h *HighCard) GetStateSnapshot() interface{} {
	return stateSnapshot{
		HandNumber: h.handNum,
		Scores:     h.GetScores(),
		Drawn:      h.drawn,
		Folded:     h.folded,
	}
}

// GetHighlightHands returns a description of every settled hand so far.
func (h *HighCard) GetHighlightHands() []string {
	out := make([]string, len(h.highlights))
	copy(out, h.highlights)
	return out
}

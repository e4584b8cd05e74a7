// Package seedmgr derives deterministic, isolated random streams for matches.
//
// Every match's randomness (deck shuffles, dice rolls, tie-breaks) must be
// reproducible from the tournament seed plus the match's position in the
// schedule, and must never touch the process-global math/rand source.
package seedmgr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Manager derives per-match seeds from a single 64-bit tournament seed.
type Manager struct {
	tournamentSeed int64
	key            []byte
}

// New creates a Manager keyed on the tournament's 64-bit seed.
func New(tournamentSeed int64) *Manager {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(tournamentSeed))
	return &Manager{tournamentSeed: tournamentSeed, key: key}
}

// MatchSeed derives the 64-bit seed for the match at (event, round, matchIndex).
//
// The mapping is pure: the same triple always yields the same seed,
// regardless of what other matches exist in the schedule.
func (m *Manager) MatchSeed(event string, round, matchIndex int) int64 {
	mac := hmac.New(sha256.New, m.key)
	fmt.Fprintf(mac, "%s:%d:%d", event, round, matchIndex)
	digest := mac.Sum(nil)
	return int64(binary.BigEndian.Uint64(digest[:8]))
}

// GetRNG returns a fresh *rand.Rand seeded from matchSeed, isolated from
// every other generator in the process (including math/rand's default
// source).
func (m *Manager) GetRNG(matchSeed int64) *rand.Rand {
	return rand.New(rand.NewSource(matchSeed))
}

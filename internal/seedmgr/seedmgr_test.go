package seedmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSeedDeterministic(t *testing.T) {
	m := New(42)
	a := m.MatchSeed("holdem", 1, 0)
	b := m.MatchSeed("holdem", 1, 0)
	assert.Equal(t, a, b)
}

func TestMatchSeedIsolation(t *testing.T) {
	// Reordering or inserting matches must not change any other match's seed.
	m := New(42)
	before := m.MatchSeed("holdem", 2, 5)

	// Simulate inserting extra rounds/events ahead of it: the seed is a pure
	// function of (event, round, matchIndex), so nothing else can perturb it.
	_ = m.MatchSeed("holdem", 0, 0)
	_ = m.MatchSeed("dice", 1, 3)

	after := m.MatchSeed("holdem", 2, 5)
	assert.Equal(t, before, after)
}

func TestMatchSeedDiffersAcrossEvents(t *testing.T) {
	m := New(7)
	a := m.MatchSeed("holdem", 1, 0)
	b := m.MatchSeed("reversi", 1, 0)
	assert.NotEqual(t, a, b)
}

func TestMatchSeedDiffersAcrossTournaments(t *testing.T) {
	a := New(1).MatchSeed("holdem", 1, 0)
	b := New(2).MatchSeed("holdem", 1, 0)
	assert.NotEqual(t, a, b)
}

func TestGetRNGIsolatedAndReproducible(t *testing.T) {
	m := New(42)
	seed := m.MatchSeed("dice", 0, 0)

	rng1 := m.GetRNG(seed)
	rng2 := m.GetRNG(seed)

	for i := 0; i < 10; i++ {
		require.Equal(t, rng1.Int63(), rng2.Int63())
	}
}

package standings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithEmptyDSNReturnsNilStoreNoError(t *testing.T) {
	store, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNilStoreMethodsAreNoops(t *testing.T) {
	var store *Store

	assert.NoError(t, store.RegisterRun(context.Background(), "run-1", "champs", "highcard", time.Now()))
	assert.NoError(t, store.FinishRun(context.Background(), "run-1", time.Now(), "gpt-x"))
	assert.NoError(t, store.RecordMatch(context.Background(), []MatchResult{{ModelID: "gpt-x", Outcome: "win"}}))

	top, err := store.TopAgents(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, top)

	assert.NoError(t, store.Close())
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "champ", nullableString("champ"))
}

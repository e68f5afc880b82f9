package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSearchLimitValidation(t *testing.T) {
	_, err := NewSearchLimit(NodesPerMove, -1, 0)
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewSearchLimit(NodesPerMove, 100, 5)
	require.ErrorIs(t, err, ErrInvalidLimit)

	l, err := NewSearchLimit(NodesForAllMoves, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, l.Value)
	assert.Equal(t, 5.0, l.ValueIncrement)
}

func TestScaleAlgebraicLaw(t *testing.T) {
	l, err := NodesPerMoveLimit(1000)
	require.NoError(t, err)

	lhs := l.Scale(2).Scale(3)
	rhs := l.Scale(6)
	assert.InDelta(t, rhs.Value, lhs.Value, 1e-9)
}

func TestConvertedGameToMoveLimitIdempotent(t *testing.T) {
	l, err := NodesPerMoveLimit(500)
	require.NoError(t, err)

	once := l.ConvertedGameToMoveLimit()
	twice := once.ConvertedGameToMoveLimit()
	assert.Equal(t, once, twice)
	assert.Equal(t, l, once)
}

func TestConvertedGameToMoveLimitPerGame(t *testing.T) {
	l, err := NodesForAllMovesLimit(2000, 0)
	require.NoError(t, err)
	l = l.WithMaxMovesToGo(20)

	converted := l.ConvertedGameToMoveLimit()
	assert.Equal(t, NodesPerMove, converted.Type)
	assert.Equal(t, 100.0, converted.Value)

	// Idempotent: converting again is a no-op.
	assert.Equal(t, converted, converted.ConvertedGameToMoveLimit())
}

func TestWithIncrementApplied(t *testing.T) {
	l, err := SecondsForAllMovesLimit(60, 2)
	require.NoError(t, err)

	applied := l.WithIncrementApplied()
	assert.Equal(t, 62.0, applied.Value)

	// No-op on per-move types.
	pm, err := SecondsPerMoveLimit(10)
	require.NoError(t, err)
	assert.Equal(t, pm, pm.WithIncrementApplied())
}

func TestSearchLimitString(t *testing.T) {
	l, err := NodesForAllMovesLimit(1000, 50)
	require.NoError(t, err)
	l = l.WithMaxMovesToGo(30)
	assert.Contains(t, l.String(), "NG")
	assert.Contains(t, l.String(), "Moves 30")
}

func TestEstimateNodesTimeBased(t *testing.T) {
	l, err := SecondsPerMoveLimit(1)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, l.EstimateNodes(1000, true))
}

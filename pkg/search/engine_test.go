package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// nimBoard is a minimal deterministic game (single-pile Nim, take 1 or 2
// stones, last player to move wins) used only to exercise the search
// core end to end, the same role the teacher's DummyOps played for its
// own mcts_test.go harness.
type nimBoard struct {
	stones  int
	history []int
}

func newNimBoard(stones int) *nimBoard { return &nimBoard{stones: stones} }

func (b *nimBoard) LegalMoves() []int {
	switch {
	case b.stones <= 0:
		return nil
	case b.stones == 1:
		return []int{1}
	default:
		return []int{1, 2}
	}
}

func (b *nimBoard) Push(mv int) {
	b.history = append(b.history, b.stones)
	b.stones -= mv
}

func (b *nimBoard) Pop() {
	n := len(b.history)
	b.stones = b.history[n-1]
	b.history = b.history[:n-1]
}

func (b *nimBoard) Hash() uint64 { return uint64(b.stones) }

func (b *nimBoard) Terminal() TerminalKind {
	if b.stones <= 0 {
		return TerminalLoss
	}
	return NonTerminal
}

func (b *nimBoard) Clone() Position[int] {
	hist := make([]int, len(b.history))
	copy(hist, b.history)
	return &nimBoard{stones: b.stones, history: hist}
}

// uniformEvaluator mirrors evaluator.Uniform without importing the
// sibling package (avoiding an import cycle risk in this internal test).
type uniformEvaluator struct{}

func (uniformEvaluator) Evaluate(_ context.Context, batch []EvalRequest[int]) ([]EvalResult[int], error) {
	out := make([]EvalResult[int], len(batch))
	for i, req := range batch {
		n := len(req.Moves)
		priors := make([]float16.Float16, n)
		var p float32
		if n > 0 {
			p = 1 / float32(n)
		}
		for j := range priors {
			priors[j] = float16.Fromfloat32(p)
		}
		out[i] = EvalResult[int]{WinP: 0.5, DrawP: 0, LossP: 0.5, Priors: priors}
	}
	return out, nil
}

func TestEngineSearchCompletesAndPicksLegalMove(t *testing.T) {
	cfg := DefaultEngineConfig[int]()
	cfg.NodeCapacity = 1 << 12
	cfg.EdgeCapacity = 1 << 14
	cfg.MaxBatch = 8

	engine := NewEngine[int](uniformEvaluator{}, cfg)
	// Five-stone Nim has only five non-terminal positions; with
	// transposition linking the shared tree grows to about ten nodes, so
	// the node budget must stay below that for the search to finish.
	limit, err := NodesPerMoveLimit(8)
	require.NoError(t, err)

	best, handle, err := engine.Search(context.Background(), newNimBoard(5), limit)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.String())
	assert.Contains(t, []int{1, 2}, best.Move)
	assert.Greater(t, engine.Tree().Store().NodeCount(), uint32(1))
}

func TestEngineSearchTerminalRoot(t *testing.T) {
	cfg := DefaultEngineConfig[int]()
	cfg.NodeCapacity = 1 << 8
	cfg.EdgeCapacity = 1 << 8

	engine := NewEngine[int](uniformEvaluator{}, cfg)
	limit, err := NodesPerMoveLimit(100)
	require.NoError(t, err)

	// A terminal root never gets expanded, so no child exists to choose.
	_, _, err = engine.Search(context.Background(), newNimBoard(0), limit)
	assert.Error(t, err)
}

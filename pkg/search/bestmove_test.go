package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// buildTreeWithChildren constructs a TreeIndex whose root has one edge
// per move in moves, each backed by an expanded child node with the
// given visit count.
func buildTreeWithChildren(t *testing.T, moves []int, visits []int32) *TreeIndex[int] {
	t.Helper()
	tree := NewTreeIndex[int](16, 16, false)
	root := tree.Root()
	rootRec := tree.Store().NodeAt(root)

	off, err := tree.Store().AllocateChildren(len(moves))
	require.NoError(t, err)
	edges := tree.Store().Edges(off, int32(len(moves)))
	for i, mv := range moves {
		edges[i] = EdgeSlot[int]{Move: mv, P: float16.Fromfloat32(1.0 / float32(len(moves)))}
	}
	rootRec.ChildStartIndex = int32(off)
	rootRec.NumPolicyMoves = int32(len(moves))

	for i := range moves {
		idx, err := tree.Store().AllocateNode(root, moves[i], 1, NonTerminal)
		require.NoError(t, err)
		edges[i].tryExpand(idx)
		child := tree.Store().NodeAt(idx)
		child.backupOnce(0.5, 0, 0, 0, visits[i])
	}
	return tree
}

func TestChooseBestMovePicksMostVisited(t *testing.T) {
	tree := buildTreeWithChildren(t, []int{1, 2, 3}, []int32{5, 20, 1})
	best, ok := ChooseBestMove(tree, tree.Root(), DefaultBestMoveOptions())
	require.True(t, ok)
	assert.Equal(t, 2, best.Move)
	assert.Equal(t, int32(20), best.Visits)
}

func TestChooseBestMoveNoChildren(t *testing.T) {
	tree := NewTreeIndex[int](4, 4, false)
	_, ok := ChooseBestMove(tree, tree.Root(), DefaultBestMoveOptions())
	assert.False(t, ok)
}

func TestRankedMovesSortedDescending(t *testing.T) {
	tree := buildTreeWithChildren(t, []int{1, 2, 3}, []int32{5, 20, 1})
	ranked := RankedMoves(tree, tree.Root(), DefaultBestMoveOptions())
	require.Len(t, ranked, 3)
	assert.Equal(t, int32(20), ranked[0].Visits)
	assert.Equal(t, int32(5), ranked[1].Visits)
	assert.Equal(t, int32(1), ranked[2].Visits)
}

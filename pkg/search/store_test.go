package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStoreAllocateNode(t *testing.T) {
	store := NewNodeStore[int](8, 8, false)
	assert.Equal(t, uint32(1), store.NodeCount())

	idx, err := store.AllocateNode(NullNode, 1, 0, NonTerminal)
	require.NoError(t, err)
	assert.Equal(t, NodeIndex(1), idx)
	assert.Equal(t, uint32(2), store.NodeCount())
}

func TestNodeStoreExhaustion(t *testing.T) {
	store := NewNodeStore[int](2, 2, false)
	// Index 0 is reserved, so capacity 2 allows exactly one more allocation.
	_, err := store.AllocateNode(NullNode, 1, 0, NonTerminal)
	require.NoError(t, err)

	_, err = store.AllocateNode(NullNode, 2, 0, NonTerminal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreExhausted)
}

func TestNodeStoreGrow(t *testing.T) {
	store := NewNodeStore[int](2, 2, true)
	_, err := store.AllocateNode(NullNode, 1, 0, NonTerminal)
	require.NoError(t, err)

	require.NoError(t, store.Grow(8, 8))
	assert.Equal(t, uint32(10), store.NodeCapacity())

	idx, err := store.AllocateNode(NullNode, 2, 0, NonTerminal)
	require.NoError(t, err)
	assert.Equal(t, NodeIndex(2), idx)
}

func TestAllocateChildrenContiguous(t *testing.T) {
	store := NewNodeStore[int](4, 16, false)
	off, err := store.AllocateChildren(3)
	require.NoError(t, err)
	assert.Equal(t, EdgeOffset(1), off)

	off2, err := store.AllocateChildren(2)
	require.NoError(t, err)
	assert.Equal(t, EdgeOffset(4), off2)
}

func TestVirtualLossInvariant(t *testing.T) {
	store := NewNodeStore[int](4, 4, false)
	idx, err := store.AllocateNode(NullNode, 1, 0, NonTerminal)
	require.NoError(t, err)
	node := store.NodeAt(idx)

	node.AddVirtualLoss(0, 3)
	assert.Equal(t, int32(3), node.NInFlight(0))
	node.ReleaseVirtualLoss(0, 3)
	assert.Equal(t, int32(0), node.NInFlight(0))
	node.CheckVirtualLossInvariant()
}

func TestBackupOnceUpdatesAggregates(t *testing.T) {
	store := NewNodeStore[int](4, 4, false)
	idx, err := store.AllocateNode(NullNode, 1, 0, NonTerminal)
	require.NoError(t, err)
	node := store.NodeAt(idx)

	node.backupOnce(1, 0, 0, 0, 1)
	node.backupOnce(0, 0, 1, 0, 1)

	assert.Equal(t, int32(2), node.N())
	assert.InDelta(t, 0.5, float64(node.Q()), 1e-9)
}

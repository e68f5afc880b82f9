package search

import (
	"fmt"
	"sync"
)

// TreeIndex owns the node/edge arena plus the transposition table and
// root bookkeeping for one search tree (§4.1, §4.2). It is the
// generalization of the teacher's MCTS struct to an arena-indexed,
// transposition-linked tree: where the teacher held a *NodeBase pointer
// tree, TreeIndex holds a NodeStore and addresses everything by
// NodeIndex so re-rooting (MakeMove) never has to walk and relink
// pointers.
type TreeIndex[T Move] struct {
	store *NodeStore[T]
	stats treeStats

	rootMu sync.RWMutex
	root   NodeIndex

	transMu   sync.Mutex
	transpose map[uint64]NodeIndex
}

// NewTreeIndex allocates a fresh store of the given capacity and an
// empty root, ready for its first expansion.
func NewTreeIndex[T Move](nodeCapacity, edgeCapacity uint32, growable bool) *TreeIndex[T] {
	store := NewNodeStore[T](nodeCapacity, edgeCapacity, growable)
	idx := &TreeIndex[T]{
		store:     store,
		transpose: make(map[uint64]NodeIndex),
	}
	root, err := store.AllocateNode(NullNode, *new(T), 0, NonTerminal)
	if err != nil {
		// Capacity of at least 2 (1 reserved + 1 root) is a precondition
		// the driver is responsible for; a failure here means it passed
		// a capacity of 1 or less.
		panic(fmt.Sprintf("search: could not allocate root node: %v", err))
	}
	idx.root = root
	return idx
}

// Store returns the backing node/edge arena.
func (t *TreeIndex[T]) Store() *NodeStore[T] { return t.store }

// Stats returns the tree-wide running counters.
func (t *TreeIndex[T]) Stats() *treeStats { return &t.stats }

// Root returns the current root's index.
func (t *TreeIndex[T]) Root() NodeIndex {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.root
}

// RootNode returns the current root's node record.
func (t *TreeIndex[T]) RootNode() *NodeRecord[T] {
	return t.store.NodeAt(t.Root())
}

// LookupTranspositionRoot returns the canonical node index previously
// linked to hash, or NullNode if none has been recorded yet.
func (t *TreeIndex[T]) LookupTranspositionRoot(hash uint64) NodeIndex {
	t.transMu.Lock()
	defer t.transMu.Unlock()
	return t.transpose[hash]
}

// RecordTranspositionRoot records idx as the canonical subtree for hash,
// the first time this hash is seen (subsequent expansions of the same
// position link to this one instead of allocating a new subtree).
func (t *TreeIndex[T]) RecordTranspositionRoot(hash uint64, idx NodeIndex) {
	t.transMu.Lock()
	defer t.transMu.Unlock()
	if _, exists := t.transpose[hash]; !exists {
		t.transpose[hash] = idx
	}
}

// MakeMove re-roots the tree at the child reached by mv, discarding
// every sibling subtree. It returns false (doing nothing) if the
// current root has not been expanded or has no edge for mv — mirroring
// the teacher's MakeMove contract of "try, and no-op on failure".
//
// Unlike the teacher's pointer tree, nothing needs to be walked or
// copied here: every node below the new root is already addressed by
// NodeIndex, so re-rooting is just swapping which index `root` names.
// Old siblings' slots remain allocated in the arena (the store is
// append-only, §4.1) until the whole tree is discarded; this is the
// same tradeoff the protoarray forkchoice store makes, pruning indices
// logically rather than physically compacting the backing array.
func (t *TreeIndex[T]) MakeMove(mv T) bool {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	root := t.store.NodeAt(t.root)
	childStart := root.ChildStartIndex
	if childStart <= 0 {
		return false
	}

	edges := t.store.Edges(EdgeOffset(childStart), root.NumPolicyMoves)
	for i := range edges {
		if edges[i].Move == mv {
			child := edges[i].ExpandedChildIndex()
			if child == NullNode {
				return false
			}
			t.root = child
			return true
		}
	}
	return false
}

// Reset discards the current tree and starts a fresh one at a new root,
// clearing the transposition table (old hashes no longer refer to live
// subtrees once the arena itself is replaced).
func (t *TreeIndex[T]) Reset(nodeCapacity, edgeCapacity uint32, growable bool) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	t.transMu.Lock()
	defer t.transMu.Unlock()

	t.store = NewNodeStore[T](nodeCapacity, edgeCapacity, growable)
	t.transpose = make(map[uint64]NodeIndex)
	t.stats.reset()
	root, err := t.store.AllocateNode(NullNode, *new(T), 0, NonTerminal)
	if err != nil {
		panic(fmt.Sprintf("search: could not allocate root node: %v", err))
	}
	t.root = root
}

// childEdges returns the edge slots belonging to node, or nil if it has
// not been expanded (or is a proven-no-children leaf).
func (t *TreeIndex[T]) childEdges(node NodeIndex) []EdgeSlot[T] {
	rec := t.store.NodeAt(node)
	if rec.ChildStartIndex <= 0 {
		return nil
	}
	return t.store.Edges(EdgeOffset(rec.ChildStartIndex), rec.NumPolicyMoves)
}

// resolveValueSource follows a node's transposition link (if any) to the
// record that actually holds its evaluator outputs (§4.2's lazy
// value-borrowing), returning the node itself when unlinked.
func (t *TreeIndex[T]) resolveValueSource(node NodeIndex) NodeIndex {
	rec := t.store.NodeAt(node)
	if root := rec.TranspositionRootIndex(); root != NullNode {
		return root
	}
	return node
}

// MaterializeAllTranspositionLinks walks every allocated node and, for
// each still-linked one (§4.2, I5), copies its canonical root's evaluator
// outputs and unexpanded children into its own slot and clears the link
// (P5/P6), so the whole tree becomes independently expandable afterward.
//
// The caller must guarantee no selector is mid-descent and no backup is
// in flight, the same exclusive-access precondition NodeStore.Grow
// already carries. Engine.Search calls this once selection has stopped,
// before choosing a best move, so a re-rooted tree never carries stale
// links into the next search.
func (t *TreeIndex[T]) MaterializeAllTranspositionLinks() {
	total := t.store.NodeCount()
	for i := NodeIndex(1); i < NodeIndex(total); i++ {
		t.materializeNode(i)
	}
}

// materializeNode is a no-op for a node that is not (or no longer)
// transposition-linked, which makes repeated materialization passes
// idempotent (P6).
func (t *TreeIndex[T]) materializeNode(idx NodeIndex) {
	rec := t.store.NodeAt(idx)
	root := rec.TranspositionRootIndex()
	if root == NullNode {
		return
	}

	src := t.store.NodeAt(root)
	rec.V, rec.WinP, rec.DrawP, rec.LossP, rec.MPosition = src.V, src.WinP, src.DrawP, src.LossP, src.MPosition

	rec.ChildStartIndex = -1
	if srcEdges := t.childEdges(root); len(srcEdges) > 0 {
		off, err := t.store.AllocateChildren(len(srcEdges))
		if err == nil {
			dst := t.store.Edges(off, int32(len(srcEdges)))
			copy(dst, srcEdges)
			// dst's edges must start unexpanded: they are L's own
			// children now, not R's already-published ones.
			for i := range dst {
				dst[i].expandedChildIndex.Store(0)
			}
			rec.ChildStartIndex = int32(off)
			rec.NumPolicyMoves = int32(len(srcEdges))
		}
	}

	rec.clearTransposition()
}

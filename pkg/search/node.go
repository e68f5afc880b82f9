package search

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/x448/float16"
)

// Expansion-state flags for NodeRecord.expansionState, mirroring the
// teacher's CanExpand/Expanding/Expanded/Terminal bitmask idiom
// (pkg/mcts originally used this to gate concurrent tree growth).
const (
	stateCanExpand uint32 = 0
	stateExpanding uint32 = 1
	stateExpanded  uint32 = 2
)

// NodeRecord is one fixed-size slot of the node arena (§3). Fields are
// split into three regimes:
//
//   - written once when the selector that wins the edge allocates the
//     node, read-only after (ParentIndex, PriorMove, Terminal,
//     DepthInTree);
//   - written once by evaluator dispatch when it wins the expansion gate
//     (V, WinP, DrawP, LossP, MPosition, ChildStartIndex, NumPolicyMoves),
//     or by materialization for a transposition-linked node;
//   - mutated on every backup, guarded as described on each field.
//
// P is not written by the store or the dispatcher; the prior used for
// selection is the parent edge's EdgeSlot.P.
type NodeRecord[T Move] struct {
	ParentIndex NodeIndex
	PriorMove   T
	DepthInTree uint16
	Terminal    TerminalKind

	// P is the policy prior that led to this node, stored at half
	// precision to match the data model's "16-bit float" requirement.
	P float16.Float16

	// Evaluator outputs, valid once expansionState reaches stateExpanded
	// (or, for a transposition-linked node, once a virtual value has been
	// drawn at least once).
	V, WinP, DrawP, LossP float32
	MPosition             float32

	expansionState atomic.Uint32

	// ChildStartIndex: 0 uninitialized, -1 proven no children, >0 start
	// offset into the edge arena (I6).
	ChildStartIndex int32
	NumPolicyMoves  int32

	// nInFlight[0], nInFlight[1] are per-selector reserved-visit counters
	// (virtual loss), always >= 0 (I4). Incremented before a leaf carrying
	// this node is emitted, decremented during its backup.
	nInFlight [2]atomic.Int32

	// n is completed visits (N in the spec); w is the raw sum of backed-up
	// values. Both participate in invariant I1. n is also read lock-free
	// by the selector's PUCT score, so it stays a plain atomic counter;
	// w and the running aggregates below share mu because updating them
	// is a read-modify-write over several floats at once (Welford-style
	// running mean/variance), which a single atomic can't express.
	n atomic.Int32

	mu                             sync.Mutex
	w                              float64
	wAvg, dAvg, lAvg, mAvg         float64
	vVariance                      float64
	numChildrenVisited             int32
	numChildrenExpanded            int32
	sumPVisited                    float32
	numNodesTranspositionExtracted uint32

	// TranspositionRootIndex, once set, means this node borrows its value
	// source from that subtree (I5): it has no expanded children of its
	// own. Set once by linkTransposition (a CAS from the selector's
	// finishLeaf) and cleared by materialization; read without mu (a torn
	// read only risks one extra/missing virtual-value draw, never a data
	// race on the uint32-sized value on supported platforms — but we
	// still go through atomic to keep `go vet -race` silent).
	transpositionRoot atomic.Uint32
}

// newNodeRecord initializes the one-time fields of a freshly allocated
// node record. Called by NodeStore.AllocateNode before the index is
// published to any other goroutine.
func newNodeRecord[T Move](parent NodeIndex, move T, depth uint16, terminal TerminalKind) NodeRecord[T] {
	return NodeRecord[T]{
		ParentIndex: parent,
		PriorMove:   move,
		DepthInTree: depth,
		Terminal:    terminal,
	}
}

// N returns completed visits.
func (n *NodeRecord[T]) N() int32 { return n.n.Load() }

// NInFlight returns the reserved-visit counter for the given selector id
// (0 or 1).
func (n *NodeRecord[T]) NInFlight(selectorID int) int32 { return n.nInFlight[selectorID].Load() }

// VisitsSeenBySelector is the denominator PUCT uses for child i: completed
// visits plus whatever either selector currently has reserved there.
func (n *NodeRecord[T]) VisitsSeenBySelector() int32 {
	return n.N() + n.nInFlight[0].Load() + n.nInFlight[1].Load()
}

// AddVirtualLoss reserves `count` visits on behalf of selectorID. Must be
// called before the leaf below this edge is emitted to a batch (O3).
func (n *NodeRecord[T]) AddVirtualLoss(selectorID int, count int32) {
	n.nInFlight[selectorID].Add(count)
}

// ReleaseVirtualLoss undoes a prior AddVirtualLoss of the same count,
// called at the start of this node's backup.
func (n *NodeRecord[T]) ReleaseVirtualLoss(selectorID int, count int32) {
	n.nInFlight[selectorID].Add(-count)
}

// CheckVirtualLossInvariant panics if I4 is violated; used by debug
// builds (Inconsistent, §7) and by tests.
func (n *NodeRecord[T]) CheckVirtualLossInvariant() {
	if v := n.nInFlight[0].Load(); v < 0 {
		panic(fmt.Sprintf("search: nInFlight0 went negative: %d", v))
	}
	if v := n.nInFlight[1].Load(); v < 0 {
		panic(fmt.Sprintf("search: nInFlight1 went negative: %d", v))
	}
}

// W returns the raw sum of backed-up values.
func (n *NodeRecord[T]) W() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.w
}

// Q is the node's average value, side-to-move-oriented, as seen from its
// own perspective (this is what the selector negates for the parent's
// PUCT score).
func (n *NodeRecord[T]) Q() Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	visits := n.n.Load()
	if visits == 0 {
		return 0
	}
	return Result(n.w / float64(visits))
}

// Aggregates returns the running subtree aggregates (WAvg, DAvg, LAvg,
// MAvg, VVariance) under a single lock so callers see a consistent
// snapshot.
func (n *NodeRecord[T]) Aggregates() (wAvg, dAvg, lAvg, mAvg, vVariance float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wAvg, n.dAvg, n.lAvg, n.mAvg, n.vVariance
}

// backupOnce applies one visit's worth of value to this node: adds v to
// W, increments N by numVisits, and updates the running aggregates with a
// Welford-style incremental mean/variance update (grounded on the same
// "single atomic isn't enough, take the lock" tradeoff the teacher
// documents for NodeStats, generalized to more than one float).
func (n *NodeRecord[T]) backupOnce(v Result, drawP, lossP, mPos float32, numVisits int32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.w += float64(v) * float64(numVisits)
	prevN := float64(n.n.Load())
	newN := prevN + float64(numVisits)

	// Incremental mean update: mean' = mean + (x - mean) * weight/newTotal
	weight := float64(numVisits)
	n.wAvg += (float64(v) - n.wAvg) * weight / newN
	n.dAvg += (float64(drawP) - n.dAvg) * weight / newN
	n.lAvg += (float64(lossP) - n.lAvg) * weight / newN
	delta := float64(mPos) - n.mAvg
	n.mAvg += delta * weight / newN

	// Running variance of the value estimate (population form), updated
	// with the same incremental scheme.
	deltaV := float64(v) - n.wAvg
	n.vVariance += (deltaV*deltaV - n.vVariance) * weight / newN

	n.n.Add(numVisits)
}

// TranspositionRootIndex returns the canonical subtree this node borrows
// from, or NullNode if it is not linked (I5).
func (n *NodeRecord[T]) TranspositionRootIndex() NodeIndex {
	return NodeIndex(n.transpositionRoot.Load())
}

// linkTransposition sets the transposition root exactly once; returns
// false if the node was already linked or already had children.
func (n *NodeRecord[T]) linkTransposition(root NodeIndex) bool {
	if n.ChildStartIndex > 0 {
		return false
	}
	return n.transpositionRoot.CompareAndSwap(0, uint32(root))
}

// clearTransposition is called by materialization once this node has its
// own evaluator result and edge block.
func (n *NodeRecord[T]) clearTransposition() {
	n.transpositionRoot.Store(0)
}

// NumNodesTranspositionExtracted counts the values this linked node has
// drawn from its canonical root (P5). Each draw uses the root's current
// Q and aggregates; the root's subtree is not traversed node by node.
func (n *NodeRecord[T]) NumNodesTranspositionExtracted() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.numNodesTranspositionExtracted
}

func (n *NodeRecord[T]) advanceTranspositionCursor() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.numNodesTranspositionExtracted++
	return n.numNodesTranspositionExtracted
}

// NumChildrenVisited / NumChildrenExpanded / SumPVisited back I2/I3.
func (n *NodeRecord[T]) NumChildrenVisited() int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.numChildrenVisited
}

func (n *NodeRecord[T]) NumChildrenExpanded() int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.numChildrenExpanded
}

func (n *NodeRecord[T]) SumPVisited() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sumPVisited
}

// recordChildVisited bumps numChildrenVisited/sumPVisited the first time a
// given child slot is visited; the selector calls it once per slot, when
// it wins the creation of that slot's child node. The open question in §9
// about NumChildrenVisited == childIndex is resolved here by *not*
// asserting it — tree purification (root re-rooting) is expected to
// legitimately break the "contiguous prefix" assumption for the new root's
// own bookkeeping, so this method only ever increments and takes no slot
// index to validate.
func (n *NodeRecord[T]) recordChildVisited(childP float16.Float16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.numChildrenVisited++
	n.sumPVisited += childP.Float32()
}

// compactExpandedEdge moves the freshly expanded edge at childI down into
// the lowest still-unexpanded slot, shifting the unexpanded edges between
// them up by one, and bumps numChildrenExpanded,
// preserving I2 ("expanded children occupy the lowest slots
// contiguously; unexpanded slots follow in descending P order"). Must be
// called exactly once per edge, by the selector that actually won that
// edge's tryExpand race — a loser must not call this, or the counter
// double-counts a single expansion.
//
// The move runs under mu rather than lock-free, same tradeoff already
// accepted for transpositionRoot: a concurrent PUCT read during the
// move can see a torn edges slice (a move paired with the wrong P for
// one score calculation), never corrupted memory, and the next pickChild
// call sees a fully consistent view.
func (n *NodeRecord[T]) compactExpandedEdge(edges []EdgeSlot[T], childI int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	target := int(n.numChildrenExpanded)
	if childI > target {
		mv, p := edges[childI].Move, edges[childI].P
		idx := edges[childI].expandedChildIndex.Load()
		for j := childI; j > target; j-- {
			edges[j].Move, edges[j].P = edges[j-1].Move, edges[j-1].P
			edges[j].expandedChildIndex.Store(edges[j-1].expandedChildIndex.Load())
		}
		edges[target].Move, edges[target].P = mv, p
		edges[target].expandedChildIndex.Store(idx)
	}
	n.numChildrenExpanded++
}

// tryBeginExpansion is the CAS gate a selector must win before it is
// allowed to write ChildStartIndex/NumPolicyMoves/evaluator outputs.
func (n *NodeRecord[T]) tryBeginExpansion() bool {
	return n.expansionState.CompareAndSwap(stateCanExpand, stateExpanding)
}

func (n *NodeRecord[T]) finishExpansion() {
	n.expansionState.Store(stateExpanded)
}

func (n *NodeRecord[T]) isExpanded() bool {
	return n.expansionState.Load() == stateExpanded
}

func (n *NodeRecord[T]) isExpanding() bool {
	return n.expansionState.Load() == stateExpanding
}

// EdgeSlot is one entry of the parallel child-edge arena (§3).
type EdgeSlot[T Move] struct {
	Move T
	P    float16.Float16

	// expandedChildIndex is 0 until a selector allocates the child node,
	// then the winning NodeIndex. CAS-guarded so exactly one selector
	// performs the allocation (CreateChild in §4.3).
	expandedChildIndex atomic.Uint32
}

// ExpandedChildIndex returns the child node index for this edge, or
// NullNode if the edge has not been expanded yet.
func (e *EdgeSlot[T]) ExpandedChildIndex() NodeIndex {
	return NodeIndex(e.expandedChildIndex.Load())
}

// tryExpand races to be the selector that allocates idx as this edge's
// child; returns false if another selector already won.
func (e *EdgeSlot[T]) tryExpand(idx NodeIndex) bool {
	return e.expandedChildIndex.CompareAndSwap(0, uint32(idx))
}

package search

import (
	"math"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
)

// SelectorConfig bundles the PUCT tuning knobs one selector descends
// with (§4.3), seeded from the package-level Default* vars but settable
// per search so two concurrent selectors can share a tree with
// identical, reproducible scoring.
type SelectorConfig struct {
	Cpuct            cpuctSchedule
	ParentTermExp    float64
	RootDenominatorD float64
	FpuValue         float64
	VirtualLoss      int32
}

// DefaultSelectorConfig builds a SelectorConfig from the package-level
// Default* tuning vars.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Cpuct: cpuctSchedule{
			base: DefaultCpuctBase, factor: DefaultCpuctFactor, init: DefaultCpuctInit,
			baseRoot: DefaultCpuctBaseRoot, factorRoot: DefaultCpuctFactorRoot, initRoot: DefaultCpuctInitRoot,
		},
		ParentTermExp:    DefaultParentTermExp,
		RootDenominatorD: DefaultRootDenominatorD,
		FpuValue:         DefaultFpuValue,
		VirtualLoss:      DefaultVirtualLoss,
	}
}

// Selector descends a TreeIndex from the root to a leaf by PUCT score,
// reserving virtual loss along the path, and either creates a fresh
// child (submitting it for evaluation) or discovers the position is
// already in flight elsewhere (deferred-link pairing, §4.4). It plays
// the same role the teacher's Selection method did for UCB1, generalized
// to PUCT scoring and an arena-indexed tree.
type Selector[T Move] struct {
	id      int
	tree    *TreeIndex[T]
	cfg     SelectorConfig
	rng     *rand.Rand
	inFlight map[uint64]NodeIndex // hash -> leaf awaiting evaluation, this selector only
}

// NewSelector constructs a Selector with id 0 or 1 (§4.3's two-selector
// model), seeded from SeedGeneratorFn for reproducible tie-breaks.
func NewSelector[T Move](id int, tree *TreeIndex[T], cfg SelectorConfig) *Selector[T] {
	return &Selector[T]{
		id:       id,
		tree:     tree,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(SeedGeneratorFn())),
		inFlight: make(map[uint64]NodeIndex),
	}
}

// Descend walks from the root to a leaf on board (which must already
// represent the root position; Descend mutates it via Push as it goes,
// leaving it representing the leaf position on return). It returns the
// batch item ready for evaluator dispatch, ok=false if the root itself is
// terminal (nothing to search), or a non-nil err if the arena is
// exhausted and no other selector ever published the edge this one was
// racing to expand (§7: caller must abort with the tree preserved).
//
// Every already-linked node (I5: transpositionRoot set, no children of
// its own) is caught at the top of the loop on every visit, not only the
// one that created the link — revisiting it draws another virtual value
// from the canonical subtree instead of falling through to childEdges
// (which is always nil for a linked node) and submitting it to the
// evaluator a second time.
func (s *Selector[T]) Descend(board Position[T]) (item leafBatchItem[T], ok bool, err error) {
	store := s.tree.Store()
	node := s.tree.Root()
	rootIdx := node
	path := make([]NodeIndex, 0, 64)
	depth := 0

	for {
		path = append(path, node)
		rec := store.NodeAt(node)

		if rec.Terminal.IsTerminal() {
			if len(path) == 1 {
				return leafBatchItem[T]{}, false, nil
			}
			return leafBatchItem[T]{selectorID: s.id, path: path, leaf: node, depth: depth, terminal: rec.Terminal, board: board, virtualLoss: s.cfg.VirtualLoss}, true, nil
		}

		if linkedRoot := rec.TranspositionRootIndex(); linkedRoot != NullNode {
			return leafBatchItem[T]{
				selectorID: s.id, path: path, leaf: node, depth: depth,
				transpositionLinked: true, valueSource: linkedRoot, board: board,
				virtualLoss: s.cfg.VirtualLoss,
			}, true, nil
		}

		edges := s.tree.childEdges(node)
		if edges == nil {
			// Not expanded yet: this selector wins (or loses) the race to
			// expand it via tryBeginExpansion in the dispatch worker. Stop
			// descending here and hand the leaf off for evaluation.
			break
		}

		childI := s.pickChild(rec, edges, node == rootIdx)
		move := edges[childI].Move
		childP := edges[childI].P
		childIdx := edges[childI].ExpandedChildIndex()

		board.Push(move)
		depth++

		if childIdx == NullNode {
			// Race to create the child node; the loser falls through to
			// whatever the winner produced.
			var won bool
			childIdx, won, err = s.createChild(store, node, &edges[childI], board, depth, board.Terminal())
			if err != nil {
				return leafBatchItem[T]{}, false, err
			}
			if won {
				// Only the winner of the expansion race compacts and
				// records the slot's first visit: the loser did not expand
				// anything and must not double-count numChildrenExpanded
				// (I2) or numChildrenVisited.
				rec.compactExpandedEdge(edges, childI)
				rec.recordChildVisited(childP)
			}
		}

		s.applyVirtualLoss(store.NodeAt(childIdx), s.cfg.VirtualLoss)

		node = childIdx
	}

	// Unexpanded leaf reached without a child edge existing yet (root
	// itself never expanded, e.g. first call of the whole search).
	return s.finishLeaf(board, path, node, depth), true, nil
}

// finishLeaf resolves transposition linking for a freshly reached node
// before handing it to the caller as a batch item.
func (s *Selector[T]) finishLeaf(board Position[T], path []NodeIndex, node NodeIndex, depth int) leafBatchItem[T] {
	hash := board.Hash()
	rec := s.tree.Store().NodeAt(node)

	if existing := s.tree.LookupTranspositionRoot(hash); existing != NullNode && existing != node {
		if rec.linkTransposition(existing) {
			return leafBatchItem[T]{
				selectorID: s.id, path: path, leaf: node, depth: depth, hash: hash,
				transpositionLinked: true, valueSource: existing, board: board,
				virtualLoss: s.cfg.VirtualLoss,
			}
		}
	}
	s.tree.RecordTranspositionRoot(hash, node)

	if existing, inFlight := s.inFlight[hash]; inFlight && existing != node {
		return leafBatchItem[T]{
			selectorID: s.id, path: path, leaf: node, depth: depth, hash: hash,
			deferredLink: existing, board: board, virtualLoss: s.cfg.VirtualLoss,
		}
	}
	s.inFlight[hash] = node

	return leafBatchItem[T]{selectorID: s.id, path: path, leaf: node, depth: depth, hash: hash, board: board, virtualLoss: s.cfg.VirtualLoss}
}

// forgetInFlight drops a hash from this selector's in-flight set once
// its backup has completed, so a later visit to the same position is
// free to submit its own evaluator request again.
func (s *Selector[T]) forgetInFlight(hash uint64) {
	delete(s.inFlight, hash)
}

// pickChild returns the index (within edges) of the child with the
// highest PUCT score. On an exact tie the later edge replaces the current
// best on a coin flip from the seeded rng, so ties break reproducibly
// (though not uniformly when more than two edges tie).
func (s *Selector[T]) pickChild(parent *NodeRecord[T], edges []EdgeSlot[T], isRoot bool) int {
	store := s.tree.Store()
	parentN := parent.N()
	parentVisitsSeen := parent.VisitsSeenBySelector()
	sumP := parent.SumPVisited()

	denomExp := 0.5
	if isRoot {
		denomExp = s.cfg.RootDenominatorD
	}

	best := -1
	bestScore := math.Inf(-1)
	for i := range edges {
		var childQ Result
		var childVisits int32

		if childIdx := edges[i].ExpandedChildIndex(); childIdx != NullNode {
			childRec := store.NodeAt(childIdx)
			valSrc := s.tree.resolveValueSource(childIdx)
			valRec := childRec
			if valSrc != childIdx {
				valRec = store.NodeAt(valSrc)
			}
			childQ = -valRec.Q()
			childVisits = childRec.VisitsSeenBySelector()
		}

		score := puctScore(childQ, edges[i].P.Float32(), parentN, parentVisitsSeen, childVisits, isRoot, s.cfg.Cpuct, s.cfg.ParentTermExp, denomExp, s.cfg.FpuValue, sumP)
		if score > bestScore || (score == bestScore && s.rng.Intn(2) == 0) {
			bestScore = score
			best = i
		}
	}
	return best
}

// createChild races to allocate the node behind edge, returning whichever
// index wins (this selector's new allocation, or another selector's) and
// whether this call itself was the winner. Collisions are counted exactly
// like the teacher's "node already expanding" wait loop.
//
// When AllocateNode itself fails (store exhausted), it spins for at most
// maxExpansionSpinAttempts waiting for another selector to publish the
// edge; if nobody ever does (this selector was the only one racing it),
// it gives up and returns ErrStoreExhausted rather than spinning forever
// (§7: the caller must abort the search, not livelock).
func (s *Selector[T]) createChild(store *NodeStore[T], parent NodeIndex, edge *EdgeSlot[T], board Position[T], depth int, terminal TerminalKind) (NodeIndex, bool, error) {
	idx, err := store.AllocateNode(parent, edge.Move, uint16(depth), terminal)
	if err != nil {
		s.tree.Stats().collisionCount.Add(1)
		for attempt := 0; attempt < maxExpansionSpinAttempts; attempt++ {
			runtime.Gosched()
			if got := edge.ExpandedChildIndex(); got != NullNode {
				return got, false, nil
			}
		}
		return NullNode, false, errors.Wrap(ErrStoreExhausted, "selector: no child published while store exhausted")
	}

	if edge.tryExpand(idx) {
		return idx, true, nil
	}
	// Lost the race: another selector already published a child here.
	s.tree.Stats().collisionCount.Add(1)
	return edge.ExpandedChildIndex(), false, nil
}

// applyVirtualLoss reserves amount visits on behalf of this selector (O3):
// must happen before the leaf below is ever emitted to a batch.
func (s *Selector[T]) applyVirtualLoss(node *NodeRecord[T], amount int32) {
	node.AddVirtualLoss(s.id, amount)
}

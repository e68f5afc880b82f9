package search

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Dispatcher owns the evaluator and turns a batch of leafBatchItems into
// NodeRecord expansions plus a value-backup walk to the root (§4.4). It
// is the generalization of the teacher's DefaultBackprop to batched,
// NN-driven evaluation: where the teacher called ops.Rollout() once per
// leaf inline, PUCT search defers to an external Evaluator and processes
// many leaves per call.
type Dispatcher[T Move] struct {
	tree      *TreeIndex[T]
	evaluator Evaluator[T]
	maxBatch  int

	mu          sync.Mutex
	linkWaiters map[NodeIndex][]leafBatchItem[T] // leaf -> items deferred onto it

	// rootSearchMoves, when non-empty, restricts the root's own expansion
	// to this subset of moves (SearchLimit.SearchMoves, §6): every other
	// child edge is dropped before the policy-sort cap is applied, so the
	// search space never grows them at all.
	rootSearchMoves []Move
}

// NewDispatcher constructs a Dispatcher for tree, calling evaluator in
// batches of at most maxBatch leaves.
func NewDispatcher[T Move](tree *TreeIndex[T], evaluator Evaluator[T], maxBatch int) *Dispatcher[T] {
	return &Dispatcher[T]{
		tree:        tree,
		evaluator:   evaluator,
		maxBatch:    maxBatch,
		linkWaiters: make(map[NodeIndex][]leafBatchItem[T]),
	}
}

// SetRootSearchMoves restricts the root's next expansion to moves; an
// empty or nil slice clears the restriction back to "all legal moves".
func (d *Dispatcher[T]) SetRootSearchMoves(moves []Move) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rootSearchMoves = moves
}

// ProcessBatch resolves every item in items: terminal and
// transposition-linked leaves are backed up immediately from already-
// known values, deferred-link items wait for their target leaf's result,
// and everything else is grouped into evaluator calls of at most
// maxBatch requests. It returns once every item (including anything
// unblocked by this batch's own evaluator results) has been backed up.
func (d *Dispatcher[T]) ProcessBatch(ctx context.Context, items []leafBatchItem[T]) error {
	var pending []leafBatchItem[T]
	var errs error

	for _, item := range items {
		switch {
		case item.terminal.IsTerminal():
			d.backupTerminal(item)
		case item.transpositionLinked:
			d.backupFromTransposition(item)
		case item.deferredLink != NullNode:
			d.deferOnto(item)
		default:
			pending = append(pending, item)
		}
	}

	for start := 0; start < len(pending); start += d.maxBatch {
		end := min(start+d.maxBatch, len(pending))
		chunk := pending[start:end]
		if err := d.evaluateAndBackup(ctx, chunk); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs
}

// evaluateAndBackup calls the evaluator once for the whole chunk, then
// for each leaf expands its node (the selector only reserved it), backs
// it up and releases anything deferred onto it.
func (d *Dispatcher[T]) evaluateAndBackup(ctx context.Context, chunk []leafBatchItem[T]) error {
	requests := make([]EvalRequest[T], len(chunk))
	for i, item := range chunk {
		requests[i] = EvalRequest[T]{Node: item.leaf, Board: item.board, Moves: item.board.LegalMoves()}
	}

	results, err := d.evaluator.Evaluate(ctx, requests)
	if err != nil {
		return errors.Wrap(err, "evaluator batch failed")
	}
	if len(results) != len(chunk) {
		return ErrEvaluatorFailure
	}

	var errs error
	for i, item := range chunk {
		res := results[i]
		if err := d.expandLeaf(item, requests[i].Moves, res); err != nil {
			errs = multierror.Append(errs, err)
		}
		d.backupLeaf(item, Result(res.WinP-res.LossP)/2+0.5, res.DrawP, res.LossP, res.MPosition)
		d.releaseWaiters(item.leaf, res)
	}
	return errs
}

// expandLeaf publishes the evaluator's priors onto the leaf's child
// edges, winning the CAS gate first; a losing selector's leaf (another
// selector reached the same freshly-allocated node first) is a no-op
// here. Edges are sorted by prior probability descending and capped at
// maxPolicyMoves (§3, §6: "priors is capped at numPolicyMoves; the core
// sorts by p descending and truncates"), satisfying P4's ordering so that
// compaction's "unexpanded slots follow in descending P order" (I2) holds
// from the moment a node is expanded.
//
// When this leaf is the tree's current root and a SearchLimit.SearchMoves
// restriction is set, moves outside that set are dropped before the sort
// and cap are applied, so the whole search never grows them at all.
// AllocateChildren failure is reported rather than silently leaving the
// node childless (§7): the caller must treat it as grounds to abort.
func (d *Dispatcher[T]) expandLeaf(item leafBatchItem[T], moves []T, res EvalResult[T]) error {
	rec := d.tree.Store().NodeAt(item.leaf)
	if !rec.tryBeginExpansion() {
		return nil
	}
	defer rec.finishExpansion()

	rec.V = res.WinP - res.LossP
	rec.WinP, rec.DrawP, rec.LossP = res.WinP, res.DrawP, res.LossP
	rec.MPosition = res.MPosition

	type policyEdge struct {
		mv T
		p  float16.Float16
	}
	pairs := make([]policyEdge, len(moves))
	for i, mv := range moves {
		p := float16.Fromfloat32(0)
		if i < len(res.Priors) {
			p = res.Priors[i]
		}
		pairs[i] = policyEdge{mv: mv, p: p}
	}

	if item.leaf == d.tree.Root() && len(d.rootSearchMoves) > 0 {
		filtered := pairs[:0]
		for _, pr := range pairs {
			for _, allowed := range d.rootSearchMoves {
				if Move(pr.mv) == allowed {
					filtered = append(filtered, pr)
					break
				}
			}
		}
		pairs = filtered
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].p.Float32() > pairs[j].p.Float32()
	})
	if len(pairs) > maxPolicyMoves {
		pairs = pairs[:maxPolicyMoves]
	}

	if len(pairs) == 0 {
		rec.ChildStartIndex = -1
		return nil
	}

	off, err := d.tree.Store().AllocateChildren(len(pairs))
	if err != nil {
		rec.ChildStartIndex = -1
		return errors.Wrap(err, "expanding leaf")
	}

	edges := d.tree.Store().Edges(off, int32(len(pairs)))
	for i, pr := range pairs {
		edges[i] = EdgeSlot[T]{Move: pr.mv, P: pr.p}
	}
	rec.ChildStartIndex = int32(off)
	rec.NumPolicyMoves = int32(len(pairs))
	return nil
}

// backupTerminal backs up a leaf whose game-ending value is known
// outright, with no evaluator call needed.
func (d *Dispatcher[T]) backupTerminal(item leafBatchItem[T]) {
	v := item.terminal.Value()
	draw, loss := float32(0), float32(0)
	switch item.terminal {
	case TerminalDraw:
		draw = 1
	case TerminalLoss:
		loss = 1
	}
	d.backupLeaf(item, v, draw, loss, 0)
}

// backupFromTransposition backs up a leaf that borrowed its value from
// an already-materialized canonical subtree (§4.2 I5).
func (d *Dispatcher[T]) backupFromTransposition(item leafBatchItem[T]) {
	src := d.tree.Store().NodeAt(item.valueSource)
	d.tree.Store().NodeAt(item.leaf).advanceTranspositionCursor()
	_, dAvg, lAvg, mAvg, _ := src.Aggregates()
	d.backupLeaf(item, src.Q(), float32(dAvg), float32(lAvg), float32(mAvg))
}

// deferOnto records item as waiting on another in-flight leaf at the
// same position; it is released once that leaf's evaluator result (or
// terminal/transposition value) lands.
func (d *Dispatcher[T]) deferOnto(item leafBatchItem[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkWaiters[item.deferredLink] = append(d.linkWaiters[item.deferredLink], item)
}

// releaseWaiters backs up every item that had deferred onto leaf.
func (d *Dispatcher[T]) releaseWaiters(leaf NodeIndex, res EvalResult[T]) {
	d.mu.Lock()
	waiters := d.linkWaiters[leaf]
	delete(d.linkWaiters, leaf)
	d.mu.Unlock()

	for _, w := range waiters {
		d.backupLeaf(w, Result(res.WinP-res.LossP)/2+0.5, res.DrawP, res.LossP, res.MPosition)
	}
}

// backupLeaf walks item.path from leaf to root, releasing virtual loss
// and applying one visit's worth of (sign-flipped) value at every node
// (§4.4, mirroring the teacher's DefaultBackprop zero-sum walk
// generalized from a boolean outcome to a continuous value plus draw/
// loss/moves-left aggregates).
func (d *Dispatcher[T]) backupLeaf(item leafBatchItem[T], v Result, drawP, lossP, mPos float32) {
	store := d.tree.Store()
	winP := 1 - drawP - lossP

	for i := len(item.path) - 1; i >= 0; i-- {
		idx := item.path[i]
		rec := store.NodeAt(idx)

		if idx != d.tree.Root() {
			rec.ReleaseVirtualLoss(item.selectorID, item.virtualLoss)
		}

		rec.backupOnce(v, drawP, lossP, mPos, 1)

		// Flip perspective for the parent: a win for the side to move at
		// this node is a loss for the side to move one ply up, a draw
		// stays a draw, and moves-left-to-mate grows by one ply.
		v = 1 - v
		winP, lossP = lossP, winP
		mPos++
	}
}

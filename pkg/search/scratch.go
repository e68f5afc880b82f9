package search

// leafBatchItem is one entry collected by a selector's descent and
// handed to the evaluator-dispatch worker (§9 "selection scratch"). It
// carries just enough to both submit the evaluator request and walk the
// backup afterward without re-descending the tree.
type leafBatchItem[T Move] struct {
	selectorID int
	path       []NodeIndex // root..leaf inclusive, in descent order
	leaf       NodeIndex
	depth      int
	hash       uint64

	// terminal is set when the leaf position itself ends the game; no
	// evaluator call is needed, the result is known outright.
	terminal TerminalKind

	// transpositionLinked is true when this leaf was newly linked to an
	// existing canonical subtree rather than expanded fresh: its value
	// is drawn from the linked root rather than from a dedicated
	// evaluator call (§4.2 lazy value-borrowing).
	transpositionLinked bool
	valueSource         NodeIndex

	// deferredLink holds the index of another in-flight leaf at the same
	// position, discovered while this leaf was being prepared; when that
	// leaf's evaluator result lands, this one is linked to it instead of
	// getting its own evaluator call (§4.4 deferred-link pairing).
	deferredLink NodeIndex

	board Position[T]

	// virtualLoss is the amount this descent actually reserved along path
	// (selector's SelectorConfig.VirtualLoss at the time of the descent).
	// backup must release exactly this amount, not some package default,
	// or a non-default config leaks or over-releases virtual loss (I4).
	virtualLoss int32

	// done, when non-nil, is signalled once by the dispatch worker after
	// this item's backup completes, letting the owning selector block on
	// its own descent while still allowing the dispatcher to accumulate a
	// real multi-item batch from whichever selectors currently have a
	// leaf pending (§5).
	done chan error
}

// evalOutcome is what the evaluator-dispatch worker produces for one
// leafBatchItem, ready to hand to backup.
type evalOutcome struct {
	value Result
	drawP float32
	lossP float32
	mPos  float32
}

package search

// SearchProgress is one snapshot of a running search, the PUCT-search
// analogue of the teacher's ListenerTreeStats: carries the tree-wide
// counters plus the current best-move ranking rather than a single best
// signature, since a driver typically wants to print a multipv-style
// line per update.
type SearchProgress[T Move] struct {
	MaxDepth   int
	Cycles     int
	TimeMs     int
	Cps        uint32
	Lines      []BestMoveInfo[T]
	StopReason StopReason
}

// snapshotProgress builds a SearchProgress from a live engine.
func snapshotProgress[T Move](tree *TreeIndex[T], limiter *Limiter, opts BestMoveOptions) SearchProgress[T] {
	lines := RankedMoves(tree, tree.Root(), opts)
	return SearchProgress[T]{
		MaxDepth:   tree.Stats().MaxDepth(),
		Cycles:     tree.Stats().Cycles(),
		TimeMs:     int(limiter.Elapsed()),
		Cps:        tree.Stats().Cps(),
		Lines:      lines,
		StopReason: limiter.StopReasonValue(),
	}
}

// ProgressFunc is a search progress callback, mirroring the teacher's
// ListenerFunc but parameterized over SearchProgress instead of
// ListenerTreeStats.
type ProgressFunc[T Move] func(SearchProgress[T])

// ProgressListener chains the three callback points the teacher's
// StatsListener exposed (depth increase, cycle, stop), retargeted at
// SearchProgress.
type ProgressListener[T Move] struct {
	onDepth ProgressFunc[T]
	onCycle ProgressFunc[T]
	onStop  ProgressFunc[T]
}

// OnDepth attaches a callback invoked whenever MaxDepth increases.
// Called only by the main selector, so no synchronization is needed.
func (l *ProgressListener[T]) OnDepth(f ProgressFunc[T]) *ProgressListener[T] {
	l.onDepth = f
	return l
}

// OnCycle attaches a callback invoked periodically during the search.
// Computing the ranking on every cycle is expensive; drivers that want
// fine-grained progress should throttle externally.
func (l *ProgressListener[T]) OnCycle(f ProgressFunc[T]) *ProgressListener[T] {
	l.onCycle = f
	return l
}

// OnStop attaches a callback invoked once, after the search ends and
// StopReason is final.
func (l *ProgressListener[T]) OnStop(f ProgressFunc[T]) *ProgressListener[T] {
	l.onStop = f
	return l
}

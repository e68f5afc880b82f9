package search

import "sync/atomic"

// treeStats is the tree-wide running counters an engine maintains across
// a search, mirroring the teacher's TreeStats (maxdepth/cps/cycles) plus
// the collision counter §4.3's "stopping condition 4" produces when two
// selectors land on the same expanding node.
type treeStats struct {
	maxDepth       atomic.Int32
	cycles         atomic.Uint32
	cps            atomic.Uint32
	collisionCount atomic.Int32
}

func (ts *treeStats) reset() {
	ts.maxDepth.Store(0)
	ts.cycles.Store(0)
	ts.cps.Store(0)
	ts.collisionCount.Store(0)
}

// MaxDepth is the deepest a selector has descended this search.
func (ts *treeStats) MaxDepth() int { return int(ts.maxDepth.Load()) }

// Cycles is the number of completed selection+backup batches.
func (ts *treeStats) Cycles() int { return int(ts.cycles.Load()) }

// Cps is the most recently computed cycles-per-second estimate.
func (ts *treeStats) Cps() uint32 { return ts.cps.Load() }

// CollisionCount is the number of times a selector found a node already
// being expanded by another selector and had to wait (§4.3 stopping
// condition interplay with concurrent expansion).
func (ts *treeStats) CollisionCount() int32 { return ts.collisionCount.Load() }

func (ts *treeStats) recordDepth(depth int) {
	for {
		cur := ts.maxDepth.Load()
		if int32(depth) <= cur {
			return
		}
		if ts.maxDepth.CompareAndSwap(cur, int32(depth)) {
			return
		}
	}
}

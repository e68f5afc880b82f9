package search

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// arena holds the two backing slices NodeStore allocates into. It is
// replaced wholesale (never mutated in place) by Grow, so a goroutine
// that loaded one arena pointer can keep dereferencing it safely even if
// a grow races in — the grounding contract (§4.1) is that growth only
// ever happens while selection is paused, matching the materialization
// "exclusive access guaranteed" assumption in §4.2.
type arena[T Move] struct {
	nodes []NodeRecord[T]
	edges []EdgeSlot[T]
}

// NodeStore is the append-only arena of node records and child-edge
// slots described in §4.1. Allocation is a lock-free fetch-and-add over
// a monotonic counter; the backing slices are only ever replaced (never
// resized in place) by Grow, which the caller must only invoke while no
// selector is mid-descent.
type NodeStore[T Move] struct {
	arena atomic.Pointer[arena[T]]

	nextNode atomic.Uint32
	nextEdge atomic.Uint32

	growMu   sync.Mutex
	growable bool
}

// NewNodeStore preallocates a node arena of nodeCapacity records (index 0
// reserved as null, so capacities of N allow N-1 usable nodes) and an
// edge arena of edgeCapacity slots. A full arena makes AllocateNode and
// AllocateChildren return ErrStoreExhausted either way; when growable is
// true the error is wrapped with a hint to call Grow, and only Grow
// actually performs the resize. Nothing in this package calls Grow.
func NewNodeStore[T Move](nodeCapacity, edgeCapacity uint32, growable bool) *NodeStore[T] {
	s := &NodeStore[T]{growable: growable}
	s.arena.Store(&arena[T]{
		nodes: make([]NodeRecord[T], nodeCapacity),
		edges: make([]EdgeSlot[T], edgeCapacity),
	})
	// Index/offset 0 is reserved; start both counters at 1 so the first
	// real allocation returns 1.
	s.nextNode.Store(1)
	s.nextEdge.Store(1)
	return s
}

// AllocateNode reserves the next node index and initializes its one-time
// fields. The returned index is published (the record behind it is fully
// initialized) before AllocateNode returns, so any goroutine that learns
// of the index afterward observes a consistent record.
func (s *NodeStore[T]) AllocateNode(parent NodeIndex, move T, depth uint16, terminal TerminalKind) (NodeIndex, error) {
	a := s.arena.Load()
	idx := s.nextNode.Add(1) - 1
	if int(idx) >= len(a.nodes) {
		if !s.growable {
			return NullNode, ErrStoreExhausted
		}
		return NullNode, errors.Wrap(ErrStoreExhausted, "node arena full; call Grow before retrying")
	}
	a.nodes[idx] = newNodeRecord(parent, move, depth, terminal)
	return NodeIndex(idx), nil
}

// AllocateChildren reserves `count` contiguous edge slots and returns the
// offset of the first one. The caller must then initialize every slot in
// [offset, offset+count) before publishing the node's ChildStartIndex.
func (s *NodeStore[T]) AllocateChildren(count int) (EdgeOffset, error) {
	if count <= 0 {
		return 0, errors.New("search: AllocateChildren called with non-positive count")
	}
	a := s.arena.Load()
	off := s.nextEdge.Add(uint32(count)) - uint32(count)
	if int(off)+count > len(a.edges) {
		if !s.growable {
			return 0, ErrStoreExhausted
		}
		return 0, errors.Wrap(ErrStoreExhausted, "edge arena full; call Grow before retrying")
	}
	return EdgeOffset(off), nil
}

// NodeAt returns a pointer to the node record at idx. idx must have come
// from a prior successful AllocateNode on this store.
func (s *NodeStore[T]) NodeAt(idx NodeIndex) *NodeRecord[T] {
	a := s.arena.Load()
	return &a.nodes[idx]
}

// EdgeAt returns a pointer to the edge slot at off.
func (s *NodeStore[T]) EdgeAt(off EdgeOffset) *EdgeSlot[T] {
	a := s.arena.Load()
	return &a.edges[off]
}

// Edges returns the count edge slots starting at off, as a slice sharing
// the arena's backing array (valid until the next Grow).
func (s *NodeStore[T]) Edges(off EdgeOffset, count int32) []EdgeSlot[T] {
	a := s.arena.Load()
	return a.edges[off : int32(off)+count]
}

// NodeCount returns the number of nodes allocated so far (including the
// reserved null slot).
func (s *NodeStore[T]) NodeCount() uint32 {
	return s.nextNode.Load()
}

// EdgeCount returns the number of edge slots allocated so far.
func (s *NodeStore[T]) EdgeCount() uint32 {
	return s.nextEdge.Load()
}

// NodeCapacity / EdgeCapacity report the current backing-array sizes.
func (s *NodeStore[T]) NodeCapacity() uint32 {
	return uint32(len(s.arena.Load().nodes))
}

func (s *NodeStore[T]) EdgeCapacity() uint32 {
	return uint32(len(s.arena.Load().edges))
}

// Growable reports whether this store accepts Grow calls.
func (s *NodeStore[T]) Growable() bool {
	return s.growable
}

// Grow replaces the backing arrays with bigger ones, copying existing
// data across. The caller must guarantee no
// selector is mid-descent and no backup is in flight: this is the same
// "exclusive access" contract §4.2 requires of materialization, and it is
// why Grow takes its own mutex rather than trying to be safely callable
// from arbitrary goroutines.
func (s *NodeStore[T]) Grow(extraNodes, extraEdges uint32) error {
	if !s.growable {
		return errors.New("search: store is not growable")
	}
	s.growMu.Lock()
	defer s.growMu.Unlock()

	old := s.arena.Load()
	next := &arena[T]{
		nodes: make([]NodeRecord[T], uint32(len(old.nodes))+extraNodes),
		edges: make([]EdgeSlot[T], uint32(len(old.edges))+extraEdges),
	}
	// NodeRecord/EdgeSlot contain atomics and a mutex; a field-wise copy
	// of the already-published prefix is safe here only because the
	// caller guarantees nothing else is writing concurrently.
	copy(next.nodes, old.nodes)
	copy(next.edges, old.edges)
	s.arena.Store(next)
	return nil
}

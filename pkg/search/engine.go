package search

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// SearchHandle identifies one in-progress or completed search (§6). It
// carries no state of its own beyond identity: all mutable state lives
// on the Engine, mirroring the teacher's habit of returning small value
// handles from its public API rather than exposing internals directly.
type SearchHandle struct {
	id uuid.UUID
}

func (h SearchHandle) String() string { return h.id.String() }

// EngineConfig bundles everything needed to construct an Engine: the
// arena sizing (§4.1), evaluator batching limit (§4.4), and the PUCT/
// best-move tuning knobs (§4.3, §4.5).
type EngineConfig[T Move] struct {
	NodeCapacity, EdgeCapacity uint32
	Growable                   bool
	MaxBatch                   int
	Namespace                  string

	SelectorConfig  SelectorConfig
	BestMoveOptions BestMoveOptions
}

// DefaultEngineConfig returns sane defaults for a single mid-size search
// tree (about a million nodes), growable, batching up to 64 leaves per
// evaluator call.
func DefaultEngineConfig[T Move]() EngineConfig[T] {
	return EngineConfig[T]{
		NodeCapacity:    1 << 20,
		EdgeCapacity:    1 << 22,
		Growable:        true,
		MaxBatch:        64,
		Namespace:       "puctsearch",
		SelectorConfig:  DefaultSelectorConfig(),
		BestMoveOptions: DefaultBestMoveOptions(),
	}
}

// Engine drives one search tree end to end: it owns the TreeIndex, the
// Limiter, the Dispatcher, and the two-selector-plus-dispatch
// concurrency model described in §5. It plays the role the teacher's
// MCTS struct played for UCB1, generalized to PUCT, batched evaluation,
// and transposition linking.
type Engine[T Move] struct {
	cfg       EngineConfig[T]
	tree      *TreeIndex[T]
	limiter   *Limiter
	evaluator Evaluator[T]
	dispatch  *Dispatcher[T]
	listener  ProgressListener[T]
	metrics   *metrics

	handle atomic.Pointer[SearchHandle]
}

// NewEngine constructs an Engine ready for its first search.
func NewEngine[T Move](evaluator Evaluator[T], cfg EngineConfig[T]) *Engine[T] {
	tree := NewTreeIndex[T](cfg.NodeCapacity, cfg.EdgeCapacity, cfg.Growable)
	return &Engine[T]{
		cfg:       cfg,
		tree:      tree,
		limiter:   NewLimiter(),
		evaluator: evaluator,
		dispatch:  NewDispatcher(tree, evaluator, cfg.MaxBatch),
		metrics:   newMetrics(cfg.Namespace),
	}
}

// Tree exposes the underlying index, e.g. for MakeMove re-rooting
// between searches.
func (e *Engine[T]) Tree() *TreeIndex[T] { return e.tree }

// SetListener installs progress callbacks for the next Search call.
func (e *Engine[T]) SetListener(l ProgressListener[T]) { e.listener = l }

// Metrics returns the engine's Prometheus instruments for registration,
// e.g. reg.MustRegister(engine.Metrics()...).
func (e *Engine[T]) Metrics() []prometheus.Collector { return e.metrics.Collectors() }

// newSearch assigns a fresh handle identity; Search calls it at the start
// of every run. There is no step-wise driver: Search blocks until the
// search ends.
func (e *Engine[T]) newSearch() SearchHandle {
	h := SearchHandle{id: uuid.New()}
	e.handle.Store(&h)
	return h
}

// Search runs selectors until the limit is reached or ctx is cancelled,
// then returns the chosen move. It wires two Selector goroutines and a
// shared dispatch worker together with an errgroup (§5's two-selector,
// one-dispatch-worker model): each selector's descent blocks on its own
// leaf's completion, while the dispatch worker greedily accumulates
// whatever leaves are concurrently pending from both selectors into one
// evaluator call, giving MaxBatch real effect instead of forcing every
// batch down to size one.
func (e *Engine[T]) Search(ctx context.Context, root Position[T], limit SearchLimit) (BestMoveInfo[T], SearchHandle, error) {
	handle := e.newSearch()

	e.limiter.SetLimit(limit)
	e.limiter.SetContext(ctx)
	e.limiter.Reset(e.tree.Store().NodeCount())
	e.tree.Stats().reset()
	e.dispatch.SetRootSearchMoves(limit.SearchMoves)

	// The tree index is domain-agnostic and cannot know the root's
	// terminal status at allocation time; stamp it once here from the
	// caller's board before any selector starts descending.
	e.tree.Store().NodeAt(e.tree.Root()).Terminal = root.Terminal()

	leafCh := make(chan leafBatchItem[T], e.cfg.MaxBatch)
	var selectorsDone sync.WaitGroup
	selectorsDone.Add(2)

	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < 2; id++ {
		id := id
		board := root.Clone()
		g.Go(func() error {
			defer selectorsDone.Done()
			return e.runSelector(gctx, id, board, leafCh)
		})
	}
	g.Go(func() error {
		selectorsDone.Wait()
		close(leafCh)
		return nil
	})
	g.Go(func() error {
		return e.runDispatch(gctx, leafCh)
	})

	if err := g.Wait(); err != nil {
		return BestMoveInfo[T]{}, handle, err
	}

	e.tree.MaterializeAllTranspositionLinks()

	klog.V(2).InfoS("search stopped",
		"handle", handle.String(),
		"reason", e.limiter.StopReasonValue().String(),
		"cycles", e.tree.Stats().Cycles(),
		"nodes", e.tree.Store().NodeCount(),
	)

	if e.listener.onStop != nil {
		e.listener.onStop(snapshotProgress(e.tree, e.limiter, e.cfg.BestMoveOptions))
	}

	best, ok := ChooseBestMove(e.tree, e.tree.Root(), e.cfg.BestMoveOptions)
	if !ok {
		return BestMoveInfo[T]{}, handle, ErrInconsistent
	}
	return best, handle, nil
}

// runDispatch is the batching worker both selectors feed leaves into
// (§5): it blocks for the first item, then greedily drains whatever else
// is already queued (up to MaxBatch total, non-blocking) before calling
// ProcessBatch once for the whole accumulated group, and finally wakes
// every item's own selector via its done channel.
func (e *Engine[T]) runDispatch(ctx context.Context, leafCh <-chan leafBatchItem[T]) error {
	for {
		first, open := <-leafCh
		if !open {
			return nil
		}

		batch := []leafBatchItem[T]{first}
	drain:
		for len(batch) < e.cfg.MaxBatch {
			select {
			case item, open := <-leafCh:
				if !open {
					break drain
				}
				batch = append(batch, item)
			default:
				break drain
			}
		}

		err := e.dispatch.ProcessBatch(ctx, batch)
		for _, item := range batch {
			item.done <- err
		}
		if err != nil {
			return err
		}
	}
}

// runSelector is the per-selector loop: descend, hand the leaf to the
// shared dispatch worker via leafCh, wait for it to be backed up, repeat
// until the limiter says stop. Only the main selector (id 0) counts
// tree-wide cycles, invokes the progress listeners and evaluates the final
// stop reason, matching the teacher's "thread 0 has some privileges"
// convention.
func (e *Engine[T]) runSelector(ctx context.Context, id int, board Position[T], leafCh chan<- leafBatchItem[T]) error {
	selector := NewSelector[T](id, e.tree, e.cfg.SelectorConfig)
	lastDepth := 0

	for e.limiter.Ok(e.tree.Store().NodeCount(), e.storeExhausted()) {
		item, ok, err := selector.Descend(board)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		item.done = make(chan error, 1)
		select {
		case leafCh <- item:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-item.done:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		for i := 0; i < item.depth; i++ {
			board.Pop()
		}
		selector.forgetInFlight(item.hash)

		e.tree.Stats().recordDepth(item.depth)
		e.metrics.cycles.Inc()

		if id == mainSelectorID {
			cycles := e.tree.Stats().cycles.Add(1)
			cps := float64(cycles) * 1000 / float64(e.limiter.Elapsed())
			e.tree.Stats().cps.Store(uint32(cps))
			e.metrics.cps.Set(cps)
			e.metrics.treeNodes.Set(float64(e.tree.Store().NodeCount()))
			e.limiter.RecordObservedNPS(e.tree.Store().NodeCount())

			if d := e.tree.Stats().MaxDepth(); e.listener.onDepth != nil && d > lastDepth {
				lastDepth = d
				e.listener.onDepth(snapshotProgress(e.tree, e.limiter, e.cfg.BestMoveOptions))
			}

			if e.listener.onCycle != nil && cycles%1024 == 0 {
				e.listener.onCycle(snapshotProgress(e.tree, e.limiter, e.cfg.BestMoveOptions))
			}
		}
	}

	if id == mainSelectorID {
		e.limiter.EvaluateStopReason(e.tree.Store().NodeCount(), e.storeExhausted())
		e.limiter.SetStop(true)
	}
	return nil
}

// storeExhausted reports whether the arena is full or down to its last
// free node slot.
func (e *Engine[T]) storeExhausted() bool {
	return e.tree.Store().NodeCount() >= e.tree.Store().NodeCapacity()-1
}


package search

import (
	"context"
	"math"
	"sync/atomic"
)

// StopReason is the bitmask recording every condition that contributed to
// ending a search, mirroring the teacher's StopReason of the same name
// but retargeted at SearchLimit's four variants plus store exhaustion.
type StopReason int

const (
	StopNone      StopReason = 0
	StopInterrupt StopReason = 1 << iota // SetStop(true) or context cancellation
	StopNodes                            // node budget reached
	StopTime                             // movetime budget reached
	StopStore                            // arena exhausted and not growable
)

func (sr StopReason) String() string {
	if sr == StopNone {
		return "None"
	}
	reasons := []struct {
		flag StopReason
		name string
	}{
		{StopInterrupt, "Interrupt"},
		{StopNodes, "Nodes"},
		{StopTime, "Time"},
		{StopStore, "Store"},
	}
	var result string
	for _, r := range reasons {
		if sr&r.flag == r.flag {
			if result != "" {
				result += "|"
			}
			result += r.name
		}
	}
	return result
}

// Limiter evaluates a SearchLimit against live search progress (§4.6,
// §7). It owns the movetime timer and a running nodes-per-second
// estimate, grounded on the teacher's Limiter/Timer pairing but with the
// depth/memory-byte-size knobs replaced by SearchLimit's node/time/
// moves-to-go fields and an explicit store-exhaustion signal.
type Limiter struct {
	limit     SearchLimit
	effective SearchLimit // limit after ConvertedGameToMoveLimit + WithIncrementApplied
	timer     *_Timer

	startNodes  uint32
	npsEstimate atomic.Uint64 // bits of a float64, observed nodes/sec
	hasObserved atomic.Bool

	expand atomic.Bool
	stop   atomic.Bool
	reason StopReason
	ctx    context.Context
}

// NewLimiter constructs a Limiter with a zero-valued limit (NodesPerMove
// with a budget of 0, so Ok reports false); callers must SetLimit before
// Reset to get a meaningful budget.
func NewLimiter() *Limiter {
	l := &Limiter{
		timer: _NewTimer(),
		ctx:   context.Background(),
	}
	l.expand.Store(true)
	return l
}

// SetLimit installs the SearchLimit this Limiter evaluates against.
func (l *Limiter) SetLimit(limit SearchLimit) {
	l.limit = limit
}

// Limit returns the configured SearchLimit.
func (l *Limiter) Limit() SearchLimit {
	return l.limit
}

// SetContext installs a context whose cancellation is treated the same
// as SetStop(true).
func (l *Limiter) SetContext(ctx context.Context) {
	l.ctx = ctx
}

// Reset prepares the limiter for a fresh search: converts a per-game
// limit to a per-move one (applying its increment first), restarts the
// movetime timer if the effective limit is time-based, clears the stop
// flag and sets the expand flag from SearchCanBeExpanded.
func (l *Limiter) Reset(startNodes uint32) {
	l.effective = l.limit.WithIncrementApplied().ConvertedGameToMoveLimit()
	l.startNodes = startNodes
	l.stop.Store(false)
	l.expand.Store(l.limit.SearchCanBeExpanded)
	l.reason = StopNone

	switch l.effective.Type {
	case SecondsPerMove:
		l.timer.Movetime(int(l.effective.Value * 1000))
	default:
		l.timer.Movetime(-1)
	}
	l.timer.Reset()
}

// SetStop requests the search to stop at the next cooperative check.
func (l *Limiter) SetStop(v bool) {
	l.stop.Store(v)
}

// Stop reports whether the search has been asked to stop, either
// directly via SetStop or through context cancellation.
func (l *Limiter) Stop() bool {
	select {
	case <-l.ctx.Done():
		l.stop.Store(true)
	default:
	}
	return l.stop.Load()
}

// Elapsed returns milliseconds since the last Reset.
func (l *Limiter) Elapsed() uint32 {
	return uint32(l.timer.Deltatime())
}

// Expand reports whether the store backing this search may still grow.
// Once store exhaustion forces expand to false, it stays false for the
// rest of the search (symmetric with the teacher's memory-exhaustion
// latch in its own Limiter).
func (l *Limiter) Expand() bool {
	return l.expand.Load()
}

// RecordObservedNPS updates the running nodes-per-second estimate from a
// live sample, used by EstimateNodes callers that want an observed
// rather than assumed rate.
func (l *Limiter) RecordObservedNPS(nodes uint32) {
	elapsedSeconds := float64(l.Elapsed()) / 1000
	if elapsedSeconds <= 0 {
		return
	}
	nps := float64(nodes-l.startNodes) / elapsedSeconds
	l.npsEstimate.Store(math.Float64bits(nps))
	l.hasObserved.Store(true)
}

// ObservedNPS returns the last recorded nodes-per-second estimate and
// whether one has ever been recorded.
func (l *Limiter) ObservedNPS() (float64, bool) {
	if !l.hasObserved.Load() {
		return 0, false
	}
	return math.Float64frombits(l.npsEstimate.Load()), true
}

// EvaluateStopReason computes and latches the StopReason for this
// search; called once by the main selector after the loop exits, before
// the other selector is synchronized (mirrors the teacher's single-
// evaluation-point contract).
func (l *Limiter) EvaluateStopReason(nodes uint32, storeExhausted bool) {
	reason := StopNone
	if l.Stop() {
		reason |= StopInterrupt
	}
	switch l.effective.Type {
	case NodesPerMove:
		if float64(nodes-l.startNodes) >= l.effective.Value {
			reason |= StopNodes
		}
	case SecondsPerMove:
		if l.timer.IsEnd() {
			reason |= StopTime
		}
	}
	if storeExhausted && !l.limit.SearchCanBeExpanded {
		reason |= StopStore
		l.expand.Store(false)
	}
	l.reason = reason
}

// StopReasonValue returns the latched reason from the last EvaluateStopReason
// call.
func (l *Limiter) StopReasonValue() StopReason {
	return l.reason
}

// Ok reports whether the search may continue: no stop requested, no
// budget exhausted, and (if the store is full) growth still possible.
func (l *Limiter) Ok(nodes uint32, storeExhausted bool) bool {
	if l.Stop() {
		return false
	}
	switch l.effective.Type {
	case NodesPerMove:
		if float64(nodes-l.startNodes) >= l.effective.Value {
			return false
		}
	case SecondsPerMove:
		if l.timer.IsEnd() {
			return false
		}
	}
	if storeExhausted && !l.expand.Load() {
		return false
	}
	return true
}

package search

import (
	"context"

	"github.com/x448/float16"
)

// Position is the external move-generator/board contract the search
// core traverses (§6). It is deliberately narrow and mutable-in-place,
// mirroring the teacher's GameOperations Traverse/BackTraverse pairing
// (itself grounded on dragontoothmg.Board's Make/Undo idiom) rather than
// an immutable-tree style API: a selector pushes a move to descend and
// pops it to back out, so no board copy is needed per node visited.
type Position[T Move] interface {
	// LegalMoves returns the moves available in the current position, in
	// a stable order (expansion relies on that order lining up with the
	// evaluator's returned priors).
	LegalMoves() []T

	// Push plays mv, mutating the receiver in place.
	Push(mv T)

	// Pop undoes the most recent Push.
	Pop()

	// Hash is a transposition key for the current position (Zobrist or
	// equivalent); collisions are tolerated per §4.2's "tolerate false
	// joins" decision.
	Hash() uint64

	// Terminal reports whether the current position ends the game, from
	// the side to move's perspective.
	Terminal() TerminalKind

	// Clone returns an independent copy sharing no mutable state, used to
	// hand each selector its own board.
	Clone() Position[T]
}

// EvalRequest is one leaf submitted to the evaluator (§4.4).
type EvalRequest[T Move] struct {
	Node  NodeIndex
	Board Position[T]
	Moves []T
}

// EvalResult is what the evaluator returns for one EvalRequest, in the
// same order the batch was submitted. Priors is aligned with the
// request's Moves slice.
type EvalResult[T Move] struct {
	WinP, DrawP, LossP float32
	MPosition          float32
	// Priors is aligned with the request's Moves slice, one prior per
	// legal move, stored at half precision to match the node arena's P
	// field representation.
	Priors []float16.Float16
}

// Evaluator is the external neural-network stand-in: given a batch of
// leaf positions, it returns one result per leaf (§4.4). Implementations
// are expected to batch internally (e.g. a single forward pass per
// Evaluate call); the dispatcher guarantees it never calls Evaluate with
// more than the configured max batch size.
type Evaluator[T Move] interface {
	Evaluate(ctx context.Context, batch []EvalRequest[T]) ([]EvalResult[T], error)
}

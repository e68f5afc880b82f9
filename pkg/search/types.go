package search

import "github.com/pkg/errors"

// Result is a value in [0, 1] from the side-to-move's perspective at the
// node it is attached to, 0 being a loss and 1 a win. Backup flips it at
// every parent.
type Result float64

// Move is whatever the position package uses to encode a move; the core
// never inspects it beyond equality/hashing.
type Move interface {
	comparable
}

// NodeIndex addresses a node record inside a NodeStore. 0 is reserved as
// the "null" index: no allocated node ever holds it.
type NodeIndex uint32

// NullNode is the reserved null index.
const NullNode NodeIndex = 0

// EdgeOffset addresses the start of a contiguous run of child-edge slots
// inside a NodeStore's edge arena. 0 means "uninitialized".
type EdgeOffset uint32

// TerminalKind classifies a resolved game outcome at a node.
type TerminalKind uint8

const (
	NonTerminal TerminalKind = iota
	TerminalWin
	TerminalLoss
	TerminalDraw
)

// IsTerminal reports whether the node's position is a resolved outcome.
func (k TerminalKind) IsTerminal() bool {
	return k != NonTerminal
}

// Value returns the side-to-move-oriented value of a resolved terminal
// outcome: +1 win, 0 loss, 0.5 draw.
func (k TerminalKind) Value() Result {
	switch k {
	case TerminalWin:
		return 1
	case TerminalLoss:
		return 0
	case TerminalDraw:
		return 0.5
	default:
		return 0.5
	}
}

var (
	// ErrStoreExhausted is StoreExhausted from §7: the node or edge arena
	// has reached capacity (a growable store also reports it, wrapped,
	// until Grow has made room).
	ErrStoreExhausted = errors.New("search: node/edge store exhausted")

	// ErrInvalidLimit is InvalidLimit from §7.
	ErrInvalidLimit = errors.New("search: invalid search limit")

	// ErrEvaluatorFailure is EvaluatorFailure from §7.
	ErrEvaluatorFailure = errors.New("search: evaluator failure")

	// ErrInconsistent is Inconsistent from §7; Engine.Search returns it
	// when the root has no expanded child to choose a best move from.
	ErrInconsistent = errors.New("search: invariant check failed")
)

// BestChildPolicy names a best-child ranking rule. ChooseBestMove and
// RankedMoves do not take one: they always rank by visits with a Q
// tie-break.
type BestChildPolicy int

const (
	// BestChildMostVisits ranks by completed visit count, tie-break on Q.
	// This is the policy §4.5 describes and the default for play.
	BestChildMostVisits BestChildPolicy = iota
	// BestChildWinRate ranks by Q alone, subject to a minimum-visits floor.
	BestChildWinRate
)

// SeedGeneratorFnType produces a seed for per-selector random sources
// (used only to break ties when several children are exactly equal).
type SeedGeneratorFnType func() int64

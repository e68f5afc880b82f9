// Package position adapts concrete board representations to the
// search.Position[T] contract, grounded on the teacher's chess example
// (examples/chess/chess-mcts/ucb.go) which wired the same
// dragontoothmg.Board through Traverse/BackTraverse-style Make/Undo
// calls.
package position

import (
	chess "github.com/IlikeChooros/dragontoothmg"

	"github.com/IlikeChooros/puctsearch/pkg/search"
)

// ChessBoard adapts *dragontoothmg.Board to search.Position[chess.Move].
type ChessBoard struct {
	board *chess.Board
}

// NewChessBoard wraps a fresh starting position.
func NewChessBoard() *ChessBoard {
	return &ChessBoard{board: chess.NewBoard()}
}

// NewChessBoardFromFEN wraps the position described by fen.
func NewChessBoardFromFEN(fen string) *ChessBoard {
	b := chess.ParseFen(fen)
	return &ChessBoard{board: &b}
}

// LegalMoves returns the legal moves in the current position.
func (c *ChessBoard) LegalMoves() []chess.Move {
	return c.board.GenerateLegalMoves()
}

// Push plays mv.
func (c *ChessBoard) Push(mv chess.Move) {
	c.board.Make(mv)
}

// Pop undoes the most recent Push.
func (c *ChessBoard) Pop() {
	c.board.Undo()
}

// Hash returns the board's Zobrist key.
func (c *ChessBoard) Hash() uint64 {
	return c.board.Hash()
}

// Terminal classifies the current position, from the side to move's
// perspective.
func (c *ChessBoard) Terminal() search.TerminalKind {
	moves := c.board.GenerateLegalMoves()
	if !c.board.IsTerminated(len(moves)) {
		return search.NonTerminal
	}
	if c.board.Termination() == chess.TerminationCheckmate {
		return search.TerminalLoss
	}
	return search.TerminalDraw
}

// Clone returns an independent copy.
func (c *ChessBoard) Clone() search.Position[chess.Move] {
	return &ChessBoard{board: c.board.Clone()}
}

// Board exposes the underlying dragontoothmg board, e.g. for FEN output
// in a driver.
func (c *ChessBoard) Board() *chess.Board { return c.board }

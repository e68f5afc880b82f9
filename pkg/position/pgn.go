package position

import (
	"bytes"

	"github.com/notnil/chess"
)

// FENToHistory replays a PGN string through notnil/chess purely to
// produce the list of intermediate FENs (§6's "history" input for
// detecting a repeated position before the search tree itself has seen
// it). The search core does not depend on notnil/chess beyond this
// convenience: the live search board is always the dragontoothmg-backed
// ChessBoard above, chosen for its Traverse/BackTraverse-friendly
// mutable Make/Undo API.
func FENToHistory(pgn string) ([]string, error) {
	g, err := chess.PGN(bytes.NewReader([]byte(pgn)))
	if err != nil {
		return nil, err
	}
	game := chess.NewGame(g)
	positions := game.Positions()
	fens := make([]string, len(positions))
	for i, p := range positions {
		fens[i] = p.String()
	}
	return fens, nil
}

// Command searchdemo drives one PUCT search over a chess position and
// prints UCI-like progress lines, the spiritual successor to the
// teacher's examples/chess demo but wired to the arena-indexed search
// engine instead of pkg/mcts's UCB1 tree.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	chess "github.com/IlikeChooros/dragontoothmg"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/IlikeChooros/puctsearch/pkg/evaluator"
	"github.com/IlikeChooros/puctsearch/pkg/position"
	"github.com/IlikeChooros/puctsearch/pkg/search"
)

var (
	movetimeMs int
	nodes      int64
	fen        string

	// output is profile-aware so piping searchdemo's stdout (e.g. into a
	// log file) degrades to plain text instead of raw escape codes.
	output    = termenv.NewOutput(os.Stdout)
	evalScore = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	pvStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bestStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

func init() {
	if output.Profile == termenv.Ascii {
		evalScore = lipgloss.NewStyle()
		pvStyle = lipgloss.NewStyle()
		bestStyle = lipgloss.NewStyle()
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	var board search.Position[chess.Move]
	if fen != "" {
		board = position.NewChessBoardFromFEN(fen)
	} else {
		board = position.NewChessBoard()
	}

	cfg := search.DefaultEngineConfig[chess.Move]()
	engine := search.NewEngine[chess.Move](evaluator.Uniform[chess.Move]{}, cfg)

	progress := (&search.ProgressListener[chess.Move]{}).
		OnCycle(func(p search.SearchProgress[chess.Move]) {
			if len(p.Lines) == 0 {
				return
			}
			line := p.Lines[0]
			fmt.Printf("info eval %s depth %d cps %d cycles %d pv %s\n",
				evalScore.Render(fmt.Sprintf("%.3f", line.Q)),
				p.MaxDepth, p.Cps, p.Cycles, pvStyle.Render(line.Move.String()))
		})
	engine.SetListener(*progress)

	var limit search.SearchLimit
	var err error
	if nodes > 0 {
		limit, err = search.NodesPerMoveLimit(float64(nodes))
	} else {
		limit, err = search.SecondsPerMoveLimit(float64(movetimeMs) / 1000)
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(movetimeMs+5000)*time.Millisecond)
	defer cancel()

	best, _, err := engine.Search(ctx, board, limit)
	if err != nil {
		return err
	}
	fmt.Println(bestStyle.Render("bestmove " + best.Move.String()))
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "searchdemo",
		Short: "Run one PUCT search over a chess position",
		RunE:  runSearch,
	}
	root.Flags().IntVar(&movetimeMs, "movetime", 2000, "search time budget in milliseconds")
	root.Flags().Int64Var(&nodes, "nodes", 0, "node budget (overrides --movetime when > 0)")
	root.Flags().StringVar(&fen, "fen", "", "FEN of the position to search (defaults to the start position)")

	if err := root.Execute(); err != nil {
		fmt.Println(err)
	}
}

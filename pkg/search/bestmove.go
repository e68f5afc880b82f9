package search

import (
	"math"
	"sort"
)

// BestMoveInfo summarizes one root child for the best-move chooser
// (§4.5), the PUCT analogue of the teacher's BestChild result but
// carrying the richer per-move telemetry a driver typically reports
// (visit share, win/draw/loss probabilities, moves-left estimate).
type BestMoveInfo[T Move] struct {
	Move    T
	Visits  int32
	Q       Result
	WinP    float32
	DrawP   float32
	LossP   float32
	MLH     float32
	PolicyP float32

	// TopMovesNRatio is this candidate set's winner-to-runner-up visit
	// ratio (§6): +Inf when the winner is the only candidate. Unlike
	// BestMoveOptions.TopMovesNRatio (an input filter threshold), this is
	// reported telemetry computed after ranking.
	TopMovesNRatio float64

	// MLHBonusApplied is the actual moves-left adjustment folded into
	// this move's ranking score, 0 when the bonus was gated off because Q
	// was not near decisive.
	MLHBonusApplied float64
}

// BestMoveOptions configures the chooser (§4.5): MLHBonusFactor weights
// a moves-left preference into the ranking (favoring faster wins / slower
// losses) once DecisiveQThreshold is met, and TopMovesNRatio restricts
// candidates to children whose visit count is at least this fraction of
// the most-visited child's, before the MLH/Q tie-break runs.
type BestMoveOptions struct {
	MLHBonusFactor     float64
	TopMovesNRatio     float64
	DecisiveQThreshold float64
}

// DefaultBestMoveOptions mirrors the package-level PUCT defaults.
func DefaultBestMoveOptions() BestMoveOptions {
	return BestMoveOptions{
		MLHBonusFactor:     DefaultMLHBonusFactor,
		TopMovesNRatio:     0,
		DecisiveQThreshold: DefaultDecisiveQThreshold,
	}
}

// mlhBonus is the moves-left adjustment for one candidate, gated to only
// apply once Q is near decisive (§4.5): a near-drawn Q shouldn't have its
// ranking perturbed by a noisy mate-distance estimate.
func mlhBonus[T Move](info BestMoveInfo[T], opts BestMoveOptions) float64 {
	if opts.MLHBonusFactor == 0 || math.Abs(float64(info.Q)) < opts.DecisiveQThreshold {
		return 0
	}
	return opts.MLHBonusFactor * float64(info.MLH)
}

// topMovesRatio is the winner's visit count over the runner-up's, +Inf if
// there is no runner-up or it has zero visits.
func topMovesRatio[T Move](ranked []BestMoveInfo[T]) float64 {
	if len(ranked) < 2 || ranked[1].Visits == 0 {
		return math.Inf(1)
	}
	return float64(ranked[0].Visits) / float64(ranked[1].Visits)
}

// ChooseBestMove ranks root's children primarily by visit count (the
// standard MCTS choice, since visits correlate with confidence better
// than raw Q for a partially-searched tree), breaking ties by Q, and
// applying an optional moves-left bonus (§4.5). It returns false if root
// has no expanded children.
func ChooseBestMove[T Move](tree *TreeIndex[T], root NodeIndex, opts BestMoveOptions) (BestMoveInfo[T], bool) {
	edges := tree.childEdges(root)
	if len(edges) == 0 {
		return BestMoveInfo[T]{}, false
	}

	store := tree.Store()
	infos := make([]BestMoveInfo[T], 0, len(edges))
	var maxVisits int32

	for i := range edges {
		childIdx := edges[i].ExpandedChildIndex()
		if childIdx == NullNode {
			continue
		}
		rec := store.NodeAt(childIdx)
		valSrc := tree.resolveValueSource(childIdx)
		valRec := rec
		if valSrc != childIdx {
			valRec = store.NodeAt(valSrc)
		}
		_, dAvg, lAvg, mAvg, _ := valRec.Aggregates()

		visits := rec.N()
		if visits > maxVisits {
			maxVisits = visits
		}

		infos = append(infos, BestMoveInfo[T]{
			Move:    edges[i].Move,
			Visits:  visits,
			Q:       -valRec.Q(),
			WinP:    float32(1 - dAvg - lAvg),
			DrawP:   float32(dAvg),
			LossP:   float32(lAvg),
			MLH:     float32(mAvg),
			PolicyP: edges[i].P.Float32(),
		})
	}

	if len(infos) == 0 {
		return BestMoveInfo[T]{}, false
	}

	threshold := int32(opts.TopMovesNRatio * float64(maxVisits))
	candidates := infos[:0]
	for _, info := range infos {
		if info.Visits >= threshold {
			candidates = append(candidates, info)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Visits != b.Visits {
			return a.Visits > b.Visits
		}
		scoreA := float64(a.Q) + mlhBonus(a, opts)
		scoreB := float64(b.Q) + mlhBonus(b, opts)
		return scoreA > scoreB
	})

	best := candidates[0]
	best.MLHBonusApplied = mlhBonus(best, opts)
	best.TopMovesNRatio = topMovesRatio(candidates)
	return best, true
}

// RankedMoves returns every expanded root child's BestMoveInfo sorted
// the same way ChooseBestMove ranks its winner, for MultiPv-style
// reporting.
func RankedMoves[T Move](tree *TreeIndex[T], root NodeIndex, opts BestMoveOptions) []BestMoveInfo[T] {
	edges := tree.childEdges(root)
	store := tree.Store()
	infos := make([]BestMoveInfo[T], 0, len(edges))

	for i := range edges {
		childIdx := edges[i].ExpandedChildIndex()
		if childIdx == NullNode {
			continue
		}
		rec := store.NodeAt(childIdx)
		valSrc := tree.resolveValueSource(childIdx)
		valRec := rec
		if valSrc != childIdx {
			valRec = store.NodeAt(valSrc)
		}
		_, dAvg, lAvg, mAvg, _ := valRec.Aggregates()

		infos = append(infos, BestMoveInfo[T]{
			Move:    edges[i].Move,
			Visits:  rec.N(),
			Q:       -valRec.Q(),
			WinP:    float32(1 - dAvg - lAvg),
			DrawP:   float32(dAvg),
			LossP:   float32(lAvg),
			MLH:     float32(mAvg),
			PolicyP: edges[i].P.Float32(),
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Visits != infos[j].Visits {
			return infos[i].Visits > infos[j].Visits
		}
		scoreA := float64(infos[i].Q) + mlhBonus(infos[i], opts)
		scoreB := float64(infos[j].Q) + mlhBonus(infos[j], opts)
		return scoreA > scoreB
	})

	ratio := topMovesRatio(infos)
	for i := range infos {
		infos[i].TopMovesNRatio = ratio
		infos[i].MLHBonusApplied = mlhBonus(infos[i], opts)
	}
	return infos
}

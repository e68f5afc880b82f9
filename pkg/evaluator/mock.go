// Package evaluator provides test and placeholder implementations of
// search.Evaluator, grounded on the teacher's Rollout-based stand-ins
// (examples/chess/chess-mcts/ucb.go's random-playout Rollout) but
// reshaped into the batched (position, priors, value) contract an NN
// evaluator exposes instead of a single scalar per call.
package evaluator

import (
	"context"
	"math/rand"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"

	"github.com/IlikeChooros/puctsearch/pkg/search"
)

// Uniform is a mock Evaluator[T] that returns a 0.5 win probability, no
// draw/loss skew, and a uniform policy prior over the legal moves. It is
// enough to exercise the search core's mechanics (expansion, virtual
// loss, backup, transposition linking) without a real network.
type Uniform[T search.Move] struct{}

func (Uniform[T]) Evaluate(_ context.Context, batch []search.EvalRequest[T]) ([]search.EvalResult[T], error) {
	out := make([]search.EvalResult[T], len(batch))
	for i, req := range batch {
		n := len(req.Moves)
		priors := make([]float16.Float16, n)
		var p float32
		if n > 0 {
			p = 1 / float32(n)
		}
		for j := range priors {
			priors[j] = float16.Fromfloat32(p)
		}
		out[i] = search.EvalResult[T]{WinP: 0.5, DrawP: 0, LossP: 0.5, Priors: priors}
	}
	return out, nil
}

// Random is a mock Evaluator[T] producing pseudo-random but
// deterministic (seeded) values and priors, useful for exercising best-
// move ranking and MultiPv ordering in tests without needing the
// outcome to be trivially uniform.
type Random[T search.Move] struct {
	Rand *rand.Rand
}

// NewRandom seeds a Random evaluator.
func NewRandom[T search.Move](seed int64) *Random[T] {
	return &Random[T]{Rand: rand.New(rand.NewSource(seed))}
}

func (r *Random[T]) Evaluate(_ context.Context, batch []search.EvalRequest[T]) ([]search.EvalResult[T], error) {
	out := make([]search.EvalResult[T], len(batch))
	for i, req := range batch {
		win := r.Rand.Float32()
		loss := r.Rand.Float32() * (1 - win)
		draw := 1 - win - loss

		n := len(req.Moves)
		priors := make([]float16.Float16, n)
		raw := make([]float64, n)
		for j := range raw {
			raw[j] = r.Rand.Float64()
		}
		// Normalize the raw draws into a proper policy distribution the
		// same way a real network's softmax output would sum to one,
		// instead of each selector seeing an unnormalized weight.
		if sum := floats.Sum(raw); sum > 0 {
			floats.Scale(1/sum, raw)
		} else if n > 0 {
			floats.AddConst(1/float64(n), raw)
		}
		for j := range priors {
			priors[j] = float16.Fromfloat32(float32(raw[j]))
		}

		out[i] = search.EvalResult[T]{WinP: win, DrawP: draw, LossP: loss, Priors: priors}
	}
	return out, nil
}

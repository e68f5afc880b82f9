package search

import "time"

// mainSelectorID is the selector with some privileges: only it counts
// tree-wide cycles and invokes the progress listeners, mirroring the teacher's
// "mainThreadId" convention for its multi-threaded search loop.
const mainSelectorID = 0

// DefaultVirtualLoss is the number of visits reserved on every edge a
// selector crosses while descending (§4.3). The teacher used a flat
// constant for the same purpose, and so does this search: the
// reservation is this fixed amount per crossing, not scaled by the
// batch size being collected. Each
// selector stores the amount it actually used in its own SelectorConfig
// (see SelectorConfig.VirtualLoss) and releases that same amount at
// backup time, so this package var only seeds DefaultSelectorConfig.
var DefaultVirtualLoss int32 = 3

// maxExpansionSpinAttempts bounds how many times createChild re-checks an
// edge's published child index after losing (or failing) its own
// allocation attempt, before giving up and reporting StoreExhausted (§7).
// Without a bound, a genuinely exhausted, non-growable store would spin
// forever whenever nobody else was ever going to publish the edge either.
const maxExpansionSpinAttempts = 4096

// maxPolicyMoves caps how many child edges a single expansion allocates
// (§3: "numPolicyMoves ... typically 64"); priors ranked below this cutoff
// after the P4 descending sort are dropped rather than given a slot.
const maxPolicyMoves = 64

// PUCT tuning knobs (§4.3). Defaults follow the common Leela-style
// values; callers override per SelectorConfig rather than mutating these
// package vars, which only seed newly constructed configs.
var (
	DefaultCpuctBase        float64 = 1.745
	DefaultCpuctFactor      float64 = 2.894
	DefaultCpuctInit        float64 = 1.0
	DefaultCpuctBaseRoot    float64 = 1.745
	DefaultCpuctFactorRoot  float64 = 2.894
	DefaultCpuctInitRoot    float64 = 1.0
	DefaultParentTermExp    float64 = 1.0
	DefaultRootDenominatorD float64 = 1.0
	DefaultFpuValue         float64 = -1.0
	DefaultFpuReductionProp float64 = 0.25
	DefaultMLHBonusFactor   float64 = 0.0

	// DefaultDecisiveQThreshold is how close |Q| must be to 1 before the
	// moves-left bonus is allowed to influence best-move ranking (§4.5:
	// "only once Q is near decisive" — a near-drawn position shouldn't
	// have its ranking perturbed by a noisy mate-distance estimate).
	DefaultDecisiveQThreshold float64 = 0.8
)

// SeedGeneratorFn produces seeds for per-selector tie-break random
// sources; overridable for reproducible tests exactly like the teacher's
// SetSeedGeneratorFn.
var SeedGeneratorFn SeedGeneratorFnType = func() int64 {
	return time.Now().UnixNano()
}

// SetSeedGeneratorFn overrides SeedGeneratorFn, ignoring a nil argument.
func SetSeedGeneratorFn(f SeedGeneratorFnType) {
	if f != nil {
		SeedGeneratorFn = f
	}
}

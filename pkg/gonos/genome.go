package gonos

// Rand is the random-draw capability threaded through every stochastic
// operation. *math/rand.Rand satisfies it; tests may substitute a scripted
// source.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	Intn(n int) int
}

// Mutable is the in-place mutation capability: a stochastic perturbation of
// the receiver whose magnitude is controlled by rate.
type Mutable[C any] interface {
	Mutate(ctx C, rate float64, rng Rand)
}

// Mitotic is the asexual-reproduction capability. Divide returns a mutated
// copy of the parent; the parent is read-only and the child must not share
// mutable state with it.
type Mitotic[G, C any] interface {
	Divide(ctx C, rate float64, rng Rand) G
}

// Crossable is the sexual-reproduction capability. Crossover combines the
// receiver with partner into one child; rate carries the optional mutation
// pass applied to the child, zero disables it.
type Crossable[G, C any] interface {
	Crossover(partner G, ctx C, rate float64, rng Rand) G
}

// Speciable exposes a symmetric, non-negative compatibility distance.
// Smaller values mean closer relatedness.
type Speciable[G any] interface {
	SpeciesDistance(other G) float64
}

// CrossableGenome is the capability set crossover strategies require:
// recombination plus division for the documented single-parent fallback.
type CrossableGenome[G, C any] interface {
	Mitotic[G, C]
	Crossable[G, C]
}

// SpeciatedGenome adds the compatibility metric used to restrict mating to
// within-species pairs.
type SpeciatedGenome[G, C any] interface {
	CrossableGenome[G, C]
	Speciable[G]
}

// Generator produces one random genome. Used only for initial population
// construction.
type Generator[G any] func(rng Rand) G

// Disposer is implemented by genome types holding external resources that
// must be released when elimination discards them. Elimination calls
// Dispose once on every genome it drops; survivors are never disposed.
type Disposer interface {
	Dispose()
}

// MitosisFromMutation derives division for value genomes whose pointer type
// mutates in place: copy the parent, mutate the copy at the given rate. The
// genome value must not share interior mutable state, or the copy would
// alias the parent.
func MitosisFromMutation[G, C any, PG interface {
	*G
	Mutable[C]
}](parent G, ctx C, rate float64, rng Rand) G {
	child := parent
	PG(&child).Mutate(ctx, rate, rng)
	return child
}

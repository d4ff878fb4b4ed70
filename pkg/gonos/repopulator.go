package gonos

import (
	"fmt"
)

// Repopulator rebuilds a full population from the survivors of elimination.
// Built-in strategies produce exactly target genomes and fail with
// ErrNoSurvivors when given an empty survivor list.
type Repopulator[G any] interface {
	Repopulate(survivors []ScoredGenome[G], target int, rng Rand) ([]G, error)
}

// ParentWeighting selects how repopulation draws parents from survivors.
type ParentWeighting int

const (
	// UniformWeighting draws parents uniformly at random.
	UniformWeighting ParentWeighting = iota
	// FitnessWeighting draws parents proportionally to fitness, with scores
	// shifted so the weakest survivor keeps a small positive share.
	FitnessWeighting
)

func (w ParentWeighting) valid() bool {
	return w == UniformWeighting || w == FitnessWeighting
}

// MitosisRepopulator rebuilds the population by asexual mutation-cloning:
// every child is one survivor's Divide output at the configured rate. With
// Elitism set, survivors are carried into the next generation unmutated
// before children fill the remaining slots.
type MitosisRepopulator[G Mitotic[G, C], C any] struct {
	Rate      float64
	Ctx       C
	Elitism   bool
	Weighting ParentWeighting
}

func (r MitosisRepopulator[G, C]) validateConfig() error {
	return checkStrategy(r.Rate, r.Weighting)
}

func (r MitosisRepopulator[G, C]) Repopulate(survivors []ScoredGenome[G], target int, rng Rand) ([]G, error) {
	if err := checkRepopulate(len(survivors), target, rng); err != nil {
		return nil, err
	}
	if err := r.validateConfig(); err != nil {
		return nil, err
	}
	next := carryElites(survivors, target, r.Elitism)
	for len(next) < target {
		parent := survivors[pickParent(survivors, r.Weighting, rng)]
		next = append(next, parent.Genome.Divide(r.Ctx, r.Rate, rng))
	}
	return next, nil
}

// CrossoverRepopulator rebuilds the population by two-parent recombination.
// Each child slot draws two distinct parents by index; with fewer than two
// survivors it falls back to single-parent division for the slot.
type CrossoverRepopulator[G CrossableGenome[G, C], C any] struct {
	Rate      float64
	Ctx       C
	Elitism   bool
	Weighting ParentWeighting
}

func (r CrossoverRepopulator[G, C]) validateConfig() error {
	return checkStrategy(r.Rate, r.Weighting)
}

func (r CrossoverRepopulator[G, C]) Repopulate(survivors []ScoredGenome[G], target int, rng Rand) ([]G, error) {
	if err := checkRepopulate(len(survivors), target, rng); err != nil {
		return nil, err
	}
	if err := r.validateConfig(); err != nil {
		return nil, err
	}
	next := carryElites(survivors, target, r.Elitism)
	for len(next) < target {
		if len(survivors) < 2 {
			next = append(next, survivors[0].Genome.Divide(r.Ctx, r.Rate, rng))
			continue
		}
		a := pickParent(survivors, r.Weighting, rng)
		b := rng.Intn(len(survivors) - 1)
		if b >= a {
			b++
		}
		child := survivors[a].Genome.Crossover(survivors[b].Genome, r.Ctx, r.Rate, rng)
		next = append(next, child)
	}
	return next, nil
}

func carryElites[G any](survivors []ScoredGenome[G], target int, elitism bool) []G {
	next := make([]G, 0, target)
	if !elitism {
		return next
	}
	for _, sg := range survivors {
		if len(next) == target {
			break
		}
		next = append(next, sg.Genome)
	}
	return next
}

func pickParent[G any](survivors []ScoredGenome[G], weighting ParentWeighting, rng Rand) int {
	if weighting == FitnessWeighting {
		return pickWeighted(survivors, rng)
	}
	return rng.Intn(len(survivors))
}

// pickWeighted runs a roulette draw over min-shifted scores so negative
// fitness values cannot zero out the wheel.
func pickWeighted[G any](survivors []ScoredGenome[G], rng Rand) int {
	min := survivors[0].Fitness
	for _, sg := range survivors[1:] {
		if sg.Fitness < min {
			min = sg.Fitness
		}
	}
	shift := 0.0
	if min <= 0 {
		shift = -min + 1
	}
	total := 0.0
	for _, sg := range survivors {
		total += sg.Fitness + shift
	}
	if total <= 0 {
		return rng.Intn(len(survivors))
	}
	draw := rng.Float64() * total
	acc := 0.0
	for i, sg := range survivors {
		acc += sg.Fitness + shift
		if draw < acc {
			return i
		}
	}
	return len(survivors) - 1
}

func checkRepopulate(survivors, target int, rng Rand) error {
	if survivors == 0 {
		return ErrNoSurvivors
	}
	if target <= 0 {
		return fmt.Errorf("%w: target population size must be > 0, got %d", ErrInvalidConfiguration, target)
	}
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrInvalidConfiguration)
	}
	return nil
}

func checkStrategy(rate float64, weighting ParentWeighting) error {
	if rate < 0 {
		return fmt.Errorf("%w: mutation rate must be >= 0, got %v", ErrInvalidConfiguration, rate)
	}
	if !weighting.valid() {
		return fmt.Errorf("%w: unknown parent weighting %d", ErrInvalidConfiguration, weighting)
	}
	return nil
}

package gonos

import (
	"sort"
)

// FitnessShaper adjusts fitness values after evaluation and before
// ranking/selection. Shaped scores feed both survivor choice and observer
// statistics.
type FitnessShaper[G any] interface {
	Shape(scored []ScoredGenome[G]) []ScoredGenome[G]
}

// NopShaper leaves scores untouched.
type NopShaper[G any] struct{}

func (NopShaper[G]) Shape(scored []ScoredGenome[G]) []ScoredGenome[G] {
	return cloneScored(scored)
}

// RankShaper replaces each score with its rank share in (0, 1], flattening
// scale differences between generations. Ties rank by original population
// index so shaping stays deterministic.
type RankShaper[G any] struct{}

func (RankShaper[G]) Shape(scored []ScoredGenome[G]) []ScoredGenome[G] {
	out := cloneScored(scored)
	if len(out) == 0 {
		return out
	}
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := out[order[i]], out[order[j]]
		if a.Fitness == b.Fitness {
			return a.Index > b.Index
		}
		return a.Fitness < b.Fitness
	})
	n := float64(len(out))
	for rank, idx := range order {
		out[idx].Fitness = float64(rank+1) / n
	}
	return out
}

func shapeScores[G any](shaper FitnessShaper[G], scored []ScoredGenome[G]) []ScoredGenome[G] {
	if shaper == nil {
		return scored
	}
	return shaper.Shape(scored)
}

func cloneScored[G any](scored []ScoredGenome[G]) []ScoredGenome[G] {
	out := make([]ScoredGenome[G], len(scored))
	copy(out, scored)
	return out
}

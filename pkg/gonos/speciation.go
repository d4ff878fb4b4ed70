package gonos

import (
	"fmt"
	"sort"
)

// Species is one compatibility cluster of survivors. The representative is
// the founding member and stays fixed while later survivors are assigned,
// so membership does not depend on assignment order within the cluster.
type Species[G any] struct {
	Representative G
	Members        []ScoredGenome[G]
}

// Speciate partitions survivors into species by first-fit compatibility:
// each survivor joins the first existing species whose representative lies
// strictly closer than threshold, or founds a new species. A zero threshold
// yields one species per survivor; an infinite threshold yields one species.
func Speciate[G Speciable[G]](survivors []ScoredGenome[G], threshold float64) []Species[G] {
	var species []Species[G]
	for _, sg := range survivors {
		placed := false
		for i := range species {
			if sg.Genome.SpeciesDistance(species[i].Representative) < threshold {
				species[i].Members = append(species[i].Members, sg)
				placed = true
				break
			}
		}
		if !placed {
			species = append(species, Species[G]{
				Representative: sg.Genome,
				Members:        []ScoredGenome[G]{sg},
			})
		}
	}
	return species
}

// SpeciesSummary records how one species fared in a repopulation pass.
type SpeciesSummary struct {
	Index       int
	Size        int
	Offspring   int
	BestFitness float64
	MeanFitness float64
}

// SpeciatedCrossoverRepopulator clusters survivors into species before
// breeding and confines crossover to members of the same species, so
// incompatible genomes never recombine. Offspring slots are split across
// species in proportion to species size. It must be used by pointer: each
// Repopulate call records a per-species summary retrievable through
// LastPartition.
type SpeciatedCrossoverRepopulator[G SpeciatedGenome[G, C], C any] struct {
	Rate                   float64
	Ctx                    C
	CompatibilityThreshold float64
	Elitism                bool
	Weighting              ParentWeighting

	lastPartition []SpeciesSummary
}

func (r *SpeciatedCrossoverRepopulator[G, C]) validateConfig() error {
	if r.CompatibilityThreshold < 0 {
		return fmt.Errorf("%w: compatibility threshold must be >= 0, got %v", ErrInvalidConfiguration, r.CompatibilityThreshold)
	}
	return checkStrategy(r.Rate, r.Weighting)
}

func (r *SpeciatedCrossoverRepopulator[G, C]) Repopulate(survivors []ScoredGenome[G], target int, rng Rand) ([]G, error) {
	if err := checkRepopulate(len(survivors), target, rng); err != nil {
		return nil, err
	}
	if err := r.validateConfig(); err != nil {
		return nil, err
	}

	next := carryElites(survivors, target, r.Elitism)
	species := Speciate(survivors, r.CompatibilityThreshold)

	sizes := make([]int, len(species))
	for i, sp := range species {
		sizes[i] = len(sp.Members)
	}
	quotas := offspringQuotas(sizes, target-len(next))

	r.lastPartition = summarizePartition(species, quotas)

	for i, sp := range species {
		for c := 0; c < quotas[i]; c++ {
			next = append(next, breedWithin(sp.Members, r.Ctx, r.Rate, r.Weighting, rng))
		}
	}
	return next, nil
}

// LastPartition reports the species layout of the most recent Repopulate
// call, or nil before the first call.
func (r *SpeciatedCrossoverRepopulator[G, C]) LastPartition() []SpeciesSummary {
	if r.lastPartition == nil {
		return nil
	}
	out := make([]SpeciesSummary, len(r.lastPartition))
	copy(out, r.lastPartition)
	return out
}

func breedWithin[G CrossableGenome[G, C], C any](members []ScoredGenome[G], ctx C, rate float64, weighting ParentWeighting, rng Rand) G {
	if len(members) < 2 {
		return members[0].Genome.Divide(ctx, rate, rng)
	}
	a := pickParent(members, weighting, rng)
	b := rng.Intn(len(members) - 1)
	if b >= a {
		b++
	}
	return members[a].Genome.Crossover(members[b].Genome, ctx, rate, rng)
}

// offspringQuotas splits total offspring slots across species proportionally
// to size using largest-remainder rounding, so quotas always sum to total.
// Remainder slots go to the largest fractional part first, with ties broken
// by species size and then by species index.
func offspringQuotas(sizes []int, total int) []int {
	quotas := make([]int, len(sizes))
	if total <= 0 || len(sizes) == 0 {
		return quotas
	}
	sum := 0
	for _, s := range sizes {
		sum += s
	}
	if sum == 0 {
		return quotas
	}

	type remainder struct {
		idx  int
		frac float64
	}
	rem := make([]remainder, len(sizes))
	assigned := 0
	for i, s := range sizes {
		share := float64(s) / float64(sum) * float64(total)
		quotas[i] = int(share)
		assigned += quotas[i]
		rem[i] = remainder{idx: i, frac: share - float64(quotas[i])}
	}
	sort.Slice(rem, func(a, b int) bool {
		if rem[a].frac != rem[b].frac {
			return rem[a].frac > rem[b].frac
		}
		if sizes[rem[a].idx] != sizes[rem[b].idx] {
			return sizes[rem[a].idx] > sizes[rem[b].idx]
		}
		return rem[a].idx < rem[b].idx
	})
	for k := 0; assigned < total; k++ {
		quotas[rem[k%len(rem)].idx]++
		assigned++
	}
	return quotas
}

func summarizePartition[G any](species []Species[G], quotas []int) []SpeciesSummary {
	out := make([]SpeciesSummary, len(species))
	for i, sp := range species {
		best := sp.Members[0].Fitness
		sum := 0.0
		for _, m := range sp.Members {
			if m.Fitness > best {
				best = m.Fitness
			}
			sum += m.Fitness
		}
		out[i] = SpeciesSummary{
			Index:       i,
			Size:        len(sp.Members),
			Offspring:   quotas[i],
			BestFitness: best,
			MeanFitness: sum / float64(len(sp.Members)),
		}
	}
	return out
}

package gonos

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FitnessFunc scores one genome; higher is better. The engine calls it
// exactly once per genome per generation.
type FitnessFunc[G any] func(G) float64

// ScoredGenome pairs a genome with its fitness for the current generation.
// Index is the genome's position in the evaluated population and drives
// every deterministic tie-break.
type ScoredGenome[G any] struct {
	Genome  G
	Fitness float64
	Index   int
}

// Eliminator ranks or filters a population by fitness and decides which
// genomes survive into repopulation. Survivors keep their scores so
// repopulation strategies can weight parent choice.
type Eliminator[G any] interface {
	Eliminate(ctx context.Context, population []G) ([]ScoredGenome[G], error)
}

// FitnessEliminator retains the top share of the population by fitness.
// With survival rate r over n genomes it keeps floor(n*r)+1 capped at n, so
// at least one genome survives any non-empty generation. Ties at the cut
// keep the earlier population index.
type FitnessEliminator[G any] struct {
	fitness FitnessFunc[G]
	rate    float64

	// Workers > 1 evaluates fitness across a worker pool; results are
	// reassembled in population order before ranking.
	Workers  int
	Observer Observer
	Shaper   FitnessShaper[G]
}

// NewFitnessEliminator validates the survival rate and binds the fitness
// function.
func NewFitnessEliminator[G any](fitness FitnessFunc[G], survivalRate float64) (*FitnessEliminator[G], error) {
	if fitness == nil {
		return nil, fmt.Errorf("%w: fitness function is required", ErrInvalidConfiguration)
	}
	if survivalRate < 0 || survivalRate > 1 {
		return nil, fmt.Errorf("%w: survival rate must be in [0, 1], got %v", ErrInvalidConfiguration, survivalRate)
	}
	return &FitnessEliminator[G]{fitness: fitness, rate: survivalRate}, nil
}

func (e *FitnessEliminator[G]) Eliminate(ctx context.Context, population []G) ([]ScoredGenome[G], error) {
	scored, err := evaluatePopulation(ctx, population, e.fitness, e.Workers)
	if err != nil {
		return nil, err
	}
	scored = shapeScores(e.Shaper, scored)
	keep := 0
	if len(population) > 0 {
		keep = int(float64(len(population))*e.rate) + 1
		if keep > len(population) {
			keep = len(population)
		}
	}
	ranked := rankByFitness(scored)
	survivors := ranked[:keep]
	observeGeneration(e.Observer, scored, len(survivors))
	disposeDiscarded(scored, survivors)
	return survivors, nil
}

// CutoffEliminator retains every genome whose fitness is at or above Min.
// Unlike the other policies it may legitimately return zero survivors; the
// caller decides whether to stop the run.
type CutoffEliminator[G any] struct {
	fitness FitnessFunc[G]

	Min      float64
	Workers  int
	Observer Observer
	Shaper   FitnessShaper[G]
}

// NewCutoffEliminator binds the fitness function and the absolute survival
// threshold.
func NewCutoffEliminator[G any](fitness FitnessFunc[G], min float64) (*CutoffEliminator[G], error) {
	if fitness == nil {
		return nil, fmt.Errorf("%w: fitness function is required", ErrInvalidConfiguration)
	}
	return &CutoffEliminator[G]{fitness: fitness, Min: min}, nil
}

func (e *CutoffEliminator[G]) Eliminate(ctx context.Context, population []G) ([]ScoredGenome[G], error) {
	scored, err := evaluatePopulation(ctx, population, e.fitness, e.Workers)
	if err != nil {
		return nil, err
	}
	scored = shapeScores(e.Shaper, scored)
	ranked := rankByFitness(scored)
	keep := 0
	for keep < len(ranked) && ranked[keep].Fitness >= e.Min {
		keep++
	}
	survivors := ranked[:keep]
	observeGeneration(e.Observer, scored, len(survivors))
	disposeDiscarded(scored, survivors)
	return survivors, nil
}

// TopKEliminator retains exactly K highest-fitness genomes, sorted
// descending; ties broken by earlier population index.
type TopKEliminator[G any] struct {
	fitness FitnessFunc[G]
	k       int

	Workers  int
	Observer Observer
	Shaper   FitnessShaper[G]
}

// NewTopKEliminator validates k >= 1; k larger than the evaluated
// population surfaces as ErrInvalidConfiguration at elimination time, since
// the population size is unknown here.
func NewTopKEliminator[G any](fitness FitnessFunc[G], k int) (*TopKEliminator[G], error) {
	if fitness == nil {
		return nil, fmt.Errorf("%w: fitness function is required", ErrInvalidConfiguration)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: top-k count must be >= 1, got %d", ErrInvalidConfiguration, k)
	}
	return &TopKEliminator[G]{fitness: fitness, k: k}, nil
}

func (e *TopKEliminator[G]) Eliminate(ctx context.Context, population []G) ([]ScoredGenome[G], error) {
	if len(population) == 0 {
		observeGeneration[G](e.Observer, nil, 0)
		return nil, nil
	}
	if e.k > len(population) {
		return nil, fmt.Errorf("%w: top-k count %d exceeds population size %d", ErrInvalidConfiguration, e.k, len(population))
	}
	scored, err := evaluatePopulation(ctx, population, e.fitness, e.Workers)
	if err != nil {
		return nil, err
	}
	scored = shapeScores(e.Shaper, scored)
	ranked := rankByFitness(scored)
	survivors := ranked[:e.k]
	observeGeneration(e.Observer, scored, len(survivors))
	disposeDiscarded(scored, survivors)
	return survivors, nil
}

func evaluatePopulation[G any](ctx context.Context, population []G, fitness FitnessFunc[G], workers int) ([]ScoredGenome[G], error) {
	if workers <= 1 || len(population) < 2 {
		scored := make([]ScoredGenome[G], len(population))
		for i := range population {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scored[i] = ScoredGenome[G]{Genome: population[i], Fitness: fitness(population[i]), Index: i}
		}
		return scored, nil
	}

	type job struct {
		idx    int
		genome G
	}
	type result struct {
		idx    int
		scored ScoredGenome[G]
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				results <- result{idx: j.idx, scored: ScoredGenome[G]{
					Genome:  j.genome,
					Fitness: fitness(j.genome),
					Index:   j.idx,
				}}
			}
		}()
	}

	for i := range population {
		jobs <- job{idx: i, genome: population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scored := make([]ScoredGenome[G], len(population))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scored[res.idx] = res.scored
	}
	return scored, nil
}

// rankByFitness orders scored genomes by fitness descending, ties by
// original population index ascending.
func rankByFitness[G any](scored []ScoredGenome[G]) []ScoredGenome[G] {
	ranked := cloneScored(scored)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Fitness == ranked[j].Fitness {
			return ranked[i].Index < ranked[j].Index
		}
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

func disposeDiscarded[G any](scored, survivors []ScoredGenome[G]) {
	kept := make(map[int]struct{}, len(survivors))
	for _, sg := range survivors {
		kept[sg.Index] = struct{}{}
	}
	for _, sg := range scored {
		if _, ok := kept[sg.Index]; ok {
			continue
		}
		if d, ok := any(sg.Genome).(Disposer); ok {
			d.Dispose()
		}
	}
}

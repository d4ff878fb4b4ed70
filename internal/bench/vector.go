package bench

import (
	"fmt"
	"math"

	"gonos/pkg/gonos"
)

const (
	// vectorDomain bounds the initial uniform draw for every coordinate.
	vectorDomain = 5.12
	// vectorStep scales the gaussian perturbation applied by mutation.
	vectorStep = 0.25
)

// VectorCtx is the reproduction context shared by the continuous benches.
type VectorCtx struct {
	Step float64
}

// VectorGenome is a fixed-length point in R^n. It implements the full
// capability set, so every strategy and eliminator can run against it.
type VectorGenome struct {
	Values []float64 `json:"values"`
}

func (g *VectorGenome) Mutate(ctx VectorCtx, rate float64, rng gonos.Rand) {
	if rate <= 0 {
		return
	}
	for i := range g.Values {
		if rng.Float64() < rate {
			g.Values[i] += rng.NormFloat64() * ctx.Step
		}
	}
}

func (g VectorGenome) Divide(ctx VectorCtx, rate float64, rng gonos.Rand) VectorGenome {
	child := VectorGenome{Values: append([]float64(nil), g.Values...)}
	child.Mutate(ctx, rate, rng)
	return child
}

// Crossover draws each coordinate from one parent or the other, then runs
// the mutation pass at rate.
func (g VectorGenome) Crossover(partner VectorGenome, ctx VectorCtx, rate float64, rng gonos.Rand) VectorGenome {
	child := VectorGenome{Values: make([]float64, len(g.Values))}
	for i := range child.Values {
		if rng.Float64() < 0.5 && i < len(partner.Values) {
			child.Values[i] = partner.Values[i]
		} else {
			child.Values[i] = g.Values[i]
		}
	}
	child.Mutate(ctx, rate, rng)
	return child
}

// SpeciesDistance is the euclidean distance between the two points.
func (g VectorGenome) SpeciesDistance(other VectorGenome) float64 {
	n := len(g.Values)
	if len(other.Values) < n {
		n = len(other.Values)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := g.Values[i] - other.Values[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func vectorGenerator(dimensions int) gonos.Generator[VectorGenome] {
	return func(rng gonos.Rand) VectorGenome {
		values := make([]float64, dimensions)
		for i := range values {
			values[i] = (rng.Float64()*2 - 1) * vectorDomain
		}
		return VectorGenome{Values: values}
	}
}

// SphereProblem minimizes the sphere function sum(x_i^2). Fitness is the
// negated objective, so the optimum sits at fitness zero.
type SphereProblem struct{}

func (SphereProblem) Name() string { return "sphere" }

func (SphereProblem) Describe() string {
	return "minimize sum(x^2) over a real vector; optimum fitness 0 at the origin"
}

func (SphereProblem) NewRun(params Params, obs gonos.Observer) (*Run, error) {
	return newVectorRun("sphere", sphereFitness, params, obs)
}

func sphereFitness(g VectorGenome) float64 {
	var sum float64
	for _, v := range g.Values {
		sum += v * v
	}
	return -sum
}

// RastriginProblem minimizes the rastrigin function, a multimodal surface
// with a regular grid of local optima. Fitness is the negated objective.
type RastriginProblem struct{}

func (RastriginProblem) Name() string { return "rastrigin" }

func (RastriginProblem) Describe() string {
	return "minimize the multimodal rastrigin function; optimum fitness 0 at the origin"
}

func (RastriginProblem) NewRun(params Params, obs gonos.Observer) (*Run, error) {
	return newVectorRun("rastrigin", rastriginFitness, params, obs)
}

func rastriginFitness(g VectorGenome) float64 {
	sum := 10 * float64(len(g.Values))
	for _, v := range g.Values {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return -sum
}

func newVectorRun(name string, fitness gonos.FitnessFunc[VectorGenome], params Params, obs gonos.Observer) (*Run, error) {
	if err := params.validateCommon(); err != nil {
		return nil, fmt.Errorf("bench %s: %w", name, err)
	}
	if params.Dimensions <= 0 {
		return nil, fmt.Errorf("bench %s: dimensions must be > 0, got %d", name, params.Dimensions)
	}

	eliminator, err := newEliminator(fitness, params, obs)
	if err != nil {
		return nil, fmt.Errorf("bench %s: %w", name, err)
	}
	repopulator, err := newVectorRepopulator(params)
	if err != nil {
		return nil, fmt.Errorf("bench %s: %w", name, err)
	}

	population, err := gonos.RandomPopulationParallel(params.PopulationSize, params.Workers, params.Seed, vectorGenerator(params.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("bench %s: %w", name, err)
	}
	sim, err := gonos.New(population, eliminator, repopulator, gonos.WithSeed(params.Seed))
	if err != nil {
		return nil, fmt.Errorf("bench %s: %w", name, err)
	}
	run := NewEngineRun(sim, fitness)
	if sp, ok := repopulator.(*gonos.SpeciatedCrossoverRepopulator[VectorGenome, VectorCtx]); ok {
		run.species = sp.LastPartition
	}
	return run, nil
}

func newVectorRepopulator(params Params) (gonos.Repopulator[VectorGenome], error) {
	ctx := VectorCtx{Step: vectorStep}
	switch params.Strategy {
	case StrategyMitosis:
		return gonos.MitosisRepopulator[VectorGenome, VectorCtx]{
			Rate:      params.MutationRate,
			Ctx:       ctx,
			Elitism:   params.Elitism,
			Weighting: params.Weighting,
		}, nil
	case StrategyCrossover:
		return gonos.CrossoverRepopulator[VectorGenome, VectorCtx]{
			Rate:      params.MutationRate,
			Ctx:       ctx,
			Elitism:   params.Elitism,
			Weighting: params.Weighting,
		}, nil
	case StrategySpeciated:
		return &gonos.SpeciatedCrossoverRepopulator[VectorGenome, VectorCtx]{
			Rate:                   params.MutationRate,
			Ctx:                    ctx,
			CompatibilityThreshold: params.Threshold,
			Elitism:                params.Elitism,
			Weighting:              params.Weighting,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, params.Strategy)
	}
}

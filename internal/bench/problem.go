// Package bench defines the built-in benchmark problems that exercise the
// evolution engine end to end. A Problem turns run parameters into a typed
// simulation and hands it back behind a genome-agnostic Run handle, so the
// lab and the CLI can drive any bench without knowing its genome type.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gonos/pkg/gonos"
)

var (
	ErrUnknownStrategy   = errors.New("unknown repopulation strategy")
	ErrUnknownEliminator = errors.New("unknown eliminator")
	ErrUnknownWeighting  = errors.New("unknown parent weighting")
)

// Strategy selects how survivors repopulate the next generation.
type Strategy int

const (
	StrategyMitosis Strategy = iota
	StrategyCrossover
	StrategySpeciated
)

func (s Strategy) String() string {
	switch s {
	case StrategyMitosis:
		return "mitosis"
	case StrategyCrossover:
		return "crossover"
	case StrategySpeciated:
		return "speciated"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "mitosis":
		return StrategyMitosis, nil
	case "crossover":
		return StrategyCrossover, nil
	case "speciated":
		return StrategySpeciated, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
}

// EliminatorKind selects the survivor-selection policy.
type EliminatorKind int

const (
	EliminatorPercentile EliminatorKind = iota
	EliminatorTopK
	EliminatorCutoff
)

func (e EliminatorKind) String() string {
	switch e {
	case EliminatorPercentile:
		return "percentile"
	case EliminatorTopK:
		return "topk"
	case EliminatorCutoff:
		return "cutoff"
	default:
		return fmt.Sprintf("eliminator(%d)", int(e))
	}
}

func ParseEliminator(name string) (EliminatorKind, error) {
	switch name {
	case "percentile":
		return EliminatorPercentile, nil
	case "topk":
		return EliminatorTopK, nil
	case "cutoff":
		return EliminatorCutoff, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownEliminator, name)
	}
}

func ParseWeighting(name string) (gonos.ParentWeighting, error) {
	switch name {
	case "uniform":
		return gonos.UniformWeighting, nil
	case "fitness":
		return gonos.FitnessWeighting, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownWeighting, name)
	}
}

func WeightingName(w gonos.ParentWeighting) string {
	switch w {
	case gonos.FitnessWeighting:
		return "fitness"
	default:
		return "uniform"
	}
}

// Params carries every knob a bench understands. Benches that do not use a
// field ignore it; NewRun validates the ones they do use.
type Params struct {
	PopulationSize int
	Strategy       Strategy
	Eliminator     EliminatorKind
	SurvivalRate   float64
	TopK           int
	CutoffMin      float64
	MutationRate   float64
	Elitism        bool
	Weighting      gonos.ParentWeighting
	Threshold      float64
	Workers        int
	Seed           int64

	// Dimensions applies to the vector benches, Target to the phrase bench.
	Dimensions int
	Target     string
}

// DefaultParams returns the baseline configuration the CLI starts from.
func DefaultParams() Params {
	return Params{
		PopulationSize: 64,
		Strategy:       StrategyCrossover,
		Eliminator:     EliminatorPercentile,
		SurvivalRate:   0.5,
		TopK:           8,
		CutoffMin:      0,
		MutationRate:   0.25,
		Elitism:        true,
		Weighting:      gonos.UniformWeighting,
		Threshold:      1.5,
		Workers:        1,
		Seed:           0,
		Dimensions:     8,
		Target:         "to be or not to be",
	}
}

func (p Params) validateCommon() error {
	if p.PopulationSize <= 0 {
		return fmt.Errorf("population size must be > 0, got %d", p.PopulationSize)
	}
	if p.MutationRate < 0 {
		return fmt.Errorf("mutation rate must be >= 0, got %f", p.MutationRate)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", p.Workers)
	}
	return nil
}

// Problem is a registered benchmark. NewRun builds a fresh simulation for the
// given parameters and installs obs on its eliminator so callers can watch
// each generation.
type Problem interface {
	Name() string
	Describe() string
	NewRun(params Params, obs gonos.Observer) (*Run, error)
}

// Solution is one ranked genome from a finished run, serialized for storage.
type Solution struct {
	Rank    int
	Fitness float64
	Genome  json.RawMessage
}

// Run drives one simulation without exposing its genome type. All methods
// delegate to the typed engine captured at construction.
type Run struct {
	step       func(ctx context.Context) error
	generation func() int
	size       func() int
	solutions  func(k int) ([]Solution, error)
	species    func() []gonos.SpeciesSummary
}

// Step advances the run by one generation.
func (r *Run) Step(ctx context.Context) error { return r.step(ctx) }

// Generation reports how many generations have completed.
func (r *Run) Generation() int { return r.generation() }

// PopulationSize reports the current population size.
func (r *Run) PopulationSize() int { return r.size() }

// Solutions scores the current population and returns the best k genomes in
// descending fitness order, each marshaled to JSON.
func (r *Run) Solutions(k int) ([]Solution, error) { return r.solutions(k) }

// Species reports the species partition behind the latest generation, or
// nil when the run's strategy does not speciate.
func (r *Run) Species() []gonos.SpeciesSummary {
	if r.species == nil {
		return nil
	}
	return r.species()
}

// NewEngineRun erases the genome type of a simulation. The fitness function
// is kept alongside so final solutions can be scored and ranked.
func NewEngineRun[G any](sim *gonos.Sim[G], fitness gonos.FitnessFunc[G]) *Run {
	return &Run{
		step:       sim.Step,
		generation: sim.Generation,
		size:       func() int { return len(sim.Population()) },
		solutions: func(k int) ([]Solution, error) {
			return rankSolutions(sim.Population(), fitness, k)
		},
	}
}

// newEliminator builds the selection policy named by params and installs the
// worker count and observer on it.
func newEliminator[G any](fitness gonos.FitnessFunc[G], params Params, obs gonos.Observer) (gonos.Eliminator[G], error) {
	switch params.Eliminator {
	case EliminatorPercentile:
		e, err := gonos.NewFitnessEliminator(fitness, params.SurvivalRate)
		if err != nil {
			return nil, err
		}
		e.Workers = params.Workers
		e.Observer = obs
		return e, nil
	case EliminatorTopK:
		e, err := gonos.NewTopKEliminator(fitness, params.TopK)
		if err != nil {
			return nil, err
		}
		e.Workers = params.Workers
		e.Observer = obs
		return e, nil
	case EliminatorCutoff:
		e, err := gonos.NewCutoffEliminator(fitness, params.CutoffMin)
		if err != nil {
			return nil, err
		}
		e.Workers = params.Workers
		e.Observer = obs
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEliminator, params.Eliminator)
	}
}

func rankSolutions[G any](population []G, fitness gonos.FitnessFunc[G], k int) ([]Solution, error) {
	if k < 0 {
		return nil, fmt.Errorf("solution count must be >= 0, got %d", k)
	}
	type scored struct {
		genome  G
		fitness float64
		index   int
	}
	all := make([]scored, len(population))
	for i, g := range population {
		all[i] = scored{genome: g, fitness: fitness(g), index: i}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].fitness != all[j].fitness {
			return all[i].fitness > all[j].fitness
		}
		return all[i].index < all[j].index
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]Solution, 0, k)
	for i := 0; i < k; i++ {
		raw, err := json.Marshal(all[i].genome)
		if err != nil {
			return nil, fmt.Errorf("marshal solution %d: %w", i, err)
		}
		out = append(out, Solution{Rank: i + 1, Fitness: all[i].fitness, Genome: raw})
	}
	return out, nil
}

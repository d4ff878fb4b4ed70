package main

import (
	"fmt"
	"sort"

	"gopkg.in/ini.v1"

	"gonos/internal/bench"
	"gonos/internal/lab"
)

const defaultProfilesFile = "profiles.ini"

// runSpec holds the merged flag and profile values for the run command
// before they are parsed into typed engine parameters.
type runSpec struct {
	RunID        string  `json:"run_id,omitempty"`
	Bench        string  `json:"bench"`
	Strategy     string  `json:"strategy"`
	Eliminator   string  `json:"eliminator"`
	Weighting    string  `json:"weighting"`
	Population   int     `json:"population"`
	Generations  int     `json:"generations"`
	SurvivalRate float64 `json:"survival_rate"`
	TopK         int     `json:"top_k"`
	CutoffMin    float64 `json:"cutoff_min"`
	MutationRate float64 `json:"mutation_rate"`
	Elitism      bool    `json:"elitism"`
	Threshold    float64 `json:"threshold"`
	Workers      int     `json:"workers"`
	Seed         int64   `json:"seed"`
	Dimensions   int     `json:"dimensions"`
	Target       string  `json:"target"`
	FitnessGoal  float64 `json:"fitness_goal"`
	StopAtGoal   bool    `json:"stop_at_goal"`
}

func defaultRunSpec() runSpec {
	params := bench.DefaultParams()
	return runSpec{
		Bench:        "sphere",
		Strategy:     params.Strategy.String(),
		Eliminator:   params.Eliminator.String(),
		Weighting:    bench.WeightingName(params.Weighting),
		Population:   params.PopulationSize,
		Generations:  100,
		SurvivalRate: params.SurvivalRate,
		TopK:         params.TopK,
		CutoffMin:    params.CutoffMin,
		MutationRate: params.MutationRate,
		Elitism:      params.Elitism,
		Threshold:    params.Threshold,
		Workers:      params.Workers,
		Seed:         params.Seed,
		Dimensions:   params.Dimensions,
		Target:       params.Target,
	}
}

func (s runSpec) toRunConfig() (lab.RunConfig, error) {
	strategy, err := bench.ParseStrategy(s.Strategy)
	if err != nil {
		return lab.RunConfig{}, err
	}
	eliminator, err := bench.ParseEliminator(s.Eliminator)
	if err != nil {
		return lab.RunConfig{}, err
	}
	weighting, err := bench.ParseWeighting(s.Weighting)
	if err != nil {
		return lab.RunConfig{}, err
	}

	return lab.RunConfig{
		RunID: s.RunID,
		Bench: s.Bench,
		Params: bench.Params{
			PopulationSize: s.Population,
			Strategy:       strategy,
			Eliminator:     eliminator,
			SurvivalRate:   s.SurvivalRate,
			TopK:           s.TopK,
			CutoffMin:      s.CutoffMin,
			MutationRate:   s.MutationRate,
			Elitism:        s.Elitism,
			Weighting:      weighting,
			Threshold:      s.Threshold,
			Workers:        s.Workers,
			Seed:           s.Seed,
			Dimensions:     s.Dimensions,
			Target:         s.Target,
		},
		Generations: s.Generations,
		FitnessGoal: s.FitnessGoal,
		StopAtGoal:  s.StopAtGoal,
	}, nil
}

func listProfiles(path string) ([]string, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles %s: %w", path, err)
	}

	names := make([]string, 0, len(cfg.Sections()))
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		names = append(names, section.Name())
	}
	sort.Strings(names)
	return names, nil
}

func applyProfile(spec *runSpec, path, name string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load profiles %s: %w", path, err)
	}
	section, err := cfg.GetSection(name)
	if err != nil {
		return fmt.Errorf("unknown profile: %s", name)
	}

	for _, key := range section.Keys() {
		if err := applyProfileKey(spec, key); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return nil
}

func applyProfileKey(spec *runSpec, key *ini.Key) error {
	switch key.Name() {
	case "bench":
		spec.Bench = key.String()
	case "strategy":
		spec.Strategy = key.String()
	case "eliminator":
		spec.Eliminator = key.String()
	case "weighting":
		spec.Weighting = key.String()
	case "target":
		spec.Target = key.String()
	case "pop":
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("key pop: %w", err)
		}
		spec.Population = v
	case "gens":
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("key gens: %w", err)
		}
		spec.Generations = v
	case "top-k":
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("key top-k: %w", err)
		}
		spec.TopK = v
	case "workers":
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("key workers: %w", err)
		}
		spec.Workers = v
	case "dims":
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("key dims: %w", err)
		}
		spec.Dimensions = v
	case "seed":
		v, err := key.Int64()
		if err != nil {
			return fmt.Errorf("key seed: %w", err)
		}
		spec.Seed = v
	case "survival-rate":
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("key survival-rate: %w", err)
		}
		spec.SurvivalRate = v
	case "cutoff-min":
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("key cutoff-min: %w", err)
		}
		spec.CutoffMin = v
	case "rate":
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("key rate: %w", err)
		}
		spec.MutationRate = v
	case "threshold":
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("key threshold: %w", err)
		}
		spec.Threshold = v
	case "fitness-goal":
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("key fitness-goal: %w", err)
		}
		spec.FitnessGoal = v
		spec.StopAtGoal = true
	case "elitism":
		v, err := key.Bool()
		if err != nil {
			return fmt.Errorf("key elitism: %w", err)
		}
		spec.Elitism = v
	default:
		return fmt.Errorf("unknown key: %s", key.Name())
	}
	return nil
}

func overrideFromFlags(spec *runSpec, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			spec.RunID = v.(string)
		case "bench":
			spec.Bench = v.(string)
		case "strategy":
			spec.Strategy = v.(string)
		case "eliminator":
			spec.Eliminator = v.(string)
		case "weighting":
			spec.Weighting = v.(string)
		case "pop":
			spec.Population = v.(int)
		case "gens":
			spec.Generations = v.(int)
		case "survival-rate":
			spec.SurvivalRate = v.(float64)
		case "top-k":
			spec.TopK = v.(int)
		case "cutoff-min":
			spec.CutoffMin = v.(float64)
		case "rate":
			spec.MutationRate = v.(float64)
		case "elitism":
			spec.Elitism = v.(bool)
		case "threshold":
			spec.Threshold = v.(float64)
		case "workers":
			spec.Workers = v.(int)
		case "seed":
			spec.Seed = v.(int64)
		case "dims":
			spec.Dimensions = v.(int)
		case "target":
			spec.Target = v.(string)
		case "fitness-goal":
			spec.FitnessGoal = v.(float64)
			spec.StopAtGoal = true
		}
	}
}

package bench

import (
	"fmt"
	"strings"

	"gonos/pkg/gonos"
)

const phraseAlphabet = "abcdefghijklmnopqrstuvwxyz "

// PhraseCtx is the reproduction context for the phrase bench.
type PhraseCtx struct {
	Alphabet string
}

// PhraseGenome is a candidate string evolved toward a target phrase. It
// implements only mutation and division, which keeps one built-in bench on
// the asexual path.
type PhraseGenome struct {
	Text string `json:"text"`
}

func (g *PhraseGenome) Mutate(ctx PhraseCtx, rate float64, rng gonos.Rand) {
	if rate <= 0 || len(ctx.Alphabet) == 0 {
		return
	}
	chars := []byte(g.Text)
	for i := range chars {
		if rng.Float64() < rate {
			chars[i] = ctx.Alphabet[rng.Intn(len(ctx.Alphabet))]
		}
	}
	g.Text = string(chars)
}

func (g PhraseGenome) Divide(ctx PhraseCtx, rate float64, rng gonos.Rand) PhraseGenome {
	return gonos.MitosisFromMutation[PhraseGenome, PhraseCtx, *PhraseGenome](g, ctx, rate, rng)
}

// PhraseProblem evolves random strings toward a target phrase. Fitness is
// the fraction of positions that already match, so 1 means solved.
type PhraseProblem struct{}

func (PhraseProblem) Name() string { return "phrase" }

func (PhraseProblem) Describe() string {
	return "evolve a lowercase string toward a target phrase; fitness 1 means an exact match"
}

func (PhraseProblem) NewRun(params Params, obs gonos.Observer) (*Run, error) {
	if err := params.validateCommon(); err != nil {
		return nil, fmt.Errorf("bench phrase: %w", err)
	}
	target := params.Target
	if target == "" {
		return nil, fmt.Errorf("bench phrase: target phrase is required")
	}
	for i := 0; i < len(target); i++ {
		if strings.IndexByte(phraseAlphabet, target[i]) < 0 {
			return nil, fmt.Errorf("bench phrase: target has unsupported character %q, allowed characters are %q", target[i], phraseAlphabet)
		}
	}
	if params.Strategy != StrategyMitosis {
		return nil, fmt.Errorf("bench phrase: strategy %s is not supported, the phrase genome only divides", params.Strategy)
	}

	fitness := phraseFitness(target)
	eliminator, err := newEliminator(fitness, params, obs)
	if err != nil {
		return nil, fmt.Errorf("bench phrase: %w", err)
	}
	repopulator := gonos.MitosisRepopulator[PhraseGenome, PhraseCtx]{
		Rate:      params.MutationRate,
		Ctx:       PhraseCtx{Alphabet: phraseAlphabet},
		Elitism:   params.Elitism,
		Weighting: params.Weighting,
	}

	population, err := gonos.RandomPopulationParallel(params.PopulationSize, params.Workers, params.Seed, phraseGenerator(len(target)))
	if err != nil {
		return nil, fmt.Errorf("bench phrase: %w", err)
	}
	sim, err := gonos.New(population, eliminator, repopulator, gonos.WithSeed(params.Seed))
	if err != nil {
		return nil, fmt.Errorf("bench phrase: %w", err)
	}
	return NewEngineRun(sim, fitness), nil
}

func phraseFitness(target string) gonos.FitnessFunc[PhraseGenome] {
	return func(g PhraseGenome) float64 {
		matches := 0
		for i := 0; i < len(target) && i < len(g.Text); i++ {
			if g.Text[i] == target[i] {
				matches++
			}
		}
		return float64(matches) / float64(len(target))
	}
}

func phraseGenerator(length int) gonos.Generator[PhraseGenome] {
	return func(rng gonos.Rand) PhraseGenome {
		chars := make([]byte, length)
		for i := range chars {
			chars[i] = phraseAlphabet[rng.Intn(len(phraseAlphabet))]
		}
		return PhraseGenome{Text: string(chars)}
	}
}


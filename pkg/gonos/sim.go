// Package gonos is a generational evolutionary-computation engine. A Sim
// couples a population of genomes with an elimination policy and a
// repopulation strategy and advances them generation by generation: score,
// cull, rebuild. Genome types opt into capabilities through small
// interfaces (mutation, division, crossover, speciation), and every
// stochastic choice draws from an injected random source so a run is
// reproducible from its seed.
package gonos

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSurvivors reports a repopulation attempt with an empty survivor
	// list, typically after an elimination pass discarded every genome.
	ErrNoSurvivors = errors.New("no survivors")

	// ErrInvalidConfiguration reports a policy or engine parameter outside
	// its valid range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Sim drives a population of genomes through repeated generations. It is
// not safe for concurrent use; run one Sim per goroutine.
type Sim[G any] struct {
	genomes     []G
	eliminator  Eliminator[G]
	repopulator Repopulator[G]
	rng         Rand
	generation  int
}

type simOptions struct {
	rng Rand
}

// Option adjusts Sim construction.
type Option func(*simOptions)

// WithRand supplies the random source used for repopulation. The source is
// used from the Sim's own goroutine only.
func WithRand(rng Rand) Option {
	return func(o *simOptions) {
		o.rng = rng
	}
}

// WithSeed is shorthand for WithRand(NewRand(seed)).
func WithSeed(seed int64) Option {
	return func(o *simOptions) {
		o.rng = NewRand(seed)
	}
}

// New builds a Sim over a copy of the initial population. Policy
// configuration is checked here so misconfigured eliminators and
// repopulators fail at construction rather than mid-run. Without a
// WithRand or WithSeed option the Sim seeds itself from the clock.
func New[G any](initial []G, eliminator Eliminator[G], repopulator Repopulator[G], opts ...Option) (*Sim[G], error) {
	if eliminator == nil {
		return nil, fmt.Errorf("%w: eliminator is required", ErrInvalidConfiguration)
	}
	if repopulator == nil {
		return nil, fmt.Errorf("%w: repopulator is required", ErrInvalidConfiguration)
	}
	o := simOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = NewRand(time.Now().UnixNano())
	}
	if v, ok := eliminator.(configValidator); ok {
		if err := v.validateConfig(); err != nil {
			return nil, err
		}
	}
	if v, ok := repopulator.(configValidator); ok {
		if err := v.validateConfig(); err != nil {
			return nil, err
		}
	}
	genomes := make([]G, len(initial))
	copy(genomes, initial)
	return &Sim[G]{
		genomes:     genomes,
		eliminator:  eliminator,
		repopulator: repopulator,
		rng:         o.rng,
	}, nil
}

type configValidator interface {
	validateConfig() error
}

// Step advances the population by one generation: eliminate, then
// repopulate back to the size the population had on entry. On error the
// previous population is left untouched, so a failed step can be
// retried or inspected.
func (s *Sim[G]) Step(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	target := len(s.genomes)
	survivors, err := s.eliminator.Eliminate(ctx, s.genomes)
	if err != nil {
		return fmt.Errorf("eliminate generation %d: %w", s.generation, err)
	}
	next, err := s.repopulator.Repopulate(survivors, target, s.rng)
	if err != nil {
		return fmt.Errorf("repopulate generation %d: %w", s.generation, err)
	}
	s.genomes = next
	s.generation++
	return nil
}

// Run advances the population by n generations, checking for cancellation
// between steps. A canceled context stops the run at a generation boundary
// with the last completed population intact.
func (s *Sim[G]) Run(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: generation count must be >= 0, got %d", ErrInvalidConfiguration, n)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run stopped at generation %d: %w", s.generation, err)
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Population returns the current genomes. The slice is the Sim's working
// copy; callers must not modify it while the Sim is in use.
func (s *Sim[G]) Population() []G {
	return s.genomes
}

// Generation returns the number of completed steps.
func (s *Sim[G]) Generation() int {
	return s.generation
}

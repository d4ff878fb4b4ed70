package bench

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrBenchExists   = errors.New("bench already registered")
	ErrBenchNotFound = errors.New("bench not found")
)

var benchRegistry = struct {
	mu sync.RWMutex
	m  map[string]Problem
}{
	m: make(map[string]Problem),
}

func init() {
	initializeBuiltInBenches()
}

func initializeBuiltInBenches() {
	MustRegister(SphereProblem{})
	MustRegister(RastriginProblem{})
	MustRegister(PhraseProblem{})
}

// Register adds a problem under its own name. Names are unique.
func Register(p Problem) error {
	if p == nil {
		return errors.New("bench problem is required")
	}
	name := p.Name()
	if name == "" {
		return errors.New("bench name is required")
	}

	benchRegistry.mu.Lock()
	defer benchRegistry.mu.Unlock()

	if _, exists := benchRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrBenchExists, name)
	}
	benchRegistry.m[name] = p
	return nil
}

func MustRegister(p Problem) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Resolve returns the problem registered under name.
func Resolve(name string) (Problem, error) {
	benchRegistry.mu.RLock()
	defer benchRegistry.mu.RUnlock()

	p, ok := benchRegistry.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBenchNotFound, name)
	}
	return p, nil
}

// List returns all registered bench names in sorted order.
func List() []string {
	benchRegistry.mu.RLock()
	defer benchRegistry.mu.RUnlock()

	names := make([]string, 0, len(benchRegistry.m))
	for name := range benchRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetBenchRegistryForTests() {
	benchRegistry.mu.Lock()
	benchRegistry.m = make(map[string]Problem)
	benchRegistry.mu.Unlock()
	initializeBuiltInBenches()
}

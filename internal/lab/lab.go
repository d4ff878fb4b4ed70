// Package lab coordinates evolution runs. A Lab owns the archive store,
// routes pause/continue/stop commands to active runs, and persists run
// records, generation history, and ranked solutions when a run finishes.
// When an artifacts directory is configured it also lays the run out on
// disk for offline analysis.
package lab

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gonos/internal/archive"
	"gonos/internal/bench"
	"gonos/internal/stats"
	"gonos/pkg/gonos"
)

// Command steers an active run between generations.
type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

// StopReason records why a run ended.
type StopReason string

const (
	StopReasonCompleted   StopReason = "completed"
	StopReasonGoalReached StopReason = "goal_reached"
	StopReasonStopped     StopReason = "stopped"
)

const defaultSolutionCount = 5

type Config struct {
	Store archive.Store

	// ArtifactsDir enables on-disk artifact export when non-empty.
	ArtifactsDir string

	// SolutionCount caps how many ranked genomes are kept per run.
	// Zero means the default of 5.
	SolutionCount int
}

type Lab struct {
	store         archive.Store
	artifactsDir  string
	solutionCount int

	mu      sync.RWMutex
	started bool
	runs    map[string]chan Command
}

func New(cfg Config) *Lab {
	count := cfg.SolutionCount
	if count <= 0 {
		count = defaultSolutionCount
	}
	return &Lab{
		store:         cfg.Store,
		artifactsDir:  cfg.ArtifactsDir,
		solutionCount: count,
		runs:          make(map[string]chan Command),
	}
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// Shutdown signals stop to every active run and marks the lab stopped. Runs
// observe the signal at their next generation boundary.
func (l *Lab) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, control := range l.runs {
		select {
		case control <- CommandStop:
		default:
		}
	}
	l.started = false
	l.runs = make(map[string]chan Command)
}

// RunConfig describes one evolution run.
type RunConfig struct {
	// RunID defaults to a fresh UUID when empty.
	RunID string

	Bench       string
	Params      bench.Params
	Generations int

	// FitnessGoal stops the run early once the best fitness of a
	// generation reaches it. Only consulted when StopAtGoal is set.
	FitnessGoal float64
	StopAtGoal  bool

	// StartPaused parks the run before the first generation until a
	// continue or stop command arrives.
	StartPaused bool

	// Control receives pause/continue/stop commands. A buffered channel is
	// created when nil.
	Control chan Command
}

// RunResult is the in-memory view of a finished run; the same data is
// persisted to the archive store before it is returned.
type RunResult struct {
	RunID            string
	Bench            string
	Generations      int
	BestFitness      float64
	StopReason       StopReason
	BestByGeneration []float64
	History          []archive.GenerationRecord
	Solutions        []archive.SolutionRecord

	// ArtifactsDir is the run's artifact directory, empty when export is
	// disabled.
	ArtifactsDir string
}

// generationRecorder captures the stats the eliminator reports for the most
// recent generation.
type generationRecorder struct {
	latest gonos.GenerationStats
	seen   bool
}

func (r *generationRecorder) Observe(stats gonos.GenerationStats) {
	r.latest = stats
	r.seen = true
}

// RunEvolution executes a run generation by generation and persists the
// outcome. Between generations it drains the control channel: pause blocks
// until continue or stop, stop ends the run with its progress intact. A
// canceled context aborts the run without persisting anything.
func (l *Lab) RunEvolution(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if cfg.Bench == "" {
		return RunResult{}, fmt.Errorf("bench name is required")
	}
	if cfg.Generations <= 0 {
		return RunResult{}, fmt.Errorf("generations must be > 0, got %d", cfg.Generations)
	}
	if !l.Started() {
		return RunResult{}, fmt.Errorf("lab is not initialized")
	}

	problem, err := bench.Resolve(cfg.Bench)
	if err != nil {
		return RunResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan Command, 16)
	}
	if err := l.registerRunControl(runID, control); err != nil {
		return RunResult{}, err
	}
	defer l.unregisterRunControl(runID)

	recorder := &generationRecorder{}
	run, err := problem.NewRun(cfg.Params, recorder)
	if err != nil {
		return RunResult{}, err
	}

	history := make([]archive.GenerationRecord, 0, cfg.Generations)
	bestSeries := make([]float64, 0, cfg.Generations)
	reason := StopReasonCompleted

	for gen := 0; gen < cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, fmt.Errorf("run %s stopped at generation %d: %w", runID, gen, err)
		}
		stopped, err := drainControl(ctx, control, cfg.StartPaused && gen == 0)
		if err != nil {
			return RunResult{}, fmt.Errorf("run %s stopped at generation %d: %w", runID, gen, err)
		}
		if stopped {
			reason = StopReasonStopped
			break
		}

		if err := run.Step(ctx); err != nil {
			return RunResult{}, fmt.Errorf("run %s: %w", runID, err)
		}
		if !recorder.seen {
			return RunResult{}, fmt.Errorf("run %s: bench %s did not report generation stats", runID, cfg.Bench)
		}

		generation := recorder.latest
		history = append(history, archive.GenerationRecord{
			Generation:   run.Generation(),
			Population:   generation.Population,
			Survivors:    generation.Survivors,
			BestFitness:  generation.BestFitness,
			WorstFitness: generation.WorstFitness,
			MeanFitness:  generation.MeanFitness,
			Species:      len(run.Species()),
		})
		bestSeries = append(bestSeries, generation.BestFitness)

		if cfg.StopAtGoal && generation.BestFitness >= cfg.FitnessGoal {
			reason = StopReasonGoalReached
			break
		}
	}

	solutions, err := run.Solutions(l.solutionCount)
	if err != nil {
		return RunResult{}, fmt.Errorf("run %s: %w", runID, err)
	}
	finalBest := 0.0
	if len(solutions) > 0 {
		finalBest = solutions[0].Fitness
	}

	runRecord := archive.RunRecord{
		VersionedRecord: archive.NewVersionedRecord(),
		ID:              runID,
		Bench:           cfg.Bench,
		Strategy:        cfg.Params.Strategy.String(),
		Eliminator:      cfg.Params.Eliminator.String(),
		PopulationSize:  cfg.Params.PopulationSize,
		Generations:     run.Generation(),
		BestFitness:     finalBest,
		StopReason:      string(reason),
		Seed:            cfg.Params.Seed,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339),
	}
	solutionRecords := make([]archive.SolutionRecord, 0, len(solutions))
	for _, s := range solutions {
		solutionRecords = append(solutionRecords, archive.SolutionRecord{
			VersionedRecord: archive.NewVersionedRecord(),
			RunID:           runID,
			Rank:            s.Rank,
			Fitness:         s.Fitness,
			Genome:          s.Genome,
		})
	}

	if err := l.store.SaveRun(ctx, runRecord); err != nil {
		return RunResult{}, err
	}
	if err := l.store.SaveHistory(ctx, runID, history); err != nil {
		return RunResult{}, err
	}
	if err := l.store.SaveSolutions(ctx, runID, solutionRecords); err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		RunID:            runID,
		Bench:            cfg.Bench,
		Generations:      run.Generation(),
		BestFitness:      finalBest,
		StopReason:       reason,
		BestByGeneration: bestSeries,
		History:          history,
		Solutions:        solutionRecords,
	}

	if l.artifactsDir != "" {
		runDir, err := stats.WriteRunArtifacts(l.artifactsDir, stats.RunArtifacts{
			Run:              runRecord,
			BestByGeneration: bestSeries,
			History:          history,
			Solutions:        solutionRecords,
		})
		if err != nil {
			return RunResult{}, err
		}
		if err := stats.AppendRunIndex(l.artifactsDir, stats.RunIndexEntry{
			RunID:            runRecord.ID,
			Bench:            runRecord.Bench,
			Strategy:         runRecord.Strategy,
			Eliminator:       runRecord.Eliminator,
			PopulationSize:   runRecord.PopulationSize,
			Generations:      runRecord.Generations,
			Seed:             runRecord.Seed,
			FinalBestFitness: runRecord.BestFitness,
			StopReason:       runRecord.StopReason,
			CreatedAtUTC:     runRecord.CreatedAtUTC,
		}); err != nil {
			return RunResult{}, err
		}
		result.ArtifactsDir = runDir
	}

	return result, nil
}

// drainControl consumes pending commands without blocking, except while
// paused: a pause parks the run until continue, stop, or cancellation.
func drainControl(ctx context.Context, control <-chan Command, paused bool) (bool, error) {
	for {
		if paused {
			select {
			case cmd := <-control:
				switch cmd {
				case CommandStop:
					return true, nil
				case CommandContinue:
					paused = false
				}
			case <-ctx.Done():
				return false, ctx.Err()
			}
			continue
		}
		select {
		case cmd := <-control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				paused = true
			}
		default:
			return false, nil
		}
	}
}

func (l *Lab) PauseRun(runID string) error {
	return l.sendRunCommand(runID, CommandPause)
}

func (l *Lab) ContinueRun(runID string) error {
	return l.sendRunCommand(runID, CommandContinue)
}

func (l *Lab) StopRun(runID string) error {
	return l.sendRunCommand(runID, CommandStop)
}

func (l *Lab) registerRunControl(runID string, control chan Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	if _, exists := l.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	l.runs[runID] = control
	return nil
}

func (l *Lab) unregisterRunControl(runID string) {
	if runID == "" {
		return
	}
	l.mu.Lock()
	delete(l.runs, runID)
	l.mu.Unlock()
}

func (l *Lab) sendRunCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.RLock()
	control, ok := l.runs[runID]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

// ActiveRuns lists the IDs of runs currently between start and finish.
func (l *Lab) ActiveRuns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.runs))
	for id := range l.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

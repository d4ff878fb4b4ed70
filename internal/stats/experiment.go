package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const experimentsDir = "experiments"

// Progress flags for Experiment.ProgressFlag.
const (
	ExperimentInProgress = "in_progress"
	ExperimentCompleted  = "completed"
)

// Experiment tracks repeated runs of one bench across seeds so success
// rates and fitness curves can be compared. RunIndex is the next run to
// execute (1-based), which makes an interrupted experiment resumable.
type Experiment struct {
	ID             string          `json:"id"`
	Bench          string          `json:"bench"`
	Strategy       string          `json:"strategy"`
	Notes          string          `json:"notes,omitempty"`
	ProgressFlag   string          `json:"progress_flag"`
	RunIndex       int             `json:"run_index"`
	TotalRuns      int             `json:"total_runs"`
	StartedAtUTC   string          `json:"started_at_utc,omitempty"`
	CompletedAtUTC string          `json:"completed_at_utc,omitempty"`
	Interruptions  []string        `json:"interruptions,omitempty"`
	Spec           json.RawMessage `json:"spec,omitempty"`
	RunIDs         []string        `json:"run_ids,omitempty"`
	Summaries      []RunSummary    `json:"summaries,omitempty"`
}

func WriteExperiment(baseDir string, exp Experiment) error {
	if exp.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	path := experimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, exp)
}

func ReadExperiment(baseDir, id string) (Experiment, bool, error) {
	if id == "" {
		return Experiment{}, false, fmt.Errorf("experiment id is required")
	}
	data, err := os.ReadFile(experimentPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return Experiment{}, false, nil
		}
		return Experiment{}, false, err
	}
	var exp Experiment
	if err := json.Unmarshal(data, &exp); err != nil {
		return Experiment{}, false, err
	}
	return exp, true, nil
}

// ListExperiments returns all experiments under baseDir, newest first.
func ListExperiments(baseDir string) ([]Experiment, error) {
	root := filepath.Join(baseDir, experimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Experiment{}, nil
		}
		return nil, err
	}

	exps := make([]Experiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadExperiment(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		exps = append(exps, exp)
	}
	sort.Slice(exps, func(i, j int) bool {
		switch {
		case exps[i].StartedAtUTC == exps[j].StartedAtUTC:
			return exps[i].ID < exps[j].ID
		case exps[i].StartedAtUTC == "":
			return false
		case exps[j].StartedAtUTC == "":
			return true
		default:
			return exps[i].StartedAtUTC > exps[j].StartedAtUTC
		}
	})
	return exps, nil
}

func experimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, experimentsDir, id, "experiment.json")
}

// EvaluationRun counts the fitness evaluations one run spent before it
// reached the goal, or over its whole series when it never did.
type EvaluationRun struct {
	RunID             string  `json:"run_id"`
	Evaluations       int     `json:"evaluations"`
	Success           bool    `json:"success"`
	ReachedGeneration int     `json:"reached_generation,omitempty"`
	FinalBest         float64 `json:"final_best"`
	Goal              float64 `json:"goal,omitempty"`
}

type EvaluationStats struct {
	TotalRuns      int             `json:"total_runs"`
	SuccessRuns    int             `json:"success_runs"`
	SuccessRate    float64         `json:"success_rate"`
	AvgEvaluations float64         `json:"avg_evaluations"`
	StdEvaluations float64         `json:"std_evaluations"`
	MinEvaluations float64         `json:"min_evaluations"`
	MaxEvaluations float64         `json:"max_evaluations"`
	FitnessGoal    *float64        `json:"fitness_goal,omitempty"`
	Runs           []EvaluationRun `json:"runs"`
}

// BuildEvaluationStats reads each run's record and fitness series and
// counts evaluations, population size per generation, until the goal is
// reached. A nil (or NaN) goal marks every run successful over its full
// series. The aggregate evaluation numbers cover successful runs only.
func BuildEvaluationStats(baseDir string, exp Experiment, fitnessGoal *float64) (EvaluationStats, error) {
	result := EvaluationStats{
		TotalRuns: len(exp.RunIDs),
		Runs:      make([]EvaluationRun, 0, len(exp.RunIDs)),
	}
	if fitnessGoal != nil && !math.IsNaN(*fitnessGoal) {
		goal := *fitnessGoal
		result.FitnessGoal = &goal
	}

	successEvals := make([]float64, 0, len(exp.RunIDs))
	for _, runID := range exp.RunIDs {
		record, ok, err := ReadRunRecord(baseDir, runID)
		if err != nil {
			return EvaluationStats{}, err
		}
		if !ok {
			return EvaluationStats{}, fmt.Errorf("run record not found: %s", runID)
		}
		series, ok, err := ReadFitnessSeries(baseDir, runID)
		if err != nil {
			return EvaluationStats{}, err
		}
		if !ok {
			return EvaluationStats{}, fmt.Errorf("fitness series not found: %s", runID)
		}

		run := evaluateSeries(runID, series, record.PopulationSize, result.FitnessGoal)
		result.Runs = append(result.Runs, run)
		if run.Success {
			result.SuccessRuns++
			successEvals = append(successEvals, float64(run.Evaluations))
		}
	}

	if result.TotalRuns > 0 {
		result.SuccessRate = float64(result.SuccessRuns) / float64(result.TotalRuns)
	}
	if len(successEvals) > 0 {
		result.AvgEvaluations = stat.Mean(successEvals, nil)
		if len(successEvals) > 1 {
			result.StdEvaluations = stat.StdDev(successEvals, nil)
		}
		result.MinEvaluations = floats.Min(successEvals)
		result.MaxEvaluations = floats.Max(successEvals)
	}
	return result, nil
}

func evaluateSeries(runID string, series []float64, populationSize int, goal *float64) EvaluationRun {
	if populationSize <= 0 {
		populationSize = 1
	}
	run := EvaluationRun{RunID: runID}
	if goal != nil {
		run.Goal = *goal
	}
	if len(series) > 0 {
		run.FinalBest = series[len(series)-1]
	}

	for generation, best := range series {
		run.Evaluations += populationSize
		run.ReachedGeneration = generation + 1
		if goal != nil && best >= *goal {
			run.Success = true
			return run
		}
	}
	run.Success = goal == nil
	return run
}

type PlotPoint struct {
	Generation int     `json:"generation"`
	Value      float64 `json:"value"`
}

// BuildMeanBestPlot averages the per-generation best fitness across runs.
// Shorter runs drop out of the average once their series is exhausted.
func BuildMeanBestPlot(series [][]float64) []PlotPoint {
	points := make([]PlotPoint, 0, 128)
	for generation := 0; ; generation++ {
		values := seriesColumn(series, generation)
		if len(values) == 0 {
			return points
		}
		points = append(points, PlotPoint{Generation: generation + 1, Value: stat.Mean(values, nil)})
	}
}

// BuildMaxBestPlot keeps the best fitness any run reached per generation.
func BuildMaxBestPlot(series [][]float64) []PlotPoint {
	points := make([]PlotPoint, 0, 128)
	for generation := 0; ; generation++ {
		values := seriesColumn(series, generation)
		if len(values) == 0 {
			return points
		}
		points = append(points, PlotPoint{Generation: generation + 1, Value: floats.Max(values)})
	}
}

func seriesColumn(series [][]float64, generation int) []float64 {
	values := make([]float64, 0, len(series))
	for _, s := range series {
		if generation < len(s) {
			values = append(values, s[generation])
		}
	}
	return values
}

// ExperimentReport aggregates an experiment's runs into the curves and
// success numbers a writeup needs.
type ExperimentReport struct {
	ExperimentID string          `json:"experiment_id"`
	GeneratedAt  string          `json:"generated_at_utc"`
	Experiment   Experiment      `json:"experiment"`
	MeanBest     []PlotPoint     `json:"mean_best"`
	MaxBest      []PlotPoint     `json:"max_best"`
	Evaluations  EvaluationStats `json:"evaluations"`
}

func BuildExperimentReport(baseDir string, exp Experiment, fitnessGoal *float64) (ExperimentReport, error) {
	series := make([][]float64, 0, len(exp.RunIDs))
	for _, runID := range exp.RunIDs {
		s, ok, err := ReadFitnessSeries(baseDir, runID)
		if err != nil {
			return ExperimentReport{}, err
		}
		if !ok {
			return ExperimentReport{}, fmt.Errorf("fitness series not found: %s", runID)
		}
		series = append(series, s)
	}

	evaluations, err := BuildEvaluationStats(baseDir, exp, fitnessGoal)
	if err != nil {
		return ExperimentReport{}, err
	}

	return ExperimentReport{
		ExperimentID: exp.ID,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Experiment:   exp,
		MeanBest:     BuildMeanBestPlot(series),
		MaxBest:      BuildMaxBestPlot(series),
		Evaluations:  evaluations,
	}, nil
}

// WriteExperimentReport stores the report next to the experiment record
// and returns its path.
func WriteExperimentReport(baseDir string, report ExperimentReport) (string, error) {
	if report.ExperimentID == "" {
		return "", fmt.Errorf("experiment id is required")
	}
	reportDir := filepath.Join(baseDir, experimentsDir, report.ExperimentID)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(reportDir, "report.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

func ReadExperimentReport(baseDir, id string) (ExperimentReport, bool, error) {
	if id == "" {
		return ExperimentReport{}, false, fmt.Errorf("experiment id is required")
	}
	data, err := os.ReadFile(filepath.Join(baseDir, experimentsDir, id, "report.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return ExperimentReport{}, false, nil
		}
		return ExperimentReport{}, false, err
	}
	var report ExperimentReport
	if err := json.Unmarshal(data, &report); err != nil {
		return ExperimentReport{}, false, err
	}
	return report, true, nil
}

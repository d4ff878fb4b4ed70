package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"gonos/internal/archive"
)

// RunSummary condenses a run's best-by-generation series into the headline
// numbers benchmark gating cares about.
type RunSummary struct {
	RunID          string  `json:"run_id"`
	Bench          string  `json:"bench"`
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	Seed           int64   `json:"seed"`
	InitialBest    float64 `json:"initial_best"`
	FinalBest      float64 `json:"final_best"`
	BestMean       float64 `json:"best_mean"`
	BestStd        float64 `json:"best_std"`
	BestMin        float64 `json:"best_min"`
	BestMax        float64 `json:"best_max"`
	BestMedian     float64 `json:"best_median"`
	BestP90        float64 `json:"best_p90"`
	Improvement    float64 `json:"improvement"`
	MinImprovement float64 `json:"min_improvement"`
	Passed         bool    `json:"passed"`
}

// NewRunSummary computes a summary from the run record and its fitness
// series. Passed reports whether the series improved by at least
// minImprovement end to end.
func NewRunSummary(run archive.RunRecord, series []float64, minImprovement float64) RunSummary {
	summary := RunSummary{
		RunID:          run.ID,
		Bench:          run.Bench,
		PopulationSize: run.PopulationSize,
		Generations:    run.Generations,
		Seed:           run.Seed,
		MinImprovement: minImprovement,
	}
	if len(series) == 0 {
		return summary
	}

	summary.InitialBest = series[0]
	summary.FinalBest = series[len(series)-1]
	summary.BestMean = stat.Mean(series, nil)
	if len(series) > 1 {
		summary.BestStd = stat.StdDev(series, nil)
	}
	summary.BestMin = series[0]
	summary.BestMax = series[0]
	for _, v := range series[1:] {
		if v < summary.BestMin {
			summary.BestMin = v
		}
		if v > summary.BestMax {
			summary.BestMax = v
		}
	}
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	summary.BestMedian = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	summary.BestP90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	summary.Improvement = summary.FinalBest - summary.InitialBest
	summary.Passed = summary.Improvement >= minImprovement
	return summary
}

func WriteRunSummary(runDir string, summary RunSummary) error {
	return writeJSON(filepath.Join(runDir, "summary.json"), summary)
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

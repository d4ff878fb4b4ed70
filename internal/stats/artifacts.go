package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonos/internal/archive"
)

const runIndexFile = "run_index.json"

// RunArtifacts bundles everything worth keeping from one evolution run.
type RunArtifacts struct {
	Run              archive.RunRecord          `json:"run"`
	BestByGeneration []float64                  `json:"best_by_generation"`
	History          []archive.GenerationRecord `json:"history,omitempty"`
	Solutions        []archive.SolutionRecord   `json:"solutions"`
}

// RunIndexEntry is one row of the cross-run index kept at the artifact
// root, newest first.
type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Bench            string  `json:"bench"`
	Strategy         string  `json:"strategy"`
	Eliminator       string  `json:"eliminator"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	StopReason       string  `json:"stop_reason"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts lays a run's artifacts out under baseDir/<run-id> as
// separate JSON documents plus a CSV fitness series, and returns the run
// directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), map[string]any{
		"best_by_generation": artifacts.BestByGeneration,
		"final_best_fitness": artifacts.Run.BestFitness,
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "history.json"), artifacts.History); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "solutions.json"), artifacts.Solutions); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run's artifact files into outDir/<run-id>.
// Optional files are skipped when absent.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"run.json", "fitness_history.json", "history.json", "solutions.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	optional := []string{"summary.json", "fitness_series.csv"}
	for _, file := range optional {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunRecord(baseDir, runID string) (archive.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "run.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return archive.RunRecord{}, false, nil
		}
		return archive.RunRecord{}, false, err
	}

	var run archive.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return archive.RunRecord{}, false, err
	}
	return run, true, nil
}

func ReadHistory(baseDir, runID string) ([]archive.GenerationRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "history.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var history []archive.GenerationRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, false, err
	}
	return history, true, nil
}

func ReadSolutions(baseDir, runID string) ([]archive.SolutionRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "solutions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var solutions []archive.SolutionRecord
	if err := json.Unmarshal(data, &solutions); err != nil {
		return nil, false, err
	}
	return solutions, true, nil
}

// WriteFitnessSeries writes the best-by-generation series as a two-column
// CSV next to the JSON artifacts.
func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	path := filepath.Join(runDir, "fitness_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "fitness_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

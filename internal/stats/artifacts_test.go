package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gonos/internal/archive"
)

func testArtifacts(runID, createdAt string) RunArtifacts {
	return RunArtifacts{
		Run: archive.RunRecord{
			VersionedRecord: archive.NewVersionedRecord(),
			ID:              runID,
			Bench:           "sphere",
			Strategy:        "crossover",
			Eliminator:      "percentile",
			PopulationSize:  32,
			Generations:     3,
			BestFitness:     -0.5,
			StopReason:      "completed",
			Seed:            7,
			CreatedAtUTC:    createdAt,
		},
		BestByGeneration: []float64{-4, -2, -0.5},
		History: []archive.GenerationRecord{
			{Generation: 1, Population: 32, Survivors: 17, BestFitness: -4, WorstFitness: -90, MeanFitness: -30},
			{Generation: 2, Population: 32, Survivors: 17, BestFitness: -2, WorstFitness: -60, MeanFitness: -20},
			{Generation: 3, Population: 32, Survivors: 17, BestFitness: -0.5, WorstFitness: -40, MeanFitness: -12},
		},
		Solutions: []archive.SolutionRecord{
			{VersionedRecord: archive.NewVersionedRecord(), RunID: runID, Rank: 1, Fitness: -0.5, Genome: json.RawMessage(`{"values":[0.1,-0.2]}`)},
		},
	}
}

func TestWriteRunArtifactsLaysOutRunDirectory(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts("run-1", "2026-02-11T10:00:00Z")

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(baseDir, "run-1"), runDir)

	for _, file := range []string{"run.json", "fitness_history.json", "history.json", "solutions.json", "fitness_series.csv"} {
		_, err := os.Stat(filepath.Join(runDir, file))
		require.NoError(t, err, file)
	}

	run, ok, err := ReadRunRecord(baseDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, artifacts.Run, run)

	history, ok, err := ReadHistory(baseDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, artifacts.History, history)

	solutions, ok, err := ReadSolutions(baseDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, solutions, 1)
	require.Equal(t, artifacts.Solutions[0].Genome, solutions[0].Genome)
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	_, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{})
	require.Error(t, err)
}

func TestWrittenJSONEndsWithNewline(t *testing.T) {
	baseDir := t.TempDir()
	_, err := WriteRunArtifacts(baseDir, testArtifacts("run-1", "2026-02-11T10:00:00Z"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "run-1", "run.json"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestRunIndexAppendAndUpdate(t *testing.T) {
	baseDir := t.TempDir()

	entryFor := func(runID, createdAt string, best float64) RunIndexEntry {
		return RunIndexEntry{
			RunID:            runID,
			Bench:            "sphere",
			Strategy:         "mitosis",
			Eliminator:       "percentile",
			PopulationSize:   16,
			Generations:      5,
			Seed:             1,
			FinalBestFitness: best,
			StopReason:       "completed",
			CreatedAtUTC:     createdAt,
		}
	}

	require.NoError(t, AppendRunIndex(baseDir, entryFor("run-a", "2026-02-10T08:00:00Z", -3)))
	require.NoError(t, AppendRunIndex(baseDir, entryFor("run-b", "2026-02-11T08:00:00Z", -2)))

	index, err := ListRunIndex(baseDir)
	require.NoError(t, err)
	require.Len(t, index, 2)
	require.Equal(t, "run-b", index[0].RunID)
	require.Equal(t, "run-a", index[1].RunID)

	// Re-appending the same run replaces its entry instead of duplicating.
	require.NoError(t, AppendRunIndex(baseDir, entryFor("run-a", "2026-02-10T08:00:00Z", -1)))
	index, err = ListRunIndex(baseDir)
	require.NoError(t, err)
	require.Len(t, index, 2)
	require.Equal(t, -1.0, index[1].FinalBestFitness)
}

func TestRunIndexRequiresRunID(t *testing.T) {
	require.Error(t, AppendRunIndex(t.TempDir(), RunIndexEntry{}))
}

func TestListRunIndexMissingFileIsEmpty(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, index)
}

func TestExportRunArtifactsCopiesRunDirectory(t *testing.T) {
	baseDir := t.TempDir()
	outDir := t.TempDir()
	artifacts := testArtifacts("run-1", "2026-02-11T10:00:00Z")

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	require.NoError(t, err)
	require.NoError(t, WriteRunSummary(runDir, NewRunSummary(artifacts.Run, artifacts.BestByGeneration, 0.1)))

	dst, err := ExportRunArtifacts(baseDir, "run-1", outDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "run-1"), dst)

	for _, file := range []string{"run.json", "fitness_history.json", "history.json", "solutions.json", "summary.json", "fitness_series.csv"} {
		_, err := os.Stat(filepath.Join(dst, file))
		require.NoError(t, err, file)
	}
}

func TestExportRunArtifactsMissingRunFails(t *testing.T) {
	_, err := ExportRunArtifacts(t.TempDir(), "run-none", t.TempDir())
	require.Error(t, err)
}

func TestFitnessSeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	runDir := filepath.Join(baseDir, "run-1")
	require.NoError(t, os.MkdirAll(runDir, 0o755))

	series := []float64{-4, -2.25, -0.5}
	require.NoError(t, WriteFitnessSeries(runDir, series))

	loaded, ok, err := ReadFitnessSeries(baseDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, series, loaded)

	_, ok, err = ReadFitnessSeries(baseDir, "run-none")
	require.NoError(t, err)
	require.False(t, ok)
}

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gonos/internal/stats"
)

func startPhraseExperiment(t *testing.T, id string, runs int, extra ...string) string {
	t.Helper()
	args := append([]string{
		"experiment", "start",
		"-id", id,
		"-runs", strconv.Itoa(runs),
		"-bench", "phrase",
		"-strategy", "mitosis",
		"-pop", "32",
		"-gens", "4",
		"-rate", "0.3",
		"-target", "go",
		"-seed", "7",
	}, extra...)
	out, err := captureStdout(func() error {
		return run(context.Background(), args)
	})
	if err != nil {
		t.Fatalf("experiment start: %v", err)
	}
	return out
}

func TestExperimentStartRunsAllSeeds(t *testing.T) {
	chdirTemp(t)
	out := startPhraseExperiment(t, "exp-a", 2)

	for _, want := range []string{
		"experiment id=exp-a run=1/2 run_id=exp-a-run-001",
		"experiment id=exp-a run=2/2 run_id=exp-a-run-002",
		"experiment id=exp-a progress=completed runs=2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("experiment output missing %q: %s", want, out)
		}
	}

	exp, ok, err := stats.ReadExperiment(artifactsDir, "exp-a")
	if err != nil {
		t.Fatalf("read experiment: %v", err)
	}
	if !ok {
		t.Fatal("experiment.json was not written")
	}
	if exp.ProgressFlag != stats.ExperimentCompleted || exp.RunIndex != 3 || exp.TotalRuns != 2 {
		t.Fatalf("unexpected experiment state: %+v", exp)
	}
	if exp.Bench != "phrase" || exp.Strategy != "mitosis" {
		t.Fatalf("experiment did not record the spec headline: %+v", exp)
	}
	if exp.CompletedAtUTC == "" {
		t.Fatal("completed experiment has no completion timestamp")
	}
	if len(exp.RunIDs) != 2 || exp.RunIDs[0] != "exp-a-run-001" || exp.RunIDs[1] != "exp-a-run-002" {
		t.Fatalf("unexpected run ids: %v", exp.RunIDs)
	}
	if len(exp.Summaries) != 2 {
		t.Fatalf("expected one summary per run, got %d", len(exp.Summaries))
	}
	if exp.Summaries[0].Seed != 7 || exp.Summaries[1].Seed != 8 {
		t.Fatalf("seeds should increment per run: %d, %d", exp.Summaries[0].Seed, exp.Summaries[1].Seed)
	}

	for _, runID := range exp.RunIDs {
		for _, file := range []string{"run.json", "summary.json", "fitness_series.csv"} {
			path := filepath.Join(artifactsDir, runID, file)
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("expected artifact %s: %v", path, err)
			}
		}
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both runs indexed, got %+v", entries)
	}
}

func TestExperimentStartRejectsDuplicate(t *testing.T) {
	chdirTemp(t)
	startPhraseExperiment(t, "exp-dup", 1)

	err := run(context.Background(), []string{"experiment", "start", "-id", "exp-dup", "-runs", "1"})
	if err == nil || !strings.Contains(err.Error(), "experiment already exists: exp-dup") {
		t.Fatalf("expected duplicate experiment error, got %v", err)
	}
	if !strings.Contains(err.Error(), "progress=completed") {
		t.Fatalf("duplicate error should carry progress: %v", err)
	}
}

func TestExperimentContinueFinishesInterruptedRuns(t *testing.T) {
	chdirTemp(t)

	spec := defaultRunSpec()
	spec.Bench = "phrase"
	spec.Strategy = "mitosis"
	spec.Population = 32
	spec.Generations = 4
	spec.MutationRate = 0.3
	spec.Target = "go"
	spec.Seed = 7
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	interrupted := stats.Experiment{
		ID:           "exp-resume",
		Bench:        spec.Bench,
		Strategy:     spec.Strategy,
		ProgressFlag: stats.ExperimentInProgress,
		RunIndex:     2,
		TotalRuns:    3,
		StartedAtUTC: "2026-03-01T08:00:00Z",
		Spec:         raw,
		RunIDs:       []string{"exp-resume-run-001", "stale-run"},
		Summaries:    make([]stats.RunSummary, 2),
	}
	if err := stats.WriteExperiment(artifactsDir, interrupted); err != nil {
		t.Fatalf("write experiment: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "continue", "-id", "exp-resume"})
	})
	if err != nil {
		t.Fatalf("experiment continue: %v", err)
	}
	if strings.Contains(out, "run=1/3") {
		t.Fatalf("continue should not repeat finished runs: %s", out)
	}
	for _, want := range []string{"run=2/3 run_id=exp-resume-run-002", "run=3/3 run_id=exp-resume-run-003", "progress=completed runs=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("continue output missing %q: %s", want, out)
		}
	}

	exp, ok, err := stats.ReadExperiment(artifactsDir, "exp-resume")
	if err != nil {
		t.Fatalf("read experiment: %v", err)
	}
	if !ok {
		t.Fatal("experiment record missing after continue")
	}
	if exp.ProgressFlag != stats.ExperimentCompleted || exp.RunIndex != 4 {
		t.Fatalf("unexpected experiment state: %+v", exp)
	}
	want := []string{"exp-resume-run-001", "exp-resume-run-002", "exp-resume-run-003"}
	if len(exp.RunIDs) != len(want) {
		t.Fatalf("unexpected run ids: %v", exp.RunIDs)
	}
	for i, id := range want {
		if exp.RunIDs[i] != id {
			t.Fatalf("run id %d = %s, want %s", i, exp.RunIDs[i], id)
		}
	}
	if len(exp.Interruptions) == 0 {
		t.Fatal("continue should record a resume timestamp")
	}
	if exp.Summaries[1].Seed != 8 || exp.Summaries[2].Seed != 9 {
		t.Fatalf("resumed runs should keep the seed progression: %+v", exp.Summaries)
	}

	for _, runID := range want[1:] {
		if _, err := os.Stat(filepath.Join(artifactsDir, runID, "run.json")); err != nil {
			t.Fatalf("expected artifacts for %s: %v", runID, err)
		}
	}
}

func TestExperimentContinueCompletedIsNoop(t *testing.T) {
	chdirTemp(t)
	startPhraseExperiment(t, "exp-done", 1)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "continue", "-id", "exp-done"})
	})
	if err != nil {
		t.Fatalf("experiment continue: %v", err)
	}
	if !strings.Contains(out, "progress=completed") {
		t.Fatalf("unexpected continue output: %s", out)
	}

	exp, _, err := stats.ReadExperiment(artifactsDir, "exp-done")
	if err != nil {
		t.Fatalf("read experiment: %v", err)
	}
	if exp.RunIndex != 2 || len(exp.Interruptions) != 0 {
		t.Fatalf("continue of a completed experiment should not touch it: %+v", exp)
	}
}

func TestExperimentShowAndList(t *testing.T) {
	chdirTemp(t)
	startPhraseExperiment(t, "exp-show", 1, "-notes", "smoke sweep")

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "show", "-id", "exp-show"})
	})
	if err != nil {
		t.Fatalf("experiment show: %v", err)
	}
	for _, want := range []string{"id=exp-show", "bench=phrase", "progress=completed", "notes=smoke sweep", "run=1 run_id=exp-show-run-001", "passed=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q: %s", want, out)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "show", "-id", "exp-show", "-json"})
	})
	if err != nil {
		t.Fatalf("experiment show -json: %v", err)
	}
	var exp stats.Experiment
	if err := json.Unmarshal([]byte(out), &exp); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if exp.ID != "exp-show" || exp.TotalRuns != 1 {
		t.Fatalf("unexpected decoded experiment: %+v", exp)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "list"})
	})
	if err != nil {
		t.Fatalf("experiment list: %v", err)
	}
	if !strings.Contains(out, "id=exp-show") {
		t.Fatalf("list output missing the experiment: %s", out)
	}
}

func TestExperimentEvaluationsCountsRuns(t *testing.T) {
	chdirTemp(t)
	startPhraseExperiment(t, "exp-eval", 2, "-gens", "500", "-fitness-goal", "1.0")

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "evaluations", "-id", "exp-eval", "-fitness-goal", "1.0"})
	})
	if err != nil {
		t.Fatalf("experiment evaluations: %v", err)
	}
	for _, want := range []string{
		"experiment_evaluations id=exp-eval success=2/2 success_rate=1.000000",
		"run=1 run_id=exp-eval-run-001 success=true",
		"run=2 run_id=exp-eval-run-002 success=true",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("evaluations output missing %q: %s", want, out)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "evaluations", "-id", "exp-eval", "-json"})
	})
	if err != nil {
		t.Fatalf("experiment evaluations -json: %v", err)
	}
	var payload struct {
		ID          string                `json:"id"`
		Evaluations stats.EvaluationStats `json:"evaluations"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode evaluations output: %v", err)
	}
	if payload.ID != "exp-eval" || payload.Evaluations.TotalRuns != 2 {
		t.Fatalf("unexpected evaluations payload: %+v", payload)
	}
	if payload.Evaluations.FitnessGoal != nil {
		t.Fatalf("goal should stay unset without --fitness-goal, got %v", *payload.Evaluations.FitnessGoal)
	}
}

func TestExperimentReportWritesReportJSON(t *testing.T) {
	chdirTemp(t)
	startPhraseExperiment(t, "exp-report", 2)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"experiment", "report", "-id", "exp-report"})
	})
	if err != nil {
		t.Fatalf("experiment report: %v", err)
	}
	if !strings.Contains(out, "experiment_report id=exp-report") || !strings.Contains(out, "success=2/2") {
		t.Fatalf("unexpected report output: %s", out)
	}

	reportPath := filepath.Join(artifactsDir, "experiments", "exp-report", "report.json")
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("expected report file %s: %v", reportPath, err)
	}

	report, ok, err := stats.ReadExperimentReport(artifactsDir, "exp-report")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !ok {
		t.Fatal("report.json missing")
	}
	if report.Evaluations.TotalRuns != 2 || len(report.MeanBest) != 4 || len(report.MaxBest) != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.MeanBest[0].Generation != 1 {
		t.Fatalf("plot generations should be 1-based, got %d", report.MeanBest[0].Generation)
	}
}

func TestExperimentDispatchErrors(t *testing.T) {
	chdirTemp(t)

	if err := run(context.Background(), []string{"experiment"}); err == nil || !strings.Contains(err.Error(), "experiment requires a subcommand") {
		t.Fatalf("expected subcommand error, got %v", err)
	}
	if err := run(context.Background(), []string{"experiment", "bogus"}); err == nil || !strings.Contains(err.Error(), "unknown experiment subcommand: bogus") {
		t.Fatalf("expected unknown subcommand error, got %v", err)
	}
	if err := run(context.Background(), []string{"experiment", "start"}); err == nil || !strings.Contains(err.Error(), "experiment start requires --id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
	if err := run(context.Background(), []string{"experiment", "start", "-id", "x", "-runs", "0"}); err == nil || !strings.Contains(err.Error(), "--runs > 0") {
		t.Fatalf("expected runs validation error, got %v", err)
	}
	if err := run(context.Background(), []string{"experiment", "continue", "-id", "ghost"}); err == nil || !strings.Contains(err.Error(), "experiment not found: ghost") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if err := run(context.Background(), []string{"experiment", "evaluations"}); err == nil || !strings.Contains(err.Error(), "experiment requires --id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

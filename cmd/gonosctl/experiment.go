package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonos/internal/archive"
	"gonos/internal/bench"
	"gonos/internal/lab"
	"gonos/internal/stats"
)

func runExperiment(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("experiment requires a subcommand: start|continue|show|list|evaluations|report")
	}
	switch args[0] {
	case "start":
		return runExperimentStart(ctx, args[1:])
	case "continue":
		return runExperimentContinue(ctx, args[1:])
	case "show":
		return runExperimentShow(args[1:])
	case "list":
		return runExperimentList(args[1:])
	case "evaluations":
		return runExperimentEvaluations(args[1:])
	case "report":
		return runExperimentReport(args[1:])
	default:
		return fmt.Errorf("unknown experiment subcommand: %s", args[0])
	}
}

func runExperimentStart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiment start", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	runs := fs.Int("runs", 1, "total runs, seeds increment per run")
	notes := fs.String("notes", "", "optional experiment notes")
	benchName := fs.String("bench", "sphere", "bench problem to run (see benches)")
	strategy := fs.String("strategy", "crossover", "repopulation strategy: mitosis|crossover|speciated")
	eliminator := fs.String("eliminator", "percentile", "elimination mode: percentile|topk|cutoff")
	weighting := fs.String("weighting", "uniform", "crossover parent weighting: uniform|fitness")
	population := fs.Int("pop", 64, "population size")
	generations := fs.Int("gens", 100, "generations to evolve")
	survivalRate := fs.Float64("survival-rate", 0.5, "survivor fraction for the percentile eliminator")
	topK := fs.Int("top-k", 8, "survivor count for the topk eliminator")
	cutoffMin := fs.Float64("cutoff-min", 0, "fitness floor for the cutoff eliminator")
	rate := fs.Float64("rate", 0.25, "mutation rate")
	elitism := fs.Bool("elitism", true, "carry survivors unchanged into the next generation")
	threshold := fs.Float64("threshold", 1.5, "species compatibility threshold for the speciated strategy")
	workers := fs.Int("workers", 1, "parallel workers for population seeding")
	seed := fs.Int64("seed", 0, "deterministic rng seed for the first run")
	dims := fs.Int("dims", 8, "vector length for the continuous benches")
	target := fs.String("target", bench.DefaultParams().Target, "target phrase for the phrase bench")
	fitnessGoal := fs.Float64("fitness-goal", 0, "stop each run early once best fitness reaches this goal")
	profileName := fs.String("profile", "", "named profile from the profiles file")
	profilesFile := fs.String("profiles-file", defaultProfilesFile, "ini file with run profiles")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gonos.db", "sqlite database path")
	artifacts := fs.String("artifacts", artifactsDir, "artifact output directory")
	solutions := fs.Int("solutions", 5, "ranked solutions to keep per run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("experiment start requires --id")
	}
	if *runs <= 0 {
		return errors.New("experiment start requires --runs > 0")
	}
	if *artifacts == "" {
		return errors.New("experiment start requires an artifacts directory")
	}
	if existing, ok, err := stats.ReadExperiment(*artifacts, strings.TrimSpace(*id)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("experiment already exists: %s (progress=%s run_index=%d total_runs=%d)", existing.ID, existing.ProgressFlag, existing.RunIndex, existing.TotalRuns)
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	spec := defaultRunSpec()
	if *profileName != "" {
		if err := applyProfile(&spec, *profilesFile, *profileName); err != nil {
			return err
		}
	}
	overrideFromFlags(&spec, setFlags, map[string]any{
		"bench":         *benchName,
		"strategy":      *strategy,
		"eliminator":    *eliminator,
		"weighting":     *weighting,
		"pop":           *population,
		"gens":          *generations,
		"survival-rate": *survivalRate,
		"top-k":         *topK,
		"cutoff-min":    *cutoffMin,
		"rate":          *rate,
		"elitism":       *elitism,
		"threshold":     *threshold,
		"workers":       *workers,
		"seed":          *seed,
		"dims":          *dims,
		"target":        *target,
		"fitness-goal":  *fitnessGoal,
	})
	if _, err := spec.toRunConfig(); err != nil {
		return err
	}
	rawSpec, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	exp := stats.Experiment{
		ID:           strings.TrimSpace(*id),
		Bench:        spec.Bench,
		Strategy:     spec.Strategy,
		Notes:        strings.TrimSpace(*notes),
		ProgressFlag: stats.ExperimentInProgress,
		RunIndex:     1,
		TotalRuns:    *runs,
		StartedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Spec:         rawSpec,
	}
	if err := stats.WriteExperiment(*artifacts, exp); err != nil {
		return err
	}
	return executeExperiment(ctx, &exp, spec, experimentEnv{
		storeKind: *storeKind,
		dbPath:    *dbPath,
		artifacts: *artifacts,
		solutions: *solutions,
	})
}

func runExperimentContinue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiment continue", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gonos.db", "sqlite database path")
	artifacts := fs.String("artifacts", artifactsDir, "artifact output directory")
	solutions := fs.Int("solutions", 5, "ranked solutions to keep per run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("experiment continue requires --id")
	}
	if *artifacts == "" {
		return errors.New("experiment continue requires an artifacts directory")
	}
	exp, ok, err := stats.ReadExperiment(*artifacts, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("experiment not found: %s", strings.TrimSpace(*id))
	}
	if exp.ProgressFlag == stats.ExperimentCompleted {
		fmt.Printf("experiment id=%s progress=%s run_index=%d total_runs=%d\n", exp.ID, exp.ProgressFlag, exp.RunIndex, exp.TotalRuns)
		return nil
	}
	if exp.RunIndex < 1 {
		exp.RunIndex = 1
	}

	spec := defaultRunSpec()
	if len(exp.Spec) > 0 {
		if err := json.Unmarshal(exp.Spec, &spec); err != nil {
			return fmt.Errorf("decode experiment spec: %w", err)
		}
	}

	// The resume timestamp is the reliable interruption record: a killed
	// process never reaches the failure path that would have written one.
	exp.Interruptions = append(exp.Interruptions, time.Now().UTC().Format(time.RFC3339))
	exp.ProgressFlag = stats.ExperimentInProgress
	if err := stats.WriteExperiment(*artifacts, exp); err != nil {
		return err
	}
	return executeExperiment(ctx, &exp, spec, experimentEnv{
		storeKind: *storeKind,
		dbPath:    *dbPath,
		artifacts: *artifacts,
		solutions: *solutions,
	})
}

// experimentEnv carries the per-invocation backing choices that are not
// part of the persisted experiment record.
type experimentEnv struct {
	storeKind string
	dbPath    string
	artifacts string
	solutions int
}

// executeExperiment runs the remaining seeds of exp, persisting the record
// after every run so an interrupted experiment resumes where it stopped.
func executeExperiment(ctx context.Context, exp *stats.Experiment, spec runSpec, env experimentEnv) error {
	if exp == nil {
		return errors.New("experiment is required")
	}
	if exp.TotalRuns <= 0 {
		return errors.New("experiment total_runs must be > 0")
	}
	if exp.RunIndex < 1 {
		exp.RunIndex = 1
	}
	keep := exp.RunIndex - 1
	if len(exp.RunIDs) > keep {
		exp.RunIDs = exp.RunIDs[:keep]
	}
	if len(exp.Summaries) > keep {
		exp.Summaries = exp.Summaries[:keep]
	}

	store, err := archive.NewStore(env.storeKind, env.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = archive.CloseIfSupported(store)
	}()

	l := lab.New(lab.Config{Store: store, ArtifactsDir: env.artifacts, SolutionCount: env.solutions})
	if err := l.Init(ctx); err != nil {
		return err
	}

	for runIdx := exp.RunIndex; runIdx <= exp.TotalRuns; runIdx++ {
		current := spec
		current.RunID = fmt.Sprintf("%s-run-%03d", exp.ID, runIdx)
		current.Seed = spec.Seed + int64(runIdx-1)
		cfg, err := current.toRunConfig()
		if err != nil {
			return err
		}

		result, err := l.RunEvolution(ctx, cfg)
		if err != nil {
			exp.ProgressFlag = stats.ExperimentInProgress
			exp.RunIndex = runIdx
			exp.Interruptions = append(exp.Interruptions, time.Now().UTC().Format(time.RFC3339))
			_ = stats.WriteExperiment(env.artifacts, *exp)
			return err
		}

		record, ok, err := stats.ReadRunRecord(env.artifacts, result.RunID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run record not found: %s", result.RunID)
		}
		summary := stats.NewRunSummary(record, result.BestByGeneration, 0)
		if err := stats.WriteRunSummary(filepath.Join(env.artifacts, result.RunID), summary); err != nil {
			return err
		}

		exp.RunIDs = append(exp.RunIDs, result.RunID)
		exp.Summaries = append(exp.Summaries, summary)
		exp.RunIndex = runIdx + 1
		exp.ProgressFlag = stats.ExperimentInProgress
		if err := stats.WriteExperiment(env.artifacts, *exp); err != nil {
			return err
		}
		fmt.Printf("experiment id=%s run=%d/%d run_id=%s final_best=%.6f passed=%t\n",
			exp.ID,
			runIdx,
			exp.TotalRuns,
			result.RunID,
			summary.FinalBest,
			summary.Passed,
		)
	}

	exp.ProgressFlag = stats.ExperimentCompleted
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339)
	if err := stats.WriteExperiment(env.artifacts, *exp); err != nil {
		return err
	}
	fmt.Printf("experiment id=%s progress=%s runs=%d\n", exp.ID, exp.ProgressFlag, exp.TotalRuns)
	return nil
}

func runExperimentShow(args []string) error {
	fs := flag.NewFlagSet("experiment show", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	jsonOut := fs.Bool("json", false, "emit the experiment as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("experiment show requires --id")
	}
	exp, ok, err := stats.ReadExperiment(*artifacts, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("experiment not found: %s", strings.TrimSpace(*id))
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	}
	printExperimentLine(exp)
	for i, runID := range exp.RunIDs {
		finalBest := 0.0
		passed := false
		if i < len(exp.Summaries) {
			finalBest = exp.Summaries[i].FinalBest
			passed = exp.Summaries[i].Passed
		}
		fmt.Printf("run=%d run_id=%s final_best=%.6f passed=%t\n", i+1, runID, finalBest, passed)
	}
	return nil
}

func runExperimentList(args []string) error {
	fs := flag.NewFlagSet("experiment list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit experiments as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exps, err := stats.ListExperiments(*artifacts)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exps)
	}
	if len(exps) == 0 {
		fmt.Println("no experiments")
		return nil
	}
	for _, exp := range exps {
		printExperimentLine(exp)
	}
	return nil
}

func printExperimentLine(exp stats.Experiment) {
	fmt.Printf("id=%s bench=%s strategy=%s progress=%s run_index=%d total_runs=%d started=%s completed=%s interruptions=%d notes=%s\n",
		exp.ID,
		exp.Bench,
		exp.Strategy,
		exp.ProgressFlag,
		exp.RunIndex,
		exp.TotalRuns,
		exp.StartedAtUTC,
		exp.CompletedAtUTC,
		len(exp.Interruptions),
		exp.Notes,
	)
}

func runExperimentEvaluations(args []string) error {
	fs := flag.NewFlagSet("experiment evaluations", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	fitnessGoal := fs.Float64("fitness-goal", math.NaN(), "success goal, unset counts every finished run as a success")
	jsonOut := fs.Bool("json", false, "emit evaluation stats as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exp, err := readExperimentOrFail(*artifacts, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	goal := *fitnessGoal
	evalStats, err := stats.BuildEvaluationStats(*artifacts, exp, &goal)
	if err != nil {
		return err
	}

	if *jsonOut {
		payload := struct {
			ID          string                `json:"id"`
			Evaluations stats.EvaluationStats `json:"evaluations"`
		}{
			ID:          exp.ID,
			Evaluations: evalStats,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Printf("experiment_evaluations id=%s success=%d/%d success_rate=%.6f avg=%.6f std=%.6f min=%.6f max=%.6f\n",
		exp.ID,
		evalStats.SuccessRuns,
		evalStats.TotalRuns,
		evalStats.SuccessRate,
		evalStats.AvgEvaluations,
		evalStats.StdEvaluations,
		evalStats.MinEvaluations,
		evalStats.MaxEvaluations,
	)
	for i, run := range evalStats.Runs {
		fmt.Printf("run=%d run_id=%s success=%t evaluations=%d generation=%d final_best=%.6f\n",
			i+1,
			run.RunID,
			run.Success,
			run.Evaluations,
			run.ReachedGeneration,
			run.FinalBest,
		)
	}
	return nil
}

func runExperimentReport(args []string) error {
	fs := flag.NewFlagSet("experiment report", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	fitnessGoal := fs.Float64("fitness-goal", math.NaN(), "success goal, unset counts every finished run as a success")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exp, err := readExperimentOrFail(*artifacts, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	goal := *fitnessGoal
	report, err := stats.BuildExperimentReport(*artifacts, exp, &goal)
	if err != nil {
		return err
	}
	path, err := stats.WriteExperimentReport(*artifacts, report)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Printf("experiment_report id=%s path=%s success=%d/%d success_rate=%.6f\n",
		exp.ID,
		filepath.Clean(path),
		report.Evaluations.SuccessRuns,
		report.Evaluations.TotalRuns,
		report.Evaluations.SuccessRate,
	)
	return nil
}

func readExperimentOrFail(baseDir, id string) (stats.Experiment, error) {
	if id == "" {
		return stats.Experiment{}, errors.New("experiment requires --id")
	}
	exp, ok, err := stats.ReadExperiment(baseDir, id)
	if err != nil {
		return stats.Experiment{}, err
	}
	if !ok {
		return stats.Experiment{}, fmt.Errorf("experiment not found: %s", id)
	}
	return exp, nil
}

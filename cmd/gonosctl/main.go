package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gonos/internal/archive"
	"gonos/internal/bench"
	"gonos/internal/lab"
	"gonos/internal/stats"
)

const (
	artifactsDir = "artifacts"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "benches":
		return runBenches(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "profile":
		return runProfile(ctx, args[1:])
	case "experiment":
		return runExperiment(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gonos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := archive.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = archive.CloseIfSupported(store)
	}()

	l := lab.New(lab.Config{Store: store})
	if err := l.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	benchName := fs.String("bench", "sphere", "bench problem to run (see benches)")
	runID := fs.String("run-id", "", "explicit run id, a fresh uuid when empty")
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
	seed := fs.Int64("seed", 0, "deterministic rng seed")
	dims := fs.Int("dims", 8, "vector length for the continuous benches")
	target := fs.String("target", bench.DefaultParams().Target, "target phrase for the phrase bench")
	fitnessGoal := fs.Float64("fitness-goal", 0, "stop early once best fitness reaches this goal")
	profileName := fs.String("profile", "", "named profile from the profiles file")
	profilesFile := fs.String("profiles-file", defaultProfilesFile, "ini file with run profiles")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gonos.db", "sqlite database path")
	artifacts := fs.String("artifacts", artifactsDir, "artifact output directory, empty disables export")
	solutions := fs.Int("solutions", 5, "ranked solutions to keep per run")
	if err := fs.Parse(args); err != nil {
		return err
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
		"run-id":        *runID,
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

	cfg, err := spec.toRunConfig()
	if err != nil {
		return err
	}

	store, err := archive.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = archive.CloseIfSupported(store)
	}()

	l := lab.New(lab.Config{Store: store, ArtifactsDir: *artifacts, SolutionCount: *solutions})
	if err := l.Init(ctx); err != nil {
		return err
	}

	result, err := l.RunEvolution(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s bench=%s strategy=%s pop=%d gens=%d seed=%d stop_reason=%s\n",
		result.RunID,
		result.Bench,
		spec.Strategy,
		spec.Population,
		result.Generations,
		spec.Seed,
		result.StopReason,
	)
	for i, best := range result.BestByGeneration {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	fmt.Printf("final_best_fitness=%.6f\n", result.BestFitness)
	if result.ArtifactsDir != "" {
		fmt.Printf("artifacts_dir=%s\n", filepath.Clean(result.ArtifactsDir))
	}
	return nil
}

func runBenches(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("benches", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit the bench list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := bench.List()
	if *jsonOut {
		type benchItem struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		items := make([]benchItem, 0, len(names))
		for _, name := range names {
			problem, err := bench.Resolve(name)
			if err != nil {
				return err
			}
			items = append(items, benchItem{Name: name, Description: problem.Describe()})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, name := range names {
		problem, err := bench.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Printf("bench=%s description=%q\n", name, problem.Describe())
	}
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*artifacts)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s bench=%s strategy=%s eliminator=%s seed=%d pop=%d gens=%d final_best_fitness=%.6f stop_reason=%s\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Bench,
			e.Strategy,
			e.Eliminator,
			e.Seed,
			e.PopulationSize,
			e.Generations,
			e.FinalBestFitness,
			e.StopReason,
		)
	}
	return nil
}

func runFitness(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	full := fs.Bool("full", false, "print the full generation history: population, survivors, species")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveRunID(*artifacts, *runID, "fitness", *latest)
	if err != nil {
		return err
	}

	if *full {
		history, ok, err := stats.ReadHistory(*artifacts, id)
		if err != nil {
			return err
		}
		if !ok || len(history) == 0 {
			fmt.Println("no generation history")
			return nil
		}
		if *limit > 0 && len(history) > *limit {
			history = history[:*limit]
		}

		if *jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(history)
		}

		for _, g := range history {
			fmt.Printf("generation=%d population=%d survivors=%d best_fitness=%.6f worst_fitness=%.6f mean_fitness=%.6f species=%d\n",
				g.Generation,
				g.Population,
				g.Survivors,
				g.BestFitness,
				g.WorstFitness,
				g.MeanFitness,
				g.Species,
			)
		}
		return nil
	}

	series, ok, err := stats.ReadFitnessSeries(*artifacts, id)
	if err != nil {
		return err
	}
	if !ok || len(series) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *limit > 0 && len(series) > *limit {
		series = series[:*limit]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	}

	for i, best := range series {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runTop(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	count := fs.Int("count", 5, "max solutions to print")
	jsonOut := fs.Bool("json", false, "emit solutions as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count <= 0 {
		return errors.New("count must be > 0")
	}

	id, err := resolveRunID(*artifacts, *runID, "top", *latest)
	if err != nil {
		return err
	}

	solutions, ok, err := stats.ReadSolutions(*artifacts, id)
	if err != nil {
		return err
	}
	if !ok || len(solutions) == 0 {
		fmt.Println("no solutions recorded")
		return nil
	}
	if len(solutions) > *count {
		solutions = solutions[:*count]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(solutions)
	}

	for _, s := range solutions {
		fmt.Printf("rank=%d fitness=%.6f genome=%s\n", s.Rank, s.Fitness, s.Genome)
	}
	return nil
}

func runSummary(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	minImprovement := fs.Float64("min-improvement", 0, "improvement the run must reach to pass")
	save := fs.Bool("save", false, "write summary.json into the run's artifact directory")
	jsonOut := fs.Bool("json", false, "emit the summary as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveRunID(*artifacts, *runID, "summary", *latest)
	if err != nil {
		return err
	}

	record, ok, err := stats.ReadRunRecord(*artifacts, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run record not found: %s", id)
	}
	series, ok, err := stats.ReadFitnessSeries(*artifacts, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fitness series not found: %s", id)
	}

	summary := stats.NewRunSummary(record, series, *minImprovement)
	if *save {
		if err := stats.WriteRunSummary(filepath.Join(*artifacts, id), summary); err != nil {
			return err
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("run_id=%s bench=%s pop=%d gens=%d seed=%d initial_best=%.6f final_best=%.6f best_mean=%.6f best_std=%.6f improvement=%.6f passed=%t\n",
		summary.RunID,
		summary.Bench,
		summary.PopulationSize,
		summary.Generations,
		summary.Seed,
		summary.InitialBest,
		summary.FinalBest,
		summary.BestMean,
		summary.BestStd,
		summary.Improvement,
		summary.Passed,
	)
	return nil
}

func runShow(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	jsonOut := fs.Bool("json", false, "emit the run record as JSON")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveRunID(*artifacts, *runID, "show", *latest)
	if err != nil {
		return err
	}

	record, ok, err := stats.ReadRunRecord(*artifacts, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run record not found: %s", id)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	fmt.Printf("run_id=%s bench=%s strategy=%s eliminator=%s pop=%d gens=%d seed=%d best_fitness=%.6f stop_reason=%s created_at=%s\n",
		record.ID,
		record.Bench,
		record.Strategy,
		record.Eliminator,
		record.PopulationSize,
		record.Generations,
		record.Seed,
		record.BestFitness,
		record.StopReason,
		record.CreatedAtUTC,
	)
	return nil
}

func runProfile(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("profile requires a subcommand: list|show")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("profile list", flag.ContinueOnError)
		profilesFile := fs.String("profiles-file", defaultProfilesFile, "ini file with run profiles")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		names, err := listProfiles(*profilesFile)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no profiles")
			return nil
		}
		for _, name := range names {
			fmt.Printf("profile=%s\n", name)
		}
		return nil
	case "show":
		fs := flag.NewFlagSet("profile show", flag.ContinueOnError)
		name := fs.String("name", "", "profile name")
		profilesFile := fs.String("profiles-file", defaultProfilesFile, "ini file with run profiles")
		asJSON := fs.Bool("json", false, "print the resolved run spec as JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("profile show requires --name")
		}

		spec := defaultRunSpec()
		if err := applyProfile(&spec, *profilesFile, *name); err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(spec)
		}

		fmt.Printf("profile=%s bench=%s strategy=%s eliminator=%s weighting=%s pop=%d gens=%d rate=%.3f elitism=%t threshold=%.3f workers=%d seed=%d dims=%d target=%q fitness_goal=%.3f stop_at_goal=%t\n",
			*name,
			spec.Bench,
			spec.Strategy,
			spec.Eliminator,
			spec.Weighting,
			spec.Population,
			spec.Generations,
			spec.MutationRate,
			spec.Elitism,
			spec.Threshold,
			spec.Workers,
			spec.Seed,
			spec.Dimensions,
			spec.Target,
			spec.FitnessGoal,
			spec.StopAtGoal,
		)
		return nil
	default:
		return fmt.Errorf("unsupported profile subcommand: %s", args[0])
	}
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	artifacts := fs.String("artifacts", artifactsDir, "artifact directory to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveRunID(*artifacts, *runID, "export", *latest)
	if err != nil {
		return err
	}

	exportedDir, err := stats.ExportRunArtifacts(*artifacts, id, *outDir)
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", id, filepath.Clean(exportedDir))
	return nil
}

func resolveRunID(baseDir, runID, command string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return "", fmt.Errorf("%s requires --run-id or --latest", command)
	}
	if runID != "" {
		return runID, nil
	}

	entries, err := stats.ListRunIndex(baseDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs found in run index")
	}
	return entries[0].RunID, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gonosctl <init|run|benches|runs|fitness|top|summary|show|profile|experiment|export> [flags]", msg)
}

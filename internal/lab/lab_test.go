package lab

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gonos/internal/archive"
	"gonos/internal/bench"
	"gonos/internal/stats"
)

func newTestLab(cfg Config) *Lab {
	if cfg.Store == nil {
		cfg.Store = archive.NewMemoryStore()
	}
	l := New(cfg)
	Expect(l.Init(context.Background())).To(Succeed())
	return l
}

func phraseRunConfig() RunConfig {
	params := bench.DefaultParams()
	params.Strategy = bench.StrategyMitosis
	params.PopulationSize = 32
	params.MutationRate = 0.3
	params.Target = "go"
	params.Seed = 7
	return RunConfig{
		Bench:       "phrase",
		Params:      params,
		Generations: 5,
	}
}

var _ = Describe("Lab", func() {
	Context("initialization", func() {
		It("requires a store", func() {
			l := New(Config{})
			Expect(l.Init(context.Background())).To(MatchError(ContainSubstring("store is required")))
		})

		It("refuses runs before Init", func() {
			l := New(Config{Store: archive.NewMemoryStore()})
			_, err := l.RunEvolution(context.Background(), phraseRunConfig())
			Expect(err).To(MatchError(ContainSubstring("lab is not initialized")))
		})

		It("is idempotent", func() {
			l := newTestLab(Config{})
			Expect(l.Init(context.Background())).To(Succeed())
			Expect(l.Started()).To(BeTrue())
		})
	})

	Context("running evolution", func() {
		It("persists the run record, history, and solutions", func() {
			store := archive.NewMemoryStore()
			l := newTestLab(Config{Store: store, SolutionCount: 3})

			result, err := l.RunEvolution(context.Background(), phraseRunConfig())
			Expect(err).NotTo(HaveOccurred())

			Expect(result.RunID).NotTo(BeEmpty())
			Expect(result.StopReason).To(Equal(StopReasonCompleted))
			Expect(result.Generations).To(Equal(5))
			Expect(result.BestByGeneration).To(HaveLen(5))
			Expect(result.History).To(HaveLen(5))
			Expect(result.Solutions).To(HaveLen(3))
			Expect(result.ArtifactsDir).To(BeEmpty())

			run, ok, err := store.GetRun(context.Background(), result.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(run.Bench).To(Equal("phrase"))
			Expect(run.Strategy).To(Equal("mitosis"))
			Expect(run.Eliminator).To(Equal("percentile"))
			Expect(run.PopulationSize).To(Equal(32))
			Expect(run.Generations).To(Equal(5))
			Expect(run.StopReason).To(Equal("completed"))
			Expect(run.CreatedAtUTC).NotTo(BeEmpty())

			history, ok, err := store.GetHistory(context.Background(), result.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(history).To(HaveLen(5))
			Expect(history[0].Generation).To(Equal(1))
			Expect(history[0].Population).To(Equal(32))
			Expect(history[0].Survivors).To(BeNumerically(">", 0))

			solutions, ok, err := store.GetSolutions(context.Background(), result.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(solutions).To(HaveLen(3))
			Expect(solutions[0].Rank).To(Equal(1))
			Expect(solutions[0].Fitness).To(BeNumerically(">=", solutions[1].Fitness))
			Expect(solutions[0].RunID).To(Equal(result.RunID))
		})

		It("validates the run configuration", func() {
			l := newTestLab(Config{})

			cfg := phraseRunConfig()
			cfg.Bench = ""
			_, err := l.RunEvolution(context.Background(), cfg)
			Expect(err).To(MatchError(ContainSubstring("bench name is required")))

			cfg = phraseRunConfig()
			cfg.Generations = 0
			_, err = l.RunEvolution(context.Background(), cfg)
			Expect(err).To(MatchError(ContainSubstring("generations must be > 0")))

			cfg = phraseRunConfig()
			cfg.Bench = "missing"
			_, err = l.RunEvolution(context.Background(), cfg)
			Expect(err).To(MatchError(bench.ErrBenchNotFound))
		})

		It("stops early when the fitness goal is reached", func() {
			store := archive.NewMemoryStore()
			l := newTestLab(Config{Store: store})

			cfg := phraseRunConfig()
			cfg.Generations = 1000
			cfg.FitnessGoal = 1.0
			cfg.StopAtGoal = true

			result, err := l.RunEvolution(context.Background(), cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.StopReason).To(Equal(StopReasonGoalReached))
			Expect(result.Generations).To(BeNumerically("<", 1000))
			Expect(result.BestFitness).To(Equal(1.0))

			run, ok, err := store.GetRun(context.Background(), result.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(run.StopReason).To(Equal("goal_reached"))
		})

		It("aborts without persisting when the context is canceled", func() {
			store := archive.NewMemoryStore()
			l := newTestLab(Config{Store: store})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			cfg := phraseRunConfig()
			cfg.RunID = "canceled-run"

			_, err := l.RunEvolution(ctx, cfg)
			Expect(err).To(MatchError(context.Canceled))

			_, ok, err := store.GetRun(context.Background(), "canceled-run")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("writes artifacts when configured", func() {
			dir, err := os.MkdirTemp("", "lab-artifacts-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			l := newTestLab(Config{Store: archive.NewMemoryStore(), ArtifactsDir: dir})

			result, err := l.RunEvolution(context.Background(), phraseRunConfig())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ArtifactsDir).To(Equal(filepath.Join(dir, result.RunID)))

			for _, file := range []string{"run.json", "fitness_history.json", "history.json", "solutions.json", "fitness_series.csv"} {
				Expect(filepath.Join(result.ArtifactsDir, file)).To(BeAnExistingFile())
			}

			index, err := stats.ListRunIndex(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(index).To(HaveLen(1))
			Expect(index[0].RunID).To(Equal(result.RunID))
			Expect(index[0].Bench).To(Equal("phrase"))
			Expect(index[0].StopReason).To(Equal("completed"))

			series, ok, err := stats.ReadFitnessSeries(dir, result.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(series).To(HaveLen(5))
		})

		It("rejects duplicate active run ids", func() {
			l := newTestLab(Config{})

			control := make(chan Command, 1)
			Expect(l.registerRunControl("dup", control)).To(Succeed())
			DeferCleanup(l.unregisterRunControl, "dup")

			cfg := phraseRunConfig()
			cfg.RunID = "dup"
			_, err := l.RunEvolution(context.Background(), cfg)
			Expect(err).To(MatchError(ContainSubstring("run already active: dup")))
		})
	})

	Context("run control", func() {
		It("completes after a pause and continue", func() {
			l := newTestLab(Config{})

			control := make(chan Command, 16)
			control <- CommandPause

			cfg := phraseRunConfig()
			cfg.RunID = "paused-run"
			cfg.Control = control

			done := make(chan RunResult, 1)
			go func() {
				defer GinkgoRecover()
				result, err := l.RunEvolution(context.Background(), cfg)
				Expect(err).NotTo(HaveOccurred())
				done <- result
			}()

			Eventually(l.ActiveRuns).Should(ContainElement("paused-run"))
			Consistently(done, "100ms").ShouldNot(Receive())

			Expect(l.ContinueRun("paused-run")).To(Succeed())

			var result RunResult
			Eventually(done).Should(Receive(&result))
			Expect(result.StopReason).To(Equal(StopReasonCompleted))
			Expect(result.Generations).To(Equal(5))
			Eventually(l.ActiveRuns).Should(BeEmpty())
		})

		It("parks a run started paused until continue arrives", func() {
			l := newTestLab(Config{})

			cfg := phraseRunConfig()
			cfg.RunID = "parked-run"
			cfg.StartPaused = true

			done := make(chan RunResult, 1)
			go func() {
				defer GinkgoRecover()
				result, err := l.RunEvolution(context.Background(), cfg)
				Expect(err).NotTo(HaveOccurred())
				done <- result
			}()

			Eventually(l.ActiveRuns).Should(ContainElement("parked-run"))
			Consistently(done, "100ms").ShouldNot(Receive())

			Expect(l.ContinueRun("parked-run")).To(Succeed())

			var result RunResult
			Eventually(done).Should(Receive(&result))
			Expect(result.StopReason).To(Equal(StopReasonCompleted))
			Expect(result.Generations).To(Equal(5))
		})

		It("stops a paused run and keeps its progress", func() {
			store := archive.NewMemoryStore()
			l := newTestLab(Config{Store: store})

			control := make(chan Command, 16)
			control <- CommandPause

			cfg := phraseRunConfig()
			cfg.RunID = "stopped-run"
			cfg.Control = control

			done := make(chan RunResult, 1)
			go func() {
				defer GinkgoRecover()
				result, err := l.RunEvolution(context.Background(), cfg)
				Expect(err).NotTo(HaveOccurred())
				done <- result
			}()

			Eventually(l.ActiveRuns).Should(ContainElement("stopped-run"))
			Expect(l.StopRun("stopped-run")).To(Succeed())

			var result RunResult
			Eventually(done).Should(Receive(&result))
			Expect(result.StopReason).To(Equal(StopReasonStopped))
			Expect(result.Generations).To(Equal(0))
			Expect(result.History).To(BeEmpty())

			run, ok, err := store.GetRun(context.Background(), "stopped-run")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(run.StopReason).To(Equal("stopped"))
			Expect(run.Generations).To(Equal(0))
		})

		It("routes commands only to active runs", func() {
			l := newTestLab(Config{})
			Expect(l.PauseRun("missing")).To(MatchError(ContainSubstring("run not active: missing")))
			Expect(l.StopRun("")).To(MatchError(ContainSubstring("run id is required")))
		})

		It("reports a full control channel", func() {
			l := newTestLab(Config{})

			control := make(chan Command)
			Expect(l.registerRunControl("wedged", control)).To(Succeed())
			DeferCleanup(l.unregisterRunControl, "wedged")

			Expect(l.PauseRun("wedged")).To(MatchError(ContainSubstring("run control channel is full: wedged")))
		})
	})

	Context("shutdown", func() {
		It("signals stop to active runs and marks the lab stopped", func() {
			l := newTestLab(Config{})

			control := make(chan Command, 16)
			control <- CommandPause

			cfg := phraseRunConfig()
			cfg.RunID = "shutdown-run"
			cfg.Control = control

			done := make(chan RunResult, 1)
			go func() {
				defer GinkgoRecover()
				result, err := l.RunEvolution(context.Background(), cfg)
				Expect(err).NotTo(HaveOccurred())
				done <- result
			}()

			Eventually(l.ActiveRuns).Should(ContainElement("shutdown-run"))
			l.Shutdown()

			var result RunResult
			Eventually(done).Should(Receive(&result))
			Expect(result.StopReason).To(Equal(StopReasonStopped))

			Expect(l.Started()).To(BeFalse())
			_, err := l.RunEvolution(context.Background(), phraseRunConfig())
			Expect(err).To(MatchError(ContainSubstring("lab is not initialized")))
		})
	})
})

package gonos

// GenerationStats summarizes one generation's fitness distribution after
// evaluation and selection.
type GenerationStats struct {
	Population   int
	Survivors    int
	BestFitness  float64
	WorstFitness float64
	MeanFitness  float64
}

// Observer receives advisory per-generation telemetry from an elimination
// policy. Observations must never influence which genomes survive, and
// implementations must not block the evolution loop indefinitely.
type Observer interface {
	Observe(stats GenerationStats)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(GenerationStats)

func (f ObserverFunc) Observe(stats GenerationStats) {
	f(stats)
}

func observeGeneration[G any](obs Observer, scored []ScoredGenome[G], survivors int) {
	if obs == nil {
		return
	}
	stats := GenerationStats{Population: len(scored), Survivors: survivors}
	if len(scored) > 0 {
		best := scored[0].Fitness
		worst := scored[0].Fitness
		sum := 0.0
		for _, sg := range scored {
			if sg.Fitness > best {
				best = sg.Fitness
			}
			if sg.Fitness < worst {
				worst = sg.Fitness
			}
			sum += sg.Fitness
		}
		stats.BestFitness = best
		stats.WorstFitness = worst
		stats.MeanFitness = sum / float64(len(scored))
	}
	obs.Observe(stats)
}

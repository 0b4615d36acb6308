package gacha

// SimulationReport summarizes a run of simulated pulls for one player.
type SimulationReport struct {
	Pulls        int
	TierCounts   map[Tier]int
	HardPityHits int
	ForcedHits   int
	// LongestDrought is the largest number of pulls between two top-two results.
	LongestDrought int
	// MeanTopTwoInterval is the average number of pulls per top-two result.
	MeanTopTwoInterval float64
}

// Simulate plays pulls consecutive pulls starting from an empty counter.
func Simulate(cfg Config, rng RandomSource, pulls int) (SimulationReport, error) {
	r, err := NewResolver(cfg, rng)
	if err != nil {
		return SimulationReport{}, err
	}
	rep := SimulationReport{Pulls: pulls, TierCounts: make(map[Tier]int, NumTiers)}
	counter := 0
	topTwo := 0
	for i := 0; i < pulls; i++ {
		out := r.Roll(counter)
		rep.TierCounts[out.Tier]++
		if out.HardPity {
			rep.HardPityHits++
		}
		if out.Forced {
			rep.ForcedHits++
		}
		if out.Tier.IsTopTwo() {
			topTwo++
			if counter+1 > rep.LongestDrought {
				rep.LongestDrought = counter + 1
			}
		}
		counter = ApplyResult(counter, out.Tier)
	}
	if counter > rep.LongestDrought {
		rep.LongestDrought = counter
	}
	if topTwo > 0 {
		rep.MeanTopTwoInterval = float64(pulls) / float64(topTwo)
	}
	return rep, nil
}

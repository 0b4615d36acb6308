package gacha

// Outcome is the tier decision for a single pull.
type Outcome struct {
	Tier Tier
	// HardPity is set when the counter had reached the hard threshold.
	HardPity bool
	// Forced is set when the soft-pity check forced a top-two result.
	Forced bool
}

// PityConsumed reports whether the pity mechanism, rather than the plain
// draw, decided this outcome.
func (o Outcome) PityConsumed() bool {
	return o.HardPity || o.Forced
}

// ForceChance is the probability of the forced-pity check succeeding at
// counter. It grows linearly from 0 at SoftPity to ForceMaxChance at HardPity.
func (c Config) ForceChance(counter int) float64 {
	if counter < c.SoftPity || c.HardPity <= c.SoftPity {
		return 0
	}
	p := c.ForceMaxChance * float64(counter-c.SoftPity) / float64(c.HardPity-c.SoftPity)
	if p > c.ForceMaxChance {
		p = c.ForceMaxChance
	}
	return p
}

// ShouldForcePity runs the independent soft-pity check.
func (r *Resolver) ShouldForcePity(counter int) bool {
	p := r.cfg.ForceChance(counter)
	if p <= 0 {
		return false
	}
	return r.rng.Float64() < p
}

// Roll decides the tier of the next pull for counter: hard pity first, then
// the forced check, then the boosted draw.
func (r *Resolver) Roll(counter int) Outcome {
	if r.cfg.AtHardPity(counter) {
		return Outcome{Tier: r.topTier(), HardPity: true}
	}
	if r.ShouldForcePity(counter) {
		return Outcome{Tier: r.topTier(), Forced: true}
	}
	return Outcome{Tier: r.ResolveTier(counter)}
}

// ApplyResult returns the counter after granting tier: 0 for the two rarest
// tiers, counter+1 otherwise.
func ApplyResult(counter int, tier Tier) int {
	if tier.IsTopTwo() {
		return 0
	}
	if counter < 0 {
		counter = 0
	}
	return counter + 1
}

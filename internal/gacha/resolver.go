package gacha

import (
	"github.com/cockroachdb/errors"
)

// Config holds the rate table and the pity curve.
type Config struct {
	Table Table

	// SoftPity is the counter value at which the two rarest tiers start to
	// be boosted and the forced-pity check becomes active.
	SoftPity int
	// HardPity bounds the drought: the HardPity-th consecutive pull without a
	// top-two result is guaranteed to land in one of the two rarest tiers.
	HardPity int

	// SoftPityStep is added to the boost factor for every pull past SoftPity.
	SoftPityStep float64
	// SoftPityMaxBoost caps the boost factor.
	SoftPityMaxBoost float64
	// ForceMaxChance is the forced-pity probability reached at HardPity.
	ForceMaxChance float64
}

func DefaultConfig() Config {
	return Config{
		Table:            DefaultTable(),
		SoftPity:         1200,
		HardPity:         1500,
		SoftPityStep:     0.01,
		SoftPityMaxBoost: 5,
		ForceMaxChance:   0.5,
	}
}

func (c Config) Validate() error {
	if err := c.Table.Validate(); err != nil {
		return err
	}
	if c.SoftPity <= 0 {
		return errors.New("soft pity must be > 0")
	}
	if c.HardPity <= c.SoftPity {
		return errors.Newf("hard pity (%d) must be greater than soft pity (%d)", c.HardPity, c.SoftPity)
	}
	if c.SoftPityStep < 0 {
		return errors.New("soft pity step must be >= 0")
	}
	if c.SoftPityMaxBoost < 1 {
		return errors.New("soft pity max boost must be >= 1")
	}
	if c.ForceMaxChance < 0 || c.ForceMaxChance > 0.5 {
		return errors.New("force max chance must be within [0, 0.5]")
	}
	return nil
}

// BoostFactor is the multiplier applied to the two rarest tiers at counter.
func (c Config) BoostFactor(counter int) float64 {
	if counter < c.SoftPity {
		return 1
	}
	f := 1 + c.SoftPityStep*float64(counter-c.SoftPity+1)
	if f > c.SoftPityMaxBoost {
		f = c.SoftPityMaxBoost
	}
	return f
}

// EffectiveTable returns the rate table in force at counter. Past soft pity
// the two rarest tiers are multiplied by BoostFactor and the other five are
// scaled down proportionally so the table still sums to 100.
func (c Config) EffectiveTable(counter int) Table {
	f := c.BoostFactor(counter)
	if f == 1 {
		return c.Table
	}
	m, d := Mythical.Rank(), Divine.Rank()
	topBase := c.Table[m] + c.Table[d]
	restBase := 100 - topBase
	topBoosted := topBase * f
	if topBoosted > 100 {
		topBoosted = 100
	}

	out := c.Table
	out[m] = c.Table[m] / topBase * topBoosted
	out[d] = c.Table[d] / topBase * topBoosted
	scale := 0.0
	if restBase > 0 {
		scale = (100 - topBoosted) / restBase
	}
	for i := 0; i < m; i++ {
		out[i] = c.Table[i] * scale
	}
	return out
}

// Percentage reports pity progress toward HardPity, clamped to [0, 100].
func (c Config) Percentage(counter int) float64 {
	if c.HardPity <= 0 || counter <= 0 {
		return 0
	}
	p := float64(counter) * 100 / float64(c.HardPity)
	if p > 100 {
		p = 100
	}
	return p
}

// AtHardPity reports whether the pull made at counter is guaranteed: it
// would be the HardPity-th pull since the last top-two result.
func (c Config) AtHardPity(counter int) bool {
	return counter+1 >= c.HardPity
}

// Resolver maps a pity counter to a tier.
type Resolver struct {
	cfg Config
	rng RandomSource
}

func NewResolver(cfg Config, rng RandomSource) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid gacha config")
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	return &Resolver{cfg: cfg, rng: rng}, nil
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// ResolveTier draws a tier for a player whose pity counter is counter.
// At hard pity the draw is skipped and one of the two rarest tiers is
// returned by relative weight.
func (r *Resolver) ResolveTier(counter int) Tier {
	if r.cfg.AtHardPity(counter) {
		return r.topTier()
	}
	return drawFrom(r.cfg.EffectiveTable(counter), r.rng.Float64()*100)
}

func drawFrom(table Table, x float64) Tier {
	var cumulative float64
	for i, w := range table {
		if w <= 0 {
			continue
		}
		cumulative += w
		if cumulative >= x {
			return Tiers[i]
		}
	}
	return Common
}

// topTier picks mythical or divine by their relative base weight.
func (r *Resolver) topTier() Tier {
	wm := r.cfg.Table.Weight(Mythical)
	wd := r.cfg.Table.Weight(Divine)
	if wm+wd <= 0 {
		return Mythical
	}
	if r.rng.Float64()*(wm+wd) < wd {
		return Divine
	}
	return Mythical
}

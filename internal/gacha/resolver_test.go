package gacha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRNG struct {
	vals []float64
	i    int
}

func (s *scriptedRNG) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func script(vals ...float64) *scriptedRNG {
	return &scriptedRNG{vals: vals}
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.InDelta(t, 100, DefaultTable().Sum(), 1e-9)
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"rates do not sum", func(c *Config) { c.Table[0] = 10 }},
		{"negative rate", func(c *Config) { c.Table[0] = -1; c.Table[1] = 76 }},
		{"no top two", func(c *Config) { c.Table[0] += 0.1; c.Table[5], c.Table[6] = 0, 0 }},
		{"hard below soft", func(c *Config) { c.HardPity = c.SoftPity }},
		{"force chance too high", func(c *Config) { c.ForceMaxChance = 0.9 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveTierCumulativeWalk(t *testing.T) {
	tests := []struct {
		draw float64
		want Tier
	}{
		{0, Common},
		{0.449, Common},
		{0.5, Uncommon},
		{0.8, Rare},
		{0.95, Epic},
		{0.995, Legendary},
		{0.9995, Mythical},
		{0.99995, Divine},
	}
	for _, tc := range tests {
		r, err := NewResolver(DefaultConfig(), script(tc.draw))
		require.NoError(t, err)
		assert.Equal(t, tc.want, r.ResolveTier(0), "draw=%v", tc.draw)
	}
}

func TestResolveTierSkipsZeroWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Table = Table{0, 75, 15, 7, 2.9, 0.09, 0.01}
	r, err := NewResolver(cfg, script(0))
	require.NoError(t, err)
	assert.Equal(t, Uncommon, r.ResolveTier(0))
}

func TestHardPityGuaranteesTopTwo(t *testing.T) {
	cfg := DefaultConfig()
	for _, draw := range []float64{0, 0.05, 0.2, 0.5, 0.999} {
		r, err := NewResolver(cfg, script(draw))
		require.NoError(t, err)
		out := r.Roll(cfg.HardPity - 1)
		assert.True(t, out.Tier.IsTopTwo())
		assert.True(t, out.HardPity)
		assert.True(t, out.PityConsumed())
	}

	// divine holds a tenth of the top-two weight
	r, _ := NewResolver(cfg, script(0.05))
	assert.Equal(t, Divine, r.ResolveTier(cfg.HardPity-1))
	r, _ = NewResolver(cfg, script(0.5))
	assert.Equal(t, Mythical, r.ResolveTier(cfg.HardPity+10))
}

func TestEffectiveTableRenormalizes(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.Table, cfg.EffectiveTable(cfg.SoftPity-1))

	for _, counter := range []int{cfg.SoftPity, 1300, cfg.HardPity - 1} {
		eff := cfg.EffectiveTable(counter)
		assert.InDelta(t, 100, eff.Sum(), 1e-9, "counter=%d", counter)
		f := cfg.BoostFactor(counter)
		assert.InDelta(t, cfg.Table.Weight(Mythical)*f, eff.Weight(Mythical), 1e-9)
		assert.InDelta(t, cfg.Table.Weight(Divine)*f, eff.Weight(Divine), 1e-9)
		assert.Less(t, eff.Weight(Common), cfg.Table.Weight(Common))
	}
}

func TestBoostFactorCapped(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.BoostFactor(0))
	assert.InDelta(t, 1.01, cfg.BoostFactor(cfg.SoftPity), 1e-9)
	assert.InDelta(t, 2.0, cfg.BoostFactor(cfg.SoftPity+99), 1e-9)

	cfg.SoftPityStep = 1
	assert.Equal(t, cfg.SoftPityMaxBoost, cfg.BoostFactor(cfg.HardPity-1))
}

func TestForceChance(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.ForceChance(0))
	assert.Zero(t, cfg.ForceChance(cfg.SoftPity))
	assert.InDelta(t, 0.25, cfg.ForceChance(1350), 1e-9)
	assert.InDelta(t, 0.5, cfg.ForceChance(cfg.HardPity), 1e-9)
	assert.InDelta(t, 0.5, cfg.ForceChance(cfg.HardPity+500), 1e-9)
}

func TestRollForcedPity(t *testing.T) {
	cfg := DefaultConfig()
	r, err := NewResolver(cfg, script(0.1, 0.5))
	require.NoError(t, err)
	out := r.Roll(1498)
	assert.True(t, out.Forced)
	assert.False(t, out.HardPity)
	assert.Equal(t, Mythical, out.Tier)
}

func TestRollBelowSoftPityNeverForces(t *testing.T) {
	r, err := NewResolver(DefaultConfig(), script(0))
	require.NoError(t, err)
	out := r.Roll(10)
	assert.False(t, out.PityConsumed())
	assert.Equal(t, Common, out.Tier)
}

func TestApplyResult(t *testing.T) {
	assert.Equal(t, 0, ApplyResult(1499, Mythical))
	assert.Equal(t, 0, ApplyResult(3, Divine))
	assert.Equal(t, 1500, ApplyResult(1499, Legendary))
	assert.Equal(t, 1, ApplyResult(0, Common))
}

func TestPercentage(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.Percentage(0))
	assert.InDelta(t, 50, cfg.Percentage(750), 1e-9)
	assert.Equal(t, 100.0, cfg.Percentage(4000))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Divine ")
	require.NoError(t, err)
	assert.Equal(t, Divine, tier)

	_, err = ParseTier("celestial")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestSimulateNeverExceedsHardPity(t *testing.T) {
	cfg := DefaultConfig()
	rep, err := Simulate(cfg, NewSeededRNG(42), 20000)
	require.NoError(t, err)

	total := 0
	for _, n := range rep.TierCounts {
		total += n
	}
	assert.Equal(t, 20000, total)
	assert.LessOrEqual(t, rep.LongestDrought, cfg.HardPity)
	topTwo := rep.TierCounts[Mythical] + rep.TierCounts[Divine]
	assert.Greater(t, topTwo, 0)
	assert.InDelta(t, float64(rep.Pulls)/float64(topTwo), rep.MeanTopTwoInterval, 1e-9)
	assert.LessOrEqual(t, rep.MeanTopTwoInterval, float64(cfg.HardPity))
}

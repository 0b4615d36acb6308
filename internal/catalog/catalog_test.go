package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"fruitbot/internal/gacha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixedRNG float64

func (f fixedRNG) Float64() float64 { return float64(f) }

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)
	assert.Equal(t, gacha.DefaultTable(), c.Rates())
	assert.Empty(t, c.EmptyTiers())

	for _, id := range []string{"gura_gura_no_mi", "goro_goro_no_mi", "ope_ope_no_mi", "kiro_kiro_no_mi"} {
		_, ok := c.Item(id)
		assert.True(t, ok, id)
	}
	assert.Equal(t, 4, c.TierSize(gacha.Divine))
	assert.Equal(t, 6, c.TierSize(gacha.Mythical))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fruits.yaml")
	doc := `
items:
  - id: mane_mane_no_mi
    name: Mane Mane no Mi
    tier: rare
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, gacha.DefaultTable(), c.Rates())
	assert.Len(t, c.EmptyTiers(), gacha.NumTiers-1)
}

func TestBuildRejectsMalformedCatalog(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no items", "items: []", "no items"},
		{"duplicate id", `
items:
  - {id: a_no_mi, name: A, tier: common}
  - {id: a_no_mi, name: B, tier: rare}
`, "duplicate id"},
		{"unknown tier", `
items:
  - {id: a_no_mi, name: A, tier: cosmic}
`, "unknown tier"},
		{"rates do not sum", `
rates: {common: 50, uncommon: 30, rare: 15, epic: 2, legendary: 1, mythical: 0.5, divine: 0.5}
items:
  - {id: a_no_mi, name: A, tier: common}
`, "sum to 100"},
		{"inverted range", `
power_ranges:
  rare: {min: 2.0, max: 1.0}
items:
  - {id: a_no_mi, name: A, tier: common}
`, "inverted"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSelectUniformWithinTier(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)

	first := c.Select(gacha.Divine, fixedRNG(0))
	last := c.Select(gacha.Divine, fixedRNG(0.999))
	assert.Equal(t, gacha.Divine, first.Tier)
	assert.Equal(t, gacha.Divine, last.Tier)
	assert.NotEqual(t, first.ID, last.ID)
	assert.False(t, first.Generated)
}

func TestSelectSynthesizesForEmptyTier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	doc := `
items:
  - {id: kiro_kiro_no_mi, name: Kiro Kiro no Mi, tier: common}
`
	c, err := Parse([]byte(doc), zap.New(core))
	require.NoError(t, err)
	warnings := logs.Len()

	it := c.Select(gacha.Mythical, fixedRNG(0))
	assert.True(t, it.Generated)
	assert.Equal(t, gacha.Mythical, it.Tier)
	assert.Equal(t, "generated_mythical_fire", it.ID)
	assert.Equal(t, warnings+1, logs.Len())

	_, inCatalog := c.Item(it.ID)
	assert.False(t, inCatalog)
}

func TestRollPower(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)

	it, _ := c.Item("gura_gura_no_mi")
	assert.Equal(t, 370, c.RollPower(it, fixedRNG(0)))
	assert.Equal(t, 385, c.RollPower(it, fixedRNG(0.51)))

	common, _ := c.Item("kiro_kiro_no_mi")
	p := c.RollPower(common, fixedRNG(0.999))
	assert.GreaterOrEqual(t, p, 100)
	assert.LessOrEqual(t, p, 120)
}

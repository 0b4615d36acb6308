// Package catalog holds the immutable devil fruit catalog and the item
// selector that draws from it.
package catalog

import (
	"math"
	"sort"
	"strings"

	"fruitbot/internal/gacha"

	"go.uber.org/zap"
)

// PowerRange bounds the power multiplier rolled for a grant.
type PowerRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Item is a catalog entry. Generated items are synthesized at draw time for
// tiers that have no entries and never become part of the catalog.
type Item struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Tier        gacha.Tier  `json:"tier"`
	Category    string      `json:"category"`
	Element     string      `json:"element"`
	Description string      `json:"description,omitempty"`
	Power       *PowerRange `json:"power,omitempty"`
	Generated   bool        `json:"generated,omitempty"`
}

// Catalog is built once at startup and is read-only afterwards, so it is
// safe to share between goroutines without locking.
type Catalog struct {
	rates  gacha.Table
	ranges map[gacha.Tier]PowerRange
	items  map[string]Item
	byTier map[gacha.Tier][]Item
	log    *zap.Logger
}

// DefaultPowerRanges are used for any tier the catalog file leaves out.
func DefaultPowerRanges() map[gacha.Tier]PowerRange {
	return map[gacha.Tier]PowerRange{
		gacha.Common:    {Min: 1.0, Max: 1.2},
		gacha.Uncommon:  {Min: 1.2, Max: 1.4},
		gacha.Rare:      {Min: 1.4, Max: 1.7},
		gacha.Epic:      {Min: 1.7, Max: 2.1},
		gacha.Legendary: {Min: 1.95, Max: 2.6},
		gacha.Mythical:  {Min: 2.6, Max: 3.2},
		gacha.Divine:    {Min: 3.7, Max: 4.0},
	}
}

func newCatalog(rates gacha.Table, ranges map[gacha.Tier]PowerRange, items []Item, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{
		rates:  rates,
		ranges: ranges,
		items:  make(map[string]Item, len(items)),
		byTier: make(map[gacha.Tier][]Item, gacha.NumTiers),
		log:    log.Named("catalog"),
	}
	for _, it := range items {
		c.items[it.ID] = it
		c.byTier[it.Tier] = append(c.byTier[it.Tier], it)
	}
	for tier := range c.byTier {
		list := c.byTier[tier]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return c
}

func (c *Catalog) Rates() gacha.Table { return c.rates }

func (c *Catalog) Len() int { return len(c.items) }

func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Items returns every catalog entry ordered by tier then id.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, tier := range gacha.Tiers {
		out = append(out, c.byTier[tier]...)
	}
	return out
}

// TierSize reports how many entries tier has.
func (c *Catalog) TierSize(tier gacha.Tier) int {
	return len(c.byTier[tier])
}

// EmptyTiers lists tiers that would fall back to synthesized items.
func (c *Catalog) EmptyTiers() []gacha.Tier {
	var out []gacha.Tier
	for _, tier := range gacha.Tiers {
		if len(c.byTier[tier]) == 0 {
			out = append(out, tier)
		}
	}
	return out
}

// PowerRange returns the multiplier range for tier.
func (c *Catalog) PowerRange(tier gacha.Tier) PowerRange {
	if r, ok := c.ranges[tier]; ok {
		return r
	}
	return DefaultPowerRanges()[tier]
}

// Select draws uniformly among the entries of tier. When the tier is empty
// it synthesizes a placeholder and logs a warning.
func (c *Catalog) Select(tier gacha.Tier, rng gacha.RandomSource) Item {
	list := c.byTier[tier]
	if len(list) > 0 {
		return list[gacha.IntN(rng, len(list))]
	}
	it := synthesize(tier, rng)
	c.log.Warn("synthesized placeholder item for empty tier",
		zap.String("tier", tier.String()),
		zap.String("item_id", it.ID),
	)
	return it
}

// RollPower samples the item's multiplier range and returns floor(m*100).
func (c *Catalog) RollPower(it Item, rng gacha.RandomSource) int {
	r := c.PowerRange(it.Tier)
	if it.Power != nil {
		r = *it.Power
	}
	m := r.Min + rng.Float64()*(r.Max-r.Min)
	return int(math.Floor(m * 100))
}

var (
	placeholderNames    = []string{"Mystery Fruit", "Ancient Fruit", "Mystic Fruit", "Forgotten Fruit"}
	placeholderElements = []string{"Fire", "Ice", "Lightning", "Earth", "Wind", "Water", "Light", "Darkness", "Metal", "Poison"}
	placeholderKinds    = []string{"Paramecia", "Logia", "Zoan"}
)

// synthesize builds a placeholder for tier. The id depends only on tier and
// element so repeat grants of the same placeholder count as duplicates.
func synthesize(tier gacha.Tier, rng gacha.RandomSource) Item {
	element := placeholderElements[gacha.IntN(rng, len(placeholderElements))]
	name := placeholderNames[gacha.IntN(rng, len(placeholderNames))]
	return Item{
		ID:          "generated_" + tier.String() + "_" + strings.ToLower(element),
		Name:        element + " " + name,
		Tier:        tier,
		Category:    placeholderKinds[gacha.IntN(rng, len(placeholderKinds))],
		Element:     element,
		Description: "A " + tier.String() + " " + element + " fruit with unknown powers.",
		Generated:   true,
	}
}

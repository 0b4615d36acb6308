package gacha

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// Tier is one of the seven rarity categories, ordered most common to rarest.
type Tier string

const (
	Common    Tier = "common"
	Uncommon  Tier = "uncommon"
	Rare      Tier = "rare"
	Epic      Tier = "epic"
	Legendary Tier = "legendary"
	Mythical  Tier = "mythical"
	Divine    Tier = "divine"
)

const NumTiers = 7

// Tiers lists every tier from most common to rarest.
var Tiers = [NumTiers]Tier{Common, Uncommon, Rare, Epic, Legendary, Mythical, Divine}

var ErrUnknownTier = errors.New("unknown tier")

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Rank() < 0 {
		return "", errors.Wrapf(ErrUnknownTier, "%q", s)
	}
	return t, nil
}

// Rank returns the tier's position in Tiers, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, v := range Tiers {
		if v == t {
			return i
		}
	}
	return -1
}

// IsTopTwo reports whether t is one of the two rarest tiers, the ones that
// satisfy and reset pity.
func (t Tier) IsTopTwo() bool {
	return t == Mythical || t == Divine
}

func (t Tier) String() string {
	return string(t)
}

// Table assigns each tier a percentage, indexed by Rank.
type Table [NumTiers]float64

// DefaultTable keeps the two pity tiers at a combined 0.1% so that the
// default soft/hard thresholds sit just past the expected wait.
func DefaultTable() Table {
	return Table{45, 30, 15, 7, 2.9, 0.09, 0.01}
}

func TableFromMap(m map[Tier]float64) (Table, error) {
	var t Table
	for tier, pct := range m {
		rank := tier.Rank()
		if rank < 0 {
			return t, errors.Wrapf(ErrUnknownTier, "%q", tier)
		}
		t[rank] = pct
	}
	return t, t.Validate()
}

func (t Table) Weight(tier Tier) float64 {
	rank := tier.Rank()
	if rank < 0 {
		return 0
	}
	return t[rank]
}

func (t Table) Sum() float64 {
	var sum float64
	for _, w := range t {
		sum += w
	}
	return sum
}

func (t Table) Validate() error {
	for i, w := range t {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.Newf("rate for %s must be a non-negative number, got %v", Tiers[i], w)
		}
	}
	if sum := t.Sum(); math.Abs(sum-100) > 1e-6 {
		return errors.Newf("rates must sum to 100, got %v", sum)
	}
	if t[Mythical.Rank()]+t[Divine.Rank()] <= 0 {
		return errors.New("at least one of mythical or divine must have a positive rate")
	}
	return nil
}

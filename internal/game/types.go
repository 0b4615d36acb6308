package game

import (
	"time"

	"fruitbot/internal/catalog"
	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"
)

type PullInput struct {
	PlayerID       string `json:"player_id"`
	Username       string `json:"username,omitempty"`
	Count          int    `json:"count"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// PullOutcome describes one unit of a batch.
type PullOutcome struct {
	Item         catalog.Item `json:"item"`
	Tier         gacha.Tier   `json:"tier"`
	Power        int          `json:"power"`
	IsFirstCopy  bool         `json:"is_first_copy"`
	CopyCount    int          `json:"copy_count"`
	PityConsumed bool         `json:"pity_consumed"`
	PityKind     string       `json:"pity_kind,omitempty"`
}

const (
	PityHard   = "hard"
	PityForced = "forced"
)

type PullResult struct {
	Results           []PullOutcome `json:"results"`
	TotalCost         int64         `json:"total_cost"`
	PityUsedInSession bool          `json:"pity_used_in_session"`
	Balance           int64         `json:"balance"`
	PityCounter       int           `json:"pity_counter"`
	Level             int           `json:"level"`
}

// IncomeResult reports one passive accrual or manual claim.
type IncomeResult struct {
	Granted          int64         `json:"granted"`
	PeriodsElapsed   int64         `json:"periods_elapsed"`
	HoursAccumulated float64       `json:"hours_accumulated"`
	HourlyRate       int64         `json:"hourly_rate"`
	UniqueItems      int           `json:"unique_items"`
	Balance          int64         `json:"balance"`
	NextAt           time.Time     `json:"next_at"`
	Cooldown         time.Duration `json:"-"`
}

type PityInfo struct {
	Current    int     `json:"current"`
	SoftPity   int     `json:"soft_pity"`
	HardPity   int     `json:"hard_pity"`
	Percentage float64 `json:"percentage"`
	Remaining  int     `json:"remaining"`
	// Degraded is set when the counter could not be read and defaults are shown.
	Degraded bool `json:"degraded,omitempty"`
}

type BalanceView struct {
	PlayerID       string `json:"player_id"`
	Balance        int64  `json:"balance"`
	TotalEarned    int64  `json:"total_earned"`
	TotalSpent     int64  `json:"total_spent"`
	AggregatePower int64  `json:"aggregate_power"`
	Level          int    `json:"level"`
	TotalPulls     int64  `json:"total_pulls"`
	UniqueItems    int    `json:"unique_items"`
	HourlyRate     int64  `json:"hourly_rate"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// CollectionItem is an owned item enriched with its catalog entry.
type CollectionItem struct {
	ledger.OwnedItem
	Category string `json:"category,omitempty"`
	Element  string `json:"element,omitempty"`
}

type AdjustInput struct {
	PlayerID string `json:"player_id"`
	Delta    int64  `json:"delta"`
	Reason   string `json:"reason"`
}

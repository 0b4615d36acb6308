package game

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"fruitbot/internal/config"
	"fruitbot/internal/ledger"
)

// Settings are the economy numerics the service applies.
type Settings struct {
	PullCost         int64
	StartingBalance  int64
	MaxPulls         int
	MaxHourlyIncome  int64
	FullIncomeItems  int
	PassivePeriod    time.Duration
	ManualCooldown   time.Duration
	ManualMultiplier float64
}

func DefaultSettings() Settings {
	return Settings{
		PullCost:         1000,
		StartingBalance:  5000,
		MaxPulls:         100,
		MaxHourlyIncome:  6250,
		FullIncomeItems:  5,
		PassivePeriod:    time.Hour,
		ManualCooldown:   60 * time.Second,
		ManualMultiplier: 3,
	}
}

func SettingsFromEconomy(e config.Economy) Settings {
	return Settings{
		PullCost:         e.PullCost,
		StartingBalance:  e.StartingBalance,
		MaxPulls:         e.MaxPulls,
		MaxHourlyIncome:  e.MaxHourlyIncome,
		FullIncomeItems:  e.FullIncomeItems,
		PassivePeriod:    e.PassivePeriod,
		ManualCooldown:   e.ManualCooldown,
		ManualMultiplier: e.ManualMultiplier,
	}
}

const (
	maxUsernameLen = 32
	maxReasonLen   = 200

	maxIdempotencyKeyLen = 128
)

var playerIDRE = regexp.MustCompile(`^[A-Za-z0-9_:-]{1,64}$`)

func ValidatePlayerID(id string) error {
	if !playerIDRE.MatchString(id) {
		return ledger.Invalid("player_id", "must be 1-64 characters of letters, digits, '_', ':' or '-'")
	}
	return nil
}

func (s Settings) validateCount(n int) error {
	if n < 1 || n > s.MaxPulls {
		return ledger.Invalid("count", "must be between 1 and "+strconv.Itoa(s.MaxPulls))
	}
	return nil
}

func cleanUsername(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxUsernameLen {
		name = string([]rune(name)[:maxUsernameLen])
	}
	return name
}

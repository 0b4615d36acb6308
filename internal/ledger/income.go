package ledger

import (
	"math"
	"time"
)

// HourlyRate scales max linearly with unique items until fullItems is reached.
func HourlyRate(uniqueItems int, max int64, fullItems int) int64 {
	if uniqueItems <= 0 || max <= 0 {
		return 0
	}
	if fullItems <= 0 || uniqueItems >= fullItems {
		return max
	}
	return max * int64(uniqueItems) / int64(fullItems)
}

// WholePeriods counts complete periods between since and now.
func WholePeriods(since, now time.Time, period time.Duration) int64 {
	if period <= 0 || !now.After(since) {
		return 0
	}
	return int64(now.Sub(since) / period)
}

// PassiveAmount is the currency earned at rate per hour over periods.
// Period lengths are counted in whole seconds.
func PassiveAmount(rate, periods int64, period time.Duration) int64 {
	if rate <= 0 || periods <= 0 {
		return 0
	}
	secs := int64(period / time.Second)
	return rate * periods * secs / 3600
}

// ManualAmount is the lump sum for one manual claim: the income one cooldown
// window would earn at rate per hour, times multiplier.
func ManualAmount(rate int64, cooldown time.Duration, multiplier float64) int64 {
	if rate <= 0 || cooldown <= 0 || multiplier <= 0 {
		return 0
	}
	ms := rate * int64(cooldown/time.Millisecond)
	return int64(math.Floor(float64(ms) * multiplier / float64(time.Hour/time.Millisecond)))
}

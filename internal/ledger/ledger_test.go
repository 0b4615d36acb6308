package ledger

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestHourlyRate(t *testing.T) {
	tests := []struct {
		unique int
		want   int64
	}{
		{0, 0},
		{1, 1250},
		{3, 3750},
		{4, 5000},
		{5, 6250},
		{40, 6250},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, HourlyRate(tc.unique, 6250, 5), "unique=%d", tc.unique)
	}
}

func TestWholePeriods(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), WholePeriods(base, base.Add(59*time.Minute), time.Hour))
	assert.Equal(t, int64(2), WholePeriods(base, base.Add(150*time.Minute), time.Hour))
	assert.Equal(t, int64(0), WholePeriods(base, base.Add(-time.Hour), time.Hour))
}

func TestPassiveAndManualAmounts(t *testing.T) {
	assert.Equal(t, int64(7500), PassiveAmount(3750, 2, time.Hour))
	assert.Equal(t, int64(1875), PassiveAmount(3750, 1, 30*time.Minute))
	assert.Zero(t, PassiveAmount(0, 10, time.Hour))

	assert.Equal(t, int64(312), ManualAmount(6250, time.Minute, 3))
	assert.Equal(t, int64(300), ManualAmount(6000, time.Minute, 3))
	assert.Zero(t, ManualAmount(0, time.Minute, 3))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(99))
	assert.Equal(t, 2, LevelFor(100))
	assert.Equal(t, 11, LevelFor(1000))
}

func TestAccountCreditDebit(t *testing.T) {
	var a Account
	a.Credit(5000)
	a.Debit(1000)
	assert.Equal(t, int64(4000), a.Balance)
	assert.True(t, a.Consistent())

	a.Balance = -1
	assert.False(t, a.Consistent())
}

func TestAsStorage(t *testing.T) {
	assert.NoError(t, AsStorage("op", nil))

	domain := &InsufficientFundsError{Balance: 1, Required: 2}
	assert.Same(t, domain, AsStorage("pull", domain))
	assert.ErrorIs(t, AsStorage("pull", errors.Wrap(ErrDuplicateRequest, "claim")), ErrDuplicateRequest)

	cause := errors.New("pq: relation accounts does not exist")
	err := AsStorage("pull", cause)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "pull", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "relation")
}

func TestPublicMessageNeverLeaksCause(t *testing.T) {
	err := &StorageError{Op: "pull", Err: errors.New("SELECT * FROM accounts failed")}
	msg := PublicMessage(err)
	assert.NotContains(t, msg, "SELECT")

	assert.Contains(t, PublicMessage(&CooldownError{Remaining: 1500 * time.Millisecond}), "2 seconds")
	assert.Contains(t, PublicMessage(&NotEligibleError{Reason: "No fruits.", Guidance: "Use /summon."}), "/summon")
	assert.Contains(t, PublicMessage(&InsufficientFundsError{Balance: 500, Required: 1000}), "1000")
}

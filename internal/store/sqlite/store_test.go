package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fruitbot.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAccount(id string, now time.Time) ledger.Account {
	return ledger.Account{
		PlayerID:     id,
		Username:     "luffy",
		Balance:      5000,
		TotalEarned:  5000,
		Level:        1,
		LastIncomeAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		created, err := tx.CreateAccount(ctx, newAccount("p1", now))
		require.NoError(t, err)
		assert.True(t, created)

		again, err := tx.CreateAccount(ctx, newAccount("p1", now))
		require.NoError(t, err)
		assert.False(t, again)

		a, err := tx.LockAccount(ctx, "p1")
		require.NoError(t, err)
		a.Debit(1000)
		a.PityCounter = 7
		a.LastManualClaimAt = now.Add(time.Minute)
		return tx.UpdateAccount(ctx, a)
	})
	require.NoError(t, err)

	a, err := s.GetAccount(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), a.Balance)
	assert.Equal(t, int64(1000), a.TotalSpent)
	assert.Equal(t, 7, a.PityCounter)
	assert.True(t, a.LastIncomeAt.Equal(now))
	assert.True(t, a.LastManualClaimAt.Equal(now.Add(time.Minute)))
	assert.True(t, a.Consistent())

	_, err = s.GetAccount(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccount(ctx, newAccount("p1", now)); err != nil {
			return err
		}
		if err := tx.InsertGrant(ctx, ledger.CollectionEntry{
			PlayerID: "p1", ItemID: "gura_gura_no_mi", ItemName: "Gura Gura no Mi",
			Tier: gacha.Divine, Power: 380, PullGroup: uuid.NewString(), AcquiredAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, "p1")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	n, err := s.CountUnique(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGrantsAndCollection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()
	group := uuid.NewString()

	grants := []ledger.CollectionEntry{
		{ItemID: "kiro_kiro_no_mi", ItemName: "Kiro Kiro no Mi", Tier: gacha.Common, Power: 110},
		{ItemID: "kiro_kiro_no_mi", ItemName: "Kiro Kiro no Mi", Tier: gacha.Common, Power: 115},
		{ItemID: "goro_goro_no_mi", ItemName: "Goro Goro no Mi", Tier: gacha.Mythical, Power: 300},
	}
	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccount(ctx, newAccount("p1", now)); err != nil {
			return err
		}
		for _, g := range grants {
			g.PlayerID, g.PullGroup, g.AcquiredAt = "p1", group, now
			if err := tx.InsertGrant(ctx, g); err != nil {
				return err
			}
		}
		n, err := tx.CountOwned(ctx, "p1", "kiro_kiro_no_mi")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		u, err := tx.CountUnique(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, u)
		return nil
	})
	require.NoError(t, err)

	owned, err := s.ListOwned(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "goro_goro_no_mi", owned[0].ItemID)
	assert.Equal(t, 2, owned[1].Copies)
	assert.Equal(t, 115, owned[1].BestPower)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Players)
	assert.Equal(t, int64(5000), st.Circulation)
	assert.Equal(t, int64(2), st.GrantsByTier[gacha.Common])
	assert.Equal(t, int64(1), st.GrantsByTier[gacha.Mythical])
}

func TestIdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	claim := func() error {
		return s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.ClaimIdempotency(ctx, "p1", "req-1", "pull")
		})
	}
	require.NoError(t, claim())
	assert.ErrorIs(t, claim(), ledger.ErrDuplicateRequest)

	n, err := s.PurgeIdempotencyKeys(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, claim())
}

func TestLedgerAndIncomeJournal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccount(ctx, newAccount("p1", now)); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID: uuid.NewString(), PlayerID: "p1", Delta: 5000,
			Reason: ledger.ReasonStartingBalance, BalanceAfter: 5000, CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID: uuid.NewString(), PlayerID: "p1", Delta: -1000,
			Reason: ledger.ReasonPull, BalanceAfter: 4000, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.RecordIncome(ctx, ledger.IncomeRecord{
			PlayerID: "p1", Amount: 0, UniqueItems: 0, Kind: ledger.IncomePassive, Periods: 1, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	entries, err := s.ListLedger(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.ReasonPull, entries[0].Reason)
	assert.Equal(t, int64(4000), entries[0].BalanceAfter)
}

func TestStaleAccountsAndWipe(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccount(ctx, newAccount("old", now.Add(-3*time.Hour))); err != nil {
			return err
		}
		_, err := tx.CreateAccount(ctx, newAccount("fresh", now))
		return err
	})
	require.NoError(t, err)

	ids, err := s.ListStaleAccounts(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.DeleteAccount(ctx, "old")
	})
	require.NoError(t, err)
	_, err = s.GetAccount(ctx, "old")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.DeleteAccount(ctx, "old")
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

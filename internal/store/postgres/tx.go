package postgres

import (
	"context"
	"sort"
	"strings"
	"time"

	"fruitbot/internal/ledger"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

type tx struct {
	tx pgx.Tx
	sb sq.StatementBuilderType
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (t *tx) LockAccount(ctx context.Context, playerID string) (ledger.Account, error) {
	q, args, err := t.sb.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"player_id": playerID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return ledger.Account{}, errors.Wrap(err, "build query")
	}
	return scanAccount(t.tx.QueryRow(ctx, q, args...))
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (
			player_id, username, balance, total_earned, total_spent, aggregate_power,
			level, total_pulls, pity_counter, last_income_at, last_manual_claim_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (player_id) DO NOTHING
	`, a.PlayerID, a.Username, a.Balance, a.TotalEarned, a.TotalSpent, a.AggregatePower,
		a.Level, a.TotalPulls, a.PityCounter, a.LastIncomeAt, nullableTime(a.LastManualClaimAt),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, errors.Wrap(err, "create account")
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET username = $2, balance = $3, total_earned = $4, total_spent = $5,
			aggregate_power = $6, level = $7, total_pulls = $8, pity_counter = $9,
			last_income_at = $10, last_manual_claim_at = $11, updated_at = $12
		WHERE player_id = $1
	`, a.PlayerID, a.Username, a.Balance, a.TotalEarned, a.TotalSpent,
		a.AggregatePower, a.Level, a.TotalPulls, a.PityCounter,
		a.LastIncomeAt, nullableTime(a.LastManualClaimAt), a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update account")
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) DeleteAccount(ctx context.Context, playerID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE player_id = $1`, playerID)
	if err != nil {
		return errors.Wrap(err, "delete account")
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM idempotency_keys WHERE player_id = $1`, playerID); err != nil {
		return errors.Wrap(err, "delete idempotency keys")
	}
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e ledger.Entry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries (tx_group_id, player_id, delta, reason, note, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.TxGroupID, e.PlayerID, e.Delta, string(e.Reason), e.Note, e.BalanceAfter, e.CreatedAt)
	return errors.Wrap(err, "append ledger entry")
}

func (t *tx) InsertGrant(ctx context.Context, g ledger.CollectionEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO collection_entries (player_id, item_id, item_name, tier, power, generated, pull_group, acquired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.PlayerID, g.ItemID, g.ItemName, g.Tier.String(), g.Power, g.Generated, g.PullGroup, g.AcquiredAt)
	return errors.Wrap(err, "insert grant")
}

func (t *tx) CountOwned(ctx context.Context, playerID, itemID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM collection_entries WHERE player_id = $1 AND item_id = $2`, playerID, itemID).Scan(&n)
	return n, errors.Wrap(err, "count owned")
}

func (t *tx) CountUnique(ctx context.Context, playerID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(DISTINCT item_id) FROM collection_entries WHERE player_id = $1`, playerID).Scan(&n)
	return n, errors.Wrap(err, "count unique items")
}

func (t *tx) RecordIncome(ctx context.Context, r ledger.IncomeRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO income_history (player_id, amount, unique_items, kind, periods, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.PlayerID, r.Amount, r.UniqueItems, string(r.Kind), r.Periods, r.CreatedAt)
	return errors.Wrap(err, "record income")
}

func (t *tx) ClaimIdempotency(ctx context.Context, playerID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ledger.Invalid("idempotency_key", "must not be empty")
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (player_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (player_id, key) DO NOTHING
	`, playerID, key, action)
	if err != nil {
		return errors.Wrap(err, "claim idempotency key")
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicateRequest
	}
	return nil
}

func sortOwned(items []ledger.OwnedItem) {
	sort.Slice(items, func(i, j int) bool {
		ri, rj := items[i].Tier.Rank(), items[j].Tier.Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].ItemID < items[j].ItemID
	})
}

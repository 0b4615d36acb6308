package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fruitbot/internal/ledger"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
)

type tx struct {
	tx *sql.Tx
	sb sq.StatementBuilderType
}

func nullableNanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return toNanos(t)
}

func (t *tx) LockAccount(ctx context.Context, playerID string) (ledger.Account, error) {
	q, args, err := t.sb.Select(accountColumns...).From("accounts").Where(sq.Eq{"player_id": playerID}).ToSql()
	if err != nil {
		return ledger.Account{}, errors.Wrap(err, "build query")
	}
	return scanAccount(t.tx.QueryRowContext(ctx, q, args...))
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) (bool, error) {
	q, args, err := t.sb.Insert("accounts").
		Columns(accountColumns...).
		Values(a.PlayerID, a.Username, a.Balance, a.TotalEarned, a.TotalSpent, a.AggregatePower,
			a.Level, a.TotalPulls, a.PityCounter, toNanos(a.LastIncomeAt), nullableNanos(a.LastManualClaimAt),
			toNanos(a.CreatedAt), toNanos(a.UpdatedAt)).
		Suffix("ON CONFLICT (player_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build query")
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, errors.Wrap(err, "create account")
	}
	n, err := res.RowsAffected()
	return n == 1, errors.Wrap(err, "create account")
}

func (t *tx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	q, args, err := t.sb.Update("accounts").SetMap(map[string]any{
		"username":             a.Username,
		"balance":              a.Balance,
		"total_earned":         a.TotalEarned,
		"total_spent":          a.TotalSpent,
		"aggregate_power":      a.AggregatePower,
		"level":                a.Level,
		"total_pulls":          a.TotalPulls,
		"pity_counter":         a.PityCounter,
		"last_income_at":       toNanos(a.LastIncomeAt),
		"last_manual_claim_at": nullableNanos(a.LastManualClaimAt),
		"updated_at":           toNanos(a.UpdatedAt),
	}).Where(sq.Eq{"player_id": a.PlayerID}).ToSql()
	if err != nil {
		return errors.Wrap(err, "build query")
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "update account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) DeleteAccount(ctx context.Context, playerID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE player_id = ?`, playerID)
	if err != nil {
		return errors.Wrap(err, "delete account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE player_id = ?`, playerID); err != nil {
		return errors.Wrap(err, "delete idempotency keys")
	}
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e ledger.Entry) error {
	q, args, err := t.sb.Insert("ledger_entries").
		Columns("tx_group_id", "player_id", "delta", "reason", "note", "balance_after", "created_at").
		Values(e.TxGroupID, e.PlayerID, e.Delta, string(e.Reason), e.Note, e.BalanceAfter, toNanos(e.CreatedAt)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build query")
	}
	_, err = t.tx.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "append ledger entry")
}

func (t *tx) InsertGrant(ctx context.Context, g ledger.CollectionEntry) error {
	q, args, err := t.sb.Insert("collection_entries").
		Columns("player_id", "item_id", "item_name", "tier", "power", "generated", "pull_group", "acquired_at").
		Values(g.PlayerID, g.ItemID, g.ItemName, g.Tier.String(), g.Power, g.Generated, g.PullGroup, toNanos(g.AcquiredAt)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build query")
	}
	_, err = t.tx.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "insert grant")
}

func (t *tx) CountOwned(ctx context.Context, playerID, itemID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_entries WHERE player_id = ? AND item_id = ?`, playerID, itemID).Scan(&n)
	return n, errors.Wrap(err, "count owned")
}

func (t *tx) CountUnique(ctx context.Context, playerID string) (int, error) {
	return countUnique(ctx, t.tx, playerID)
}

func (t *tx) RecordIncome(ctx context.Context, r ledger.IncomeRecord) error {
	q, args, err := t.sb.Insert("income_history").
		Columns("player_id", "amount", "unique_items", "kind", "periods", "created_at").
		Values(r.PlayerID, r.Amount, r.UniqueItems, string(r.Kind), r.Periods, toNanos(r.CreatedAt)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build query")
	}
	_, err = t.tx.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "record income")
}

func (t *tx) ClaimIdempotency(ctx context.Context, playerID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ledger.Invalid("idempotency_key", "must not be empty")
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (player_id, key, action, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_id, key) DO NOTHING
	`, playerID, key, action, toNanos(time.Now()))
	if err != nil {
		return errors.Wrap(err, "claim idempotency key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrDuplicateRequest
	}
	return nil
}

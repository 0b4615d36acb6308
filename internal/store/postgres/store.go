// Package postgres implements the ledger store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"time"

	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs every mutation in a READ COMMITTED transaction that locks the
// account row with SELECT ... FOR UPDATE before reading it.
type Store struct {
	db      *pgxpool.Pool
	timeout time.Duration
	sb      sq.StatementBuilderType
}

var _ ledger.Store = (*Store)(nil)

func New(db *pgxpool.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		db:      db,
		timeout: timeout,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ledger.ErrTxConflict
}

func (s *Store) runTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{tx: pgTx, sb: s.sb}); err != nil {
		return err
	}
	return errors.Wrap(pgTx.Commit(ctx), "commit tx")
}

// isSerializationError matches serialization failures and deadlocks, both
// of which are safe to retry from the start of the transaction.
func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var accountColumns = []string{
	"player_id", "username", "balance", "total_earned", "total_spent", "aggregate_power",
	"level", "total_pulls", "pity_counter", "last_income_at", "last_manual_claim_at",
	"created_at", "updated_at",
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		a          ledger.Account
		lastManual *time.Time
	)
	err := row.Scan(&a.PlayerID, &a.Username, &a.Balance, &a.TotalEarned, &a.TotalSpent, &a.AggregatePower,
		&a.Level, &a.TotalPulls, &a.PityCounter, &a.LastIncomeAt, &lastManual, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ledger.ErrAccountNotFound
	}
	if err != nil {
		return a, errors.Wrap(err, "scan account")
	}
	if lastManual != nil {
		a.LastManualClaimAt = lastManual.UTC()
	}
	a.LastIncomeAt = a.LastIncomeAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, playerID string) (ledger.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.Select(accountColumns...).From("accounts").Where(sq.Eq{"player_id": playerID}).ToSql()
	if err != nil {
		return ledger.Account{}, errors.Wrap(err, "build query")
	}
	return scanAccount(s.db.QueryRow(ctx, q, args...))
}

func (s *Store) CountUnique(ctx context.Context, playerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT item_id) FROM collection_entries WHERE player_id = $1`, playerID).Scan(&n)
	return n, errors.Wrap(err, "count unique items")
}

func (s *Store) ListOwned(ctx context.Context, playerID string) ([]ledger.OwnedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.
		Select("item_id", "MAX(item_name)", "MAX(tier)", "COUNT(*)", "MAX(power)", "MIN(acquired_at)").
		From("collection_entries").
		Where(sq.Eq{"player_id": playerID}).
		GroupBy("item_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list owned")
	}
	defer rows.Close()

	var out []ledger.OwnedItem
	for rows.Next() {
		var (
			it   ledger.OwnedItem
			tier string
		)
		if err := rows.Scan(&it.ItemID, &it.ItemName, &tier, &it.Copies, &it.BestPower, &it.FirstAcquired); err != nil {
			return nil, errors.Wrap(err, "scan owned")
		}
		it.Tier = gacha.Tier(tier)
		it.FirstAcquired = it.FirstAcquired.UTC()
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list owned")
	}
	sortOwned(out)
	return out, nil
}

func (s *Store) ListLedger(ctx context.Context, playerID string, limit int) ([]ledger.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	q, args, err := s.sb.
		Select("tx_group_id::text", "player_id", "delta", "reason", "note", "balance_after", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"player_id": playerID}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e      ledger.Entry
			reason string
		)
		if err := rows.Scan(&e.TxGroupID, &e.PlayerID, &e.Delta, &reason, &e.Note, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ledger entry")
		}
		e.Reason = ledger.Reason(reason)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list ledger")
}

func (s *Store) ListStaleAccounts(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.
		Select("player_id").
		From("accounts").
		Where(sq.LtOrEq{"last_income_at": cutoff}).
		OrderBy("last_income_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list stale accounts")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, errors.Wrap(err, "list stale accounts")
}

func (s *Store) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.Delete("idempotency_keys").Where(sq.Lt{"created_at": before}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build query")
	}
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "purge idempotency keys")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (ledger.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	st := ledger.Stats{GrantsByTier: make(map[gacha.Tier]int64, gacha.NumTiers)}
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(balance), 0)::bigint, COALESCE(SUM(total_pulls), 0)::bigint FROM accounts`,
	).Scan(&st.Players, &st.Circulation, &st.TotalPulls)
	if err != nil {
		return st, errors.Wrap(err, "account totals")
	}

	q, args, err := s.sb.Select("tier", "COUNT(*)").From("collection_entries").GroupBy("tier").ToSql()
	if err != nil {
		return st, errors.Wrap(err, "build query")
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return st, errors.Wrap(err, "grants by tier")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tier string
			n    int64
		)
		if err := rows.Scan(&tier, &n); err != nil {
			return st, errors.Wrap(err, "scan tier count")
		}
		st.GrantsByTier[gacha.Tier(tier)] = n
	}
	return st, errors.Wrap(rows.Err(), "grants by tier")
}

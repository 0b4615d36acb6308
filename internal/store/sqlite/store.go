// Package sqlite implements the ledger store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// Store persists accounts, grants and the journal in SQLite. Write
// transactions start with BEGIN IMMEDIATE, so the database write lock
// serializes concurrent mutations the way a row lock does on PostgreSQL.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	sb      sq.StatementBuilderType
}

var _ ledger.Store = (*Store)(nil)

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(v int64) time.Time { return time.Unix(0, v).UTC() }

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, timeout time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{
		db:      db,
		timeout: timeout,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const maxAttempts = 5
	retryDelay := 20 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		retryDelay *= 2
	}
	return ledger.ErrTxConflict
}

func (s *Store) runTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{tx: sqlTx, sb: s.sb}); err != nil {
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "commit tx")
}

func isBusy(err error) bool {
	var e *msqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return true
	}
	return false
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		a                            ledger.Account
		lastIncome, created, updated int64
		lastManual                   sql.NullInt64
	)
	err := row.Scan(&a.PlayerID, &a.Username, &a.Balance, &a.TotalEarned, &a.TotalSpent, &a.AggregatePower,
		&a.Level, &a.TotalPulls, &a.PityCounter, &lastIncome, &lastManual, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ledger.ErrAccountNotFound
	}
	if err != nil {
		return a, errors.Wrap(err, "scan account")
	}
	a.LastIncomeAt = fromNanos(lastIncome)
	if lastManual.Valid {
		a.LastManualClaimAt = fromNanos(lastManual.Int64)
	}
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, playerID string) (ledger.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.Select(accountColumns...).From("accounts").Where(sq.Eq{"player_id": playerID}).ToSql()
	if err != nil {
		return ledger.Account{}, errors.Wrap(err, "build query")
	}
	return scanAccount(s.db.QueryRowContext(ctx, q, args...))
}

func (s *Store) CountUnique(ctx context.Context, playerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return countUnique(ctx, s.db, playerID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countUnique(ctx context.Context, db queryer, playerID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT item_id) FROM collection_entries WHERE player_id = ?`, playerID).Scan(&n)
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
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list owned")
	}
	defer rows.Close()

	var out []ledger.OwnedItem
	for rows.Next() {
		var (
			it    ledger.OwnedItem
			tier  string
			first int64
		)
		if err := rows.Scan(&it.ItemID, &it.ItemName, &tier, &it.Copies, &it.BestPower, &first); err != nil {
			return nil, errors.Wrap(err, "scan owned")
		}
		it.Tier = gacha.Tier(tier)
		it.FirstAcquired = fromNanos(first)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list owned")
	}
	sortOwned(out)
	return out, nil
}

// sortOwned orders rarest tiers first, then by item id.
func sortOwned(items []ledger.OwnedItem) {
	sort.Slice(items, func(i, j int) bool {
		ri, rj := items[i].Tier.Rank(), items[j].Tier.Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].ItemID < items[j].ItemID
	})
}

func (s *Store) ListLedger(ctx context.Context, playerID string, limit int) ([]ledger.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	q, args, err := s.sb.
		Select("tx_group_id", "player_id", "delta", "reason", "note", "balance_after", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"player_id": playerID}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e       ledger.Entry
			reason  string
			created int64
		)
		if err := rows.Scan(&e.TxGroupID, &e.PlayerID, &e.Delta, &reason, &e.Note, &e.BalanceAfter, &created); err != nil {
			return nil, errors.Wrap(err, "scan ledger entry")
		}
		e.Reason = ledger.Reason(reason)
		e.CreatedAt = fromNanos(created)
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
		Where(sq.LtOrEq{"last_income_at": toNanos(cutoff)}).
		OrderBy("last_income_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list stale accounts")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan player id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "list stale accounts")
}

func (s *Store) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	q, args, err := s.sb.Delete("idempotency_keys").Where(sq.Lt{"created_at": toNanos(before)}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build query")
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "purge idempotency keys")
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (ledger.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	st := ledger.Stats{GrantsByTier: make(map[gacha.Tier]int64, gacha.NumTiers)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(total_pulls), 0) FROM accounts`,
	).Scan(&st.Players, &st.Circulation, &st.TotalPulls)
	if err != nil {
		return st, errors.Wrap(err, "account totals")
	}

	q, args, err := s.sb.Select("tier", "COUNT(*)").From("collection_entries").GroupBy("tier").ToSql()
	if err != nil {
		return st, errors.Wrap(err, "build query")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
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

// Package ledger defines the player account aggregate, its journal and the
// storage contracts the game service runs its transactions against.
package ledger

import (
	"context"
	"time"

	"fruitbot/internal/gacha"
)

// Account is the per-player aggregate root. Balance always equals
// TotalEarned minus TotalSpent; the starting balance counts as earned.
type Account struct {
	PlayerID          string    `json:"player_id"`
	Username          string    `json:"username"`
	Balance           int64     `json:"balance"`
	TotalEarned       int64     `json:"total_earned"`
	TotalSpent        int64     `json:"total_spent"`
	AggregatePower    int64     `json:"aggregate_power"`
	Level             int       `json:"level"`
	TotalPulls        int64     `json:"total_pulls"`
	PityCounter       int       `json:"pity_counter"`
	LastIncomeAt      time.Time `json:"last_income_at"`
	LastManualClaimAt time.Time `json:"last_manual_claim_at,omitzero"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Credit adds amount to the balance and lifetime earnings.
func (a *Account) Credit(amount int64) {
	a.Balance += amount
	a.TotalEarned += amount
}

// Debit removes amount from the balance. Callers check affordability first.
func (a *Account) Debit(amount int64) {
	a.Balance -= amount
	a.TotalSpent += amount
}

// Consistent reports whether the balance identity holds.
func (a Account) Consistent() bool {
	return a.Balance >= 0 && a.Balance == a.TotalEarned-a.TotalSpent
}

// LevelFor derives a player's level from lifetime pulls.
func LevelFor(totalPulls int64) int {
	if totalPulls < 0 {
		totalPulls = 0
	}
	return 1 + int(totalPulls/100)
}

// CollectionEntry is one physical grant. Rows are never updated.
type CollectionEntry struct {
	PlayerID   string     `json:"player_id"`
	ItemID     string     `json:"item_id"`
	ItemName   string     `json:"item_name"`
	Tier       gacha.Tier `json:"tier"`
	Power      int        `json:"power"`
	Generated  bool       `json:"generated,omitempty"`
	PullGroup  string     `json:"pull_group"`
	AcquiredAt time.Time  `json:"acquired_at"`
}

// OwnedItem groups a player's grants of one item.
type OwnedItem struct {
	ItemID        string     `json:"item_id"`
	ItemName      string     `json:"item_name"`
	Tier          gacha.Tier `json:"tier"`
	Copies        int        `json:"copies"`
	BestPower     int        `json:"best_power"`
	FirstAcquired time.Time  `json:"first_acquired"`
}

type Reason string

const (
	ReasonStartingBalance Reason = "starting_balance"
	ReasonPull            Reason = "pull"
	ReasonPassiveIncome   Reason = "passive_income"
	ReasonManualIncome    Reason = "manual_income"
	ReasonAdminAdjust     Reason = "admin_adjust"
)

// Entry is a journal row written for every balance mutation.
type Entry struct {
	TxGroupID    string    `json:"tx_group_id"`
	PlayerID     string    `json:"player_id"`
	Delta        int64     `json:"delta"`
	Reason       Reason    `json:"reason"`
	Note         string    `json:"note,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

type IncomeKind string

const (
	IncomePassive IncomeKind = "passive"
	IncomeManual  IncomeKind = "manual"
)

type IncomeRecord struct {
	PlayerID    string     `json:"player_id"`
	Amount      int64      `json:"amount"`
	UniqueItems int        `json:"unique_items"`
	Kind        IncomeKind `json:"kind"`
	Periods     int64      `json:"periods"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Stats are server-wide totals for operators.
type Stats struct {
	Players      int64                `json:"players"`
	Circulation  int64                `json:"circulation"`
	TotalPulls   int64                `json:"total_pulls"`
	GrantsByTier map[gacha.Tier]int64 `json:"grants_by_tier"`
}

// Store is the persistence collaborator. WithTx runs fn inside one storage
// transaction, commits when fn returns nil and rolls back otherwise. A
// store may rerun fn when the engine reports a serialization conflict, so fn
// must not keep side effects outside tx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, playerID string) (Account, error)
	CountUnique(ctx context.Context, playerID string) (int, error)
	ListOwned(ctx context.Context, playerID string) ([]OwnedItem, error)
	ListLedger(ctx context.Context, playerID string, limit int) ([]Entry, error)
	// ListStaleAccounts returns ids whose income checkpoint is at or before cutoff.
	ListStaleAccounts(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context) (Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// LockAccount reads the account and holds a write lock on it until the
	// transaction ends. It returns ErrAccountNotFound for unknown players.
	LockAccount(ctx context.Context, playerID string) (Account, error)
	// CreateAccount inserts a if no row exists yet and reports whether it did.
	CreateAccount(ctx context.Context, a Account) (bool, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, playerID string) error

	AppendLedger(ctx context.Context, e Entry) error
	InsertGrant(ctx context.Context, g CollectionEntry) error
	CountOwned(ctx context.Context, playerID, itemID string) (int, error)
	CountUnique(ctx context.Context, playerID string) (int, error)
	RecordIncome(ctx context.Context, r IncomeRecord) error
	// ClaimIdempotency returns ErrDuplicateRequest when key was already used
	// by playerID.
	ClaimIdempotency(ctx context.Context, playerID, key, action string) error
}

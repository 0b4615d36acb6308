package game

import (
	"context"
	"strings"
	"unicode/utf8"

	"fruitbot/internal/ledger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PityInfo never fails on storage errors; it logs and reports a zero
// counter flagged as degraded instead.
func (s *Service) PityInfo(ctx context.Context, playerID string) PityInfo {
	cfg := s.resolver.Config()
	info := PityInfo{SoftPity: cfg.SoftPity, HardPity: cfg.HardPity, Remaining: cfg.HardPity}
	if err := ValidatePlayerID(playerID); err != nil {
		info.Degraded = true
		return info
	}
	acct, err := s.store.GetAccount(ctx, playerID)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return info
	case err != nil:
		_ = s.fail("pity_info", playerID, err)
		info.Degraded = true
		return info
	}
	info.Current = acct.PityCounter
	info.Percentage = cfg.Percentage(acct.PityCounter)
	if rem := cfg.HardPity - acct.PityCounter; rem > 0 {
		info.Remaining = rem
	} else {
		info.Remaining = 0
	}
	return info
}

// Balance is a read-only view. Unknown players see what a new account would
// start with; storage failures yield a zero view flagged as degraded.
func (s *Service) Balance(ctx context.Context, playerID string) BalanceView {
	view := BalanceView{PlayerID: playerID, Level: 1}
	if err := ValidatePlayerID(playerID); err != nil {
		view.Degraded = true
		return view
	}
	acct, err := s.store.GetAccount(ctx, playerID)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		view.Balance = s.settings.StartingBalance
		view.TotalEarned = s.settings.StartingBalance
		return view
	case err != nil:
		_ = s.fail("balance", playerID, err)
		view.Degraded = true
		return view
	}
	unique, err := s.store.CountUnique(ctx, playerID)
	if err != nil {
		_ = s.fail("balance", playerID, err)
		view.Degraded = true
	}
	view.Balance = acct.Balance
	view.TotalEarned = acct.TotalEarned
	view.TotalSpent = acct.TotalSpent
	view.AggregatePower = acct.AggregatePower
	view.Level = acct.Level
	view.TotalPulls = acct.TotalPulls
	view.UniqueItems = unique
	view.HourlyRate = ledger.HourlyRate(unique, s.settings.MaxHourlyIncome, s.settings.FullIncomeItems)
	return view
}

// Collection lists owned items, rarest first, joined with catalog details.
func (s *Service) Collection(ctx context.Context, playerID string) ([]CollectionItem, error) {
	if err := ValidatePlayerID(playerID); err != nil {
		return nil, err
	}
	owned, err := s.store.ListOwned(ctx, playerID)
	if err != nil {
		return nil, s.fail("collection", playerID, err)
	}
	out := make([]CollectionItem, 0, len(owned))
	for _, o := range owned {
		ci := CollectionItem{OwnedItem: o}
		if it, ok := s.catalog.Item(o.ItemID); ok {
			ci.Category = it.Category
			ci.Element = it.Element
		}
		out = append(out, ci)
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, playerID string, limit int) ([]ledger.Entry, error) {
	if err := ValidatePlayerID(playerID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedger(ctx, playerID, limit)
	if err != nil {
		return nil, s.fail("history", playerID, err)
	}
	return entries, nil
}

// AdjustBalance applies an administrative credit or debit. A debit larger
// than the balance is rejected.
func (s *Service) AdjustBalance(ctx context.Context, in AdjustInput) (ledger.Account, error) {
	if err := ValidatePlayerID(in.PlayerID); err != nil {
		return ledger.Account{}, err
	}
	if in.Delta == 0 {
		return ledger.Account{}, ledger.Invalid("delta", "must not be zero")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReasonLen {
		return ledger.Account{}, ledger.Invalid("reason", "must be 1-200 characters")
	}

	var out ledger.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		now := s.clock()
		acct, err := s.lockOrCreate(ctx, tx, in.PlayerID, "", now)
		if err != nil {
			return err
		}
		if in.Delta < 0 {
			if acct.Balance+in.Delta < 0 {
				return &ledger.InsufficientFundsError{Balance: acct.Balance, Required: -in.Delta}
			}
			acct.Debit(-in.Delta)
		} else {
			acct.Credit(in.Delta)
		}
		acct.UpdatedAt = now
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID:    uuid.NewString(),
			PlayerID:     in.PlayerID,
			Delta:        in.Delta,
			Reason:       ledger.ReasonAdminAdjust,
			Note:         reason,
			BalanceAfter: acct.Balance,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, s.fail("adjust_balance", in.PlayerID, err)
	}
	s.log.Info("balance adjusted",
		zap.String("player_id", in.PlayerID),
		zap.Int64("delta", in.Delta),
		zap.String("reason", reason),
		zap.Int64("balance", out.Balance),
	)
	return out, nil
}

// WipeAccount deletes the account and, by cascade, its collection and history.
func (s *Service) WipeAccount(ctx context.Context, playerID string) error {
	if err := ValidatePlayerID(playerID); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.DeleteAccount(ctx, playerID)
	})
	if err != nil {
		return s.fail("wipe_account", playerID, err)
	}
	s.log.Warn("account wiped", zap.String("player_id", playerID))
	return nil
}

func (s *Service) Stats(ctx context.Context) (ledger.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return ledger.Stats{}, s.fail("stats", "", err)
	}
	return st, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

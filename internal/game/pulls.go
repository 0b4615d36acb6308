package game

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PerformPulls debits count pulls in one ledger entry and grants count items
// in the same transaction. Any failure rolls the whole batch back: either
// every item is granted and the full cost debited, or nothing changes.
func (s *Service) PerformPulls(ctx context.Context, in PullInput) (PullResult, error) {
	started := time.Now()
	var out PullResult

	if err := ValidatePlayerID(in.PlayerID); err != nil {
		s.metrics.ObserveBatch(started, "validation")
		return out, err
	}
	if err := s.settings.validateCount(in.Count); err != nil {
		s.metrics.ObserveBatch(started, "validation")
		return out, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		s.metrics.ObserveBatch(started, "validation")
		return out, ledger.Invalid("idempotency_key", "must be at most 128 bytes")
	}
	cost := s.settings.PullCost * int64(in.Count)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		out = PullResult{TotalCost: cost, Results: make([]PullOutcome, 0, in.Count)}
		now := s.clock()

		if key != "" {
			if err := tx.ClaimIdempotency(ctx, in.PlayerID, key, "pull"); err != nil {
				return err
			}
		}
		acct, err := s.lockOrCreate(ctx, tx, in.PlayerID, in.Username, now)
		if err != nil {
			return err
		}
		if acct.Balance < cost {
			return &ledger.InsufficientFundsError{Balance: acct.Balance, Required: cost}
		}

		group := uuid.NewString()
		acct.Debit(cost)
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID:    group,
			PlayerID:     in.PlayerID,
			Delta:        -cost,
			Reason:       ledger.ReasonPull,
			Note:         strconv.Itoa(in.Count) + " pulls",
			BalanceAfter: acct.Balance,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		for i := 0; i < in.Count; i++ {
			res, err := s.pullOne(ctx, tx, &acct, group, now)
			if err != nil {
				return errors.Wrapf(err, "pull %d of %d", i+1, in.Count)
			}
			if res.PityConsumed {
				out.PityUsedInSession = true
			}
			out.Results = append(out.Results, res)
		}

		acct.Level = ledger.LevelFor(acct.TotalPulls)
		acct.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		out.Balance = acct.Balance
		out.PityCounter = acct.PityCounter
		out.Level = acct.Level
		return nil
	})
	if err != nil {
		s.metrics.ObserveBatch(started, failureLabel(err))
		return PullResult{}, s.fail("pull", in.PlayerID, err)
	}

	s.metrics.ObserveBatch(started, "")
	s.recordOutcomes(in.PlayerID, out)
	s.log.Info("pull batch completed",
		zap.String("player_id", in.PlayerID),
		zap.Int("count", in.Count),
		zap.Int64("cost", cost),
		zap.Bool("pity_used", out.PityUsedInSession),
		zap.Int("pity_counter", out.PityCounter),
	)
	return out, nil
}

// pullOne resolves and grants a single unit, advancing acct in place.
func (s *Service) pullOne(ctx context.Context, tx ledger.Tx, acct *ledger.Account, group string, now time.Time) (PullOutcome, error) {
	roll := s.resolver.Roll(acct.PityCounter)
	item := s.catalog.Select(roll.Tier, s.rng)

	owned, err := tx.CountOwned(ctx, acct.PlayerID, item.ID)
	if err != nil {
		return PullOutcome{}, err
	}
	power := s.catalog.RollPower(item, s.rng)
	if err := tx.InsertGrant(ctx, ledger.CollectionEntry{
		PlayerID:   acct.PlayerID,
		ItemID:     item.ID,
		ItemName:   item.Name,
		Tier:       item.Tier,
		Power:      power,
		Generated:  item.Generated,
		PullGroup:  group,
		AcquiredAt: now,
	}); err != nil {
		return PullOutcome{}, err
	}

	acct.AggregatePower += int64(power)
	acct.PityCounter = gacha.ApplyResult(acct.PityCounter, roll.Tier)
	acct.TotalPulls++

	var kind string
	switch {
	case roll.HardPity:
		kind = PityHard
	case roll.Forced:
		kind = PityForced
	}
	return PullOutcome{
		Item:         item,
		Tier:         roll.Tier,
		Power:        power,
		IsFirstCopy:  owned == 0,
		CopyCount:    owned + 1,
		PityConsumed: roll.PityConsumed(),
		PityKind:     kind,
	}, nil
}

// recordOutcomes emits metrics and pity logs once the batch has committed.
func (s *Service) recordOutcomes(playerID string, out PullResult) {
	for _, r := range out.Results {
		s.metrics.Pull(r.Tier.String())
		if r.Item.Generated {
			s.metrics.Synthesize(r.Tier.String())
		}
		if r.PityConsumed {
			s.metrics.PityTrigger(r.PityKind)
			s.log.Info("pity triggered",
				zap.String("player_id", playerID),
				zap.String("kind", r.PityKind),
				zap.String("tier", r.Tier.String()),
				zap.String("item_id", r.Item.ID),
			)
		}
	}
}

func failureLabel(err error) string {
	var (
		ve *ledger.ValidationError
		ie *ledger.InsufficientFundsError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ie):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ledger.ErrTxConflict):
		return "conflict"
	}
	return "storage"
}

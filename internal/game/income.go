package game

import (
	"context"
	"time"

	"fruitbot/internal/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	noIncomeReason   = "You don't own any devil fruits yet, so there is no income to collect."
	noIncomeGuidance = "Pull with /summon to get your first fruit. Owning 5 or more different fruits earns the maximum hourly rate."
)

// AccruePassive credits every whole period elapsed since the account's
// checkpoint and advances the checkpoint by exactly those periods, so the
// fractional remainder carries over to the next call. A call with no whole
// period elapsed changes nothing.
func (s *Service) AccruePassive(ctx context.Context, playerID string) (IncomeResult, error) {
	if err := ValidatePlayerID(playerID); err != nil {
		return IncomeResult{}, err
	}
	period := s.settings.PassivePeriod
	var out IncomeResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		out = IncomeResult{}
		now := s.clock()
		acct, err := s.lockOrCreate(ctx, tx, playerID, "", now)
		if err != nil {
			return err
		}
		out.Balance = acct.Balance

		periods := ledger.WholePeriods(acct.LastIncomeAt, now, period)
		if periods == 0 {
			out.NextAt = acct.LastIncomeAt.Add(period)
			return nil
		}

		unique, err := tx.CountUnique(ctx, playerID)
		if err != nil {
			return err
		}
		rate := ledger.HourlyRate(unique, s.settings.MaxHourlyIncome, s.settings.FullIncomeItems)
		granted := ledger.PassiveAmount(rate, periods, period)

		acct.LastIncomeAt = acct.LastIncomeAt.Add(time.Duration(periods) * period)
		acct.UpdatedAt = now
		if granted > 0 {
			acct.Credit(granted)
			if err := tx.AppendLedger(ctx, ledger.Entry{
				TxGroupID:    uuid.NewString(),
				PlayerID:     playerID,
				Delta:        granted,
				Reason:       ledger.ReasonPassiveIncome,
				BalanceAfter: acct.Balance,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			if err := tx.RecordIncome(ctx, ledger.IncomeRecord{
				PlayerID:    playerID,
				Amount:      granted,
				UniqueItems: unique,
				Kind:        ledger.IncomePassive,
				Periods:     periods,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}

		out = IncomeResult{
			Granted:          granted,
			PeriodsElapsed:   periods,
			HoursAccumulated: float64(periods) * period.Hours(),
			HourlyRate:       rate,
			UniqueItems:      unique,
			Balance:          acct.Balance,
			NextAt:           acct.LastIncomeAt.Add(period),
		}
		return nil
	})
	if err != nil {
		return IncomeResult{}, s.fail("accrue_passive", playerID, err)
	}
	if out.Granted > 0 {
		s.metrics.Income(string(ledger.IncomePassive), out.Granted)
		s.log.Debug("passive income granted",
			zap.String("player_id", playerID),
			zap.Int64("amount", out.Granted),
			zap.Int64("periods", out.PeriodsElapsed),
		)
	}
	return out, nil
}

// ClaimManual grants the boosted lump sum once per cooldown window.
func (s *Service) ClaimManual(ctx context.Context, playerID string) (IncomeResult, error) {
	if err := ValidatePlayerID(playerID); err != nil {
		return IncomeResult{}, err
	}
	cooldown := s.settings.ManualCooldown
	var out IncomeResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		now := s.clock()
		acct, err := s.lockOrCreate(ctx, tx, playerID, "", now)
		if err != nil {
			return err
		}
		unique, err := tx.CountUnique(ctx, playerID)
		if err != nil {
			return err
		}
		if unique == 0 {
			return &ledger.NotEligibleError{Reason: noIncomeReason, Guidance: noIncomeGuidance}
		}
		if !acct.LastManualClaimAt.IsZero() {
			if elapsed := now.Sub(acct.LastManualClaimAt); elapsed < cooldown {
				return &ledger.CooldownError{Remaining: cooldown - elapsed}
			}
		}

		rate := ledger.HourlyRate(unique, s.settings.MaxHourlyIncome, s.settings.FullIncomeItems)
		amount := ledger.ManualAmount(rate, cooldown, s.settings.ManualMultiplier)
		acct.Credit(amount)
		acct.LastManualClaimAt = now
		acct.UpdatedAt = now
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID:    uuid.NewString(),
			PlayerID:     playerID,
			Delta:        amount,
			Reason:       ledger.ReasonManualIncome,
			BalanceAfter: acct.Balance,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.RecordIncome(ctx, ledger.IncomeRecord{
			PlayerID:    playerID,
			Amount:      amount,
			UniqueItems: unique,
			Kind:        ledger.IncomeManual,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		out = IncomeResult{
			Granted:     amount,
			HourlyRate:  rate,
			UniqueItems: unique,
			Balance:     acct.Balance,
			NextAt:      now.Add(cooldown),
			Cooldown:    cooldown,
		}
		return nil
	})
	if err != nil {
		return IncomeResult{}, s.fail("claim_manual", playerID, err)
	}
	s.metrics.Income(string(ledger.IncomeManual), out.Granted)
	s.log.Debug("manual income granted", zap.String("player_id", playerID), zap.Int64("amount", out.Granted))
	return out, nil
}

// CollectResult pairs the automatic accrual with the manual claim that
// follows it.
type CollectResult struct {
	Passive IncomeResult `json:"passive"`
	Manual  IncomeResult `json:"manual"`
}

// Collect accrues passive income and then attempts a manual claim. The
// passive part is committed even when the manual claim is rejected; the
// returned error is the manual claim's.
func (s *Service) Collect(ctx context.Context, playerID string) (CollectResult, error) {
	var out CollectResult
	passive, err := s.AccruePassive(ctx, playerID)
	if err != nil {
		return out, err
	}
	out.Passive = passive
	manual, err := s.ClaimManual(ctx, playerID)
	if err != nil {
		return out, err
	}
	out.Manual = manual
	return out, nil
}

// SweepCandidates lists accounts with at least one whole period to accrue.
func (s *Service) SweepCandidates(ctx context.Context, limit int) ([]string, error) {
	cutoff := s.clock().Add(-s.settings.PassivePeriod)
	ids, err := s.store.ListStaleAccounts(ctx, cutoff, limit)
	if err != nil {
		return nil, s.fail("list_stale_accounts", "", err)
	}
	return ids, nil
}

// PurgeIdempotencyKeys drops keys older than ttl.
func (s *Service) PurgeIdempotencyKeys(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.store.PurgeIdempotencyKeys(ctx, s.clock().Add(-ttl))
	if err != nil {
		return 0, s.fail("purge_idempotency_keys", "", err)
	}
	return n, nil
}

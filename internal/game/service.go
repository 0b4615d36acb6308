package game

import (
	"context"
	"time"

	"fruitbot/internal/catalog"
	"fruitbot/internal/gacha"
	"fruitbot/internal/ledger"
	"fruitbot/internal/metrics"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the pull orchestrator and income engine. It holds no per-player
// state; every mutation runs inside one store transaction.
type Service struct {
	store    ledger.Store
	catalog  *catalog.Catalog
	resolver *gacha.Resolver
	settings Settings
	rng      gacha.RandomSource
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRandom(rng gacha.RandomSource) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store ledger.Store, cat *catalog.Catalog, gachaCfg gacha.Config, settings Settings, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	s := &Service{
		store:    store,
		catalog:  cat,
		settings: settings,
		rng:      gacha.DefaultRNG(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("game")

	resolver, err := gacha.NewResolver(gachaCfg, s.rng)
	if err != nil {
		return nil, err
	}
	s.resolver = resolver
	return s, nil
}

func (s *Service) Settings() Settings { return s.settings }

func (s *Service) Gacha() gacha.Config { return s.resolver.Config() }

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

func (s *Service) clock() time.Time { return s.now().UTC() }

// fail turns infrastructure errors into StorageError and logs the cause.
// Domain errors pass through untouched.
func (s *Service) fail(op, playerID string, err error) error {
	err = ledger.AsStorage(op, err)
	var se *ledger.StorageError
	if errors.As(err, &se) {
		s.log.Error("storage failure",
			zap.String("op", op),
			zap.String("player_id", playerID),
			zap.Error(se.Err),
		)
		s.metrics.StorageError(op)
	}
	return err
}

// lockOrCreate locks the player's account, creating it with the starting
// balance on first interaction.
func (s *Service) lockOrCreate(ctx context.Context, tx ledger.Tx, playerID, username string, now time.Time) (ledger.Account, error) {
	acct, err := tx.LockAccount(ctx, playerID)
	if err == nil {
		if name := cleanUsername(username); name != "" {
			acct.Username = name
		}
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return acct, err
	}

	fresh := ledger.Account{
		PlayerID:     playerID,
		Username:     cleanUsername(username),
		Level:        1,
		LastIncomeAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fresh.Credit(s.settings.StartingBalance)
	created, err := tx.CreateAccount(ctx, fresh)
	if err != nil {
		return acct, err
	}
	if created && s.settings.StartingBalance > 0 {
		if err := tx.AppendLedger(ctx, ledger.Entry{
			TxGroupID:    uuid.NewString(),
			PlayerID:     playerID,
			Delta:        s.settings.StartingBalance,
			Reason:       ledger.ReasonStartingBalance,
			BalanceAfter: fresh.Balance,
			CreatedAt:    now,
		}); err != nil {
			return acct, err
		}
	}
	if created {
		s.log.Info("account created", zap.String("player_id", playerID))
	}
	return tx.LockAccount(ctx, playerID)
}

// EnsurePlayer creates the account on first interaction and refreshes the
// display name on later ones.
func (s *Service) EnsurePlayer(ctx context.Context, playerID, username string) (ledger.Account, error) {
	if err := ValidatePlayerID(playerID); err != nil {
		return ledger.Account{}, err
	}
	var out ledger.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		now := s.clock()
		acct, err := s.lockOrCreate(ctx, tx, playerID, username, now)
		if err != nil {
			return err
		}
		if name := cleanUsername(username); name != "" {
			acct.UpdatedAt = now
			if err := tx.UpdateAccount(ctx, acct); err != nil {
				return err
			}
		}
		out = acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, s.fail("ensure_player", playerID, err)
	}
	return out, nil
}

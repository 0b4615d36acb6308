// Package worker runs the scheduled background jobs: the passive-income
// sweep and the idempotency-key purge.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fruitbot/internal/game"
	"fruitbot/internal/metrics"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Game is what the jobs need from the game service.
type Game interface {
	SweepCandidates(ctx context.Context, limit int) ([]string, error)
	AccruePassive(ctx context.Context, playerID string) (game.IncomeResult, error)
	PurgeIdempotencyKeys(ctx context.Context, ttl time.Duration) (int64, error)
}

// maxSweepRounds bounds one sweep when accounts keep failing and never
// leave the stale list.
const maxSweepRounds = 20

type SweepReport struct {
	Candidates int
	Credited   int
	Failed     int
	Granted    int64
}

type Sweeper struct {
	game    Game
	pool    *ants.Pool
	batch   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewSweeper(g Game, workers, batch int, log *zap.Logger, m *metrics.Metrics) (*Sweeper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if batch < 1 {
		batch = 500
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		log.Error("sweep task panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create sweep pool")
	}
	return &Sweeper{game: g, pool: pool, batch: batch, log: log.Named("sweep"), metrics: m}, nil
}

func (s *Sweeper) Close() {
	s.pool.Release()
}

// Sweep accrues passive income for every account with at least one whole
// period pending. Accrual is idempotent, so overlapping with player-driven
// accruals is harmless.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	for round := 0; round < maxSweepRounds; round++ {
		ids, err := s.game.SweepCandidates(ctx, s.batch)
		if err != nil {
			return rep, err
		}
		if len(ids) == 0 {
			break
		}
		r := s.accrueAll(ctx, ids)
		rep.Candidates += r.Candidates
		rep.Credited += r.Credited
		rep.Failed += r.Failed
		rep.Granted += r.Granted
		if len(ids) < s.batch || r.Failed == len(ids) {
			break
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}
	s.metrics.Swept(rep.Candidates - rep.Failed)
	s.log.Info("passive sweep complete",
		zap.Int("candidates", rep.Candidates),
		zap.Int("credited", rep.Credited),
		zap.Int("failed", rep.Failed),
		zap.Int64("granted", rep.Granted),
	)
	return rep, nil
}

func (s *Sweeper) accrueAll(ctx context.Context, ids []string) SweepReport {
	var (
		wg       sync.WaitGroup
		credited atomic.Int64
		failed   atomic.Int64
		granted  atomic.Int64
	)
	for _, id := range ids {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			res, err := s.game.AccruePassive(ctx, id)
			if err != nil {
				failed.Add(1)
				s.log.Warn("accrue failed", zap.String("player_id", id), zap.Error(err))
				return
			}
			if res.Granted > 0 {
				credited.Add(1)
				granted.Add(res.Granted)
			}
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			s.log.Error("submit sweep task", zap.String("player_id", id), zap.Error(err))
		}
	}
	wg.Wait()
	return SweepReport{
		Candidates: len(ids),
		Credited:   int(credited.Load()),
		Failed:     int(failed.Load()),
		Granted:    granted.Load(),
	}
}

// Purge drops idempotency keys older than ttl.
func Purge(ctx context.Context, g Game, ttl time.Duration, log *zap.Logger) (int64, error) {
	n, err := g.PurgeIdempotencyKeys(ctx, ttl)
	if err != nil {
		return 0, err
	}
	if log != nil {
		log.Info("idempotency keys purged", zap.Int64("removed", n), zap.Duration("ttl", ttl))
	}
	return n, nil
}

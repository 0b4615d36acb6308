package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"fruitbot/internal/game"
	"fruitbot/internal/metrics"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeGame keeps a stale set that drains as accounts accrue.
type fakeGame struct {
	mu      sync.Mutex
	stale   map[string]bool
	failing map[string]bool
	purged  time.Duration
}

func newFakeGame(ids ...string) *fakeGame {
	g := &fakeGame{stale: map[string]bool{}, failing: map[string]bool{}}
	for _, id := range ids {
		g.stale[id] = true
	}
	return g
}

func (g *fakeGame) SweepCandidates(_ context.Context, limit int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for id := range g.stale {
		if len(out) == limit {
			break
		}
		out = append(out, id)
	}
	return out, nil
}

func (g *fakeGame) AccruePassive(_ context.Context, id string) (game.IncomeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing[id] {
		return game.IncomeResult{}, errors.New("storage down")
	}
	delete(g.stale, id)
	return game.IncomeResult{Granted: 1250, PeriodsElapsed: 1}, nil
}

func (g *fakeGame) PurgeIdempotencyKeys(_ context.Context, ttl time.Duration) (int64, error) {
	g.purged = ttl
	return 3, nil
}

func TestSweepDrainsAllBatches(t *testing.T) {
	g := newFakeGame("a", "b", "c", "d", "e")
	s, err := NewSweeper(g, 2, 2, zaptest.NewLogger(t), metrics.New())
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Candidates)
	assert.Equal(t, 5, rep.Credited)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, int64(5*1250), rep.Granted)
	assert.Empty(t, g.stale)
}

func TestSweepStopsOnPersistentFailures(t *testing.T) {
	g := newFakeGame("a", "b")
	g.failing["a"] = true
	g.failing["b"] = true
	s, err := NewSweeper(g, 4, 2, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Candidates)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.Granted)
}

func TestSweepEmpty(t *testing.T) {
	s, err := NewSweeper(newFakeGame(), 1, 10, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	rep, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)
}

func TestPurge(t *testing.T) {
	g := newFakeGame()
	n, err := Purge(context.Background(), g, 24*time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 24*time.Hour, g.purged)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	g := newFakeGame()
	s, err := NewSweeper(g, 1, 10, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = NewScheduler(context.Background(), Schedule{Sweep: "not a schedule", Purge: "@hourly"}, s, g, nil)
	require.Error(t, err)

	sched, err := NewScheduler(context.Background(), Schedule{Sweep: "@every 1m", Purge: "@hourly"}, s, g, zaptest.NewLogger(t))
	require.NoError(t, err)
	sched.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Stop(ctx)
}

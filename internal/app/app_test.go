package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fruitbot/internal/config"
	"fruitbot/internal/game"
	"fruitbot/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSQLiteServiceFromConfig(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	storage := config.Storage{
		Driver:     config.StoreSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "app.db"),
		Timeout:    5 * time.Second,
	}
	st, err := OpenStore(ctx, storage, log)
	require.NoError(t, err)
	defer st.Close()

	econ := config.Economy{
		PullCost:           500,
		StartingBalance:    2000,
		MaxPulls:           10,
		MaxHourlyIncome:    6250,
		FullIncomeItems:    5,
		SoftPity:           1200,
		HardPity:           1500,
		SoftPityStep:       0.01,
		SoftPityMaxBoost:   5,
		ForcePityMaxChance: 0.5,
		PassivePeriod:      time.Hour,
		ManualCooldown:     time.Minute,
		ManualMultiplier:   3,
	}
	svc, err := NewService(econ, st, log, metrics.New())
	require.NoError(t, err)
	assert.Equal(t, int64(500), svc.Settings().PullCost)
	assert.Equal(t, 1500, svc.Gacha().HardPity)

	res, err := svc.PerformPulls(ctx, game.PullInput{PlayerID: "p1", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Balance)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.Storage{Driver: "mongo"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

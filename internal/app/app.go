// Package app wires configuration into a ready game service. Every process
// entry point goes through it so they all agree on store and economy setup.
package app

import (
	"context"
	"strings"

	"fruitbot/internal/catalog"
	"fruitbot/internal/config"
	"fruitbot/internal/db"
	"fruitbot/internal/game"
	"fruitbot/internal/ledger"
	"fruitbot/internal/metrics"
	"fruitbot/internal/store/postgres"
	"fruitbot/internal/store/sqlite"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// OpenStore connects the configured backend. The caller closes it.
func OpenStore(ctx context.Context, cfg config.Storage, log *zap.Logger) (ledger.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.SQLitePath, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		log.Info("store ready", zap.String("driver", config.StoreSQLite), zap.String("path", cfg.SQLitePath))
		return st, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info("store ready", zap.String("driver", config.StorePostgres), zap.Bool("migrated", cfg.AutoMigrate))
		return postgres.New(pool, cfg.Timeout), nil
	}
	return nil, errors.Newf("unknown store driver %q", cfg.Driver)
}

// NewService loads the catalog and builds the game service over st.
func NewService(econ config.Economy, st ledger.Store, log *zap.Logger, m *metrics.Metrics) (*game.Service, error) {
	cat, err := catalog.Load(econ.CatalogPath, log)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return game.NewService(st, cat, econ.Gacha(cat.Rates()), game.SettingsFromEconomy(econ),
		game.WithLogger(log),
		game.WithMetrics(m),
	)
}

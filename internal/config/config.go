package config

import (
	"math"
	"os"
	"strings"
	"time"

	"fruitbot/internal/gacha"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// maxPullsLimit bounds FRUITBOT_MAX_PULLS so a batch cost always fits in int64.
const maxPullsLimit = 1000

// Economy holds the numerics every process must agree on.
type Economy struct {
	PullCost           int64         `env:"FRUITBOT_PULL_COST" envDefault:"1000"`
	StartingBalance    int64         `env:"FRUITBOT_STARTING_BALANCE" envDefault:"5000"`
	MaxPulls           int           `env:"FRUITBOT_MAX_PULLS" envDefault:"100"`
	MaxHourlyIncome    int64         `env:"FRUITBOT_MAX_HOURLY_INCOME" envDefault:"6250"`
	FullIncomeItems    int           `env:"FRUITBOT_FULL_INCOME_ITEMS" envDefault:"5"`
	SoftPity           int           `env:"FRUITBOT_SOFT_PITY" envDefault:"1200"`
	HardPity           int           `env:"FRUITBOT_HARD_PITY" envDefault:"1500"`
	SoftPityStep       float64       `env:"FRUITBOT_SOFT_PITY_STEP" envDefault:"0.01"`
	SoftPityMaxBoost   float64       `env:"FRUITBOT_SOFT_PITY_MAX_BOOST" envDefault:"5"`
	ForcePityMaxChance float64       `env:"FRUITBOT_FORCE_PITY_MAX_CHANCE" envDefault:"0.5"`
	PassivePeriod      time.Duration `env:"FRUITBOT_PASSIVE_PERIOD" envDefault:"1h"`
	ManualCooldown     time.Duration `env:"FRUITBOT_MANUAL_COOLDOWN" envDefault:"60s"`
	ManualMultiplier   float64       `env:"FRUITBOT_MANUAL_MULTIPLIER" envDefault:"3"`
	CatalogPath        string        `env:"FRUITBOT_CATALOG_PATH"`
}

// Gacha builds the resolver configuration around the catalog's rate table.
func (e Economy) Gacha(table gacha.Table) gacha.Config {
	return gacha.Config{
		Table:            table,
		SoftPity:         e.SoftPity,
		HardPity:         e.HardPity,
		SoftPityStep:     e.SoftPityStep,
		SoftPityMaxBoost: e.SoftPityMaxBoost,
		ForceMaxChance:   e.ForcePityMaxChance,
	}
}

func (e Economy) Validate() error {
	switch {
	case e.PullCost <= 0:
		return errors.New("FRUITBOT_PULL_COST must be > 0")
	case e.StartingBalance < 0:
		return errors.New("FRUITBOT_STARTING_BALANCE must be >= 0")
	case e.MaxPulls < 1:
		return errors.New("FRUITBOT_MAX_PULLS must be >= 1")
	case e.MaxPulls > maxPullsLimit:
		return errors.Newf("FRUITBOT_MAX_PULLS must be <= %d", maxPullsLimit)
	case e.PullCost > math.MaxInt64/int64(e.MaxPulls):
		return errors.New("FRUITBOT_PULL_COST * FRUITBOT_MAX_PULLS overflows")
	case e.MaxHourlyIncome < 0:
		return errors.New("FRUITBOT_MAX_HOURLY_INCOME must be >= 0")
	case e.FullIncomeItems < 1:
		return errors.New("FRUITBOT_FULL_INCOME_ITEMS must be >= 1")
	case e.SoftPity < 1:
		return errors.New("FRUITBOT_SOFT_PITY must be >= 1")
	case e.HardPity <= e.SoftPity:
		return errors.New("FRUITBOT_HARD_PITY must be greater than FRUITBOT_SOFT_PITY")
	case e.PassivePeriod < time.Second:
		return errors.New("FRUITBOT_PASSIVE_PERIOD must be at least 1s")
	case e.ManualCooldown <= 0:
		return errors.New("FRUITBOT_MANUAL_COOLDOWN must be > 0")
	case e.ManualMultiplier <= 0:
		return errors.New("FRUITBOT_MANUAL_MULTIPLIER must be > 0")
	}
	return nil
}

type Storage struct {
	Driver      string        `env:"FRUITBOT_STORE" envDefault:"postgres"`
	DatabaseURL string        `env:"DATABASE_URL"`
	SQLitePath  string        `env:"FRUITBOT_SQLITE_PATH" envDefault:"fruitbot.db"`
	Timeout     time.Duration `env:"FRUITBOT_STORAGE_TIMEOUT" envDefault:"5s"`
	AutoMigrate bool          `env:"FRUITBOT_AUTO_MIGRATE" envDefault:"true"`
}

func (s Storage) Validate() error {
	switch strings.ToLower(s.Driver) {
	case StorePostgres:
		if strings.TrimSpace(s.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when FRUITBOT_STORE=postgres")
		}
	case StoreSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return errors.New("FRUITBOT_SQLITE_PATH is required when FRUITBOT_STORE=sqlite")
		}
	default:
		return errors.Newf("FRUITBOT_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, s.Driver)
	}
	if s.Timeout <= 0 {
		return errors.New("FRUITBOT_STORAGE_TIMEOUT must be > 0")
	}
	return nil
}

type Logging struct {
	Level  string `env:"FRUITBOT_LOG_LEVEL" envDefault:"info"`
	Format string `env:"FRUITBOT_LOG_FORMAT" envDefault:"json"`
}

type APIConfig struct {
	Addr      string        `env:"FRUITBOT_API_ADDR" envDefault:":8080"`
	JWTSecret string        `env:"FRUITBOT_JWT_SECRET"`
	TokenTTL  time.Duration `env:"FRUITBOT_TOKEN_TTL" envDefault:"720h"`
	// AdminKey lets operators mint tokens through /v1/auth/token.
	AdminKey string `env:"FRUITBOT_ADMIN_KEY"`

	Economy Economy
	Storage Storage
	Logging Logging
}

type WorkerConfig struct {
	SweepSchedule  string        `env:"FRUITBOT_SWEEP_SCHEDULE" envDefault:"@every 5m"`
	SweepWorkers   int           `env:"FRUITBOT_SWEEP_WORKERS" envDefault:"8"`
	SweepBatch     int           `env:"FRUITBOT_SWEEP_BATCH" envDefault:"500"`
	PurgeSchedule  string        `env:"FRUITBOT_PURGE_SCHEDULE" envDefault:"@hourly"`
	IdempotencyTTL time.Duration `env:"FRUITBOT_IDEMPOTENCY_TTL" envDefault:"24h"`
	RunOnce        bool          `env:"FRUITBOT_WORKER_RUN_ONCE"`

	Economy Economy
	Storage Storage
	Logging Logging
}

type DiscordConfig struct {
	Token   string `env:"DISCORD_TOKEN"`
	AppID   string `env:"DISCORD_APP_ID"`
	GuildID string `env:"DISCORD_GUILD_ID"`

	Economy Economy
	Storage Storage
	Logging Logging
}

type CLIConfig struct {
	APIBaseURL string `env:"FRUITCTL_API_BASE_URL" envDefault:"http://localhost:8080"`
	// Home holds the saved session and offline queue. Empty means ~/.fruitctl.
	Home     string `env:"FRUITCTL_HOME"`
	AdminKey string `env:"FRUITBOT_ADMIN_KEY"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return cfg, errors.New("FRUITBOT_JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 16 {
		return cfg, errors.New("FRUITBOT_JWT_SECRET must be at least 16 bytes")
	}
	if cfg.TokenTTL <= 0 {
		return cfg, errors.New("FRUITBOT_TOKEN_TTL must be > 0")
	}
	return cfg, validateCommon(cfg.Economy, cfg.Storage)
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	if cfg.SweepWorkers < 1 {
		return cfg, errors.New("FRUITBOT_SWEEP_WORKERS must be >= 1")
	}
	if cfg.SweepBatch < 1 {
		return cfg, errors.New("FRUITBOT_SWEEP_BATCH must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("FRUITBOT_IDEMPOTENCY_TTL must be > 0")
	}
	return cfg, validateCommon(cfg.Economy, cfg.Storage)
}

func LoadDiscordFromEnv() (DiscordConfig, error) {
	var cfg DiscordConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return cfg, errors.New("DISCORD_TOKEN is required")
	}
	if strings.TrimSpace(cfg.AppID) == "" {
		return cfg, errors.New("DISCORD_APP_ID is required")
	}
	return cfg, validateCommon(cfg.Economy, cfg.Storage)
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

func validateCommon(e Economy, s Storage) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.Validate()
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"rewards_service/internal/account"
	"rewards_service/internal/bonus"
	"rewards_service/internal/logging"
	"rewards_service/internal/prize"
	"rewards_service/internal/ticket"
	"rewards_service/internal/wager"
)

const (
	EnvPrefix = "REWARDS"

	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Wager       WagerConfig       `mapstructure:"wager"`
	Tickets     TicketsConfig     `mapstructure:"tickets"`
	Bonus       BonusConfig       `mapstructure:"bonus"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     logging.Config    `mapstructure:"logging"`
	PrizeTables PrizeTablesConfig `mapstructure:"prize_tables"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
	// Silent turns off gorm's SQL logging.
	Silent bool `mapstructure:"silent"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type WagerConfig struct {
	CacheSize int           `mapstructure:"cache_size" validate:"min=1"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

type TicketsConfig struct {
	Unit int64 `mapstructure:"unit" validate:"min=1"`
}

type BonusConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

type AuthConfig struct {
	HMACSecret string        `mapstructure:"hmac_secret" validate:"min=32"`
	Issuer     string        `mapstructure:"issuer"`
	Leeway     time.Duration `mapstructure:"leeway"`
}

type PrizeTablesConfig struct {
	Primary []PrizeOptionConfig `mapstructure:"primary"`
	Bonus   []PrizeOptionConfig `mapstructure:"bonus"`
}

// PrizeOptionConfig keeps the value as text so amounts like 0.10 survive
// YAML without float rounding.
type PrizeOptionConfig struct {
	Label       string  `mapstructure:"label"`
	Value       string  `mapstructure:"value"`
	Probability float64 `mapstructure:"probability"`
}

var (
	DefaultPrimaryTable = []PrizeOptionConfig{
		{Label: "Lose", Value: "0", Probability: 0.90},
		{Label: "$1", Value: "1", Probability: 0.06},
		{Label: "$5", Value: "5", Probability: 0.03},
		{Label: "$25", Value: "25", Probability: 0.01},
	}
	DefaultBonusTable = []PrizeOptionConfig{
		{Label: "Lose", Value: "0", Probability: 0.50},
		{Label: "$1", Value: "1", Probability: 0.30},
		{Label: "$2", Value: "2", Probability: 0.15},
		{Label: "$10", Value: "10", Probability: 0.05},
	}
)

// Load reads an optional .env file, then the YAML file at filename (skipped
// when empty), then REWARDS_* environment variables, in increasing priority.
func Load(filename string) (*Config, error) {
	// .env is optional, real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// DB_CONN_STR is what existing deployments already export.
	if err := v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DB_CONN_STR"); err != nil {
		return nil, err
	}

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.PrizeTables.Primary) == 0 {
		cfg.PrizeTables.Primary = DefaultPrimaryTable
	}
	if len(cfg.PrizeTables.Bonus) == 0 {
		cfg.PrizeTables.Bonus = DefaultBonusTable
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.silent", true)
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", wager.DefaultKeyPrefix)
	v.SetDefault("wager.cache_size", wager.DefaultCacheSize)
	v.SetDefault("wager.cache_ttl", wager.DefaultCacheTTL)
	v.SetDefault("tickets.unit", ticket.DefaultUnit)
	v.SetDefault("bonus.cooldown", bonus.DefaultCooldown)
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.issuer", "rewards")
	v.SetDefault("auth.leeway", time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks field constraints and that both prize tables load.
func (c *Config) Validate() error {
	if err := account.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == StoreDriverPostgres && c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required for the postgres store")
	}
	if _, err := c.PrimaryTable(); err != nil {
		return err
	}
	if _, err := c.BonusTable(); err != nil {
		return err
	}
	return nil
}

func (c *Config) PrimaryTable() (prize.Table, error) {
	return buildTable("primary", c.PrizeTables.Primary)
}

func (c *Config) BonusTable() (prize.Table, error) {
	return buildTable("bonus", c.PrizeTables.Bonus)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func buildTable(name string, opts []PrizeOptionConfig) (prize.Table, error) {
	options := make([]prize.Option, 0, len(opts))
	for _, o := range opts {
		value, err := decimal.NewFromString(lo.Ternary(o.Value == "", "0", o.Value))
		if err != nil {
			return prize.Table{}, fmt.Errorf("%w: %s table: option %q value %q: %w",
				prize.ErrInvalidPrizeTable, name, o.Label, o.Value, err)
		}
		options = append(options, prize.Option{Label: o.Label, Value: value, Probability: o.Probability})
	}
	return prize.NewTable(name, options)
}

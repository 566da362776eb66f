package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Solana      Solana   `mapstructure:"solana"`
	Jupiter     API      `mapstructure:"jupiter"`
	DexScreener API      `mapstructure:"dexscreener"`
	Risk        Risk     `mapstructure:"risk"`
	Trading     Trading  `mapstructure:"trading"`
	Logger      Logger   `mapstructure:"logger"`
	Server      Server   `mapstructure:"server"`
	Database    Database `mapstructure:"database"`
}

// Solana holds the chain RPC and wallet configuration.
type Solana struct {
	RPCURL           string  `mapstructure:"rpc_url"`
	HeliusAPIKey     string  `mapstructure:"helius_api_key"`
	WalletPrivateKey string  `mapstructure:"wallet_private_key"`
	RateLimit        float64 `mapstructure:"rate_limit"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
}

// Endpoint returns the configured RPC URL, falling back to Helius when only an API key is set.
func (s Solana) Endpoint() string {
	if s.RPCURL != "" {
		return s.RPCURL
	}
	return "https://mainnet.helius-rpc.com/?api-key=" + s.HeliusAPIKey
}

// API holds the configuration of a third-party REST API.
type API struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Risk holds the pre-trade limits and exit thresholds.
type Risk struct {
	MinLiquidityUSD float64 `mapstructure:"min_liquidity_usd"`
	MinVolume24hUSD float64 `mapstructure:"min_volume_24h_usd"`
	MaxPositionSOL  float64 `mapstructure:"max_position_sol"`
	MaxPortfolioSOL float64 `mapstructure:"max_portfolio_sol"`
	CooldownSeconds int     `mapstructure:"cooldown_seconds"`
	MinHolderCount  int     `mapstructure:"min_holder_count"`
	MaxTopHolderPct float64 `mapstructure:"max_top_holder_pct"`
	MaxSlippageBps  int     `mapstructure:"max_slippage_bps"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
}

// Trading holds the configuration for the trading loop.
type Trading struct {
	Enabled           bool `mapstructure:"enabled"`
	Autonomous        bool `mapstructure:"autonomous"`
	DryRun            bool `mapstructure:"dry_run"`
	MinTrendScore     int  `mapstructure:"min_trend_score"`
	MaxAutoBuys       int  `mapstructure:"max_auto_buys"`
	ScanInterval      int  `mapstructure:"scan_interval"`       // seconds
	ExitCheckInterval int  `mapstructure:"exit_check_interval"` // seconds, 0 disables
	APIPort           int  `mapstructure:"api_port"`            // control API, 0 disables
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Server holds the configuration for the dashboard server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for document persistence.
type Database struct {
	Driver string `mapstructure:"driver"` // sqlite, file or memory
	DSN    string `mapstructure:"dsn"`
	Dir    string `mapstructure:"dir"`
}

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// SetDefaults registers the default value of every option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_url", "")
	v.SetDefault("solana.helius_api_key", "")
	v.SetDefault("solana.wallet_private_key", "")
	v.SetDefault("solana.rate_limit", 10)
	v.SetDefault("solana.rate_limit_burst", 5)

	v.SetDefault("jupiter.base_url", "https://api.jup.ag")
	v.SetDefault("jupiter.rate_limit", 1)
	v.SetDefault("jupiter.rate_limit_burst", 2)

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.rate_limit", 5)
	v.SetDefault("dexscreener.rate_limit_burst", 5)

	v.SetDefault("risk.min_liquidity_usd", 50_000)
	v.SetDefault("risk.min_volume_24h_usd", 100_000)
	v.SetDefault("risk.max_position_sol", 0.1)
	v.SetDefault("risk.max_portfolio_sol", 1.0)
	v.SetDefault("risk.cooldown_seconds", 300)
	v.SetDefault("risk.min_holder_count", 10)
	v.SetDefault("risk.max_top_holder_pct", 30)
	v.SetDefault("risk.max_slippage_bps", 300)
	v.SetDefault("risk.stop_loss_pct", 20)
	v.SetDefault("risk.take_profit_pct", 50)

	v.SetDefault("trading.enabled", true)
	v.SetDefault("trading.autonomous", false)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.min_trend_score", 70)
	v.SetDefault("trading.max_auto_buys", 3)
	v.SetDefault("trading.scan_interval", 300)
	v.SetDefault("trading.exit_check_interval", 60)
	v.SetDefault("trading.api_port", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "data/trading.db")
	v.SetDefault("database.dir", "data")
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory, if present, is loaded into the environment first.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// Validate rejects limits that would make every trade fail or pass trivially.
func (c *Config) Validate() error {
	var errs []error
	r := c.Risk
	if r.MaxPositionSOL <= 0 {
		errs = append(errs, errors.New("risk.max_position_sol must be positive"))
	}
	if r.MaxPortfolioSOL <= 0 {
		errs = append(errs, errors.New("risk.max_portfolio_sol must be positive"))
	}
	if r.MaxSlippageBps <= 0 {
		errs = append(errs, errors.New("risk.max_slippage_bps must be positive"))
	}
	if r.StopLossPct <= 0 || r.StopLossPct >= 100 {
		errs = append(errs, errors.New("risk.stop_loss_pct must be in (0, 100)"))
	}
	if r.TakeProfitPct <= 0 {
		errs = append(errs, errors.New("risk.take_profit_pct must be positive"))
	}
	if r.CooldownSeconds < 0 {
		errs = append(errs, errors.New("risk.cooldown_seconds must not be negative"))
	}
	if c.Trading.ScanInterval <= 0 {
		errs = append(errs, errors.New("trading.scan_interval must be positive"))
	}
	if c.Trading.ExitCheckInterval < 0 {
		errs = append(errs, errors.New("trading.exit_check_interval must not be negative"))
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverFile, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leverclick/internal/game"
)

type APIConfig struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	TickEvery     time.Duration
	MatchDuration time.Duration
	CacheTTL      time.Duration
	LogLevel      slog.Level
	Rules         game.Rules
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("LEVERCLICK_API_ADDR", ":8080")
	}

	level, err := ParseLogLevel(envDefault("LEVERCLICK_LOG_LEVEL", "info"))
	if err != nil {
		return APIConfig{}, err
	}
	rules, err := LoadRulesFromEnv()
	if err != nil {
		return APIConfig{}, err
	}

	cfg := APIConfig{
		Addr:          addr,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		NATSURL:       strings.TrimSpace(os.Getenv("NATS_URL")),
		TickEvery:     envDurationDefault("LEVERCLICK_TICK_EVERY", 100*time.Millisecond),
		MatchDuration: envDurationDefault("LEVERCLICK_MATCH_DURATION", 10*time.Minute),
		CacheTTL:      envDurationDefault("LEVERCLICK_CACHE_TTL", 30*time.Second),
		LogLevel:      level,
		Rules:         rules,
	}
	if cfg.TickEvery <= 0 {
		return cfg, fmt.Errorf("LEVERCLICK_TICK_EVERY must be positive")
	}
	if cfg.MatchDuration <= 0 {
		return cfg, fmt.Errorf("LEVERCLICK_MATCH_DURATION must be positive")
	}
	if cfg.RedisURL != "" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("REDIS_URL requires DATABASE_URL")
	}
	return cfg, nil
}

// LoadRulesFromEnv reads the tunable trading constants, falling back to
// game.DefaultRules for anything unset.
func LoadRulesFromEnv() (game.Rules, error) {
	rules := game.DefaultRules()
	rules.StartingBalance = envDecimalDefault("LEVERCLICK_STARTING_BALANCE", rules.StartingBalance)
	rules.MinEntryPrice = envDecimalDefault("LEVERCLICK_MIN_ENTRY_PRICE", rules.MinEntryPrice)
	rules.MinLiqFloor = envDecimalDefault("LEVERCLICK_MIN_LIQUIDATION_FLOOR", rules.MinLiqFloor)
	rules.StakeCapRatio = envDecimalDefault("LEVERCLICK_STAKE_CAP_RATIO", rules.StakeCapRatio)
	rules.CollateralRatio = envDecimalDefault("LEVERCLICK_COLLATERAL_RATIO", rules.CollateralRatio)
	rules.GrowthFactor = envDecimalDefault("LEVERCLICK_GROWTH_FACTOR", rules.GrowthFactor)
	rules.ClickPower = envDecimalDefault("LEVERCLICK_CLICK_POWER", rules.ClickPower)
	rules.ClickUpgradeBase = envDecimalDefault("LEVERCLICK_CLICK_UPGRADE_COST", rules.ClickUpgradeBase)
	rules.MaxLeverage = int32(envIntDefault("LEVERCLICK_MAX_LEVERAGE", int64(rules.MaxLeverage)))

	if rules.MaxLeverage < game.MinLeverage {
		return rules, fmt.Errorf("LEVERCLICK_MAX_LEVERAGE must be at least %d", game.MinLeverage)
	}
	if rules.StakeCapRatio.Sign() <= 0 || rules.StakeCapRatio.GreaterThan(decimal.NewFromInt(1)) {
		return rules, fmt.Errorf("LEVERCLICK_STAKE_CAP_RATIO must be in (0, 1]")
	}
	if rules.GrowthFactor.LessThan(decimal.NewFromInt(1)) {
		return rules, fmt.Errorf("LEVERCLICK_GROWTH_FACTOR must be at least 1")
	}
	if rules.StartingBalance.Sign() < 0 {
		return rules, fmt.Errorf("LEVERCLICK_STARTING_BALANCE must not be negative")
	}
	return rules, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("LEVERCTL_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDecimalDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

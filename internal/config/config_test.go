package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LEVERCLICK_API_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.TickEvery != 100*time.Millisecond || cfg.MatchDuration != 10*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Rules.StartingBalance.String() != "500" || cfg.Rules.MaxLeverage != 100 {
		t.Fatalf("unexpected rules: %+v", cfg.Rules)
	}
}

func TestLoadAPIFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEVERCLICK_TICK_EVERY", "250ms")
	t.Setenv("LEVERCLICK_STARTING_BALANCE", "1500")
	t.Setenv("LEVERCLICK_MAX_LEVERAGE", "25")
	t.Setenv("LEVERCLICK_LOG_LEVEL", "debug")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.TickEvery != 250*time.Millisecond || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("overrides ignored: %+v", cfg)
	}
	if cfg.Rules.StartingBalance.String() != "1500" || cfg.Rules.MaxLeverage != 25 {
		t.Fatalf("rules overrides ignored: %+v", cfg.Rules)
	}
}

func TestLoadAPIFromEnvRejects(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{key: "LEVERCLICK_MAX_LEVERAGE", value: "1"},
		{key: "LEVERCLICK_STAKE_CAP_RATIO", value: "1.5"},
		{key: "LEVERCLICK_GROWTH_FACTOR", value: "0.9"},
		{key: "LEVERCLICK_LOG_LEVEL", value: "loud"},
		{key: "REDIS_URL", value: "redis://localhost:6379/0"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tc.key, tc.value)
			if _, err := LoadAPIFromEnv(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tc.key, tc.value)
			}
		})
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("LEVERCTL_API_BASE_URL", "http://game.local:8080/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://game.local:8080" {
		t.Fatalf("got %q", got)
	}
}

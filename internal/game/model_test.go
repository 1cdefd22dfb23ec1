package game

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidatePlayerName(t *testing.T) {
	valid := []string{"bob", "alice_01", "TRADER9", "abcdefghijklmnopqrstuvwx"}
	for _, s := range valid {
		if err := ValidatePlayerName(s); err != nil {
			t.Fatalf("expected name %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "ab", "has space", "dash-name", "abcdefghijklmnopqrstuvwxy"}
	for _, s := range invalid {
		if err := ValidatePlayerName(s); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected name %q to fail, got %v", s, err)
		}
	}
}

func TestScaledCost(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{n: 0, want: "15"},
		{n: 1, want: "17.25"},
		{n: 2, want: "19.8375"},
		{n: 3, want: "22.8131"},
	}
	for _, tc := range tests {
		got := scaledCost(decimal.NewFromInt(15), DefaultGrowthFactor, tc.n)
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("n=%d got=%s want=%s", tc.n, got, tc.want)
		}
	}
}

func TestLiquidationPriceBounds(t *testing.T) {
	entries := []string{"100", "1000", "12345.67"}
	for _, e := range entries {
		entry := dec(e)
		for lev := MinLeverage; lev <= DefaultMaxLeverage; lev++ {
			long := liquidationPrice(entry, Long, lev)
			if long.Sign() <= 0 || !long.LessThan(entry) {
				t.Fatalf("long entry=%s lev=%d liq=%s not in (0, entry)", e, lev, long)
			}
			short := liquidationPrice(entry, Short, lev)
			if !short.GreaterThan(entry) {
				t.Fatalf("short entry=%s lev=%d liq=%s not above entry", e, lev, short)
			}
		}
	}
}

func TestLiquidationPriceExamples(t *testing.T) {
	tests := []struct {
		entry string
		dir   Direction
		lev   int32
		want  string
	}{
		{entry: "1000", dir: Long, lev: 5, want: "800"},
		{entry: "1000", dir: Short, lev: 2, want: "1500"},
		{entry: "100", dir: Long, lev: 2, want: "50"},
		{entry: "200", dir: Short, lev: 4, want: "250"},
	}
	for _, tc := range tests {
		got := liquidationPrice(dec(tc.entry), tc.dir, tc.lev)
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("%s x%d @ %s got=%s want=%s", tc.dir, tc.lev, tc.entry, got, tc.want)
		}
	}
}

func TestPNLAt(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		price string
		stake string
		dir   Direction
		lev   int32
		want  string
	}{
		{name: "short loss", entry: "1000", price: "1200", stake: "50", dir: Short, lev: 2, want: "-20"},
		{name: "long gain", entry: "1000", price: "1100", stake: "100", dir: Long, lev: 5, want: "50"},
		{name: "unchanged", entry: "1000", price: "1000", stake: "100", dir: Long, lev: 10, want: "0"},
		{name: "floors toward negative", entry: "300", price: "299", stake: "10", dir: Long, lev: 2, want: "-1"},
		{name: "floors gain", entry: "300", price: "301", stake: "10", dir: Long, lev: 2, want: "0"},
		{name: "zero entry treated as one", entry: "0", price: "5", stake: "10", dir: Long, lev: 2, want: "100"},
	}
	for _, tc := range tests {
		got := pnlAt(dec(tc.entry), dec(tc.price), dec(tc.stake), tc.dir, tc.lev)
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("%s: got=%s want=%s", tc.name, got, tc.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" LONG "); err != nil || d != Long {
		t.Fatalf("got %q err=%v", d, err)
	}
	if d, err := ParseDirection("short"); err != nil || d != Short {
		t.Fatalf("got %q err=%v", d, err)
	}
	if _, err := ParseDirection("sideways"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestPositionStateTransitions(t *testing.T) {
	if !PositionOpen.CanTransitionTo(PositionClosed) || !PositionOpen.CanTransitionTo(PositionLiquidated) {
		t.Fatalf("open must reach both terminal states")
	}
	for _, s := range []PositionState{PositionClosed, PositionLiquidated} {
		for _, next := range []PositionState{PositionOpen, PositionClosed, PositionLiquidated} {
			if s.CanTransitionTo(next) {
				t.Fatalf("%s must be terminal, allowed -> %s", s, next)
			}
		}
	}
}

func TestReasonOf(t *testing.T) {
	err := reject("self_trade", ErrSelfTrade, "")
	if ReasonOf(err) != "self_trade" {
		t.Fatalf("got reason %q", ReasonOf(err))
	}
	if !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("rejection must unwrap to its sentinel")
	}
	if ReasonOf(ErrPositionNotFound) != "" {
		t.Fatalf("contract errors carry no reason")
	}
}

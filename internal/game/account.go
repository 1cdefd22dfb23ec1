package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one player's economic state inside a match.
type Account struct {
	Name           string
	Balance        decimal.Decimal // may be negative (debt)
	ProductionRate decimal.Decimal // currency per second
	ClickPower     decimal.Decimal
	ClickLevel     int64
	Bankrupt       bool
	JoinedAt       time.Time

	generators *generatorLedger
}

func newAccount(name string, rules Rules, now time.Time) *Account {
	return &Account{
		Name:           name,
		Balance:        rules.StartingBalance,
		ProductionRate: decimal.Zero,
		ClickPower:     rules.ClickPower,
		JoinedAt:       now,
		generators:     newGeneratorLedger(rules.GrowthFactor),
	}
}

// advance accrues passive production over dt seconds. Negative deltas from
// clock skew are clamped to zero.
func (a *Account) advance(dt decimal.Decimal) {
	if dt.Sign() <= 0 || a.ProductionRate.Sign() == 0 {
		return
	}
	a.Balance = a.Balance.Add(a.ProductionRate.Mul(dt))
}

// collateral is the liquidation value of the account's generators.
func (a *Account) collateral(ratio decimal.Decimal) decimal.Decimal {
	return a.generators.collateral(ratio)
}

// collateralNetWorth is balance plus generator collateral, without PNL.
func (a *Account) collateralNetWorth(ratio decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(a.collateral(ratio))
}

func (a *Account) bankrupt() {
	a.generators.liquidateAll()
	a.ProductionRate = decimal.Zero
	a.Balance = decimal.Zero
	a.Bankrupt = true
}

// secondsOf converts a duration to decimal seconds.
func secondsOf(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(d.Microseconds()).Div(decimal.NewFromInt(1_000_000))
}

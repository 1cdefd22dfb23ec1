package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// sign is +1 for long and -1 for short.
func (d Direction) sign() int64 {
	if d == Short {
		return -1
	}
	return 1
}

// PositionState is OPEN until the position is closed or liquidated. Both
// terminal states are final.
type PositionState string

const (
	PositionOpen       PositionState = "open"
	PositionClosed     PositionState = "closed"
	PositionLiquidated PositionState = "liquidated"
)

func (s PositionState) CanTransitionTo(next PositionState) bool {
	return s == PositionOpen && (next == PositionClosed || next == PositionLiquidated)
}

// Position is owner's leveraged bet on target's balance.
type Position struct {
	ID               uuid.UUID
	Owner            string
	Target           string
	Direction        Direction
	Stake            decimal.Decimal // locked, never deducted from owner balance
	Leverage         int32
	EntryPrice       decimal.Decimal
	LiquidationPrice decimal.Decimal
	OpenedAt         time.Time
	State            PositionState
}

type positionKey struct {
	owner     string
	target    string
	direction Direction
	leverage  int32
}

func (p *Position) key() positionKey {
	return positionKey{owner: p.Owner, target: p.Target, direction: p.Direction, leverage: p.Leverage}
}

// liquidationPrice is entry*(1-1/lev) for longs and entry*(1+1/lev) for shorts.
func liquidationPrice(entry decimal.Decimal, dir Direction, leverage int32) decimal.Decimal {
	lev := decimal.NewFromInt32(leverage)
	if dir == Short {
		return entry.Mul(lev.Add(decimal.NewFromInt(1))).Div(lev)
	}
	return entry.Mul(lev.Sub(decimal.NewFromInt(1))).Div(lev)
}

// pnlAt is floor((price-entry)/entry * stake * leverage * sign). An entry price
// of zero is treated as one in the denominator.
func pnlAt(entry, price, stake decimal.Decimal, dir Direction, leverage int32) decimal.Decimal {
	denom := entry
	if denom.IsZero() {
		denom = decimal.NewFromInt(1)
	}
	move := price.Sub(entry).
		Mul(stake).
		Mul(decimal.NewFromInt32(leverage)).
		Mul(decimal.NewFromInt(dir.sign()))
	return move.Div(denom).Floor()
}

// UnrealizedPNL values the position at the target's current balance.
func (p *Position) UnrealizedPNL(targetBalance decimal.Decimal) decimal.Decimal {
	return pnlAt(p.EntryPrice, targetBalance, p.Stake, p.Direction, p.Leverage)
}

// liquidatedAt reports whether the target balance has crossed the threshold.
func (p *Position) liquidatedAt(targetBalance decimal.Decimal) bool {
	if p.Direction == Short {
		return targetBalance.GreaterThanOrEqual(p.LiquidationPrice)
	}
	return targetBalance.LessThanOrEqual(p.LiquidationPrice)
}

// merge folds an identical-shape open into p via stake-weighted entry.
func (p *Position) merge(entry, stake decimal.Decimal) {
	total := p.Stake.Add(stake)
	p.EntryPrice = p.EntryPrice.Mul(p.Stake).Add(entry.Mul(stake)).Div(total)
	p.Stake = total
	p.LiquidationPrice = liquidationPrice(p.EntryPrice, p.Direction, p.Leverage)
}

package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// positionBook indexes every open position of a match. A position lives in
// exactly one book and is visible from both its owner and its target.
type positionBook struct {
	byID  map[uuid.UUID]*Position
	byKey map[positionKey]*Position
	order []uuid.UUID // open order, for deterministic scans
}

func newPositionBook() *positionBook {
	return &positionBook{
		byID:  make(map[uuid.UUID]*Position),
		byKey: make(map[positionKey]*Position),
	}
}

func (b *positionBook) get(id uuid.UUID) (*Position, bool) {
	p, ok := b.byID[id]
	return p, ok
}

func (b *positionBook) insert(p *Position) {
	b.byID[p.ID] = p
	b.byKey[p.key()] = p
	b.order = append(b.order, p.ID)
}

func (b *positionBook) remove(id uuid.UUID) {
	p, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	delete(b.byKey, p.key())
	for i, other := range b.order {
		if other == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// lockedStake sums the stake of every open position owned by owner.
func (b *positionBook) lockedStake(owner string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.byID {
		if p.Owner == owner {
			total = total.Add(p.Stake)
		}
	}
	return total
}

// stakeOn sums owner's stake across every position against target.
func (b *positionBook) stakeOn(owner, target string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.byID {
		if p.Owner == owner && p.Target == target {
			total = total.Add(p.Stake)
		}
	}
	return total
}

func (b *positionBook) ownedBy(owner string) []*Position {
	out := make([]*Position, 0)
	for _, id := range b.order {
		if p := b.byID[id]; p.Owner == owner {
			out = append(out, p)
		}
	}
	return out
}

func (b *positionBook) against(target string) []*Position {
	out := make([]*Position, 0)
	for _, id := range b.order {
		if p := b.byID[id]; p.Target == target {
			out = append(out, p)
		}
	}
	return out
}

func (b *positionBook) all() []*Position {
	out := make([]*Position, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

func (b *positionBook) len() int {
	return len(b.byID)
}

// OpenInput is an open-position command.
type OpenInput struct {
	Owner     string
	Target    string
	Direction Direction
	Stake     decimal.Decimal
	Leverage  int32
}

// openPosition validates and records a new position, merging into an existing
// position of the same (owner, target, direction, leverage) shape. owner and
// target must already be resolved accounts.
func (b *positionBook) openPosition(rules Rules, owner, target *Account, in OpenInput, now time.Time) (*Position, bool, error) {
	if in.Direction != Long && in.Direction != Short {
		return nil, false, ErrInvalidDirection
	}
	if in.Leverage < MinLeverage || in.Leverage > rules.MaxLeverage {
		return nil, false, reject("invalid_leverage", ErrInvalidLeverage, "leverage %d not in [%d, %d]", in.Leverage, MinLeverage, rules.MaxLeverage)
	}
	if owner.Name == target.Name {
		return nil, false, reject("self_trade", ErrSelfTrade, "")
	}
	if target.Balance.LessThan(rules.MinEntryPrice) {
		return nil, false, reject("target_too_small", ErrTargetTooSmall, "%s balance %s < %s", target.Name, target.Balance.StringFixed(2), rules.MinEntryPrice)
	}

	if in.Stake.LessThan(decimal.NewFromInt(1)) {
		return nil, false, reject("stake_too_small", ErrStakeTooSmall, "stake %s", in.Stake)
	}
	available := owner.Balance.Sub(b.lockedStake(owner.Name))
	if in.Stake.GreaterThan(available) {
		return nil, false, reject("insufficient_available", ErrInsufficientAvailable, "stake %s > available %s", in.Stake, available.StringFixed(2))
	}

	netWorth := target.collateralNetWorth(rules.CollateralRatio)
	limit := netWorth.Mul(rules.StakeCapRatio).Floor()
	existing := b.stakeOn(owner.Name, target.Name)
	if existing.Add(in.Stake).GreaterThan(limit) {
		return nil, false, reject("stake_cap_exceeded", ErrStakeCapExceeded, "stake %s + existing %s > cap %s", in.Stake, existing, limit)
	}

	entry := target.Balance
	liq := liquidationPrice(entry, in.Direction, in.Leverage)
	if in.Direction == Long && liq.LessThan(rules.MinLiqFloor) {
		return nil, false, reject("liquidation_floor", ErrLiquidationFloor, "liquidation %s < %s", liq.StringFixed(2), rules.MinLiqFloor)
	}

	key := positionKey{owner: owner.Name, target: target.Name, direction: in.Direction, leverage: in.Leverage}
	if p, ok := b.byKey[key]; ok {
		p.merge(entry, in.Stake)
		return p, true, nil
	}

	p := &Position{
		ID:               uuid.New(),
		Owner:            owner.Name,
		Target:           target.Name,
		Direction:        in.Direction,
		Stake:            in.Stake,
		Leverage:         in.Leverage,
		EntryPrice:       entry,
		LiquidationPrice: liq,
		OpenedAt:         now,
		State:            PositionOpen,
	}
	b.insert(p)
	return p, false, nil
}

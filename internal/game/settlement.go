package game

import (
	"github.com/shopspring/decimal"
)

// Payment is the outcome of a forced payment.
type Payment struct {
	Requested decimal.Decimal
	Paid      decimal.Decimal // what the payee actually receives
	Bankrupt  bool
}

// forcePayment debits amount from payer. Debt is allowed while balance plus
// generator collateral stays non-negative; otherwise the payer goes bankrupt,
// losing every generator, and pays out only the net worth it had.
func forcePayment(rules Rules, payer *Account, amount decimal.Decimal) Payment {
	out := Payment{Requested: amount, Paid: decimal.Zero}
	if amount.Sign() <= 0 {
		return out
	}
	netWorth := payer.collateralNetWorth(rules.CollateralRatio)
	if netWorth.Sub(amount).Sign() >= 0 {
		payer.Balance = payer.Balance.Sub(amount)
		out.Paid = amount
		return out
	}
	if netWorth.Sign() > 0 {
		out.Paid = netWorth
	}
	payer.bankrupt()
	out.Bankrupt = true
	return out
}

// Settlement is the outcome of closing or liquidating a position.
type Settlement struct {
	Position   Position
	PNL        decimal.Decimal // formula PNL at the close price
	Transfer   decimal.Decimal // signed amount credited to the owner
	Bankrupt   bool            // target went bankrupt covering the payout
	ClosePrice decimal.Decimal // target balance used as the close price
	Liquidated bool
}

// settleClose applies a manual close at the target's live balance. Profits are
// collected from the target through forcePayment; losses are capped at stake.
func settleClose(rules Rules, p *Position, owner, target *Account) Settlement {
	price := target.Balance
	pnl := p.UnrealizedPNL(price)
	out := Settlement{PNL: pnl, Transfer: decimal.Zero, ClosePrice: price}

	switch pnl.Sign() {
	case 1:
		pay := forcePayment(rules, target, pnl)
		owner.Balance = owner.Balance.Add(pay.Paid)
		out.Transfer = pay.Paid
		out.Bankrupt = pay.Bankrupt
	case -1:
		loss := decimal.Min(pnl.Neg(), p.Stake)
		owner.Balance = owner.Balance.Sub(loss)
		target.Balance = target.Balance.Add(loss)
		out.Transfer = loss.Neg()
	}
	p.State = PositionClosed
	out.Position = *p
	return out
}

// settleLiquidation forfeits the whole stake to the target regardless of how
// far the price overshot the threshold.
func settleLiquidation(p *Position, owner, target *Account) Settlement {
	price := target.Balance
	owner.Balance = owner.Balance.Sub(p.Stake)
	target.Balance = target.Balance.Add(p.Stake)
	p.State = PositionLiquidated
	return Settlement{
		Position:   *p,
		PNL:        p.UnrealizedPNL(price),
		Transfer:   p.Stake.Neg(),
		ClosePrice: price,
		Liquidated: true,
	}
}

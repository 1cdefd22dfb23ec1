package game

import (
	"time"

	"leverclick/internal/metrics"
)

// Tick advances a running match by dt: every account accrues production, then
// open positions are scanned against the updated balances and liquidated ones
// are settled. A liquidation moves balances, so the scan repeats until a pass
// settles nothing. Negative dt is clamped to zero.
func (m *Match) Tick(dt time.Duration, now time.Time) TickReport {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	report := TickReport{Tick: m.tick}
	if m.status != MatchRunning {
		return report
	}
	m.tick++
	report.Tick = m.tick

	secs := secondsOf(dt)
	for _, name := range m.order {
		m.accounts[name].advance(secs)
	}

	for {
		settled := 0
		for _, p := range m.book.all() {
			target, ok := m.accounts[p.Target]
			if !ok || !p.liquidatedAt(target.Balance) {
				continue
			}
			owner, ok := m.accounts[p.Owner]
			if !ok {
				continue
			}
			m.liquidateLocked(p, owner, target, now)
			settled++
		}
		report.Liquidations += settled
		if settled == 0 {
			break
		}
	}

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	return report
}

func (m *Match) liquidateLocked(p *Position, owner, target *Account, now time.Time) {
	if !p.State.CanTransitionTo(PositionLiquidated) {
		return
	}
	st := settleLiquidation(p, owner, target)
	m.book.remove(p.ID)
	id := p.ID
	m.record(Event{
		Type:         EventPositionLiquidated,
		At:           now,
		Player:       p.Owner,
		Counterparty: p.Target,
		PositionID:   &id,
		Amount:       st.Transfer,
		Detail:       "price " + st.ClosePrice.StringFixed(2) + " crossed " + p.LiquidationPrice.StringFixed(2),
	})
	metrics.PositionsClosed.WithLabelValues("liquidated").Inc()
	m.log.Info("position liquidated",
		"position_id", id.String(),
		"owner", p.Owner,
		"target", p.Target,
		"direction", string(p.Direction),
		"stake", p.Stake.String(),
		"price", st.ClosePrice.String(),
	)
}

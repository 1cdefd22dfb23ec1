package game

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leverclick/internal/metrics"
)

// Match is one independent game instance. Every mutation of its accounts,
// generators and positions happens under mu, so a tick and a manual command
// never observe each other's intermediate state.
type Match struct {
	ID uuid.UUID

	mu        sync.Mutex
	log       *slog.Logger
	rules     Rules
	duration  time.Duration
	status    MatchStatus
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	tick      int64

	accounts map[string]*Account
	order    []string // join order
	book     *positionBook

	seq     int64
	events  []Event
	pending []Event
}

type MatchConfig struct {
	Rules    Rules
	Duration time.Duration
}

func NewMatch(cfg MatchConfig, logger *slog.Logger, now time.Time) *Match {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Match{
		ID:        id,
		log:       logger.With("match_id", id.String()),
		rules:     cfg.Rules,
		duration:  cfg.Duration,
		status:    MatchWaiting,
		createdAt: now,
		accounts:  make(map[string]*Account),
		book:      newPositionBook(),
	}
}

func (m *Match) Rules() Rules {
	return m.rules
}

func (m *Match) Join(name string, now time.Time) (AccountView, error) {
	name = strings.TrimSpace(name)
	if err := ValidatePlayerName(name); err != nil {
		return AccountView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return AccountView{}, ErrMatchFinished
	}
	if _, ok := m.accounts[name]; ok {
		return AccountView{}, ErrDuplicatePlayer
	}
	acct := newAccount(name, m.rules, now)
	m.accounts[name] = acct
	m.order = append(m.order, name)
	m.record(Event{Type: EventPlayerJoined, At: now, Player: name, Amount: acct.Balance})
	return m.viewLocked(acct), nil
}

// Start moves a waiting match to running. started is true only for the call
// that made the transition; starting a running match is a no-op.
func (m *Match) Start(now time.Time) (started bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status {
	case MatchRunning:
		return false, nil
	case MatchFinished:
		return false, ErrMatchFinished
	}
	m.status = MatchRunning
	m.startedAt = now
	m.record(Event{Type: EventMatchStarted, At: now, Amount: decimal.Zero})
	metrics.ActiveMatches.Inc()
	m.log.Info("match started", "players", len(m.order), "duration", m.duration.String())
	return true, nil
}

// Expired reports whether a running match has reached its duration.
func (m *Match) Expired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == MatchRunning && m.duration > 0 && now.Sub(m.startedAt) >= m.duration
}

func (m *Match) Status() MatchStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Match) account(name string) (*Account, error) {
	acct, ok := m.accounts[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	return acct, nil
}

func (m *Match) available(acct *Account) decimal.Decimal {
	return acct.Balance.Sub(m.book.lockedStake(acct.Name))
}

// OpenPosition opens or merges a leveraged position of owner on target.
// Rejections leave the match untouched and return a *RejectionError.
func (m *Match) OpenPosition(in OpenInput, now time.Time) (OpenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return OpenResult{}, ErrMatchFinished
	}
	owner, err := m.account(in.Owner)
	if err != nil {
		return OpenResult{}, err
	}
	target, err := m.account(in.Target)
	if err != nil {
		return OpenResult{}, err
	}
	p, merged, err := m.book.openPosition(m.rules, owner, target, in, now)
	if err != nil {
		reason := ReasonOf(err)
		if reason == "" {
			reason = "invalid"
		}
		metrics.RejectionsTotal.WithLabelValues("open_position", reason).Inc()
		return OpenResult{Success: false, Reason: reason}, err
	}

	typ := EventPositionOpened
	if merged {
		typ = EventPositionMerged
	}
	id := p.ID
	m.record(Event{Type: typ, At: now, Player: p.Owner, Counterparty: p.Target, PositionID: &id, Amount: in.Stake, Detail: fmt.Sprintf("%s x%d @ %s", p.Direction, p.Leverage, p.EntryPrice.StringFixed(2))})
	metrics.PositionsOpened.WithLabelValues(string(p.Direction)).Inc()
	return OpenResult{Success: true, Merged: merged, Position: m.positionView(p)}, nil
}

// ClosePosition settles owner's position at the target's live balance.
func (m *Match) ClosePosition(owner string, id uuid.UUID, now time.Time) (CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return CloseResult{}, ErrMatchFinished
	}
	p, ok := m.book.get(id)
	if !ok {
		return CloseResult{}, ErrPositionNotFound
	}
	if p.Owner != strings.TrimSpace(owner) {
		return CloseResult{}, ErrNotOwner
	}
	if !p.State.CanTransitionTo(PositionClosed) {
		return CloseResult{}, ErrPositionNotFound
	}
	ownerAcct, err := m.account(p.Owner)
	if err != nil {
		return CloseResult{}, err
	}
	targetAcct, err := m.account(p.Target)
	if err != nil {
		return CloseResult{}, err
	}

	st := settleClose(m.rules, p, ownerAcct, targetAcct)
	m.book.remove(p.ID)
	m.record(Event{Type: EventPositionClosed, At: now, Player: p.Owner, Counterparty: p.Target, PositionID: &id, Amount: st.Transfer, Detail: "pnl " + st.PNL.String()})
	if st.Bankrupt {
		m.recordBankruptcy(targetAcct, p.Owner, now)
	}
	metrics.PositionsClosed.WithLabelValues("manual").Inc()
	return CloseResult{
		PositionID: id,
		PNL:        st.PNL,
		Transfer:   st.Transfer,
		ClosePrice: st.ClosePrice,
		Bankruptcy: st.Bankrupt,
		Balance:    ownerAcct.Balance,
	}, nil
}

// BuyGenerator purchases the next unit of kind out of available balance.
func (m *Match) BuyGenerator(owner, kind string, now time.Time) (BuyResult, error) {
	spec, err := generatorByKind(kind)
	if err != nil {
		return BuyResult{Success: false, Kind: kind, Reason: "unknown_generator"}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return BuyResult{}, ErrMatchFinished
	}
	acct, err := m.account(owner)
	if err != nil {
		return BuyResult{}, err
	}
	cost := acct.generators.nextCost(spec)
	if m.available(acct).LessThan(cost) {
		metrics.RejectionsTotal.WithLabelValues("buy_generator", "insufficient_funds").Inc()
		return BuyResult{Success: false, Kind: spec.Kind, Cost: cost, Reason: "insufficient_funds", Balance: acct.Balance, NewCount: acct.generators.count(spec.Kind)},
			reject("insufficient_funds", ErrInsufficientFunds, "cost %s", cost.StringFixed(2))
	}
	acct.Balance = acct.Balance.Sub(cost)
	n := acct.generators.add(spec, cost)
	acct.ProductionRate = acct.generators.productionRate()
	m.record(Event{Type: EventGeneratorBought, At: now, Player: acct.Name, Amount: cost, Detail: fmt.Sprintf("%s #%d", spec.Kind, n)})
	return BuyResult{Success: true, Kind: spec.Kind, NewCount: n, Cost: cost, Balance: acct.Balance}, nil
}

func (m *Match) Click(name string) (ClickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return ClickResult{}, ErrMatchFinished
	}
	acct, err := m.account(name)
	if err != nil {
		return ClickResult{}, err
	}
	acct.Balance = acct.Balance.Add(acct.ClickPower)
	return ClickResult{Balance: acct.Balance, ClickPower: acct.ClickPower}, nil
}

func (m *Match) clickUpgradeCost(acct *Account) decimal.Decimal {
	return scaledCost(m.rules.ClickUpgradeBase, m.rules.GrowthFactor, acct.ClickLevel)
}

// UpgradeClick raises click power by one for clickUpgradeBase * growth^level.
func (m *Match) UpgradeClick(name string) (ClickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == MatchFinished {
		return ClickResult{}, ErrMatchFinished
	}
	acct, err := m.account(name)
	if err != nil {
		return ClickResult{}, err
	}
	cost := m.clickUpgradeCost(acct)
	if m.available(acct).LessThan(cost) {
		return ClickResult{Balance: acct.Balance, ClickPower: acct.ClickPower, Cost: cost},
			reject("insufficient_funds", ErrInsufficientFunds, "cost %s", cost.StringFixed(2))
	}
	acct.Balance = acct.Balance.Sub(cost)
	acct.ClickPower = acct.ClickPower.Add(decimal.NewFromInt(1))
	acct.ClickLevel++
	return ClickResult{Balance: acct.Balance, ClickPower: acct.ClickPower, Cost: cost}, nil
}

func (m *Match) recordBankruptcy(acct *Account, creditor string, now time.Time) {
	m.record(Event{Type: EventBankruptcy, At: now, Player: acct.Name, Counterparty: creditor, Amount: decimal.Zero})
	metrics.Bankruptcies.Inc()
	m.log.Info("player bankrupt", "player", acct.Name, "creditor", creditor)
}

func (m *Match) record(evt Event) {
	m.seq++
	evt.Seq = m.seq
	m.events = append(m.events, evt)
	if len(m.events) > maxEventRing {
		m.events = append([]Event(nil), m.events[len(m.events)-maxEventRing:]...)
	}
	m.pending = append(m.pending, evt)
	if len(m.pending) > maxEventRing {
		m.pending = append([]Event(nil), m.pending[len(m.pending)-maxEventRing:]...)
	}
}

func (m *Match) positionView(p *Position) PositionView {
	price := decimal.Zero
	if target, ok := m.accounts[p.Target]; ok {
		price = target.Balance
	}
	return PositionView{
		ID:               p.ID,
		Owner:            p.Owner,
		Target:           p.Target,
		Direction:        p.Direction,
		Stake:            p.Stake,
		Leverage:         p.Leverage,
		EntryPrice:       p.EntryPrice,
		LiquidationPrice: p.LiquidationPrice,
		CurrentPrice:     price,
		UnrealizedPNL:    p.UnrealizedPNL(price),
		OpenedAt:         p.OpenedAt,
	}
}

// netWorth is balance + collateral + unrealized PNL of own open positions.
func (m *Match) netWorth(acct *Account) decimal.Decimal {
	total := acct.collateralNetWorth(m.rules.CollateralRatio)
	for _, p := range m.book.ownedBy(acct.Name) {
		if target, ok := m.accounts[p.Target]; ok {
			total = total.Add(p.UnrealizedPNL(target.Balance))
		}
	}
	return total
}

func (m *Match) viewLocked(acct *Account) AccountView {
	locked := m.book.lockedStake(acct.Name)
	out := AccountView{
		Name:               acct.Name,
		Balance:            acct.Balance,
		Available:          acct.Balance.Sub(locked),
		LockedStake:        locked,
		Collateral:         acct.collateral(m.rules.CollateralRatio),
		NetWorth:           m.netWorth(acct),
		ProductionRate:     acct.ProductionRate,
		ClickPower:         acct.ClickPower,
		ClickUpgradeCost:   m.clickUpgradeCost(acct),
		Bankrupt:           acct.Bankrupt,
		GeneratorCounts:    acct.generators.counts(),
		Generators:         acct.generators.views(),
		OpenPositions:      []PositionView{},
		PositionsAgainstMe: []PositionView{},
	}
	for _, p := range m.book.ownedBy(acct.Name) {
		out.OpenPositions = append(out.OpenPositions, m.positionView(p))
	}
	for _, p := range m.book.against(acct.Name) {
		out.PositionsAgainstMe = append(out.PositionsAgainstMe, m.positionView(p))
	}
	return out
}

// Snapshot is the read-only state of one account.
func (m *Match) Snapshot(name string) (AccountView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, err := m.account(name)
	if err != nil {
		return AccountView{}, err
	}
	return m.viewLocked(acct), nil
}

func (m *Match) viewsLocked() []AccountView {
	out := make([]AccountView, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.viewLocked(m.accounts[name]))
	}
	return out
}

func (m *Match) standingsLocked() []StandingRow {
	rows := make([]StandingRow, 0, len(m.order))
	for _, name := range m.order {
		acct := m.accounts[name]
		rows = append(rows, StandingRow{Name: name, NetWorth: m.netWorth(acct), Balance: acct.Balance, Bankrupt: acct.Bankrupt})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].NetWorth.Cmp(rows[j].NetWorth); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	return rows
}

// Standings ranks players by net worth, highest first.
func (m *Match) Standings() []StandingRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.standingsLocked()
}

func (m *Match) View(now time.Time) MatchView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MatchView{
		ID:        m.ID,
		Status:    m.status,
		Players:   append([]string(nil), m.order...),
		Positions: m.book.len(),
		Tick:      m.tick,
		Duration:  m.duration,
		Events:    append([]Event(nil), m.events...),
	}
	if !m.startedAt.IsZero() {
		started := m.startedAt
		out.StartedAt = &started
		end := now
		if m.status == MatchFinished {
			end = m.endedAt
		}
		if rem := m.duration - end.Sub(started); rem > 0 {
			out.Remaining = rem
		}
	}
	return out
}

// Update builds the presentation view of the current state plus the events
// recorded since the last update.
func (m *Match) Update(now time.Time) MatchUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MatchUpdate{
		MatchID: m.ID,
		Tick:    m.tick,
		Status:  m.status,
		At:      now,
		Views:   m.viewsLocked(),
		Events:  m.pending,
	}
	m.pending = nil
	return out
}

// Current is Update without draining pending events.
func (m *Match) Current(now time.Time) MatchUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MatchUpdate{
		MatchID: m.ID,
		Tick:    m.tick,
		Status:  m.status,
		At:      now,
		Views:   m.viewsLocked(),
		Events:  []Event{},
	}
}

// Finish ends the match and returns its standings. Further commands fail
// with ErrMatchFinished.
func (m *Match) Finish(now time.Time) MatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != MatchFinished {
		if m.status == MatchRunning {
			metrics.ActiveMatches.Dec()
		}
		m.status = MatchFinished
		m.endedAt = now
		m.record(Event{Type: EventMatchFinished, At: now, Amount: decimal.Zero})
		m.log.Info("match finished", "ticks", m.tick, "players", len(m.order))
	}
	started := m.startedAt
	if started.IsZero() {
		started = m.createdAt
	}
	return MatchResult{
		MatchID:    m.ID,
		StartedAt:  started,
		FinishedAt: m.endedAt,
		Ticks:      m.tick,
		Standings:  m.standingsLocked(),
	}
}

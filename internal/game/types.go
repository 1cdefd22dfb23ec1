package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountView struct {
	Name               string           `json:"name"`
	Balance            decimal.Decimal  `json:"balance"`
	Available          decimal.Decimal  `json:"available"`
	LockedStake        decimal.Decimal  `json:"locked_stake"`
	Collateral         decimal.Decimal  `json:"collateral"`
	NetWorth           decimal.Decimal  `json:"net_worth"`
	ProductionRate     decimal.Decimal  `json:"production_rate"`
	ClickPower         decimal.Decimal  `json:"click_power"`
	ClickUpgradeCost   decimal.Decimal  `json:"click_upgrade_cost"`
	Bankrupt           bool             `json:"bankrupt"`
	GeneratorCounts    map[string]int64 `json:"generator_counts"`
	Generators         []HoldingView    `json:"generators"`
	OpenPositions      []PositionView   `json:"open_positions"`
	PositionsAgainstMe []PositionView   `json:"positions_against_me"`
}

type PositionView struct {
	ID               uuid.UUID       `json:"id"`
	Owner            string          `json:"owner"`
	Target           string          `json:"target"`
	Direction        Direction       `json:"direction"`
	Stake            decimal.Decimal `json:"stake"`
	Leverage         int32           `json:"leverage"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	UnrealizedPNL    decimal.Decimal `json:"unrealized_pnl"`
	OpenedAt         time.Time       `json:"opened_at"`
}

type HoldingView struct {
	Kind     string          `json:"kind"`
	Count    int64           `json:"count"`
	Paid     decimal.Decimal `json:"paid"`
	NextCost decimal.Decimal `json:"next_cost"`
}

type GeneratorView struct {
	Kind        string          `json:"kind"`
	DisplayName string          `json:"display_name"`
	BaseCost    decimal.Decimal `json:"base_cost"`
	Rate        decimal.Decimal `json:"rate"`
}

type OpenResult struct {
	Success  bool         `json:"success"`
	Reason   string       `json:"reason,omitempty"`
	Merged   bool         `json:"merged"`
	Position PositionView `json:"position"`
}

type CloseResult struct {
	PositionID uuid.UUID       `json:"position_id"`
	PNL        decimal.Decimal `json:"pnl"`
	Transfer   decimal.Decimal `json:"transfer"`
	ClosePrice decimal.Decimal `json:"close_price"`
	Bankruptcy bool            `json:"bankruptcy"`
	Balance    decimal.Decimal `json:"balance"`
}

type BuyResult struct {
	Success  bool            `json:"success"`
	Kind     string          `json:"kind"`
	NewCount int64           `json:"new_count"`
	Cost     decimal.Decimal `json:"cost"`
	Reason   string          `json:"reason,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

type ClickResult struct {
	Balance    decimal.Decimal `json:"balance"`
	ClickPower decimal.Decimal `json:"click_power"`
	Cost       decimal.Decimal `json:"cost,omitempty"`
}

type EventType string

const (
	EventPlayerJoined       EventType = "player_joined"
	EventMatchStarted       EventType = "match_started"
	EventMatchFinished      EventType = "match_finished"
	EventPositionOpened     EventType = "position_opened"
	EventPositionMerged     EventType = "position_merged"
	EventPositionClosed     EventType = "position_closed"
	EventPositionLiquidated EventType = "position_liquidated"
	EventBankruptcy         EventType = "bankruptcy"
	EventGeneratorBought    EventType = "generator_bought"
)

type Event struct {
	Seq          int64           `json:"seq"`
	Type         EventType       `json:"type"`
	At           time.Time       `json:"at"`
	Player       string          `json:"player,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	PositionID   *uuid.UUID      `json:"position_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Detail       string          `json:"detail,omitempty"`
}

type MatchStatus string

const (
	MatchWaiting  MatchStatus = "waiting"
	MatchRunning  MatchStatus = "running"
	MatchFinished MatchStatus = "finished"
)

type MatchView struct {
	ID        uuid.UUID     `json:"id"`
	Status    MatchStatus   `json:"status"`
	Players   []string      `json:"players"`
	Positions int           `json:"positions"`
	Tick      int64         `json:"tick"`
	Duration  time.Duration `json:"duration"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Remaining time.Duration `json:"remaining"`
	Events    []Event       `json:"events"`
}

// MatchUpdate is the per-tick view handed to the presentation layer.
type MatchUpdate struct {
	MatchID uuid.UUID     `json:"match_id"`
	Tick    int64         `json:"tick"`
	Status  MatchStatus   `json:"status"`
	At      time.Time     `json:"at"`
	Views   []AccountView `json:"views"`
	Events  []Event       `json:"events"`
}

type StandingRow struct {
	Rank     int64           `json:"rank"`
	Name     string          `json:"name"`
	NetWorth decimal.Decimal `json:"net_worth"`
	Balance  decimal.Decimal `json:"balance"`
	Bankrupt bool            `json:"bankrupt"`
}

// MatchResult is what survives a finished match.
type MatchResult struct {
	MatchID    uuid.UUID     `json:"match_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Ticks      int64         `json:"ticks"`
	Standings  []StandingRow `json:"standings"`
}

// TickReport summarises one tick for the runner.
type TickReport struct {
	Tick         int64
	Liquidations int
}

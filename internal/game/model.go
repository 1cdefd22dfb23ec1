package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultMinEntryPrice    = int64(100)
	DefaultMinLiqFloor      = int64(10)
	DefaultMaxLeverage      = int32(100)
	DefaultStartingBalance  = int64(500)
	DefaultClickPower       = int64(1)
	DefaultClickUpgradeCost = int64(50)
	MinLeverage             = int32(2)
	maxEventRing            = 256
)

var (
	DefaultGrowthFactor    = decimal.RequireFromString("1.15")
	DefaultCollateralRatio = decimal.RequireFromString("0.9")
	DefaultStakeCapRatio   = decimal.RequireFromString("0.5")
)

// Validation rejections. Returned wrapped in a *RejectionError.
var (
	ErrSelfTrade             = errors.New("cannot open a position on yourself")
	ErrTargetTooSmall        = errors.New("target balance below minimum entry price")
	ErrInsufficientAvailable = errors.New("stake exceeds available balance")
	ErrStakeTooSmall         = errors.New("stake must be at least 1")
	ErrStakeCapExceeded      = errors.New("stake exceeds half of target net worth")
	ErrLiquidationFloor      = errors.New("liquidation price below floor")
	ErrInsufficientFunds     = errors.New("insufficient available balance")
)

// Contract errors: the operation is rejected, the match carries on.
var (
	ErrInvalidLeverage  = errors.New("leverage out of range")
	ErrInvalidDirection = errors.New("direction must be long or short")
	ErrUnknownGenerator = errors.New("unknown generator kind")
	ErrPositionNotFound = errors.New("position not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchFinished    = errors.New("match finished")
	ErrNotOwner         = errors.New("position belongs to another player")
	ErrDuplicatePlayer  = errors.New("player name already taken")
	ErrInvalidName      = errors.New("name must be 3-24 letters, digits or underscores")
)

// RejectionError reports a validation failure with a stable reason code.
type RejectionError struct {
	Reason string
	Err    error
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func reject(reason string, err error, format string, args ...any) error {
	return &RejectionError{Reason: reason, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason code, or "" if err is not a rejection.
func ReasonOf(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// Rules holds the tunable trading constants of a match.
type Rules struct {
	MinEntryPrice    decimal.Decimal
	MinLiqFloor      decimal.Decimal
	MaxLeverage      int32
	StakeCapRatio    decimal.Decimal
	CollateralRatio  decimal.Decimal
	GrowthFactor     decimal.Decimal
	StartingBalance  decimal.Decimal
	ClickPower       decimal.Decimal
	ClickUpgradeBase decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		MinEntryPrice:    decimal.NewFromInt(DefaultMinEntryPrice),
		MinLiqFloor:      decimal.NewFromInt(DefaultMinLiqFloor),
		MaxLeverage:      DefaultMaxLeverage,
		StakeCapRatio:    DefaultStakeCapRatio,
		CollateralRatio:  DefaultCollateralRatio,
		GrowthFactor:     DefaultGrowthFactor,
		StartingBalance:  decimal.NewFromInt(DefaultStartingBalance),
		ClickPower:       decimal.NewFromInt(DefaultClickPower),
		ClickUpgradeBase: decimal.NewFromInt(DefaultClickUpgradeCost),
	}
}

var playerNameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

func ValidatePlayerName(name string) error {
	if !playerNameRE.MatchString(strings.TrimSpace(name)) {
		return ErrInvalidName
	}
	return nil
}

// scaledCost returns base * growth^n.
func scaledCost(base, growth decimal.Decimal, n int64) decimal.Decimal {
	if n <= 0 {
		return base
	}
	return base.Mul(growth.Pow(decimal.NewFromInt(n))).Round(4)
}

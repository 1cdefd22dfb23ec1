package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type generatorSpec struct {
	Kind        string
	DisplayName string
	BaseCost    decimal.Decimal
	Rate        decimal.Decimal // currency per second per unit
}

var generatorCatalog = []generatorSpec{
	{Kind: "cursor", DisplayName: "Auto Cursor", BaseCost: decimal.NewFromInt(15), Rate: decimal.RequireFromString("0.1")},
	{Kind: "intern", DisplayName: "Trading Intern", BaseCost: decimal.NewFromInt(100), Rate: decimal.NewFromInt(1)},
	{Kind: "server_rack", DisplayName: "Server Rack", BaseCost: decimal.NewFromInt(1_100), Rate: decimal.NewFromInt(8)},
	{Kind: "trading_desk", DisplayName: "Trading Desk", BaseCost: decimal.NewFromInt(12_000), Rate: decimal.NewFromInt(47)},
	{Kind: "hedge_fund", DisplayName: "Hedge Fund", BaseCost: decimal.NewFromInt(130_000), Rate: decimal.NewFromInt(260)},
}

func generatorByKind(kind string) (generatorSpec, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, spec := range generatorCatalog {
		if spec.Kind == kind {
			return spec, nil
		}
	}
	return generatorSpec{}, fmt.Errorf("%w: %s", ErrUnknownGenerator, kind)
}

// GeneratorCatalog lists the purchasable generator kinds.
func GeneratorCatalog() []GeneratorView {
	out := make([]GeneratorView, 0, len(generatorCatalog))
	for _, spec := range generatorCatalog {
		out = append(out, GeneratorView{
			Kind:        spec.Kind,
			DisplayName: spec.DisplayName,
			BaseCost:    spec.BaseCost,
			Rate:        spec.Rate,
		})
	}
	return out
}

// holding is one account's stake in a single generator kind.
type holding struct {
	Count int64
	Paid  decimal.Decimal // sum of prices paid for every unit held
}

// generatorLedger is the per-account record of owned production units.
type generatorLedger struct {
	growth   decimal.Decimal
	holdings map[string]*holding
}

func newGeneratorLedger(growth decimal.Decimal) *generatorLedger {
	return &generatorLedger{
		growth:   growth,
		holdings: make(map[string]*holding),
	}
}

func (l *generatorLedger) count(kind string) int64 {
	if h, ok := l.holdings[kind]; ok {
		return h.Count
	}
	return 0
}

// nextCost is the price of the next unit: baseCost * growth^owned.
func (l *generatorLedger) nextCost(spec generatorSpec) decimal.Decimal {
	return scaledCost(spec.BaseCost, l.growth, l.count(spec.Kind))
}

func (l *generatorLedger) add(spec generatorSpec, cost decimal.Decimal) int64 {
	h, ok := l.holdings[spec.Kind]
	if !ok {
		h = &holding{Paid: decimal.Zero}
		l.holdings[spec.Kind] = h
	}
	h.Count++
	h.Paid = h.Paid.Add(cost)
	return h.Count
}

// collateral is ratio * total paid across every kind.
func (l *generatorLedger) collateral(ratio decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, h := range l.holdings {
		total = total.Add(h.Paid)
	}
	return total.Mul(ratio)
}

func (l *generatorLedger) productionRate() decimal.Decimal {
	rate := decimal.Zero
	for _, spec := range generatorCatalog {
		if n := l.count(spec.Kind); n > 0 {
			rate = rate.Add(spec.Rate.Mul(decimal.NewFromInt(n)))
		}
	}
	return rate
}

// liquidateAll drops every holding of every kind.
func (l *generatorLedger) liquidateAll() {
	l.holdings = make(map[string]*holding)
}

func (l *generatorLedger) counts() map[string]int64 {
	out := make(map[string]int64, len(l.holdings))
	for kind, h := range l.holdings {
		if h.Count > 0 {
			out[kind] = h.Count
		}
	}
	return out
}

func (l *generatorLedger) views() []HoldingView {
	kinds := make([]string, 0, len(l.holdings))
	for kind := range l.holdings {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	out := make([]HoldingView, 0, len(kinds))
	for _, kind := range kinds {
		h := l.holdings[kind]
		spec, err := generatorByKind(kind)
		if err != nil || h.Count == 0 {
			continue
		}
		out = append(out, HoldingView{
			Kind:     kind,
			Count:    h.Count,
			Paid:     h.Paid,
			NextCost: l.nextCost(spec),
		})
	}
	return out
}

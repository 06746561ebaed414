// Package planning translates target weights and available capital into
// discrete BUY orders at reference prices.
package planning

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/internal/modules/allocation"
)

// ErrInvalidCapital is returned when total capital is not positive.
var ErrInvalidCapital = errors.New("total capital must be positive")

// SkippedTicker is a per-ticker diagnostic for weights that could not be
// turned into an order. Skips never abort the rest of the plan.
type SkippedTicker struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Plan is the ordered sequence of trade orders for one cycle, largest target
// weight first.
type Plan struct {
	Orders        []domain.TradeOrder `json:"orders"`
	Skipped       []SkippedTicker     `json:"skipped"`
	TotalNotional decimal.Decimal     `json:"total_notional"`
}

// Planner sizes orders from weights. It performs no date fallback: the
// caller must already have resolved reference prices to the most recent
// trading day's close.
type Planner struct {
	log zerolog.Logger
}

// NewPlanner creates a trade planner.
func NewPlanner(log zerolog.Logger) *Planner {
	return &Planner{log: log.With().Str("component", "planning").Logger()}
}

// BuildPlan allocates capital per weight and floors each allocation to whole
// shares at the ticker's reference price: qty = floor(capital*w / price).
// Tickers missing a reference price, or priced at zero, are skipped with a
// diagnostic. For weights summing to <= 1 the planned total notional can
// never exceed total capital: flooring only loses capital, it never
// overcommits it.
func (p *Planner) BuildPlan(
	weights allocation.Weights,
	totalCapital decimal.Decimal,
	referencePrices map[string]decimal.Decimal,
) (Plan, error) {
	var plan Plan
	plan.TotalNotional = decimal.Zero

	if !totalCapital.IsPositive() {
		return plan, ErrInvalidCapital
	}

	// Descending weight, ticker as tiebreak, so the plan is deterministic
	// and the largest positions are executed first.
	tickers := make([]string, 0, len(weights))
	for t := range weights {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool {
		if weights[tickers[i]] != weights[tickers[j]] {
			return weights[tickers[i]] > weights[tickers[j]]
		}
		return tickers[i] < tickers[j]
	})

	for _, ticker := range tickers {
		price, ok := referencePrices[ticker]
		if !ok {
			plan.Skipped = append(plan.Skipped, SkippedTicker{Ticker: ticker, Reason: "no reference price"})
			continue
		}
		if !price.IsPositive() {
			plan.Skipped = append(plan.Skipped, SkippedTicker{Ticker: ticker, Reason: "reference price is zero"})
			continue
		}

		allocated := totalCapital.Mul(decimal.NewFromFloat(weights[ticker]))
		quantity := allocated.Div(price).IntPart()
		if quantity <= 0 {
			plan.Skipped = append(plan.Skipped, SkippedTicker{Ticker: ticker, Reason: "allocated capital below one share"})
			continue
		}

		notional := price.Mul(decimal.NewFromInt(quantity))
		plan.Orders = append(plan.Orders, domain.TradeOrder{
			Ticker:         ticker,
			Side:           domain.SideBuy,
			Quantity:       quantity,
			ReferencePrice: price,
			Notional:       notional,
		})
		plan.TotalNotional = plan.TotalNotional.Add(notional)
	}

	p.log.Debug().
		Int("orders", len(plan.Orders)).
		Int("skipped", len(plan.Skipped)).
		Str("total_notional", plan.TotalNotional.String()).
		Msg("Trade plan built")

	return plan, nil
}

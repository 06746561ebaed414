// Package ledger holds the durable cash/position record and the executor
// that applies trade orders to it. This is the only part of the engine with
// persistent side effects.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Transition refusals. The ledger is left untouched when any of these is
// returned.
var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrUnknownPosition    = errors.New("no position for ticker")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidOrder       = errors.New("invalid order")
)

// Position is one holding. Invariant: Quantity > 0 and AverageCost > 0 for
// every position present in the ledger; a position that reaches quantity 0
// is removed, never retained.
type Position struct {
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// Ledger is the cash/position state. Invariant: Cash never goes negative as
// the result of an executed order. Created once with initial capital and
// empty positions, mutated exclusively by Executor.Execute.
type Ledger struct {
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

// New creates a fresh ledger with the given initial capital and no
// positions.
func New(initialCash decimal.Decimal) *Ledger {
	return &Ledger{
		Cash:      initialCash,
		Positions: make(map[string]Position),
	}
}

// Clone returns a deep copy. Used to snapshot state for reports and to stage
// transitions so a failed persist leaves the original untouched.
func (l *Ledger) Clone() *Ledger {
	positions := make(map[string]Position, len(l.Positions))
	for t, p := range l.Positions {
		positions[t] = p
	}
	return &Ledger{Cash: l.Cash, Positions: positions}
}

// MarketValue values current holdings at the given prices plus cash.
// Tickers without a price contribute their cost basis, so a missing quote
// never zeroes a position out of the total.
func (l *Ledger) MarketValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := l.Cash
	for ticker, pos := range l.Positions {
		qty := decimal.NewFromInt(pos.Quantity)
		if price, ok := prices[ticker]; ok {
			total = total.Add(price.Mul(qty))
		} else {
			total = total.Add(pos.AverageCost.Mul(qty))
		}
	}
	return total
}

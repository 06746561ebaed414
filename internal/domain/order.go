package domain

import "github.com/shopspring/decimal"

// Side is the direction of a trade order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeOrder is one discrete share order produced by the planner and applied
// by the ledger executor. Quantity is whole shares, floor-rounded toward
// zero; there are no fractional shares. Money fields are decimals so ledger
// arithmetic stays exact.
type TradeOrder struct {
	Ticker         string          `json:"ticker"`
	Side           Side            `json:"side"`
	Quantity       int64           `json:"quantity"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Notional       decimal.Decimal `json:"notional"`
}

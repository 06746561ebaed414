package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jwpark/krquant/internal/domain"
)

// LedgerStore persists the whole ledger document. Save must be
// replace-whole-document: partial or appended writes would leave stale state
// on disk.
type LedgerStore interface {
	Save(l *Ledger) error
}

// ExecutionResult describes one successfully applied transition.
type ExecutionResult struct {
	Order         domain.TradeOrder `json:"order"`
	CashAfter     decimal.Decimal   `json:"cash_after"`
	PositionAfter *Position         `json:"position_after,omitempty"` // nil when the position was removed
	ExecutedAt    time.Time         `json:"executed_at"`
}

// Executor applies trade orders to a ledger one at a time. The write lock
// serializes Execute calls: average-cost recomputation and solvency checks
// are not commutative across interleaved orders. Readers that want a
// consistent view while orders are in flight go through Snapshot.
type Executor struct {
	mu    sync.RWMutex
	store LedgerStore
	log   zerolog.Logger
}

// NewExecutor creates a ledger executor that persists through the given
// store after every successful transition.
func NewExecutor(store LedgerStore, log zerolog.Logger) *Executor {
	return &Executor{
		store: store,
		log:   log.With().Str("component", "executor").Logger(),
	}
}

// Execute applies a single order atomically: either cash and the affected
// position are both updated and the whole document persisted, or the ledger
// (in memory and on disk) is left with no observable change. Transition
// refusals come back as ErrInsufficientCash, ErrUnknownPosition or
// ErrInsufficientShares; a store failure is returned wrapped and must be
// treated as fatal for the remainder of the cycle.
func (e *Executor) Execute(order domain.TradeOrder, led *Ledger) (*ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateOrder(order); err != nil {
		return nil, err
	}

	// Stage the transition on a copy so a persistence failure cannot leave
	// the caller's ledger half-applied.
	staged := led.Clone()

	var after *Position
	switch order.Side {
	case domain.SideBuy:
		pos, err := applyBuy(staged, order)
		if err != nil {
			return nil, err
		}
		after = pos
	case domain.SideSell:
		pos, err := applySell(staged, order)
		if err != nil {
			return nil, err
		}
		after = pos
	default:
		return nil, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}

	if err := e.store.Save(staged); err != nil {
		e.log.Error().Err(err).Str("ticker", order.Ticker).Msg("Ledger persist failed, order not applied")
		return nil, fmt.Errorf("persist ledger: %w", err)
	}

	led.Cash = staged.Cash
	led.Positions = staged.Positions

	result := &ExecutionResult{
		Order:         order,
		CashAfter:     led.Cash,
		PositionAfter: after,
		ExecutedAt:    time.Now().UTC(),
	}

	e.log.Info().
		Str("ticker", order.Ticker).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Str("notional", order.Notional.String()).
		Str("cash_after", led.Cash.String()).
		Msg("Order executed")

	return result, nil
}

// Snapshot returns a consistent copy of the ledger, taken under the same
// lock Execute writes under. Concurrent readers (the status API) must use
// this instead of dereferencing the live ledger.
func (e *Executor) Snapshot(led *Ledger) *Ledger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return led.Clone()
}

func validateOrder(order domain.TradeOrder) error {
	if order.Ticker == "" {
		return fmt.Errorf("%w: empty ticker", ErrInvalidOrder)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if !order.ReferencePrice.IsPositive() {
		return fmt.Errorf("%w: reference price must be positive", ErrInvalidOrder)
	}
	if order.Notional.IsNegative() {
		return fmt.Errorf("%w: negative notional", ErrInvalidOrder)
	}
	return nil
}

// applyBuy debits cash and adds to (or opens) the position, recomputing the
// weighted average cost: (old_avg*old_qty + notional) / (old_qty + qty).
func applyBuy(led *Ledger, order domain.TradeOrder) (*Position, error) {
	if led.Cash.LessThan(order.Notional) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientCash, led.Cash, order.Notional)
	}

	led.Cash = led.Cash.Sub(order.Notional)

	pos, held := led.Positions[order.Ticker]
	if held {
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := decimal.NewFromInt(pos.Quantity + order.Quantity)
		pos.AverageCost = pos.AverageCost.Mul(oldQty).Add(order.Notional).Div(newQty)
		pos.Quantity += order.Quantity
	} else {
		pos = Position{Quantity: order.Quantity, AverageCost: order.ReferencePrice}
	}
	led.Positions[order.Ticker] = pos

	return &pos, nil
}

// applySell credits cash and reduces the position, removing it entirely at
// quantity zero.
func applySell(led *Ledger, order domain.TradeOrder) (*Position, error) {
	pos, held := led.Positions[order.Ticker]
	if !held {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, order.Ticker)
	}
	if pos.Quantity < order.Quantity {
		return nil, fmt.Errorf("%w: hold %d, selling %d", ErrInsufficientShares, pos.Quantity, order.Quantity)
	}

	led.Cash = led.Cash.Add(order.Notional)
	pos.Quantity -= order.Quantity

	if pos.Quantity == 0 {
		delete(led.Positions, order.Ticker)
		return nil, nil
	}

	led.Positions[order.Ticker] = pos
	return &pos, nil
}

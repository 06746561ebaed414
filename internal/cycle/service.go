// Package cycle runs the daily pipeline end to end: universe listing,
// valuation ranking, correlation, allocation, planning and ledger execution.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jwpark/krquant/internal/clients/bok"
	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/internal/events"
	"github.com/jwpark/krquant/internal/market_regime"
	"github.com/jwpark/krquant/internal/modules/allocation"
	"github.com/jwpark/krquant/internal/modules/ledger"
	"github.com/jwpark/krquant/internal/modules/planning"
	"github.com/jwpark/krquant/internal/modules/risk"
	"github.com/jwpark/krquant/internal/modules/trading"
	"github.com/jwpark/krquant/internal/modules/valuation"
)

// ErrCycleInProgress is returned when Run is called while a previous cycle's
// transitions are still outstanding. Cycles never overlap.
var ErrCycleInProgress = errors.New("cycle already in progress")

// fetchConcurrency bounds the parallel per-ticker provider calls.
const fetchConcurrency = 8

// TradeRecorder persists executed orders to the audit log.
type TradeRecorder interface {
	Record(cycleID string, result *ledger.ExecutionResult) (*trading.Trade, error)
}

// RegimeDetector classifies the market regime before buys are released.
type RegimeDetector interface {
	Assess(ctx context.Context, asOf string) (market_regime.Assessment, error)
}

// MacroClient fetches macro indicators for the report. Optional.
type MacroClient interface {
	BaseRate(ctx context.Context) (*bok.Indicator, error)
	CPI(ctx context.Context) (*bok.Indicator, error)
}

var (
	_ TradeRecorder  = (*trading.TradeRepository)(nil)
	_ RegimeDetector = (*market_regime.Detector)(nil)
	_ MacroClient    = (*bok.Client)(nil)
)

// Refusal is an order the ledger would not apply, with the remaining
// abandoned orders counted against it.
type Refusal struct {
	Order  domain.TradeOrder `json:"order"`
	Reason string            `json:"reason"`
}

// Report is the full outcome of one cycle. Everything the pipeline computed
// is kept, including the diagnostics for what was excluded and why.
type Report struct {
	CycleID    string    `json:"cycle_id"`
	AsOf       string    `json:"as_of"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	UniverseSize      int                         `json:"universe_size"`
	Rankings          []valuation.RankedValuation `json:"rankings"`
	ValuationExcluded []valuation.Exclusion       `json:"valuation_excluded,omitempty"`
	Selected          []string                    `json:"selected"`

	Correlations map[string]map[string]float64 `json:"correlations,omitempty"`
	RiskExcluded []risk.Exclusion              `json:"risk_excluded,omitempty"`

	Weights       allocation.Weights     `json:"weights,omitempty"`
	Volatilities  allocation.Weights     `json:"volatilities,omitempty"`
	AllocExcluded []allocation.Exclusion `json:"allocation_excluded,omitempty"`

	Plan       planning.Plan            `json:"plan"`
	Regime     market_regime.Assessment `json:"regime"`
	Executions []ledger.ExecutionResult `json:"executions,omitempty"`
	Refusals   []Refusal                `json:"refusals,omitempty"`
	Abandoned  int                      `json:"abandoned,omitempty"` // orders never issued after a halt

	Flows []domain.FlowSummary `json:"flows,omitempty"`
	Macro []bok.Indicator      `json:"macro,omitempty"`

	CashAfter decimal.Decimal `json:"cash_after"`
}

// Service owns the cycle. It holds the live ledger and serializes runs.
type Service struct {
	provider  domain.MarketDataProvider
	ranker    *valuation.Ranker
	analyzer  *risk.Analyzer
	allocator *allocation.Allocator
	planner   *planning.Planner
	executor  *ledger.Executor
	led       *ledger.Ledger
	trades    TradeRecorder
	regime    RegimeDetector // nil disables the gate
	macro     MacroClient    // nil skips macro indicators
	bus       *events.Bus

	market       string
	topN         int
	lookbackDays int

	now func() time.Time

	mu         sync.Mutex // held for the whole run
	reportMu   sync.RWMutex
	lastReport *Report

	log zerolog.Logger
}

// Deps bundles the collaborators for NewService.
type Deps struct {
	Provider domain.MarketDataProvider
	Executor *ledger.Executor
	Ledger   *ledger.Ledger
	Trades   TradeRecorder
	Regime   RegimeDetector
	Macro    MacroClient
	Bus      *events.Bus
	Market   string
	TopN     int
	Lookback int
}

// NewService wires the pipeline stages around the given collaborators.
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{
		provider:     deps.Provider,
		ranker:       valuation.NewRanker(log),
		analyzer:     risk.NewAnalyzer(log),
		allocator:    allocation.NewAllocator(deps.Lookback, log),
		planner:      planning.NewPlanner(log),
		executor:     deps.Executor,
		led:          deps.Ledger,
		trades:       deps.Trades,
		regime:       deps.Regime,
		macro:        deps.Macro,
		bus:          deps.Bus,
		market:       deps.Market,
		topN:         deps.TopN,
		lookbackDays: deps.Lookback,
		now:          time.Now,
		log:          log.With().Str("component", "cycle").Logger(),
	}
}

// Ledger returns a consistent snapshot of the ledger for read-only callers
// (the status API). The copy is taken under the executor's lock, so it is
// safe to call while a cycle is applying orders.
func (s *Service) Ledger() *ledger.Ledger {
	return s.executor.Snapshot(s.led)
}

// LastReport returns the most recent completed report, or nil before the
// first run.
func (s *Service) LastReport() *Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.lastReport
}

// Run executes one full cycle. Only one cycle may run at a time; a second
// caller gets ErrCycleInProgress instead of queueing.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	started := s.now()
	report := &Report{
		CycleID:   uuid.NewString(),
		AsOf:      started.Format("2006-01-02"),
		StartedAt: started,
	}
	log := s.log.With().Str("cycle_id", report.CycleID).Logger()
	log.Info().Str("as_of", report.AsOf).Msg("Cycle started")
	s.publish(events.CycleStarted, map[string]string{"cycle_id": report.CycleID})

	if err := s.run(ctx, report, log); err != nil {
		s.publish(events.CycleFailed, map[string]string{
			"cycle_id": report.CycleID,
			"error":    err.Error(),
		})
		return nil, err
	}

	report.FinishedAt = s.now()
	report.CashAfter = s.led.Cash

	s.reportMu.Lock()
	s.lastReport = report
	s.reportMu.Unlock()

	s.publish(events.CycleCompleted, report)
	log.Info().
		Int("executed", len(report.Executions)).
		Int("refused", len(report.Refusals)).
		Str("cash_after", report.CashAfter.String()).
		Msg("Cycle completed")
	return report, nil
}

func (s *Service) run(ctx context.Context, report *Report, log zerolog.Logger) error {
	tickers, err := s.provider.ListTickers(ctx, s.market)
	if err != nil {
		return fmt.Errorf("listing %s universe: %w", s.market, err)
	}
	report.UniverseSize = len(tickers)

	// Per-ticker fundamentals fetch. One ticker's failure never aborts the
	// batch; it is simply absent from the ranking input.
	records := s.fetchFundamentals(ctx, tickers, report.AsOf, log)

	report.Rankings, report.ValuationExcluded = s.ranker.Rank(records)
	report.Selected = selectTop(report.Rankings, s.topN)
	if len(report.Selected) == 0 {
		// A valid trade-free outcome, not an error.
		log.Warn().Msg("No eligible stocks after valuation screening")
		return nil
	}

	from := parseDate(report.AsOf).AddDate(0, 0, -s.lookbackDays).Format("2006-01-02")
	series := s.fetchSeries(ctx, report.Selected, from, report.AsOf, log)

	riskResult := s.analyzer.Correlate(series)
	report.RiskExcluded = riskResult.Excluded
	if riskResult.Matrix != nil {
		report.Correlations = riskResult.Matrix.Rows()
	}

	allocResult, err := s.allocator.Allocate(series)
	if err != nil {
		if errors.Is(err, allocation.ErrNoAllocatableAssets) {
			log.Warn().Msg("No allocatable assets, finishing without trades")
			return nil
		}
		return fmt.Errorf("allocating capital: %w", err)
	}
	report.Weights = allocResult.Weights
	report.Volatilities = allocResult.Volatilities
	report.AllocExcluded = allocResult.Excluded

	report.Plan, err = s.planner.BuildPlan(allocResult.Weights, s.led.Cash, referencePrices(series))
	if err != nil {
		if errors.Is(err, planning.ErrInvalidCapital) {
			log.Warn().Str("cash", s.led.Cash.String()).Msg("No investable cash, finishing without trades")
			return nil
		}
		return fmt.Errorf("building trade plan: %w", err)
	}

	report.Regime = s.assessRegime(ctx, report.AsOf, log)

	if err := s.execute(report, log); err != nil {
		return err
	}

	// Supplementary report data. Failures here are informational only.
	report.Flows = s.fetchFlows(ctx, report.Selected, from, report.AsOf, log)
	report.Macro = s.fetchMacro(ctx, log)
	return nil
}

// execute applies the plan's orders one at a time. The first transition
// refusal or persistence failure halts the remainder; abandoned orders are
// counted, never retried.
func (s *Service) execute(report *Report, log zerolog.Logger) error {
	for i, order := range report.Plan.Orders {
		if order.Side == domain.SideBuy && !report.Regime.AllowsBuys() {
			report.Refusals = append(report.Refusals, Refusal{Order: order, Reason: "risk-off regime"})
			s.publish(events.TradeRefused, map[string]string{
				"cycle_id": report.CycleID,
				"ticker":   order.Ticker,
				"reason":   "risk-off regime",
			})
			continue
		}

		result, err := s.executor.Execute(order, s.led)
		if err != nil {
			if isTransitionRefusal(err) {
				report.Refusals = append(report.Refusals, Refusal{Order: order, Reason: err.Error()})
				report.Abandoned = len(report.Plan.Orders) - i - 1
				s.publish(events.TradeRefused, map[string]string{
					"cycle_id": report.CycleID,
					"ticker":   order.Ticker,
					"reason":   err.Error(),
				})
				log.Warn().Str("ticker", order.Ticker).Err(err).
					Int("abandoned", report.Abandoned).
					Msg("Order refused, abandoning remainder of plan")
				return nil
			}
			// Persistence failure: ledger state on disk is of unknown
			// freshness, so the cycle is over.
			report.Abandoned = len(report.Plan.Orders) - i - 1
			return fmt.Errorf("persisting ledger after %s %s: %w", order.Side, order.Ticker, err)
		}

		report.Executions = append(report.Executions, *result)
		s.publish(events.TradeExecuted, result)
		if s.trades != nil {
			if _, err := s.trades.Record(report.CycleID, result); err != nil {
				log.Error().Err(err).Str("ticker", order.Ticker).Msg("Failed to record trade in audit log")
			}
		}
	}
	if len(report.Executions) > 0 {
		s.publish(events.PortfolioChanged, map[string]string{"cycle_id": report.CycleID})
	}
	return nil
}

func (s *Service) fetchFundamentals(ctx context.Context, tickers []string, asOf string, log zerolog.Logger) []domain.FundamentalRecord {
	var mu sync.Mutex
	records := make([]domain.FundamentalRecord, 0, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, ticker := range tickers {
		g.Go(func() error {
			rec, err := s.provider.Fundamentals(gctx, ticker, asOf)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					log.Warn().Str("ticker", ticker).Err(err).Msg("Fundamentals fetch failed, excluding ticker")
				}
				return nil
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are absorbed

	sort.Slice(records, func(i, j int) bool { return records[i].Ticker < records[j].Ticker })
	return records
}

func (s *Service) fetchSeries(ctx context.Context, tickers []string, from, to string, log zerolog.Logger) map[string]domain.PriceSeries {
	var mu sync.Mutex
	series := make(map[string]domain.PriceSeries, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, ticker := range tickers {
		g.Go(func() error {
			ps, err := s.provider.OHLCV(gctx, ticker, from, to)
			if err != nil {
				log.Warn().Str("ticker", ticker).Err(err).Msg("Price fetch failed, excluding ticker")
				return nil
			}
			mu.Lock()
			series[ticker] = ps
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return series
}

func (s *Service) fetchFlows(ctx context.Context, tickers []string, from, to string, log zerolog.Logger) []domain.FlowSummary {
	flows := make([]domain.FlowSummary, 0, len(tickers))
	for _, ticker := range tickers {
		flow, err := s.provider.InstitutionalFlow(ctx, ticker, from, to)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Warn().Str("ticker", ticker).Err(err).Msg("Flow fetch failed")
			}
			continue
		}
		flows = append(flows, flow)
	}
	return flows
}

func (s *Service) fetchMacro(ctx context.Context, log zerolog.Logger) []bok.Indicator {
	if s.macro == nil {
		return nil
	}
	var out []bok.Indicator
	if rate, err := s.macro.BaseRate(ctx); err != nil {
		log.Warn().Err(err).Msg("Base rate fetch failed")
	} else {
		out = append(out, *rate)
	}
	if cpi, err := s.macro.CPI(ctx); err != nil {
		log.Warn().Err(err).Msg("CPI fetch failed")
	} else {
		out = append(out, *cpi)
	}
	return out
}

func (s *Service) assessRegime(ctx context.Context, asOf string, log zerolog.Logger) market_regime.Assessment {
	if s.regime == nil {
		return market_regime.Assessment{Regime: market_regime.RegimeUnknown}
	}
	assessment, err := s.regime.Assess(ctx, asOf)
	if err != nil {
		log.Warn().Err(err).Msg("Regime assessment failed, treating as unknown")
		return market_regime.Assessment{Regime: market_regime.RegimeUnknown}
	}
	return assessment
}

func (s *Service) publish(t events.EventType, data any) {
	if s.bus != nil {
		s.bus.Publish(&events.Event{Type: t, Data: data})
	}
}

func isTransitionRefusal(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientCash) ||
		errors.Is(err, ledger.ErrUnknownPosition) ||
		errors.Is(err, ledger.ErrInsufficientShares) ||
		errors.Is(err, ledger.ErrInvalidOrder)
}

func selectTop(rankings []valuation.RankedValuation, n int) []string {
	if n > len(rankings) {
		n = len(rankings)
	}
	selected := make([]string, 0, n)
	for _, r := range rankings[:n] {
		selected = append(selected, r.Ticker)
	}
	return selected
}

func referencePrices(series map[string]domain.PriceSeries) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(series))
	for ticker, ps := range series {
		if last, ok := ps.Last(); ok && last.Close > 0 {
			prices[ticker] = decimal.NewFromFloat(last.Close)
		}
	}
	return prices
}

func parseDate(date string) time.Time {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Now()
	}
	return t
}

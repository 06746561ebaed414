package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store persists the ledger as a single JSON document:
//
//	{"cash": 1000000, "stocks": [{"ticker": "005930", "quantity": 10, "purchase_price": 71000}]}
//
// Every save replaces the whole document. The write goes to a temp file in
// the same directory followed by an atomic rename, so a crash between
// validation and write can never corrupt the previously persisted ledger.
type Store struct {
	path string
	log  zerolog.Logger
}

// NewStore creates a ledger store at the given file path.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "ledger_store").Logger(),
	}
}

// ledgerDoc is the on-disk document. Money fields use json.Number so the
// file carries plain JSON numbers rather than quoted decimal strings.
type ledgerDoc struct {
	Cash   json.Number `json:"cash"`
	Stocks []stockDoc  `json:"stocks"`
}

type stockDoc struct {
	Ticker        string      `json:"ticker"`
	Quantity      int64       `json:"quantity"`
	PurchasePrice json.Number `json:"purchase_price"`
}

// Load reads the persisted ledger. Returns os.ErrNotExist (wrapped) when no
// document has been created yet.
func (s *Store) Load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}

	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", s.path, err)
	}

	cash, err := decimal.NewFromString(doc.Cash.String())
	if err != nil {
		return nil, fmt.Errorf("parse ledger cash %q: %w", doc.Cash, err)
	}

	led := &Ledger{Cash: cash, Positions: make(map[string]Position, len(doc.Stocks))}
	for _, st := range doc.Stocks {
		price, err := decimal.NewFromString(st.PurchasePrice.String())
		if err != nil {
			return nil, fmt.Errorf("parse purchase price for %s: %w", st.Ticker, err)
		}
		if st.Quantity <= 0 {
			// Zero-quantity residue must never survive a load.
			s.log.Warn().Str("ticker", st.Ticker).Int64("quantity", st.Quantity).Msg("Dropping non-positive position from ledger document")
			continue
		}
		led.Positions[st.Ticker] = Position{Quantity: st.Quantity, AverageCost: price}
	}
	return led, nil
}

// LoadOrCreate loads the ledger, creating and persisting a fresh one with
// the given initial capital when no document exists yet.
func (s *Store) LoadOrCreate(initialCash decimal.Decimal) (*Ledger, error) {
	led, err := s.Load()
	if err == nil {
		return led, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	led = New(initialCash)
	if err := s.Save(led); err != nil {
		return nil, err
	}
	s.log.Info().Str("path", s.path).Str("cash", initialCash.String()).Msg("Created new ledger")
	return led, nil
}

// Save atomically replaces the ledger document.
func (s *Store) Save(l *Ledger) error {
	doc := ledgerDoc{
		Cash:   json.Number(l.Cash.String()),
		Stocks: make([]stockDoc, 0, len(l.Positions)),
	}

	tickers := make([]string, 0, len(l.Positions))
	for t := range l.Positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		pos := l.Positions[ticker]
		doc.Stocks = append(doc.Stocks, stockDoc{
			Ticker:        ticker,
			Quantity:      pos.Quantity,
			PurchasePrice: json.Number(pos.AverageCost.String()),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp ledger file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

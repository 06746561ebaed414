// Package bok provides a client for the Bank of Korea ECOS open API.
package bok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Statistic codes for the indicators the engine reports on.
const (
	statBaseRate = "028Y001" // BOK base rate, monthly
	statCPI      = "901Y009" // consumer price index, monthly
)

// Indicator is a single macro data point from ECOS.
type Indicator struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Period string  `json:"period"` // YYYYMM
}

// Client fetches macro indicators from the ECOS StatisticSearch endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates an ECOS client. The API key is issued per account
// at ecos.bok.or.kr and is required for every request.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://ecos.bok.or.kr/api",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "bok-ecos").Logger(),
	}
}

// BaseRate returns the most recent monthly BOK base rate.
func (c *Client) BaseRate(ctx context.Context) (*Indicator, error) {
	return c.latest(ctx, "base_rate", statBaseRate, "0101000")
}

// CPI returns the most recent monthly consumer price index reading.
func (c *Client) CPI(ctx context.Context) (*Indicator, error) {
	return c.latest(ctx, "cpi", statCPI, "0")
}

// latest queries StatisticSearch for the trailing year of monthly rows
// and returns the newest one.
func (c *Client) latest(ctx context.Context, name, statCode, itemCode string) (*Indicator, error) {
	now := time.Now()
	start := now.AddDate(-1, 0, 0).Format("200601")
	end := now.Format("200601")

	url := fmt.Sprintf("%s/StatisticSearch/%s/json/kr/1/12/%s/MM/%s/%s/%s",
		c.baseURL, c.apiKey, statCode, start, end, itemCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building ECOS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ECOS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ECOS returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ECOS response: %w", err)
	}

	// ECOS reports errors as a RESULT object instead of an HTTP status.
	if res := gjson.GetBytes(body, "RESULT.CODE"); res.Exists() {
		return nil, fmt.Errorf("ECOS error %s: %s",
			res.String(), gjson.GetBytes(body, "RESULT.MESSAGE").String())
	}

	rows := gjson.GetBytes(body, "StatisticSearch.row")
	if !rows.Exists() || len(rows.Array()) == 0 {
		return nil, fmt.Errorf("ECOS returned no rows for %s", statCode)
	}

	last := rows.Array()[len(rows.Array())-1]
	value, err := strconv.ParseFloat(last.Get("DATA_VALUE").String(), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing ECOS value %q: %w", last.Get("DATA_VALUE").String(), err)
	}

	ind := &Indicator{
		Name:   name,
		Value:  value,
		Period: last.Get("TIME").String(),
	}
	c.log.Debug().Str("indicator", ind.Name).Float64("value", ind.Value).
		Str("period", ind.Period).Msg("Fetched indicator")
	return ind, nil
}

// Package marketdata talks to the market data provider: universe snapshots,
// trailing price history, the volatility proxy and portfolio state over HTTP,
// plus an optional websocket price stream. Fetched closes are written through
// to the local history cache so scoring survives provider outages.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
	"github.com/dstav/lodestar/internal/modules/history"
)

const requestTimeout = 30 * time.Second

// Client is the HTTP market data client
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *history.Store // optional read-through cache
	log        zerolog.Logger
}

// NewClient creates a new market data client. The cache may be nil.
func NewClient(baseURL string, cache *history.Store, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache,
		log:        log.With().Str("service", "marketdata_client").Logger(),
	}
}

type snapshotRow struct {
	Symbol       string   `json:"symbol"`
	Price        float64  `json:"price"`
	DollarVolume float64  `json:"dollar_volume"`
	Sector       string   `json:"sector,omitempty"`
	MarketCap    *float64 `json:"market_cap,omitempty"`
}

// Snapshot fetches one consistent universe snapshot
func (c *Client) Snapshot(asOf time.Time) ([]domain.SecuritySnapshot, error) {
	var rows []snapshotRow
	endpoint := fmt.Sprintf("/v1/snapshot?as_of=%s", url.QueryEscape(asOf.UTC().Format(time.RFC3339)))
	if err := c.getJSON(endpoint, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	snapshot := make([]domain.SecuritySnapshot, len(rows))
	closes := make([]history.DailyClose, 0, len(rows))
	for i, row := range rows {
		snapshot[i] = domain.SecuritySnapshot{
			Symbol:       row.Symbol,
			Price:        row.Price,
			DollarVolume: row.DollarVolume,
			Sector:       row.Sector,
			MarketCap:    row.MarketCap,
		}
		if row.Price > 0 {
			closes = append(closes, history.DailyClose{Symbol: row.Symbol, Date: asOf, Close: row.Price})
		}
	}

	if c.cache != nil {
		if err := c.cache.UpsertCloses(closes); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache snapshot closes")
		}
	}

	c.log.Debug().Int("securities", len(snapshot)).Msg("Fetched universe snapshot")
	return snapshot, nil
}

type historyResponse struct {
	Closes []float64 `json:"closes"`
}

// History fetches trailing daily closes, oldest first. On provider failure
// the local cache serves what it has.
func (c *Client) History(symbol string, asOf time.Time, lookback int) ([]float64, error) {
	var resp historyResponse
	endpoint := fmt.Sprintf("/v1/history/%s?as_of=%s&lookback=%d",
		url.PathEscape(symbol), url.QueryEscape(asOf.UTC().Format(time.RFC3339)), lookback)
	err := c.getJSON(endpoint, &resp)
	if err == nil {
		return resp.Closes, nil
	}

	if c.cache != nil {
		cached, cacheErr := c.cache.History(symbol, asOf, lookback)
		if cacheErr == nil && len(cached) > 0 {
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Int("cached", len(cached)).
				Msg("Provider history failed, serving cache")
			return cached, nil
		}
	}
	return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
}

type vixResponse struct {
	Value *float64 `json:"value"`
}

// VolatilityProxy fetches the current volatility proxy reading.
// A nil value means the provider has no reading.
func (c *Client) VolatilityProxy(asOf time.Time) (*float64, error) {
	var resp vixResponse
	endpoint := fmt.Sprintf("/v1/vix?as_of=%s", url.QueryEscape(asOf.UTC().Format(time.RFC3339)))
	if err := c.getJSON(endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch volatility proxy: %w", err)
	}
	return resp.Value, nil
}

type portfolioResponse struct {
	TotalEquity float64 `json:"total_equity"`
	Positions   []struct {
		Symbol       string  `json:"symbol"`
		Quantity     float64 `json:"quantity"`
		AverageCost  float64 `json:"average_cost"`
		CurrentPrice float64 `json:"current_price"`
		MarketValue  float64 `json:"market_value"`
	} `json:"positions"`
}

// PortfolioState fetches current equity and open positions
func (c *Client) PortfolioState() (*domain.PortfolioState, error) {
	var resp portfolioResponse
	if err := c.getJSON("/v1/portfolio", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio state: %w", err)
	}

	state := &domain.PortfolioState{
		TotalEquity: resp.TotalEquity,
		Positions:   make([]domain.Position, len(resp.Positions)),
	}
	for i, p := range resp.Positions {
		state.Positions[i] = domain.Position{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AverageCost:  p.AverageCost,
			CurrentPrice: p.CurrentPrice,
			MarketValue:  p.MarketValue,
		}
	}
	return state, nil
}

func (c *Client) getJSON(endpoint string, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

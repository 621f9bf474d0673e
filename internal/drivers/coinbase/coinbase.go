// Package coinbase implements the spot candle adapter for Coinbase Exchange.
// API Doc: https://docs.cdp.coinbase.com/exchange/reference/exchangerestapi_getproductcandles
//
// Response format, newest first:
//
//	[
//	  [1704067500, 42250.01, 42310.55, 42280.12, 42301.77, 18.4312],
//	  [1704067200, 42211.00, 42290.00, 42230.50, 42280.12, 21.0045]
//	]
//
// Each row is [time, low, high, open, close, volume] with time in epoch
// seconds and volume in base asset.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/navid-fn/premiumradar/internal/scraper"
)

const (
	Name           = "coinbase"
	DefaultBaseURL = "https://api.exchange.coinbase.com"

	// granularity is the candle size in seconds. The endpoint returns at
	// most 300 rows per call, so one day of 5-minute candles fits.
	granularity = 300
)

// Coinbase is the spot-market adapter.
type Coinbase struct {
	baseURL string
}

// New creates the adapter. An empty baseURL selects the public endpoint.
func New(baseURL string) *Coinbase {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Coinbase{baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Coinbase) Name() string                  { return Name }
func (c *Coinbase) BaseURL() string               { return c.baseURL }
func (c *Coinbase) MarketType() models.MarketType { return models.Spot }

// Canonical maps "BTC-USD" to "BTCUSDT".
func (c *Coinbase) Canonical(market string) string {
	return scraper.NormalizeSymbol(Name, market)
}

func (c *Coinbase) BuildRequest(ctx context.Context, market string, start, end time.Time) (*http.Request, error) {
	q := url.Values{}
	q.Set("granularity", fmt.Sprint(granularity))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/products/%s/candles?%s", c.baseURL, url.PathEscape(market), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "premiumradar")
	return req, nil
}

func (c *Coinbase) Decode(body io.Reader, market string) ([]models.Candle, error) {
	var rows [][]float64
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("coinbase candles: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("coinbase candles: row %d has %d fields", i, len(row))
		}
		candles = append(candles, models.Candle{
			Market:     market,
			Timestamp:  scraper.UnixToUTC(int64(row[0])),
			Low:        row[1],
			High:       row[2],
			Open:       row[3],
			Close:      row[4],
			Volume:     row[5],
			MarketType: models.Spot,
		})
	}
	return candles, nil
}

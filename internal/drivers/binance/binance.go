// Package binance implements the USDⓈ-M perpetual candle adapter for Binance.
// API Doc: https://developers.binance.com/docs/derivatives/usds-margined-futures/market-data/rest-api/Kline-Candlestick-Data
//
// Response format, oldest first:
//
//	[
//	  [
//	    1704067200000,      // open time
//	    "42230.50",         // open
//	    "42310.55",         // high
//	    "42211.00",         // low
//	    "42280.12",         // close
//	    "1534.112",         // volume (base)
//	    1704067499999,      // close time
//	    "64851234.5513",    // quote asset volume
//	    12034,              // number of trades
//	    "771.002",          // taker buy base volume
//	    "32591187.1183",    // taker buy quote volume
//	    "0"                 // ignore
//	  ]
//	]
package binance

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
	"github.com/shopspring/decimal"
)

const (
	Name           = "binance"
	DefaultBaseURL = "https://fapi.binance.com"

	klinesPath = "/fapi/v1/klines"
	interval   = "5m"

	// maxLimit rows per call; one day of 5-minute candles is 288.
	maxLimit = 1000
)

// Binance is the perpetual-futures adapter.
type Binance struct {
	baseURL string
}

// New creates the adapter. An empty baseURL selects the public endpoint.
func New(baseURL string) *Binance {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Binance{baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *Binance) Name() string                  { return Name }
func (b *Binance) BaseURL() string               { return b.baseURL }
func (b *Binance) MarketType() models.MarketType { return models.Perpetual }

// Canonical maps "BTC/USDT" to "BTCUSDT".
func (b *Binance) Canonical(market string) string {
	return scraper.NormalizeSymbol(Name, market)
}

// BuildRequest asks for [start, end). The endpoint's endTime is inclusive.
func (b *Binance) BuildRequest(ctx context.Context, market string, start, end time.Time) (*http.Request, error) {
	q := url.Values{}
	q.Set("symbol", b.Canonical(market))
	q.Set("interval", interval)
	q.Set("startTime", fmt.Sprint(start.UnixMilli()))
	q.Set("endTime", fmt.Sprint(end.UnixMilli()-1))
	q.Set("limit", fmt.Sprint(maxLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (b *Binance) Decode(body io.Reader, market string) ([]models.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance klines: row %d: %w", i, err)
		}
		c.Market = market
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 8 {
		return models.Candle{}, fmt.Errorf("expected at least 8 fields, got %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}

	// Prices and volumes are quoted strings.
	var values [6]float64
	for i, idx := range []int{1, 2, 3, 4, 5, 7} {
		v, err := parseDecimal(row[idx])
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", idx, err)
		}
		values[i] = v
	}

	return models.Candle{
		Timestamp:   scraper.UnixMilliToUTC(openTime),
		Open:        values[0],
		High:        values[1],
		Low:         values[2],
		Close:       values[3],
		Volume:      values[4],
		QuoteVolume: values[5],
		MarketType:  models.Perpetual,
	}, nil
}

func parseDecimal(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

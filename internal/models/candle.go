// Package models defines the domain models used across the application.
package models

import (
	"fmt"
	"time"
)

// CandleInterval is the only timeframe the pipeline ingests.
const CandleInterval = 5 * time.Minute

// MarketType tells spot candles apart from perpetual-futures candles.
type MarketType string

const (
	Spot      MarketType = "spot"
	Perpetual MarketType = "perpetual"
)

// Candle represents a single 5-minute candlestick normalized from an
// exchange-specific payload.
type Candle struct {
	// Exchange is the source name (e.g., "coinbase", "binance").
	Exchange string `json:"exchange"`

	// Market is the trading pair symbol. Fetchers store the exchange-native
	// symbol ("BTC-USD", "BTC/USDT"); the pipeline canonicalizes it
	// ("BTCUSDT") before alignment.
	Market string `json:"market"`

	// Timestamp is the candle open time in UTC.
	Timestamp time.Time `json:"timestamp"`

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	// Volume is the traded amount in base asset.
	Volume float64 `json:"volume"`

	// QuoteVolume is the traded amount in quote asset.
	// Only Binance reports it; zero for Coinbase.
	QuoteVolume float64 `json:"quote_volume"`

	MarketType MarketType `json:"market_type"`

	// FetchedAt is when the fetch that produced this value ran.
	FetchedAt time.Time `json:"fetched_at"`
}

// CandleKey is the store identity of a candle.
type CandleKey struct {
	Market     string
	Timestamp  int64
	MarketType MarketType
}

// Key returns the deduplication key of the candle.
func (c Candle) Key() CandleKey {
	return CandleKey{
		Market:     c.Market,
		Timestamp:  c.Timestamp.UnixNano(),
		MarketType: c.MarketType,
	}
}

func (c Candle) String() string {
	return fmt.Sprintf(
		"%s %s %s close: %v",
		c.Market,
		c.MarketType,
		c.Timestamp.Format(time.RFC3339),
		c.Close,
	)
}

package storage

import (
	"sort"

	"github.com/navid-fn/premiumradar/internal/models"
)

// Upsert merges incoming into existing. Candles are unique by
// (market, timestamp, market type); on a collision the incoming value wins.
// The result is sorted by (market, timestamp) with market type as the last
// tie-break, and applying the same incoming batch twice changes nothing.
// Neither argument is modified.
func Upsert(existing, incoming []models.Candle) []models.Candle {
	merged := make([]models.Candle, 0, len(existing)+len(incoming))
	index := make(map[models.CandleKey]int, len(existing)+len(incoming))

	add := func(c models.Candle) {
		key := c.Key()
		if i, ok := index[key]; ok {
			merged[i] = c
			return
		}
		index[key] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range existing {
		add(c)
	}
	for _, c := range incoming {
		add(c)
	}

	SortCandles(merged)
	return merged
}

// SortCandles orders candles by (market, timestamp, market type) in place.
func SortCandles(candles []models.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		a, b := candles[i], candles[j]
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.MarketType < b.MarketType
	})
}

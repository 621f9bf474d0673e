// Package storage keeps one candle table per exchange.
//
// The in-memory table is the source of truth during a run; a Table persists
// it between runs. Every backend applies the same identity rule as Upsert:
// one row per (market, timestamp, market type), the latest fetch wins.
package storage

import (
	"context"

	"github.com/navid-fn/premiumradar/internal/models"
)

// Table persists the candles of one exchange.
// Implementations must be safe for use by one cycle owner at a time.
type Table interface {
	// Load returns every stored candle sorted by (market, timestamp).
	// A table that was never written is empty, not an error.
	Load(ctx context.Context) ([]models.Candle, error)

	// Save merges candles into the stored table. Stored rows sharing a key
	// with an incoming candle are replaced.
	Save(ctx context.Context, candles []models.Candle) error

	// Close releases backend resources.
	Close() error
}

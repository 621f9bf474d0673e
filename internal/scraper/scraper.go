// Package scraper pulls 5-minute candles from exchange REST endpoints.
//
// Every exchange is described by the same capability set (Exchange): how to
// build one page request, how to decode the page into candles and how to
// canonicalize its market symbols. A single Fetcher holds the shared
// rate-limit, retry and pacing logic for all of them.
package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
)

// Exchange is the per-exchange adapter consumed by Fetcher.
type Exchange interface {
	// Name is the exchange identifier stored on every candle.
	Name() string

	// BaseURL is the root of the candle REST endpoint.
	BaseURL() string

	// MarketType is the kind of instrument this adapter serves.
	MarketType() models.MarketType

	// BuildRequest returns the request for candles of market in [start, end).
	BuildRequest(ctx context.Context, market string, start, end time.Time) (*http.Request, error)

	// Decode maps one response body into candles. Field order and units are
	// exchange specific; the result carries Market and MarketType.
	Decode(body io.Reader, market string) ([]models.Candle, error)

	// Canonical turns an exchange-native market symbol into the shared form
	// used to join exchanges.
	Canonical(market string) string
}

// CandleFetcher fetches candles of one market over a time range.
type CandleFetcher interface {
	Fetch(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error)
}

// Limiter gates outgoing requests.
type Limiter interface {
	Wait(ctx context.Context) error
}

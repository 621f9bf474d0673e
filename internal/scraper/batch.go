package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

// BatchConfig controls how many markets are fetched together.
type BatchConfig struct {
	Size  int
	Delay time.Duration
}

// DefaultBatchConfig returns batches of 5 markets, 100ms apart.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{Size: 5, Delay: 100 * time.Millisecond}
}

// FetchResult is the outcome of one market's fetch inside a batch.
type FetchResult struct {
	Market  string
	Candles []models.Candle
	Err     error
}

// FetchBatch fetches markets in consecutive batches. Markets of one batch
// run concurrently and are joined before the next batch starts. A failing
// or panicking market only marks its own result. Results follow the order
// of markets.
func FetchBatch(
	ctx context.Context,
	fetcher CandleFetcher,
	markets []string,
	start, end time.Time,
	cfg BatchConfig,
	logger logrus.FieldLogger,
) []FetchResult {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}

	results := make([]FetchResult, 0, len(markets))
	batches := ChunkSlice(markets, cfg.Size)

	for i, batch := range batches {
		batchResults := make([]FetchResult, len(batch))

		var wg sync.WaitGroup
		for j, market := range batch {
			wg.Add(1)
			go func(j int, market string) {
				defer wg.Done()
				batchResults[j] = fetchOne(ctx, fetcher, market, start, end)
			}(j, market)
		}
		wg.Wait()

		results = append(results, batchResults...)
		logger.Debugf("Processed batch %d/%d", i+1, len(batches))

		if i == len(batches)-1 {
			break
		}
		if err := sleepContext(ctx, cfg.Delay); err != nil {
			for _, market := range markets[len(results):] {
				results = append(results, FetchResult{Market: market, Candles: []models.Candle{}, Err: err})
			}
			break
		}
	}

	return results
}

func fetchOne(ctx context.Context, fetcher CandleFetcher, market string, start, end time.Time) (res FetchResult) {
	res.Market = market
	defer func() {
		if r := recover(); r != nil {
			res.Candles = []models.Candle{}
			res.Err = fmt.Errorf("fetch %s panicked: %v", market, r)
		}
	}()

	candles, err := fetcher.Fetch(ctx, market, start, end)
	if candles == nil {
		candles = []models.Candle{}
	}
	res.Candles = candles
	res.Err = err
	return res
}

// CollectCandles concatenates the candles of every result, including the
// partial output of failed ones, and returns the failed results separately.
func CollectCandles(results []FetchResult) ([]models.Candle, []FetchResult) {
	var total int
	for _, r := range results {
		total += len(r.Candles)
	}

	candles := make([]models.Candle, 0, total)
	var failed []FetchResult
	for _, r := range results {
		candles = append(candles, r.Candles...)
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return candles, failed
}

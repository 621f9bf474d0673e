package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubExchange serves [unixSeconds, close] rows from a test server.
type stubExchange struct {
	baseURL string
}

func (s *stubExchange) Name() string                  { return "stub" }
func (s *stubExchange) BaseURL() string               { return s.baseURL }
func (s *stubExchange) MarketType() models.MarketType { return models.Spot }
func (s *stubExchange) Canonical(market string) string {
	return NormalizeSymbol("coinbase", market)
}

func (s *stubExchange) BuildRequest(ctx context.Context, market string, start, end time.Time) (*http.Request, error) {
	url := fmt.Sprintf("%s/candles?market=%s&start=%d&end=%d", s.baseURL, market, start.Unix(), end.Unix())
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

func (s *stubExchange) Decode(body io.Reader, market string) ([]models.Candle, error) {
	var rows [][2]float64
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, err
	}
	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, models.Candle{
			Market:     market,
			Timestamp:  UnixToUTC(int64(r[0])),
			Close:      r[1],
			MarketType: models.Spot,
		})
	}
	return candles, nil
}

// candleServer answers every request with one candle per 5 minutes of the
// requested range, newest first, including the end bound.
func candleServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)

		var rows [][2]float64
		for ts := end; ts >= start; ts -= 300 {
			rows = append(rows, [2]float64{float64(ts), 100})
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastHTTPConfig() HTTPConfig {
	return HTTPConfig{
		SubWindow:      24 * time.Hour,
		RequestTimeout: time.Second,
		Retry:          RetryConfig{MaxAttempts: 3, BackoffBase: 1.5, BackoffUnit: time.Millisecond},
	}
}

func TestSlidingWindowLimiterBudget(t *testing.T) {
	limiter := NewSlidingWindowLimiter(2, time.Second, quietLogger())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, ok := limiter.reserve(); !ok {
			t.Fatalf("Expected request %d to be admitted", i+1)
		}
	}

	wait, ok := limiter.reserve()
	if ok {
		t.Fatal("Expected third request in the same window to be rejected")
	}
	if wait != time.Second {
		t.Errorf("Expected wait of 1s, got %v", wait)
	}

	// A timestamp exactly one window old no longer counts.
	now = now.Add(time.Second)
	if _, ok := limiter.reserve(); !ok {
		t.Error("Expected request to be admitted once the window has passed")
	}
	if got := limiter.InFlight(); got != 1 {
		t.Errorf("Expected 1 request in flight, got %d", got)
	}
}

func TestSlidingWindowLimiterWait(t *testing.T) {
	limiter := NewSlidingWindowLimiter(2, 50*time.Millisecond, quietLogger())
	ctx := context.Background()

	began := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	}
	if elapsed := time.Since(began); elapsed < 50*time.Millisecond {
		t.Errorf("Expected third request to wait for the window, took %v", elapsed)
	}
}

func TestSlidingWindowLimiterConcurrent(t *testing.T) {
	limiter := NewSlidingWindowLimiter(3, time.Hour, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Wait(ctx) == nil {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 3 {
		t.Errorf("Expected 3 admitted requests within one window, got %d", admitted)
	}
}

func TestRetryConfigDelay(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BackoffBase: 2, BackoffUnit: time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := cfg.Delay(tt.attempt); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRetryAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BackoffBase: 1.5, BackoffUnit: time.Millisecond}
	boom := errors.New("boom")

	t.Run("Gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := cfg.Do(context.Background(), func(ctx context.Context, attempt int) error {
			if attempt != calls {
				t.Errorf("Expected attempt index %d, got %d", calls, attempt)
			}
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected last error to be returned, got %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 attempts, got %d", calls)
		}
	})

	t.Run("Stops on success", func(t *testing.T) {
		calls := 0
		err := cfg.Do(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			if calls < 2 {
				return boom
			}
			return nil
		})
		if err != nil {
			t.Errorf("Expected success, got %v", err)
		}
		if calls != 2 {
			t.Errorf("Expected 2 attempts, got %d", calls)
		}
	})
}

func TestFetcherSplitsRangeIntoSubWindows(t *testing.T) {
	var hits int32
	srv := candleServer(t, &hits)

	fetcher := NewFetcher(&stubExchange{baseURL: srv.URL}, NewSlidingWindowLimiter(10, time.Second, quietLogger()),
		fastHTTPConfig(), quietLogger())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	candles, err := fetcher.Fetch(context.Background(), "BTC-USD", start, end)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if hits != 2 {
		t.Errorf("Expected 2 sub-window requests, got %d", hits)
	}

	// 48h of 5-minute candles, end bound excluded.
	if len(candles) != 576 {
		t.Fatalf("Expected 576 candles, got %d", len(candles))
	}

	for i, c := range candles {
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			t.Fatalf("Candle %d at %v is outside the range", i, c.Timestamp)
		}
		if i > 0 && !candles[i-1].Timestamp.Before(c.Timestamp) {
			t.Fatalf("Candles not ascending at %d", i)
		}
		if c.Exchange != "stub" {
			t.Fatalf("Expected exchange to be stamped, got %q", c.Exchange)
		}
		if c.FetchedAt.IsZero() {
			t.Fatal("Expected FetchedAt to be stamped")
		}
	}
}

func TestFetcherAbandonsFailingSubWindow(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := NewFetcher(&stubExchange{baseURL: srv.URL}, NewSlidingWindowLimiter(10, time.Second, quietLogger()),
		fastHTTPConfig(), quietLogger())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles, err := fetcher.Fetch(context.Background(), "BTC-USD", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Expected abandoned sub-window to be skipped, got error %v", err)
	}
	if candles == nil || len(candles) != 0 {
		t.Errorf("Expected empty non-nil result, got %v", candles)
	}
	if hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
}

func TestFetcherInvalidRange(t *testing.T) {
	fetcher := NewFetcher(&stubExchange{}, NewSlidingWindowLimiter(1, time.Second, quietLogger()),
		fastHTTPConfig(), quietLogger())

	now := time.Now()
	_, err := fetcher.Fetch(context.Background(), "BTC-USD", now, now)

	var rangeErr *models.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Errorf("Expected InvalidRangeError, got %v", err)
	}
}

type fakeFetcher struct {
	fail  map[string]bool
	panic map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error) {
	if f.panic[market] {
		panic("decoder exploded")
	}
	if f.fail[market] {
		return nil, errors.New("upstream down")
	}
	return []models.Candle{{Market: market, Timestamp: start, Close: 1}}, nil
}

func TestFetchBatchPartialFailure(t *testing.T) {
	markets := []string{"BTC-USD", "ETH-USD", "SOL-USD", "XRP-USD", "ADA-USD", "DOT-USD", "LINK-USD"}
	fetcher := &fakeFetcher{
		fail:  map[string]bool{"ETH-USD": true},
		panic: map[string]bool{"DOT-USD": true},
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	results := FetchBatch(context.Background(), fetcher, markets, start, start.Add(time.Hour),
		BatchConfig{Size: 3, Delay: time.Millisecond}, quietLogger())

	if len(results) != len(markets) {
		t.Fatalf("Expected %d results, got %d", len(markets), len(results))
	}
	for i, r := range results {
		if r.Market != markets[i] {
			t.Errorf("Expected result %d for %s, got %s", i, markets[i], r.Market)
		}
	}

	candles, failed := CollectCandles(results)
	if len(candles) != 5 {
		t.Errorf("Expected 5 candles from healthy markets, got %d", len(candles))
	}
	if len(failed) != 2 {
		t.Fatalf("Expected 2 failed markets, got %d", len(failed))
	}
	if failed[0].Market != "ETH-USD" || failed[1].Market != "DOT-USD" {
		t.Errorf("Unexpected failed markets: %s, %s", failed[0].Market, failed[1].Market)
	}
}

func TestFetchBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	markets := []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	results := FetchBatch(ctx, &fakeFetcher{}, markets, time.Now(), time.Now().Add(time.Hour),
		BatchConfig{Size: 1, Delay: time.Second}, quietLogger())

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, r := range results[1:] {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("Expected %s to be marked cancelled, got %v", r.Market, r.Err)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		exchange string
		symbol   string
		expected string
	}{
		{"coinbase", "BTC-USD", "BTCUSDT"},
		{"coinbase", "eth-usd", "ETHUSDT"},
		{"coinbase", "SOL-USDC", "SOLUSDC"},
		{"binance", "BTC/USDT", "BTCUSDT"},
		{"binance", "BTCUSDT", "BTCUSDT"},
		{"unknown", "DOGE_USDT", "DOGEUSDT"},
	}

	for _, tt := range tests {
		t.Run(tt.exchange+" "+tt.symbol, func(t *testing.T) {
			if got := NormalizeSymbol(tt.exchange, tt.symbol); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestChunkSlice(t *testing.T) {
	markets := []string{"BTC", "ETH", "XRP", "ADA", "DOT", "LINK", "UNI"}

	tests := []struct {
		name      string
		chunkSize int
		expected  int
	}{
		{"Chunk by 2", 2, 4},
		{"Chunk by 5", 5, 2},
		{"Chunk by 10", 10, 1},
		{"Chunk by 1", 1, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkSlice(markets, tt.chunkSize)
			if len(chunks) != tt.expected {
				t.Errorf("Expected %d chunks, got %d", tt.expected, len(chunks))
			}

			total := 0
			for _, chunk := range chunks {
				total += len(chunk)
			}
			if total != len(markets) {
				t.Errorf("Expected %d total markets, got %d", len(markets), total)
			}
		})
	}
}

package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/navid-fn/premiumradar/internal/scraper"
	"github.com/navid-fn/premiumradar/internal/storage"
	"github.com/sirupsen/logrus"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// gridFetcher returns one candle per candle interval in [start, end).
type gridFetcher struct {
	close      float64
	marketType models.MarketType
	fail       map[string]bool

	mu    sync.Mutex
	calls int
}

func (f *gridFetcher) Fetch(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail[market] {
		return []models.Candle{}, errors.New("upstream down")
	}

	var out []models.Candle
	for ts := start; ts.Before(end); ts = ts.Add(models.CandleInterval) {
		out = append(out, models.Candle{
			Market:      market,
			Timestamp:   ts,
			Close:       f.close,
			Volume:      1,
			QuoteVolume: f.close,
			MarketType:  f.marketType,
		})
	}
	return out, nil
}

type memTable struct {
	rows  []models.Candle
	saves int
	err   error
}

func (m *memTable) Load(ctx context.Context) ([]models.Candle, error) { return m.rows, nil }

func (m *memTable) Save(ctx context.Context, candles []models.Candle) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.rows = storage.Upsert(m.rows, candles)
	return nil
}

func (m *memTable) Close() error { return nil }

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]models.Record
	err     error
}

func (c *capturePublisher) Name() string { return "capture" }

func (c *capturePublisher) Publish(ctx context.Context, records []models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, records)
	return c.err
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

type memHistory struct {
	records []models.Record
}

func (h *memHistory) Append(ctx context.Context, records []models.Record) error {
	h.records = append(h.records, records...)
	return nil
}

func testSources() (*Source, *Source, *memTable, *memTable) {
	tableA, tableB := &memTable{}, &memTable{}
	a := &Source{
		Name:      "coinbase",
		Fetcher:   &gridFetcher{close: 100, marketType: models.Spot, fail: map[string]bool{"ETH-USD": true}},
		Canonical: func(m string) string { return scraper.NormalizeSymbol("coinbase", m) },
		Markets:   []string{"BTC-USD", "ETH-USD", "SOL-USD"},
		Table:     tableA,
	}
	b := &Source{
		Name:      "binance",
		Fetcher:   &gridFetcher{close: 99, marketType: models.Perpetual},
		Canonical: func(m string) string { return scraper.NormalizeSymbol("binance", m) },
		Markets:   []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Table:     tableB,
	}
	return a, b, tableA, tableB
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Batch = scraper.BatchConfig{Size: 2, Delay: time.Millisecond}
	cfg.RefreshInterval = 10 * time.Millisecond
	cfg.ErrorCooldown = 10 * time.Millisecond
	return cfg
}

func TestCycle(t *testing.T) {
	a, b, tableA, tableB := testSources()
	pub := &capturePublisher{}
	history := &memHistory{}
	p := New(testConfig(), a, b, pub, history, quietLogger())

	records, err := p.Cycle(context.Background(), t0, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Cycle returned error: %v", err)
	}

	// ETH-USD fails on exchange A, so only BTC and SOL are joined.
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Coin != "BTCUSDT" || records[1].Coin != "SOLUSDT" {
		t.Errorf("Unexpected coins %s, %s", records[0].Coin, records[1].Coin)
	}
	if records[0].PremiumPct != 1.01 {
		t.Errorf("Expected premium 1.01, got %v", records[0].PremiumPct)
	}
	if records[0].DateTime != "2024-01-01 01:55" {
		t.Errorf("Expected last candle time, got %s", records[0].DateTime)
	}

	memA, memB := p.Tables()
	if len(memA) != 48 {
		t.Errorf("Expected 48 candles for exchange A, got %d", len(memA))
	}
	if len(memB) != 72 {
		t.Errorf("Expected 72 candles for exchange B, got %d", len(memB))
	}
	if tableA.saves != 1 || tableB.saves != 1 {
		t.Errorf("Expected one save per table, got %d and %d", tableA.saves, tableB.saves)
	}
	if pub.count() != 1 {
		t.Errorf("Expected one publish, got %d", pub.count())
	}
	if len(history.records) != 2 {
		t.Errorf("Expected history to receive 2 records, got %d", len(history.records))
	}
}

func TestCycleRefetchIsIdempotent(t *testing.T) {
	a, b, tableA, _ := testSources()
	p := New(testConfig(), a, b, &capturePublisher{}, nil, quietLogger())
	ctx := context.Background()

	if _, err := p.Cycle(ctx, t0, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("Cycle returned error: %v", err)
	}
	if _, err := p.Cycle(ctx, t0.Add(time.Hour), t0.Add(3*time.Hour)); err != nil {
		t.Fatalf("Cycle returned error: %v", err)
	}

	memA, _ := p.Tables()
	if len(memA) != 72 {
		t.Errorf("Expected 72 unique candles after overlapping refetch, got %d", len(memA))
	}
	if len(tableA.rows) != len(memA) {
		t.Errorf("Expected persisted table to match memory, got %d vs %d", len(tableA.rows), len(memA))
	}
}

func TestCyclePublishFailure(t *testing.T) {
	a, b, _, _ := testSources()
	pub := &capturePublisher{err: errors.New("dashboard down")}
	p := New(testConfig(), a, b, pub, nil, quietLogger())

	_, err := p.Cycle(context.Background(), t0, t0.Add(time.Hour))

	var cycleErr *models.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected CycleError, got %v", err)
	}
	if cycleErr.Stage != "publish" {
		t.Errorf("Expected publish stage, got %s", cycleErr.Stage)
	}
}

func TestCycleStoreFailure(t *testing.T) {
	a, b, tableA, _ := testSources()
	tableA.err = errors.New("disk full")
	p := New(testConfig(), a, b, &capturePublisher{}, nil, quietLogger())

	_, err := p.Cycle(context.Background(), t0, t0.Add(time.Hour))

	var cycleErr *models.CycleError
	if !errors.As(err, &cycleErr) || cycleErr.Stage != "store coinbase" {
		t.Fatalf("Expected store CycleError, got %v", err)
	}
	if memA, _ := p.Tables(); len(memA) != 0 {
		t.Errorf("Expected memory table untouched after failed save, got %d", len(memA))
	}
}

func TestRunKeepsGoingAfterFailedCycles(t *testing.T) {
	a, b, _, _ := testSources()
	pub := &capturePublisher{err: errors.New("dashboard down")}
	p := New(testConfig(), a, b, pub, nil, quietLogger())
	p.now = func() time.Time { return t0.Add(24 * time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for pub.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected repeated cycles, got %d", pub.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestLookbackFloor(t *testing.T) {
	tests := []struct {
		name     string
		lookback time.Duration
		expected time.Duration
	}{
		{"Zero lookback", 0, 10 * time.Minute},
		{"Below floor", time.Minute, 10 * time.Minute},
		{"Default", time.Hour, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{RefreshLookback: tt.lookback}
			if got := cfg.lookback(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// Package pipeline runs the fetch, store, align, compute and publish cycle.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/navid-fn/premiumradar/internal/aligner"
	"github.com/navid-fn/premiumradar/internal/indicator"
	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/navid-fn/premiumradar/internal/publisher"
	"github.com/navid-fn/premiumradar/internal/scraper"
	"github.com/navid-fn/premiumradar/internal/storage"
	"github.com/sirupsen/logrus"
)

// Config holds the loop timing.
type Config struct {
	BackfillDays    int
	RefreshInterval time.Duration

	// RefreshLookback is the trailing range re-fetched by every refresh.
	// It is raised to two candle intervals if set lower.
	RefreshLookback time.Duration

	ErrorCooldown time.Duration
	Tolerance     time.Duration
	Batch         scraper.BatchConfig
}

func DefaultConfig() Config {
	return Config{
		BackfillDays:    1,
		RefreshInterval: 300 * time.Second,
		RefreshLookback: time.Hour,
		ErrorCooldown:   60 * time.Second,
		Tolerance:       aligner.DefaultTolerance,
		Batch:           scraper.DefaultBatchConfig(),
	}
}

func (c Config) lookback() time.Duration {
	if floor := 2 * models.CandleInterval; c.RefreshLookback < floor {
		return floor
	}
	return c.RefreshLookback
}

// Source is one exchange feeding the pipeline.
type Source struct {
	Name      string
	Fetcher   scraper.CandleFetcher
	Canonical func(market string) string
	Markets   []string
	Table     storage.Table

	// Batch overrides Config.Batch for this source when Size is set.
	Batch scraper.BatchConfig
}

// NewSource wires a fetcher's exchange into a Source.
func NewSource(fetcher *scraper.Fetcher, markets []string, table storage.Table) *Source {
	ex := fetcher.Exchange()
	return &Source{
		Name:      ex.Name(),
		Fetcher:   fetcher,
		Canonical: ex.Canonical,
		Markets:   markets,
		Table:     table,
	}
}

// Pipeline owns the in-memory candle tables of both exchanges. Cycles run
// one at a time; a Pipeline must not be shared between goroutines.
type Pipeline struct {
	cfg       Config
	a, b      *Source
	engine    *indicator.Engine
	publisher publisher.Publisher
	history   storage.IndicatorHistory
	logger    logrus.FieldLogger
	now       func() time.Time

	tableA []models.Candle
	tableB []models.Candle
}

// New creates a pipeline joining source a (spot) against b (perpetual).
// history may be nil.
func New(
	cfg Config,
	a, b *Source,
	pub publisher.Publisher,
	history storage.IndicatorHistory,
	logger logrus.FieldLogger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		a:         a,
		b:         b,
		engine:    indicator.NewEngine(logger.WithField("stage", "compute")),
		publisher: pub,
		history:   history,
		logger:    logger,
		now:       time.Now,
		tableA:    []models.Candle{},
		tableB:    []models.Candle{},
	}
}

// Load reads both persisted tables into memory.
func (p *Pipeline) Load(ctx context.Context) error {
	var err error
	if p.tableA, err = p.a.Table.Load(ctx); err != nil {
		return &models.CycleError{Stage: "load " + p.a.Name, Err: err}
	}
	if p.tableB, err = p.b.Table.Load(ctx); err != nil {
		return &models.CycleError{Stage: "load " + p.b.Name, Err: err}
	}
	p.logger.WithFields(logrus.Fields{
		p.a.Name: len(p.tableA),
		p.b.Name: len(p.tableB),
	}).Info("Loaded candle tables")
	return nil
}

// Run loads the tables, backfills and then refreshes until ctx is done.
// A failed cycle is logged and retried after the cooldown; Run only
// returns an error when the tables cannot be loaded.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Load(ctx); err != nil {
		return err
	}

	end := p.now().UTC()
	start := end.AddDate(0, 0, -max(p.cfg.BackfillDays, 1))
	p.logger.WithField("from", start.Format(time.RFC3339)).Info("Starting backfill")
	wait := p.after(p.Cycle(ctx, start, end))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pipeline stopped")
			return nil
		case <-time.After(wait):
		}

		end := p.now().UTC()
		wait = p.after(p.Cycle(ctx, end.Add(-p.cfg.lookback()), end))
	}
}

// after logs the cycle outcome and returns how long to sleep.
func (p *Pipeline) after(records []models.Record, err error) time.Duration {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0
		}
		p.logger.WithError(err).Errorf("Cycle failed, retrying in %s", p.cfg.ErrorCooldown)
		return p.cfg.ErrorCooldown
	}
	p.logger.Infof("Published %d records, next refresh in %s", len(records), p.cfg.RefreshInterval)
	return p.cfg.RefreshInterval
}

// Cycle fetches [start, end) from both exchanges, stores the candles,
// recomputes every indicator from the full tables and publishes the latest
// record per market. Failures after the fetch are returned as CycleError.
func (p *Pipeline) Cycle(ctx context.Context, start, end time.Time) ([]models.Record, error) {
	var incomingA, incomingB []models.Candle
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		incomingA = p.fetch(ctx, p.a, start, end)
	}()
	go func() {
		defer wg.Done()
		incomingB = p.fetch(ctx, p.b, start, end)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &models.CycleError{Stage: "fetch", Err: err}
	}

	var err error
	if p.tableA, err = p.ingest(ctx, p.a, p.tableA, incomingA); err != nil {
		return nil, err
	}
	if p.tableB, err = p.ingest(ctx, p.b, p.tableB, incomingB); err != nil {
		return nil, err
	}

	rows, stats := aligner.AlignWithStats(canonical(p.tableA, p.a.Canonical), canonical(p.tableB, p.b.Canonical), p.cfg.Tolerance)
	p.logger.WithFields(logrus.Fields{
		"stage":   "align",
		"matched": stats.Matched,
		"gaps":    stats.Gaps,
		"markets": stats.MarketsA,
	}).Debug("Aligned tables")

	records := publisher.Latest(p.engine.Compute(rows))

	if err := p.publisher.Publish(ctx, records); err != nil {
		return nil, &models.CycleError{Stage: "publish", Err: err}
	}

	if p.history != nil {
		if err := p.history.Append(ctx, records); err != nil {
			return nil, &models.CycleError{Stage: "history", Err: err}
		}
	}

	return records, nil
}

func (p *Pipeline) fetch(ctx context.Context, src *Source, start, end time.Time) []models.Candle {
	log := p.logger.WithField("exchange", src.Name)
	batch := src.Batch
	if batch.Size == 0 {
		batch = p.cfg.Batch
	}
	results := scraper.FetchBatch(ctx, src.Fetcher, src.Markets, start, end, batch, log)

	candles, failed := scraper.CollectCandles(results)
	for _, f := range failed {
		log.WithField("market", f.Market).WithError(f.Err).Warn("Market fetch failed")
	}
	log.Infof("Fetched %d candles for %d markets", len(candles), len(src.Markets))
	return candles
}

func (p *Pipeline) ingest(ctx context.Context, src *Source, table, incoming []models.Candle) ([]models.Candle, error) {
	if len(incoming) == 0 {
		return table, nil
	}
	if err := src.Table.Save(ctx, incoming); err != nil {
		return table, &models.CycleError{Stage: "store " + src.Name, Err: err}
	}
	return storage.Upsert(table, incoming), nil
}

// Tables returns the in-memory tables of both sources.
func (p *Pipeline) Tables() (a, b []models.Candle) {
	return p.tableA, p.tableB
}

// canonical returns a copy of candles with markets in joined form.
func canonical(candles []models.Candle, fn func(string) string) []models.Candle {
	out := make([]models.Candle, len(candles))
	for i, c := range candles {
		c.Market = fn(c.Market)
		out[i] = c
	}
	return out
}

package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

// HTTPConfig holds the pacing knobs of a Fetcher.
type HTTPConfig struct {
	// SubWindow is the span requested per call; upstream APIs cap the
	// number of candles returned per request.
	SubWindow time.Duration

	// RequestDelay is always slept after each sub-window, independent of
	// any backoff.
	RequestDelay time.Duration

	RequestTimeout time.Duration
	Retry          RetryConfig
}

// DefaultHTTPConfig returns one-day sub-windows, a 100ms pause between
// them and the default retry policy.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		SubWindow:      24 * time.Hour,
		RequestDelay:   100 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Fetcher walks a time range through one exchange's candle endpoint.
type Fetcher struct {
	exchange Exchange
	client   *http.Client
	limiter  Limiter
	cfg      HTTPConfig
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewFetcher creates a fetcher for exchange. The limiter should be shared
// by every fetcher hitting the same exchange.
func NewFetcher(exchange Exchange, limiter Limiter, cfg HTTPConfig, logger logrus.FieldLogger) *Fetcher {
	if cfg.SubWindow <= 0 {
		cfg.SubWindow = 24 * time.Hour
	}
	return &Fetcher{
		exchange: exchange,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.WithField("exchange", exchange.Name()),
		now:      time.Now,
	}
}

// Exchange returns the adapter the fetcher talks through.
func (f *Fetcher) Exchange() Exchange { return f.exchange }

// Fetch returns the candles of market in [start, end), in sub-window order.
// A sub-window whose retries are exhausted is skipped, so the result may be
// shorter than the range; it is never nil. An error is returned only for an
// invalid range or when ctx ends the walk.
func (f *Fetcher) Fetch(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error) {
	if !start.Before(end) {
		return []models.Candle{}, &models.InvalidRangeError{Start: start, End: end}
	}

	log := f.logger.WithField("market", market)
	candles := make([]models.Candle, 0)

	for cur := start; cur.Before(end); {
		next := cur.Add(f.cfg.SubWindow)
		if next.After(end) {
			next = end
		}

		page, err := f.fetchWindow(ctx, market, cur, next)
		if err != nil {
			if ctx.Err() != nil {
				return candles, ctx.Err()
			}
			log.WithError(err).Warn("Sub-window abandoned after retries")
		} else {
			candles = append(candles, page...)
			log.Debugf("Fetched %d candles from %s to %s", len(page),
				cur.Format(time.RFC3339), next.Format(time.RFC3339))
		}

		cur = next
		if err := sleepContext(ctx, f.cfg.RequestDelay); err != nil {
			return candles, err
		}
	}

	return candles, nil
}

// fetchWindow requests one sub-window, retrying with backoff. The limiter
// is consulted before every attempt.
func (f *Fetcher) fetchWindow(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error) {
	var page []models.Candle
	err := f.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		var err error
		page, err = f.request(ctx, market, start, end)
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"market":  market,
				"attempt": attempt + 1,
			}).WithError(err).Debug("Candle request failed")
		}
		return err
	})
	return page, err
}

func (f *Fetcher) request(ctx context.Context, market string, start, end time.Time) ([]models.Candle, error) {
	transportErr := func(status int, err error) error {
		return &models.TransportError{
			Exchange: f.exchange.Name(),
			Market:   market,
			Start:    start,
			End:      end,
			Status:   status,
			Err:      err,
		}
	}

	req, err := f.exchange.BuildRequest(ctx, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, transportErr(resp.StatusCode, nil)
	}

	decoded, err := f.exchange.Decode(resp.Body, market)
	if err != nil {
		return nil, transportErr(0, fmt.Errorf("decode: %w", err))
	}

	// Endpoints treat the range as inclusive and some return newest first.
	fetchedAt := f.now().UTC()
	page := make([]models.Candle, 0, len(decoded))
	for _, c := range decoded {
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		c.Exchange = f.exchange.Name()
		c.FetchedAt = fetchedAt
		page = append(page, c)
	}
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].Timestamp.Before(page[j].Timestamp)
	})

	return page, nil
}

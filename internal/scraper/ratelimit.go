package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultRateWindow is the span over which the request budget applies.
const DefaultRateWindow = time.Second

// SlidingWindowLimiter allows at most budget requests within any window.
// It keeps the timestamps of recent requests; one instance is shared by
// every task talking to the same exchange.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	budget int
	window time.Duration

	now    func() time.Time
	logger logrus.FieldLogger
	notice rate.Sometimes
}

// NewSlidingWindowLimiter creates a limiter. A non-positive budget is
// treated as 1 and a non-positive window as DefaultRateWindow.
func NewSlidingWindowLimiter(budget int, window time.Duration, logger logrus.FieldLogger) *SlidingWindowLimiter {
	if budget <= 0 {
		budget = 1
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &SlidingWindowLimiter{
		stamps: make([]time.Time, 0, budget),
		budget: budget,
		window: window,
		now:    time.Now,
		logger: logger,
		notice: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Wait blocks until a request may be issued and records it.
// It returns early only when ctx is done.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}

		l.notice.Do(func() {
			l.logger.WithField("wait", wait.Round(time.Millisecond)).
				Info("Rate limit reached, waiting")
		})

		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a request if the budget allows it, otherwise it reports
// how long until the oldest request leaves the window.
func (l *SlidingWindowLimiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) < l.budget {
		l.stamps = append(l.stamps, now)
		return 0, true
	}
	return l.stamps[0].Add(l.window).Sub(now), false
}

// prune drops timestamps that are a full window old or older.
// Caller must hold l.mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.stamps) && now.Sub(l.stamps[keep]) >= l.window {
		keep++
	}
	if keep > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[keep:]...)
	}
}

// InFlight returns the number of requests recorded in the current window.
func (l *SlidingWindowLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// Package publisher hands the latest indicator record per market to
// downstream consumers.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/navid-fn/premiumradar/internal/indicator"
	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

// Publisher delivers one batch of records.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, records []models.Record) error
}

// Latest picks the most recent row of each market, drops rows with any
// undefined value and formats the rest. Among rows with the same time the
// later one in rows wins. The result is sorted by market.
func Latest(rows []models.IndicatorRow) []models.Record {
	latest := make(map[string]models.IndicatorRow)
	for _, r := range rows {
		cur, ok := latest[r.Market]
		if !ok || !r.DateTime.Before(cur.DateTime) {
			latest[r.Market] = r
		}
	}

	markets := make([]string, 0, len(latest))
	for m := range latest {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	records := make([]models.Record, 0, len(markets))
	for _, m := range markets {
		row := latest[m]
		if !indicator.Complete(row) {
			continue
		}
		records = append(records, indicator.Format(row))
	}
	return records
}

// Multi publishes to every sink in order. A failing sink does not stop the
// others; all failures are returned joined.
type Multi struct {
	sinks  []Publisher
	logger logrus.FieldLogger
}

func NewMulti(logger logrus.FieldLogger, sinks ...Publisher) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Publish(ctx context.Context, records []models.Record) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, records); err != nil {
			m.logger.WithField("sink", sink.Name()).WithError(err).Error("Publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		m.logger.WithField("sink", sink.Name()).Debugf("Published %d records", len(records))
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

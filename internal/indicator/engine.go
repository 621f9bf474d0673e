// Package indicator derives premium and volume signals from aligned rows.
//
// Every trailing average is lagged by one row: the value seen at row i is
// the metric of row i-1, and the window (t-W, t] is taken over those lagged
// values. A row's own metric therefore never enters its baseline. The first
// row of a market has no lagged value and its averages are NaN.
package indicator

import (
	"fmt"
	"math"
	"sort"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

// Engine computes indicator rows. It holds no state between calls.
type Engine struct {
	logger   logrus.FieldLogger
	horizons []models.Horizon
}

func NewEngine(logger logrus.FieldLogger) *Engine {
	return &Engine{logger: logger, horizons: models.Horizons}
}

// Compute processes each market independently in ascending time order and
// returns all rows sorted by (time, market). A market whose rows fail
// validation contributes nothing; the error is logged.
func (e *Engine) Compute(rows []models.AlignedRow) []models.IndicatorRow {
	groups := make(map[string][]models.AlignedRow)
	for _, r := range rows {
		groups[r.Market] = append(groups[r.Market], r)
	}

	out := make([]models.IndicatorRow, 0, len(rows))
	for market, group := range groups {
		computed, err := e.ComputeMarket(market, group)
		if err != nil {
			e.logger.WithField("market", market).WithError(err).Warn("Skipping market")
			continue
		}
		out = append(out, computed...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].DateTime.Before(out[j].DateTime)
		}
		return out[i].Market < out[j].Market
	})
	return out
}

// ComputeMarket computes the rows of a single market. rows need not be
// sorted; the input slice is not modified.
func (e *Engine) ComputeMarket(market string, rows []models.AlignedRow) ([]models.IndicatorRow, error) {
	if err := validate(market, rows); err != nil {
		return nil, err
	}

	sorted := make([]models.AlignedRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampA.Before(sorted[j].TimestampA)
	})

	premium := newLaggedSet(e.horizons)
	premiumPct := newLaggedSet(e.horizons)
	volume := newLaggedSet(e.horizons)

	out := make([]models.IndicatorRow, 0, len(sorted))
	for _, r := range sorted {
		diff := r.CloseA - r.CloseB
		pct := diff / r.CloseB * 100

		row := models.IndicatorRow{
			Market:              market,
			DateTime:            r.TimestampA,
			PriceA:              r.CloseA,
			PriceB:              r.CloseB,
			Premium:             diff,
			PremiumPct:          pct,
			AvgPremium:          premium.step(r, diff),
			AvgPremiumPct:       premiumPct.step(r, pct),
			CurrentPremiumDiff:  make(map[models.Horizon]float64, len(e.horizons)),
			CurrentPremiumDelta: make(map[models.Horizon]float64, len(e.horizons)),
			CurrentVolume:       r.VolumeA,
			AvgVolume:           volume.step(r, r.VolumeA),
		}
		for _, h := range e.horizons {
			row.CurrentPremiumDiff[h] = diff - row.AvgPremium[h]
			row.CurrentPremiumDelta[h] = pct - row.AvgPremiumPct[h]
		}
		row.VolumeDeviationPct = deviationPct(r.VolumeA, row.AvgVolume[models.Horizon1H])

		out = append(out, row)
	}
	return out, nil
}

// laggedSet tracks one metric over every horizon. The value passed to step
// enters the windows only on the next call.
type laggedSet struct {
	horizons []models.Horizon
	windows  map[models.Horizon]*Window
	prev     float64
	hasPrev  bool
}

func newLaggedSet(horizons []models.Horizon) *laggedSet {
	s := &laggedSet{horizons: horizons, windows: make(map[models.Horizon]*Window, len(horizons))}
	for _, h := range horizons {
		s.windows[h] = NewWindow(h.Window())
	}
	return s
}

func (s *laggedSet) step(r models.AlignedRow, value float64) map[models.Horizon]float64 {
	means := make(map[models.Horizon]float64, len(s.horizons))
	for _, h := range s.horizons {
		w := s.windows[h]
		if s.hasPrev {
			w.Push(r.TimestampA, s.prev)
		}
		w.Advance(r.TimestampA)
		means[h] = w.Mean()
	}
	s.prev, s.hasPrev = value, true
	return means
}

func deviationPct(current, avg float64) float64 {
	if avg == 0 {
		return math.NaN()
	}
	return (current - avg) / avg * 100
}

func validate(market string, rows []models.AlignedRow) error {
	for i, r := range rows {
		checks := []struct {
			field string
			value float64
		}{
			{"close_a", r.CloseA},
			{"close_b", r.CloseB},
			{"volume_a", r.VolumeA},
		}
		for _, c := range checks {
			if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
				return &models.ValidationError{Scope: market, Field: c.field, Reason: fmt.Sprintf("not finite at row %d", i)}
			}
		}
		if r.CloseB == 0 {
			return &models.ValidationError{Scope: market, Field: "close_b", Reason: fmt.Sprintf("zero at row %d", i)}
		}
		if r.TimestampA.IsZero() {
			return &models.ValidationError{Scope: market, Field: "timestamp_a", Reason: fmt.Sprintf("missing at row %d", i)}
		}
	}
	return nil
}

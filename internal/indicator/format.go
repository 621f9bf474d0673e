package indicator

import (
	"math"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/shopspring/decimal"
)

const (
	DateTimeLayout = "2006-01-02 15:04"

	pricePlaces = 8
	pctPlaces   = 2
)

// Format renders row for publishing. Rounding happens here only; the
// engine works on raw floats.
func Format(row models.IndicatorRow) models.Record {
	return models.Record{
		DateTime:   row.DateTime.UTC().Format(DateTimeLayout),
		Coin:       row.Market,
		PriceA:     round(row.PriceA, pricePlaces),
		PriceB:     round(row.PriceB, pricePlaces),
		PremiumPct: round(row.PremiumPct, pctPlaces),

		AvgPremiumPct1H:  round(row.AvgPremiumPct[models.Horizon1H], pctPlaces),
		CurrentPct1H:     round(row.CurrentPremiumDelta[models.Horizon1H], pctPlaces),
		AvgPremiumPct24H: round(row.AvgPremiumPct[models.Horizon24H], pctPlaces),
		CurrentPct24H:    round(row.CurrentPremiumDelta[models.Horizon24H], pctPlaces),
		AvgPremiumPct1M:  round(row.AvgPremiumPct[models.Horizon1M], pctPlaces),
		CurrentPct1M:     round(row.CurrentPremiumDelta[models.Horizon1M], pctPlaces),
		AvgPremiumPct1Y:  round(row.AvgPremiumPct[models.Horizon1Y], pctPlaces),
		CurrentPct1Y:     round(row.CurrentPremiumDelta[models.Horizon1Y], pctPlaces),

		CurrentVolume: FormatVolume(row.CurrentVolume),
		AvgVolume1H:   FormatVolume(row.AvgVolume[models.Horizon1H]),
		AvgVolume24H:  FormatVolume(row.AvgVolume[models.Horizon24H]),
		AvgVolume1M:   FormatVolume(row.AvgVolume[models.Horizon1M]),
		AvgVolume1Y:   FormatVolume(row.AvgVolume[models.Horizon1Y]),

		VolumeDeviationPct: round(row.VolumeDeviationPct, pctPlaces),
	}
}

// FormatVolume abbreviates v with a B, M or K suffix and two decimals.
func FormatVolume(v float64) string {
	if !finite(v) {
		return "NaN"
	}

	d := decimal.NewFromFloat(v)
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return d.Shift(-9).StringFixed(2) + "B"
	case abs >= 1e6:
		return d.Shift(-6).StringFixed(2) + "M"
	case abs >= 1e3:
		return d.Shift(-3).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}

// round rounds half away from zero. Non-finite values pass through.
func round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Complete reports whether every numeric field of row is finite.
func Complete(row models.IndicatorRow) bool {
	values := []float64{row.PriceA, row.PriceB, row.Premium, row.PremiumPct, row.CurrentVolume, row.VolumeDeviationPct}
	for _, m := range []map[models.Horizon]float64{
		row.AvgPremium, row.AvgPremiumPct, row.CurrentPremiumDiff, row.CurrentPremiumDelta, row.AvgVolume,
	} {
		if len(m) == 0 {
			return false
		}
		for _, v := range m {
			values = append(values, v)
		}
	}
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}

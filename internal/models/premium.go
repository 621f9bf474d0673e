package models

import "time"

// Horizon is a trailing window label.
type Horizon string

const (
	Horizon1H  Horizon = "1H"
	Horizon24H Horizon = "24H"
	Horizon1M  Horizon = "1M"
	Horizon1Y  Horizon = "1Y"
)

// Horizons lists every horizon in ascending window length.
var Horizons = []Horizon{Horizon1H, Horizon24H, Horizon1M, Horizon1Y}

// Window returns the trailing window length of the horizon.
func (h Horizon) Window() time.Duration {
	switch h {
	case Horizon1H:
		return 60 * time.Minute
	case Horizon24H:
		return 24 * time.Hour
	case Horizon1M:
		return 30 * 24 * time.Hour
	case Horizon1Y:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// AlignedRow joins one exchange A candle with its nearest exchange B candle.
type AlignedRow struct {
	Market     string
	TimestampA time.Time
	TimestampB time.Time
	CloseA     float64
	CloseB     float64

	// VolumeA is exchange A base volume.
	VolumeA float64

	// VolumeB is exchange B quote volume.
	VolumeB float64
}

// IndicatorRow holds the premium metrics derived for one aligned row.
// Averages are NaN when no lagged sample exists yet.
type IndicatorRow struct {
	Market   string
	DateTime time.Time
	PriceA   float64
	PriceB   float64

	// Premium is PriceA - PriceB.
	Premium float64

	// PremiumPct is Premium relative to PriceB, in percent.
	PremiumPct float64

	AvgPremium          map[Horizon]float64
	AvgPremiumPct       map[Horizon]float64
	CurrentPremiumDiff  map[Horizon]float64
	CurrentPremiumDelta map[Horizon]float64

	CurrentVolume      float64
	AvgVolume          map[Horizon]float64
	VolumeDeviationPct float64
}

// Record is the presentation form of an IndicatorRow handed to publishers.
type Record struct {
	DateTime   string  `json:"DateTime"`
	Coin       string  `json:"Coin"`
	PriceA     float64 `json:"Price @ Coinbase"`
	PriceB     float64 `json:"Price @ Binance"`
	PremiumPct float64 `json:"Coinbase Premium %"`

	AvgPremiumPct1H  float64 `json:"Avg 1H Premium %"`
	CurrentPct1H     float64 `json:"Current % 1H"`
	AvgPremiumPct24H float64 `json:"Avg 24H Premium %"`
	CurrentPct24H    float64 `json:"Current % 24H"`
	AvgPremiumPct1M  float64 `json:"Avg 1M Premium %"`
	CurrentPct1M     float64 `json:"Current % 1M"`
	AvgPremiumPct1Y  float64 `json:"Avg 1Y Premium %"`
	CurrentPct1Y     float64 `json:"Current % 1Y"`

	CurrentVolume string `json:"Current Volume"`
	AvgVolume1H   string `json:"Avg 1H Volume"`
	AvgVolume24H  string `json:"Avg 24H Volume"`
	AvgVolume1M   string `json:"Avg 1M Volume"`
	AvgVolume1Y   string `json:"Avg 1Y Volume"`

	VolumeDeviationPct float64 `json:"Coinbase Volume Diff %"`
}

// Fields returns the record as a flat column map, keyed like its JSON form.
func (r Record) Fields() map[string]any {
	return map[string]any{
		"DateTime":               r.DateTime,
		"Coin":                   r.Coin,
		"Price @ Coinbase":       r.PriceA,
		"Price @ Binance":        r.PriceB,
		"Coinbase Premium %":     r.PremiumPct,
		"Avg 1H Premium %":       r.AvgPremiumPct1H,
		"Current % 1H":           r.CurrentPct1H,
		"Avg 24H Premium %":      r.AvgPremiumPct24H,
		"Current % 24H":          r.CurrentPct24H,
		"Avg 1M Premium %":       r.AvgPremiumPct1M,
		"Current % 1M":           r.CurrentPct1M,
		"Avg 1Y Premium %":       r.AvgPremiumPct1Y,
		"Current % 1Y":           r.CurrentPct1Y,
		"Current Volume":         r.CurrentVolume,
		"Avg 1H Volume":          r.AvgVolume1H,
		"Avg 24H Volume":         r.AvgVolume24H,
		"Avg 1M Volume":          r.AvgVolume1M,
		"Avg 1Y Volume":          r.AvgVolume1Y,
		"Coinbase Volume Diff %": r.VolumeDeviationPct,
	}
}

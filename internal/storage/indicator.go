package storage

import (
	"context"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"gorm.io/gorm"
)

// IndicatorSnapshot is one published record as stored in ClickHouse.
type IndicatorSnapshot struct {
	PublishedAt time.Time `gorm:"column:published_at"`
	DateTime    string    `gorm:"column:date_time"`
	Market      string    `gorm:"column:market"`

	PriceA     float64 `gorm:"column:price_a"`
	PriceB     float64 `gorm:"column:price_b"`
	PremiumPct float64 `gorm:"column:premium_pct"`

	AvgPremiumPct1H  float64 `gorm:"column:avg_premium_pct_1h"`
	DeltaPct1H       float64 `gorm:"column:delta_pct_1h"`
	AvgPremiumPct24H float64 `gorm:"column:avg_premium_pct_24h"`
	DeltaPct24H      float64 `gorm:"column:delta_pct_24h"`
	AvgPremiumPct1M  float64 `gorm:"column:avg_premium_pct_1m"`
	DeltaPct1M       float64 `gorm:"column:delta_pct_1m"`
	AvgPremiumPct1Y  float64 `gorm:"column:avg_premium_pct_1y"`
	DeltaPct1Y       float64 `gorm:"column:delta_pct_1y"`

	CurrentVolume      string  `gorm:"column:current_volume"`
	AvgVolume1H        string  `gorm:"column:avg_volume_1h"`
	VolumeDeviationPct float64 `gorm:"column:volume_deviation_pct"`
}

func (IndicatorSnapshot) TableName() string { return "indicator_snapshot" }

// IndicatorHistory appends every published batch so past signals can be
// audited.
type IndicatorHistory interface {
	Append(ctx context.Context, records []models.Record) error
}

type gormIndicatorHistory struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormIndicatorHistory(db *gorm.DB) IndicatorHistory {
	return &gormIndicatorHistory{db: db, now: time.Now}
}

func (h *gormIndicatorHistory) Append(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	return h.db.WithContext(ctx).Create(SnapshotsFromRecords(records, h.now().UTC())).Error
}

// SnapshotsFromRecords stamps records with the publish time.
func SnapshotsFromRecords(records []models.Record, publishedAt time.Time) []*IndicatorSnapshot {
	snapshots := make([]*IndicatorSnapshot, 0, len(records))
	for _, r := range records {
		snapshots = append(snapshots, &IndicatorSnapshot{
			PublishedAt:        publishedAt,
			DateTime:           r.DateTime,
			Market:             r.Coin,
			PriceA:             r.PriceA,
			PriceB:             r.PriceB,
			PremiumPct:         r.PremiumPct,
			AvgPremiumPct1H:    r.AvgPremiumPct1H,
			DeltaPct1H:         r.CurrentPct1H,
			AvgPremiumPct24H:   r.AvgPremiumPct24H,
			DeltaPct24H:        r.CurrentPct24H,
			AvgPremiumPct1M:    r.AvgPremiumPct1M,
			DeltaPct1M:         r.CurrentPct1M,
			AvgPremiumPct1Y:    r.AvgPremiumPct1Y,
			DeltaPct1Y:         r.CurrentPct1Y,
			CurrentVolume:      r.CurrentVolume,
			AvgVolume1H:        r.AvgVolume1H,
			VolumeDeviationPct: r.VolumeDeviationPct,
		})
	}
	return snapshots
}

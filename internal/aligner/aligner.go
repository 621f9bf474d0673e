// Package aligner joins the candle series of two exchanges on market and
// nearest timestamp.
package aligner

import (
	"sort"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
)

// DefaultTolerance is the largest accepted gap between joined candles.
const DefaultTolerance = 5 * time.Minute

// Stats counts the outcome of one Align call.
type Stats struct {
	Matched int

	// Gaps are A candles with no B candle within tolerance, including every
	// A candle of a market that B does not list.
	Gaps int

	// MarketsA is the number of markets on side A.
	MarketsA int
}

// Align pairs every A candle with the B candle of the same market closest in
// time. A pair is kept when the gap is at most tolerance; when two B candles
// are equally close the earlier one is used. Unmatched A candles are dropped.
// Markets must already be canonical on both sides. The result is sorted by
// (market, A timestamp).
func Align(a, b []models.Candle, tolerance time.Duration) []models.AlignedRow {
	rows, _ := AlignWithStats(a, b, tolerance)
	return rows
}

// AlignWithStats is Align that also reports match counts.
func AlignWithStats(a, b []models.Candle, tolerance time.Duration) ([]models.AlignedRow, Stats) {
	groupsA := groupByMarket(a)
	groupsB := groupByMarket(b)

	markets := make([]string, 0, len(groupsA))
	for m := range groupsA {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	stats := Stats{MarketsA: len(markets)}
	rows := make([]models.AlignedRow, 0, len(a))

	for _, market := range markets {
		sideA := groupsA[market]
		sideB, ok := groupsB[market]
		if !ok {
			stats.Gaps += len(sideA)
			continue
		}

		for _, ca := range sideA {
			cb, ok := nearest(sideB, ca.Timestamp, tolerance)
			if !ok {
				stats.Gaps++
				continue
			}
			stats.Matched++
			rows = append(rows, models.AlignedRow{
				Market:     market,
				TimestampA: ca.Timestamp,
				TimestampB: cb.Timestamp,
				CloseA:     ca.Close,
				CloseB:     cb.Close,
				VolumeA:    ca.Volume,
				VolumeB:    cb.QuoteVolume,
			})
		}
	}

	return rows, stats
}

// nearest binary-searches sorted candles for the one closest to ts.
func nearest(sorted []models.Candle, ts time.Time, tolerance time.Duration) (models.Candle, bool) {
	i := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(ts)
	})

	best, bestGap := -1, time.Duration(0)
	// The earlier neighbour is checked first so it wins a tie.
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(sorted) {
			continue
		}
		gap := absDuration(sorted[j].Timestamp.Sub(ts))
		if best < 0 || gap < bestGap {
			best, bestGap = j, gap
		}
	}

	if best < 0 || bestGap > tolerance {
		return models.Candle{}, false
	}
	return sorted[best], true
}

func groupByMarket(candles []models.Candle) map[string][]models.Candle {
	groups := make(map[string][]models.Candle)
	for _, c := range candles {
		groups[c.Market] = append(groups[c.Market], c)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].Timestamp.Before(g[j].Timestamp)
		})
	}
	return groups
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

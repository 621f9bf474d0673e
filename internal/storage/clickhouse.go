package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/navid-fn/premiumradar/internal/models"
)

// CandleTableName is created by the migrations in internal/migrations.
const CandleTableName = "candle_5m"

// OpenClickHouse parses the DSN, opens a native connection and verifies it
// with a ping. It fails if the server does not answer within 5 seconds.
func OpenClickHouse(dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// ClickHouseTable stores one exchange's candles in the shared candle table.
// The table is a ReplacingMergeTree versioned by fetched_at, so rewriting a
// key keeps the most recent fetch, the same as Upsert.
type ClickHouseTable struct {
	conn     driver.Conn
	exchange string
}

// NewClickHouseTable returns the table view for exchange. The connection is
// shared; Close on the table does not close it.
func NewClickHouseTable(conn driver.Conn, exchange string) *ClickHouseTable {
	return &ClickHouseTable{conn: conn, exchange: exchange}
}

// Load reads with FINAL so rows not yet merged are already deduplicated.
func (t *ClickHouseTable) Load(ctx context.Context) ([]models.Candle, error) {
	rows, err := t.conn.Query(ctx, `
		SELECT
			market, market_type, ts,
			open, high, low, close, volume, quote_volume,
			fetched_at
		FROM `+CandleTableName+` FINAL
		WHERE exchange = ?
		ORDER BY market, ts, market_type
	`, t.exchange)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candles := make([]models.Candle, 0)
	for rows.Next() {
		var (
			c          models.Candle
			marketType string
		)
		if err := rows.Scan(
			&c.Market,
			&marketType,
			&c.Timestamp,
			&c.Open,
			&c.High,
			&c.Low,
			&c.Close,
			&c.Volume,
			&c.QuoteVolume,
			&c.FetchedAt,
		); err != nil {
			return nil, err
		}
		c.Exchange = t.exchange
		c.MarketType = models.MarketType(marketType)
		c.Timestamp = c.Timestamp.UTC()
		c.FetchedAt = c.FetchedAt.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return candles, nil
}

// Save inserts candles in one batch.
func (t *ClickHouseTable) Save(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := t.conn.PrepareBatch(ctx, `
		INSERT INTO `+CandleTableName+` (
			exchange, market, market_type, ts,
			open, high, low, close, volume, quote_volume,
			fetched_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, c := range candles {
		fetchedAt := c.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		err := batch.Append(
			t.exchange,
			c.Market,
			string(c.MarketType),
			c.Timestamp,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
			c.QuoteVolume,
			fetchedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (t *ClickHouseTable) Close() error { return nil }

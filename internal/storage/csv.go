package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
)

var csvHeader = []string{
	"exchange", "market", "market_type", "timestamp",
	"open", "high", "low", "close", "volume", "quote_volume",
	"fetched_at",
}

// Columns a stored file must carry. The rest default to zero values.
var requiredColumns = []string{
	"market", "market_type", "timestamp",
	"open", "high", "low", "close", "volume",
}

// CSVTable stores one exchange's candles in a single CSV file.
type CSVTable struct {
	path string
}

// NewCSVTable returns a table backed by path. The file is created on the
// first Save.
func NewCSVTable(path string) *CSVTable {
	return &CSVTable{path: path}
}

func (t *CSVTable) Path() string { return t.path }

func (t *CSVTable) Load(ctx context.Context) ([]models.Candle, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Candle{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	candles, err := t.decode(f)
	if err != nil {
		return nil, err
	}
	SortCandles(candles)
	return candles, nil
}

func (t *CSVTable) Save(ctx context.Context, candles []models.Candle) error {
	existing, err := t.Load(ctx)
	if err != nil {
		return err
	}
	return t.write(Upsert(existing, candles))
}

func (t *CSVTable) Close() error { return nil }

// write replaces the file atomically through a temp file in the same
// directory.
func (t *CSVTable) write(candles []models.Candle) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, c := range candles {
		if err := w.Write(encodeCandle(c)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), t.path)
}

func (t *CSVTable) decode(r io.Reader) ([]models.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.Candle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", t.path, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, &models.ValidationError{Scope: t.path, Field: name, Reason: "column missing"}
		}
	}

	candles := make([]models.Candle, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", t.path, line, err)
		}

		c, err := decodeCandle(record, cols)
		if err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", t.path, line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func encodeCandle(c models.Candle) []string {
	fetchedAt := ""
	if !c.FetchedAt.IsZero() {
		fetchedAt = c.FetchedAt.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		c.Exchange,
		c.Market,
		string(c.MarketType),
		c.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(c.Open),
		formatFloat(c.High),
		formatFloat(c.Low),
		formatFloat(c.Close),
		formatFloat(c.Volume),
		formatFloat(c.QuoteVolume),
		fetchedAt,
	}
}

func decodeCandle(record []string, cols map[string]int) (models.Candle, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var c models.Candle
	var err error

	c.Exchange = field("exchange")
	c.Market = field("market")
	c.MarketType = models.MarketType(field("market_type"))

	if c.Timestamp, err = time.Parse(time.RFC3339Nano, field("timestamp")); err != nil {
		return c, fmt.Errorf("timestamp: %w", err)
	}
	if s := field("fetched_at"); s != "" {
		if c.FetchedAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return c, fmt.Errorf("fetched_at: %w", err)
		}
	}

	floats := []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"open", &c.Open, true},
		{"high", &c.High, true},
		{"low", &c.Low, true},
		{"close", &c.Close, true},
		{"volume", &c.Volume, true},
		{"quote_volume", &c.QuoteVolume, false},
	}
	for _, f := range floats {
		s := field(f.name)
		if s == "" && !f.required {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(s, 64); err != nil {
			return c, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	return c, nil
}

// formatFloat uses the shortest representation that parses back to the
// same value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

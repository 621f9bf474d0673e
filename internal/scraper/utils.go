package scraper

import (
	"context"
	"time"
)

// UnixMilliToUTC converts an epoch-millisecond timestamp to UTC.
func UnixMilliToUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// UnixToUTC converts an epoch-second timestamp to UTC.
func UnixToUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// ChunkSlice splits a slice into chunks of specified size
func ChunkSlice[T any](items []T, size int) [][]T {
	if size < 1 {
		panic("ChunkSlice: size must be greater than 0")
	}

	length := len(items)
	if length == 0 {
		return nil
	}
	capacity := (length + size - 1) / size
	chunks := make([][]T, 0, capacity)

	for i := 0; i < length; i += size {
		end := min(i+size, length)
		chunks = append(chunks, items[i:end])
	}

	return chunks
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

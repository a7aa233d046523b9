package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// archiveBatch bounds how many history rows one run moves. A window larger
// than this drains across successive runs.
const archiveBatch = 10000

// Archiver moves aged price-history rows out of the relational store and into
// object storage as newline-delimited JSON. Rows are pruned only after the
// upload succeeded, so a failed run leaves the primary store intact and the
// next run retries the same window.
type Archiver struct {
	writer  *Writer
	history domain.HistoryStore
	logger  *slog.Logger
}

// NewArchiver creates a price-history archiver.
func NewArchiver(writer *Writer, history domain.HistoryStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer:  writer,
		history: history,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveHistory uploads the oldest history rows before the cutoff and prunes
// them. Returns the number of rows archived this run.
func (a *Archiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.history.OlderThan(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history marshal: %w", err)
	}

	last := entries[len(entries)-1].Timestamp
	path := archivePath("price_history", last)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}

	pruned, err := a.history.PruneBefore(ctx, last.Add(time.Nanosecond))
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive history prune: %w", err)
	}

	a.logger.Info("price history archived",
		slog.String("path", path),
		slog.Int("rows", len(entries)),
		slog.Int64("pruned", pruned),
	)
	return int64(len(entries)), nil
}

// archivePath builds the object key, partitioned by year-month with the exact
// window end in the file name so partial drains of one month never collide:
//
//	archive/price_history/2026-08/20260803T120000.jsonl
func archivePath(kind string, last time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, last.UTC().Format("2006-01"), last.UTC().Format("20060102T150405"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact line
// per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

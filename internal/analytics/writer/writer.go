// Package writer streams stock-level history rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/stockledger-backend/internal/analytics/types"
)

const defaultBatchSize = 1

// TableInserter is the slice of the BigQuery client the writer needs.
type TableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type Options struct {
	Table     string
	BatchSize int
	Retry     RetryPolicy
}

// HistoryWriter buffers rows until BatchSize is reached. Every row carries its
// event id as the BigQuery insert id, so a redelivered event is dropped by the
// streaming de-duplication.
type HistoryWriter struct {
	client    TableInserter
	table     string
	batchSize int
	retry     RetryPolicy

	mu      sync.Mutex
	pending []types.StockLevelRow
}

func New(client TableInserter, opts Options) (*HistoryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		return nil, errors.New("stock levels table is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &HistoryWriter{
		client:    client,
		table:     table,
		batchSize: batch,
		retry:     opts.Retry.withDefaults(),
	}, nil
}

// InsertStockLevel queues a row and writes the batch once it is full. On a
// failed write the batch stays queued for the next call.
func (w *HistoryWriter) InsertStockLevel(ctx context.Context, row types.StockLevelRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is queued.
func (w *HistoryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Pending reports how many rows are queued.
func (w *HistoryWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *HistoryWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	savers := make([]any, len(w.pending))
	for i := range w.pending {
		savers[i] = &bigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].EventID}
	}
	err := w.retry.run(ctx, func() error {
		return w.client.InsertRows(ctx, w.table, savers)
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(savers), w.table, err)
	}
	w.pending = w.pending[:0]
	return nil
}

// JSONColumn stores a raw event payload in a JSON column. An empty payload
// becomes NULL.
func JSONColumn(raw []byte) (bigquery.NullJSON, error) {
	if len(raw) == 0 {
		return bigquery.NullJSON{}, nil
	}
	if !json.Valid(raw) {
		return bigquery.NullJSON{}, errors.New("payload is not valid json")
	}
	return bigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}

// Package writer streams marketplace rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hiddengems/hiddengems-backend/internal/analytics"
	pkgbigquery "github.com/hiddengems/hiddengems-backend/pkg/bigquery"
)

// Config controls batching and retries. Zero values fall back to defaults.
type Config struct {
	Table       string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Writer buffers rows and inserts them in batches. It is safe for concurrent
// use; a batch that fails is dropped and the caller is expected to nack.
type Writer struct {
	client    pkgbigquery.Inserter
	table     string
	batchSize int
	policy    RetryPolicy

	mu      sync.Mutex
	pending []analytics.MarketplaceEventRow
}

func New(client pkgbigquery.Inserter, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("marketplace table is required")
	}
	return &Writer{
		client:    client,
		table:     table,
		batchSize: max(cfg.BatchSize, 1),
		policy:    cfg.RetryPolicy.withDefaults(),
	}, nil
}

// Insert queues row and writes the batch once it is full.
func (w *Writer) Insert(ctx context.Context, row analytics.MarketplaceEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.drain(ctx)
}

// Flush writes whatever is queued.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drain(ctx)
}

// Pending reports how many rows are queued.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Writer) drain(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := make([]any, 0, len(w.pending))
	for i := range w.pending {
		batch = append(batch, &w.pending[i])
	}
	defer func() { w.pending = w.pending[:0] }()

	err := retry.Do(ctx, w.policy.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, batch)
		if err != nil && Transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(batch), w.table, err)
	}
	return nil
}

// Package writer streams order event rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	pkgbigquery "github.com/kitsuneprints/storefront-backend/pkg/bigquery"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

// Config controls the BigQuery writer. Zero values fall back to defaults.
type Config struct {
	OrdersTable string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter inserts one row per delivered event. Rows are written
// before the message is acked, so nothing is buffered in memory.
type BigQueryWriter struct {
	client      tableInserter
	ordersTable string
	attempts    int
	base        time.Duration
	ceiling     time.Duration
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.OrdersTable)
	if table == "" {
		return nil, errors.New("orders table is required")
	}
	w := &BigQueryWriter{
		client:      client,
		ordersTable: table,
		attempts:    cfg.MaxAttempts,
		base:        cfg.BaseBackoff,
		ceiling:     cfg.MaxBackoff,
	}
	if w.attempts <= 0 {
		w.attempts = defaultMaxAttempts
	}
	if w.base <= 0 {
		w.base = defaultBaseBackoff
	}
	if w.ceiling <= 0 {
		w.ceiling = defaultMaxBackoff
	}
	w.ceiling = max(w.ceiling, w.base)
	return w, nil
}

// InsertOrderEvent streams row, retrying transient failures with capped
// exponential backoff.
func (w *BigQueryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	rows := []any{&row}
	err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.ordersTable, rows)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert order event %s: %w", row.EventID, err)
	}
	return nil
}

func (w *BigQueryWriter) backoff() retry.Backoff {
	b := retry.NewExponential(w.base)
	b = retry.WithCappedDuration(w.ceiling, b)
	return retry.WithMaxRetries(uint64(w.attempts-1), b)
}

// retryable treats a batch as transient only when every inner error is.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !retryable(inner) {
				return false
			}
		}
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		default:
			return false
		}
	}
	return pkgbigquery.IsRetryable(err)
}

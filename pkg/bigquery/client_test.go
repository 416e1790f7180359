package bigquery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		gcp  config.GCPConfig
		cfg  config.BigQueryConfig
		want error
	}{
		{name: "project", cfg: config.BigQueryConfig{Dataset: "storefront", OrdersTable: "order_events"}, want: errProjectIDRequired},
		{name: "dataset", gcp: config.GCPConfig{ProjectID: "kitsune"}, cfg: config.BigQueryConfig{Dataset: " ", OrdersTable: "order_events"}, want: errDatasetRequired},
		{name: "table", gcp: config.GCPConfig{ProjectID: "kitsune"}, cfg: config.BigQueryConfig{Dataset: "storefront"}, want: errTableNameRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(ctx, tc.gcp, tc.cfg, nil); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.GCPConfig{
		CredentialsJSON:        `{"type": "service_account"}`,
		ApplicationCredentials: "/tmp/creds",
	})
	if len(opts) != 1 {
		t.Fatalf("expected inline credentials only, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}); len(opts) != 1 {
		t.Fatalf("expected file credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected ambient credentials, got %d options", len(opts))
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: &googleapi.Error{Code: 503}, want: true},
		{err: fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 429}), want: true},
		{err: &googleapi.Error{Code: 400}, want: false},
		{err: context.DeadlineExceeded, want: true},
		{err: errors.New("schema mismatch"), want: false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestAPIErrorClassifiers(t *testing.T) {
	if !isNotFound(fmt.Errorf("meta: %w", &googleapi.Error{Code: 404})) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if isNotFound(errors.New("404")) {
		t.Fatal("plain errors are not api errors")
	}
	if !isConflict(&googleapi.Error{Code: 409}) {
		t.Fatal("expected 409 to be a conflict")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.Ping(ctx); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.EnsureOrdersTable(ctx, nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.InsertRows(ctx, "t", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if _, err := c.Query(ctx, "SELECT 1", nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if c.OrdersTable() != "" {
		t.Fatal("expected empty table name")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

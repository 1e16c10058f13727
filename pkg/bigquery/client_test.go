package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

func TestCredentialsPrefersInlineJSON(t *testing.T) {
	opts := credentials(config.GCPConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/tmp/creds.json",
	})
	if len(opts) != 1 {
		t.Fatalf("expected a single option, got %d", len(opts))
	}
	if got := credentials(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}); len(got) != 1 {
		t.Fatalf("expected file credentials option, got %d", len(got))
	}
	if got := credentials(config.GCPConfig{CredentialsJSON: "  "}); got != nil {
		t.Fatalf("expected ambient credentials, got %d options", len(got))
	}
}

func TestTableMetadataPartitionsOnField(t *testing.T) {
	schema := bigquery.Schema{{Name: "changed_at", Type: bigquery.TimestampFieldType}}
	meta := tableMetadata(TableSpec{Name: "stock_levels", Schema: schema, PartitionField: "changed_at"})
	if meta.TimePartitioning == nil || meta.TimePartitioning.Field != "changed_at" {
		t.Fatalf("expected day partitioning on changed_at, got %+v", meta.TimePartitioning)
	}
	if meta.TimePartitioning.Type != bigquery.DayPartitioningType {
		t.Fatalf("expected day partitioning, got %s", meta.TimePartitioning.Type)
	}
	if plain := tableMetadata(TableSpec{Name: "t", Schema: schema}); plain.TimePartitioning != nil {
		t.Fatal("expected no partitioning without a field")
	}
}

func TestIsNotFound(t *testing.T) {
	wrapped := fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !IsNotFound(wrapped) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if IsNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 is not a not-found error")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain errors are not not-found errors")
	}
}

func TestNilClientIsNotInitialized(t *testing.T) {
	var c *Client
	if err := c.InsertRows(t.Context(), "stock_levels", []any{1}); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("closing nil client: %v", err)
	}
}

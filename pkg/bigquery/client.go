// Package bigquery wraps the BigQuery client used by the stock-level history
// sink.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrDatasetRequired   = errors.New("bigquery dataset is required")
	ErrTableRequired     = errors.New("bigquery table name is required")
	errNotInitialized    = errors.New("bigquery client not initialized")
)

// TableSpec describes a history table the sink writes to. PartitionField,
// when set, day-partitions the table on that TIMESTAMP column.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

// Client owns one dataset.
type Client struct {
	bq            *bigquery.Client
	dataset       *bigquery.Dataset
	location      string
	createMissing bool
	logg          *logger.Logger
}

// NewClient connects to BigQuery and makes sure the dataset exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, ErrDatasetRequired
	}

	if logg == nil {
		logg = logger.Nop()
	}

	bq, err := bigquery.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		bq:            bq,
		dataset:       bq.Dataset(datasetID),
		location:      strings.TrimSpace(cfg.Location),
		createMissing: cfg.CreateMissing,
		logg:          logg,
	}
	if err := client.ensureDataset(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	return client, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) ensureDataset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !IsNotFound(err):
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	case !c.createMissing:
		return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
	}

	if err := c.dataset.Create(ctx, &bigquery.DatasetMetadata{Location: c.location}); err != nil {
		return fmt.Errorf("creating dataset %q: %w", c.dataset.DatasetID, err)
	}
	c.logg.Info(ctx, "bigquery dataset created")
	return nil
}

// EnsureTable checks that the table exists, creating it from its TableSpec
// when CreateMissing is set.
func (c *Client) EnsureTable(ctx context.Context, spec TableSpec) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return ErrTableRequired
	}

	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	_, err := table.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !IsNotFound(err):
		return fmt.Errorf("checking table %q: %w", name, err)
	case !c.createMissing:
		return fmt.Errorf("table %q does not exist", name)
	}

	if err := table.Create(ctx, tableMetadata(spec)); err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	c.logg.Info(c.logg.WithField(ctx, "table", name), "bigquery table created")
	return nil
}

func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: spec.PartitionField,
		}
	}
	return meta
}

// Ping reads the dataset metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	_, err := c.dataset.Metadata(ctx)
	return err
}

// InsertRows streams rows into a table of the dataset.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return ErrTableRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

// IsNotFound reports a 404 from the BigQuery API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

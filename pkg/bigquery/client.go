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

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotConnected = errors.New("bigquery client not initialized")

// Inserter is the write surface the analytics writer depends on.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Client streams rows into one dataset of the analytics warehouse.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
}

// NewClient connects and fails when the dataset is missing. Tables are
// checked separately by EnsureTable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case datasetID == "":
		return nil, errors.New("bigquery dataset is required")
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), cfg: cfg}

	checkCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(checkCtx); err != nil {
		_ = bq.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("dataset %s.%s does not exist", project, datasetID)
		}
		return nil, fmt.Errorf("read dataset %s: %w", datasetID, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"gcp_project": project, "dataset": datasetID}), "bigquery client initialized")
	}
	return c, nil
}

// EnsureTable creates table with schema, partitioned by day on
// partitionField, when it does not exist yet. An existing table is left as is.
func (c *Client) EnsureTable(ctx context.Context, table string, schema bigquery.Schema, partitionField string) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	ref := c.dataset.Table(table)
	_, err := ref.Metadata(ctx)
	if err == nil || !isNotFound(err) {
		return err
	}

	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := ref.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

// MarketplaceTable is the configured marketplace_events table id.
func (c *Client) MarketplaceTable() string {
	return strings.TrimSpace(c.cfg.MarketplaceEventsTable)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool { return apiStatus(err) == http.StatusNotFound }

// isConflict covers two workers racing to create the same table.
func isConflict(err error) bool { return apiStatus(err) == http.StatusConflict }

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

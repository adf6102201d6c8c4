package bq

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"google.golang.org/api/googleapi"

	"github.com/okuraya/dataglue"
	"github.com/okuraya/dataglue/delim"
)

// Query runs sql as a batch-priority query job, waits for it, and
// returns the table holding the result.
func (c *Client) Query(ctx context.Context, sql string) (*bigquery.Table, error) {
	q := c.bq.Query(sql)
	q.Priority = bigquery.BatchPriority
	if c.location != "" {
		q.Location = c.location
	}

	bqJob, err := q.Run(ctx)
	if err != nil {
		return nil, submitError("query", sql, err)
	}
	log.Ctx(ctx).Debug().Msgf("query job %s submitted", bqJob.ID())

	if err := c.poller.Wait(ctx, newJob(bqJob)); err != nil {
		return nil, queryFailure(sql, err)
	}

	cfg, err := bqJob.Config()
	if err != nil {
		return nil, xerrors.Errorf("failed to read config of job %s: %w", bqJob.ID(), err)
	}
	qc, ok := cfg.(*bigquery.QueryConfig)
	if !ok || qc.Dst == nil {
		return nil, xerrors.Errorf("job %s has no destination table", bqJob.ID())
	}
	return qc.Dst, nil
}

// ExportTable extracts dataset.table into staged CSV shards and
// returns the shard object names in lexicographic order. The service
// decides the shard count. Staged shards belong to the caller.
func (c *Client) ExportTable(ctx context.Context, dataset, table string, cfg dataglue.TransferConfig) ([]string, error) {
	if err := validateExportConfig(cfg); err != nil {
		return nil, err
	}
	return c.exportTable(ctx, c.bq.Dataset(dataset).Table(table), stagePrefix(), cfg)
}

// Extract runs query and streams the whole result into w. Shards are
// exported headerless and merged, so no header repeats mid-stream;
// with cfg.Header one header line is written first from the result
// schema. Staged objects are removed on every exit path.
func (c *Client) Extract(ctx context.Context, query string, w io.Writer, cfg dataglue.TransferConfig) error {
	if err := validateExportConfig(cfg); err != nil {
		return err
	}

	tbl, err := c.Query(ctx, query)
	if err != nil {
		return err
	}

	prefix := stagePrefix()
	defer c.cleanupStaging(ctx, prefix)

	shardCfg := cfg
	shardCfg.Header = false
	if _, err := c.exportTable(ctx, tbl, prefix, shardCfg); err != nil {
		return err
	}

	if cfg.Header {
		if err := c.writeHeader(ctx, tbl, w, cfg); err != nil {
			return err
		}
	}
	return c.staging.Merge(ctx, prefix, w)
}

// ExtractShards runs query and downloads the result shards into dir,
// returning local paths in shard order. With cfg.Header every shard
// carries its own header line. Staged objects are removed on every
// exit path.
func (c *Client) ExtractShards(ctx context.Context, query, dir string, cfg dataglue.TransferConfig) ([]string, error) {
	if err := validateExportConfig(cfg); err != nil {
		return nil, err
	}

	tbl, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	prefix := stagePrefix()
	defer c.cleanupStaging(ctx, prefix)

	if _, err := c.exportTable(ctx, tbl, prefix, cfg); err != nil {
		return nil, err
	}
	return c.staging.DownloadAll(ctx, prefix, dir)
}

func (c *Client) exportTable(ctx context.Context, tbl *bigquery.Table, prefix string, cfg dataglue.TransferConfig) ([]string, error) {
	if c.staging == nil {
		return nil, &dataglue.ConfigError{Msg: "exporting needs a staging bucket"}
	}

	ref := bigquery.NewGCSReference(c.staging.URI(prefix + "part-*.csv"))
	ref.DestinationFormat = bigquery.CSV
	ref.FieldDelimiter = string(cfg.Delimiter)

	ex := tbl.ExtractorTo(ref)
	ex.DisableHeader = !cfg.Header

	bqJob, err := ex.Run(ctx)
	if err != nil {
		return nil, &dataglue.SubmissionError{Op: "export", Err: err}
	}
	log.Ctx(ctx).Debug().Msgf("export job %s submitted", bqJob.ID())

	if err := c.poller.Wait(ctx, newJob(bqJob)); err != nil {
		return nil, err
	}
	return c.staging.List(ctx, prefix)
}

// writeHeader renders the result table's column names through the
// codec so quoting matches the exported body.
func (c *Client) writeHeader(ctx context.Context, tbl *bigquery.Table, w io.Writer, cfg dataglue.TransferConfig) error {
	meta, err := tbl.Metadata(ctx)
	if err != nil {
		return xerrors.Errorf("failed to read result schema: %w", err)
	}

	cols := make([]string, len(meta.Schema))
	for i, f := range meta.Schema {
		cols[i] = f.Name
	}

	hw, err := delim.NewWriter(w, dataglue.TransferConfig{Delimiter: cfg.Delimiter})
	if err != nil {
		return err
	}
	if err := hw.Write(cols); err != nil {
		return err
	}
	return hw.Close()
}

// validateExportConfig rejects options the export service cannot
// honor: results come back UTF-8 with NULL as an empty field.
func validateExportConfig(cfg dataglue.TransferConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !isUTF8(cfg.Encoding) {
		return &dataglue.ConfigError{Msg: "bigquery exports are always UTF-8"}
	}
	if cfg.NullToken != "" {
		return &dataglue.ConfigError{Msg: "bigquery exports render NULL as an empty field"}
	}
	return nil
}

func submitError(op, query string, err error) error {
	if isInvalidQuery(err) {
		return &dataglue.QueryError{Query: query, Err: err}
	}
	return &dataglue.SubmissionError{Op: op, Err: err}
}

// queryFailure maps a query job that failed because of its SQL onto
// QueryError; every other failure keeps its original shape.
func queryFailure(query string, err error) error {
	var jerr *dataglue.JobError
	if errors.As(err, &jerr) && jerr.Reason == "invalidQuery" {
		return &dataglue.QueryError{Query: query, Err: jerr}
	}
	return err
}

func isInvalidQuery(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "invalidQuery" {
			return true
		}
	}
	return false
}

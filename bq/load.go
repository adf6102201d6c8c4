package bq

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"

	"github.com/okuraya/dataglue"
)

// bqEncoding maps a charset name onto the two encodings BigQuery
// accepts for CSV loads.
func bqEncoding(name string) (bigquery.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return bigquery.UTF_8, nil
	case "latin1", "latin-1", "iso-8859-1":
		return bigquery.ISO_8859_1, nil
	}
	return "", &dataglue.ConfigError{Msg: fmt.Sprintf("bigquery cannot load %s data", name)}
}

func isUTF8(name string) bool {
	n := strings.ToLower(name)
	return n == "" || n == "utf-8" || n == "utf8"
}

// gcsRef builds the CSV source description for a load job.
func gcsRef(uris []string, cfg dataglue.TransferConfig, schema bigquery.Schema) (*bigquery.GCSReference, error) {
	enc, err := bqEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	ref := bigquery.NewGCSReference(uris...)
	ref.SourceFormat = bigquery.CSV
	ref.FieldDelimiter = string(cfg.Delimiter)
	ref.NullMarker = cfg.NullToken
	ref.Encoding = enc
	if cfg.Header {
		// Leading rows are skipped per source file, so sharded
		// sources may all carry headers.
		ref.SkipLeadingRows = 1
	}
	ref.Schema = schema
	return ref, nil
}

// LoadURIs loads every staged object into dataset.table as one load
// job. cfg.Truncate selects WriteTruncate over WriteAppend. Mode
// Create lets the job create the table, which needs a schema; mode
// Fail rejects loads into missing tables.
func (c *Client) LoadURIs(ctx context.Context, dataset, table string, uris []string, cfg dataglue.TransferConfig, schema bigquery.Schema, mode IfMissing) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if mode == Create && schema == nil {
		return &dataglue.ConfigError{Msg: "cannot create a table without a schema"}
	}

	ref, err := gcsRef(uris, cfg, schema)
	if err != nil {
		return err
	}

	loader := c.bq.Dataset(dataset).Table(table).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend
	if cfg.Truncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	}
	loader.CreateDisposition = bigquery.CreateNever
	if mode == Create {
		loader.CreateDisposition = bigquery.CreateIfNeeded
	}

	bqJob, err := loader.Run(ctx)
	if err != nil {
		return &dataglue.SubmissionError{Op: "load", Err: err}
	}

	l := log.Ctx(ctx)
	l.Debug().Msgf("load job %s submitted, %d sources into %s.%s", bqJob.ID(), len(uris), dataset, table)
	if err := c.poller.Wait(ctx, newJob(bqJob)); err != nil {
		return err
	}
	l.Debug().Msgf("load job %s done", bqJob.ID())
	return nil
}

// Load stages the stream in the staging bucket and loads it into
// table, given as "dataset.table". The staged object is removed on
// every exit path. The table must already exist; use LoadURIs for
// create-if-needed loads.
func (c *Client) Load(ctx context.Context, table string, r io.Reader, cfg dataglue.TransferConfig) error {
	dataset, tbl, err := splitTable(table)
	if err != nil {
		return err
	}
	if c.staging == nil {
		return &dataglue.ConfigError{Msg: "loading a stream needs a staging bucket"}
	}

	prefix := stagePrefix()
	defer c.cleanupStaging(ctx, prefix)

	uri, err := c.staging.Put(ctx, prefix+"data.csv", r)
	if err != nil {
		return err
	}
	return c.LoadURIs(ctx, dataset, tbl, []string{uri}, cfg, nil, Fail)
}

// LoadShards uploads every shard file and loads them all with one
// multi-source job. Staged objects are removed on every exit path.
func (c *Client) LoadShards(ctx context.Context, table string, paths []string, cfg dataglue.TransferConfig) error {
	dataset, tbl, err := splitTable(table)
	if err != nil {
		return err
	}
	if c.staging == nil {
		return &dataglue.ConfigError{Msg: "loading shards needs a staging bucket"}
	}

	prefix := stagePrefix()
	defer c.cleanupStaging(ctx, prefix)

	uris, err := c.staging.UploadAll(ctx, paths, prefix)
	if err != nil {
		return err
	}
	return c.LoadURIs(ctx, dataset, tbl, uris, cfg, nil, Fail)
}

func splitTable(name string) (string, string, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &dataglue.ConfigError{Msg: fmt.Sprintf("table must be qualified as dataset.table: %q", name)}
	}
	return parts[0], parts[1], nil
}

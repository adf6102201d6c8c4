// Package bq runs BigQuery load, query and export jobs over staged
// CSV files.
package bq

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"google.golang.org/api/googleapi"

	"github.com/okuraya/dataglue"
	"github.com/okuraya/dataglue/gcs"
	"github.com/okuraya/dataglue/jobs"
)

// Option is an option for Client.
type Option interface {
	apply(*Client) error
}

type option func(*Client) error

func (o option) apply(c *Client) error {
	return o(c)
}

// WithStagingBucket sets the bucket used to stage loads and exports.
// Stream loads and every export path need one.
func WithStagingBucket(b *gcs.Bucket) Option {
	return option(func(c *Client) error {
		c.staging = b
		return nil
	})
}

// WithPoller sets the poller that waits on jobs. The default polls
// every second.
func WithPoller(p *jobs.Poller) Option {
	return option(func(c *Client) error {
		c.poller = p
		return nil
	})
}

// WithLocation pins created datasets and query jobs to a location.
func WithLocation(location string) Option {
	return option(func(c *Client) error {
		c.location = location
		return nil
	})
}

// Client wraps a caller-owned BigQuery client.
type Client struct {
	bq       *bigquery.Client
	staging  *gcs.Bucket
	poller   *jobs.Poller
	location string
}

// New builds a Client on client. The caller keeps ownership of client
// and closes it.
func New(client *bigquery.Client, opts ...Option) (*Client, error) {
	c := &Client{bq: client}
	for _, o := range opts {
		if err := o.apply(c); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}
	if c.poller == nil {
		p, err := jobs.NewPoller()
		if err != nil {
			return nil, err
		}
		c.poller = p
	}
	return c, nil
}

// IfMissing selects what resource lookups do when the dataset or table
// does not exist yet.
type IfMissing int

const (
	// Fail reports a missing resource as an error.
	Fail IfMissing = iota
	// Create creates the missing resource first.
	Create
)

// Dataset returns a dataset handle, creating the dataset in the
// configured location when mode is Create and it does not exist.
func (c *Client) Dataset(ctx context.Context, id string, mode IfMissing) (*bigquery.Dataset, error) {
	ds := c.bq.Dataset(id)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return ds, nil
	}
	if !isNotFound(err) || mode != Create {
		return nil, xerrors.Errorf("failed to get dataset %s: %w", id, err)
	}

	log.Ctx(ctx).Debug().Msgf("creating dataset %s", id)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: c.location}); err != nil {
		return nil, xerrors.Errorf("failed to create dataset %s: %w", id, err)
	}
	return ds, nil
}

// Table returns a table handle, creating the table when mode is Create
// and it does not exist. Creating needs a schema.
func (c *Client) Table(ctx context.Context, dataset, table string, schema bigquery.Schema, mode IfMissing) (*bigquery.Table, error) {
	if mode == Create && schema == nil {
		return nil, &dataglue.ConfigError{Msg: "cannot create a table without a schema"}
	}

	ds, err := c.Dataset(ctx, dataset, mode)
	if err != nil {
		return nil, err
	}

	t := ds.Table(table)
	_, err = t.Metadata(ctx)
	if err == nil {
		return t, nil
	}
	if !isNotFound(err) || mode != Create {
		return nil, xerrors.Errorf("failed to get table %s.%s: %w", dataset, table, err)
	}

	log.Ctx(ctx).Debug().Msgf("creating table %s.%s", dataset, table)
	if err := t.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return nil, xerrors.Errorf("failed to create table %s.%s: %w", dataset, table, err)
	}
	return t, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func stagePrefix() string {
	return "dataglue/" + uuid.NewString() + "/"
}

// cleanupStaging removes staged objects even when the surrounding
// operation was canceled.
func (c *Client) cleanupStaging(ctx context.Context, prefix string) {
	ctx = context.WithoutCancel(ctx)
	if err := c.staging.Remove(ctx, prefix); err != nil {
		log.Ctx(ctx).Warn().Msgf("failed to remove staging objects under %s: %v", prefix, err)
	}
}

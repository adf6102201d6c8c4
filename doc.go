/*

Package dataglue moves bulk data between SQL stores, warehouses and
object storage as delimited text, and waits on the asynchronous jobs
those transfers spawn.

Getting started

The Copier is the highest level entry point. It wires a source store to
a destination store and moves one query result per call through
temporary shard files:

	package main

	import (
		"context"
		"os"

		"github.com/okuraya/dataglue"
		"github.com/okuraya/dataglue/notify"
		"github.com/okuraya/dataglue/postgres"
	)

	func main() {
		ctx := context.Background()

		src, err := postgres.Connect(ctx, os.Getenv("WAREHOUSE_URL"))
		if err != nil {
			panic(err)
		}
		defer src.Close(ctx)

		dst, err := postgres.Connect(ctx, os.Getenv("REPORTING_URL"))
		if err != nil {
			panic(err)
		}
		defer dst.Close(ctx)

		copier, err := dataglue.New(src, dst,
			dataglue.WithNotifier(&notify.Slack{
				Token:   os.Getenv("SLACK_TOKEN"),
				Channel: os.Getenv("SLACK_CHANNEL"),
			}),
		)
		if err != nil {
			panic(err)
		}

		cfg := dataglue.DefaultTransferConfig()
		cfg.Header = true
		cfg.Truncate = true

		err = copier.Copy(ctx,
			"SELECT id, email FROM users WHERE active", "reporting.active_users", cfg)
		if err != nil {
			panic(err)
		}
	}

Stores that shard their extracts or load whole file sets at once, such
as the BigQuery client in package bq, plug into the same two ends: the
Copier picks the sharded fast path when a store implements
ShardedSource or ShardedDestination.

The subpackages stand alone as well: postgres wraps COPY-based bulk
transfer, bq runs load, query and export jobs, gcs and s3 stage shard
files in object storage, jobs polls asynchronous work to completion,
delim reads and writes the delimited text itself, and audience, gsheet
and gdrive cover the remaining transfer targets.

*/
package dataglue

package dataglue

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/okuraya/dataglue/notify"
)

// Source streams the result of a query as delimited text.
type Source interface {
	Extract(ctx context.Context, query string, w io.Writer, cfg TransferConfig) error
}

// Destination loads delimited text into a table.
type Destination interface {
	Load(ctx context.Context, table string, r io.Reader, cfg TransferConfig) error
}

// ShardedSource extracts a query result into one file per shard under
// a directory. Stores that parallelize their exports implement this on
// top of Source; the Copier prefers it when present.
type ShardedSource interface {
	ExtractShards(ctx context.Context, query, dir string, cfg TransferConfig) ([]string, error)
}

// ShardedDestination loads a set of shard files as one operation,
// keeping whatever atomicity the store can offer across the batch.
type ShardedDestination interface {
	LoadShards(ctx context.Context, table string, paths []string, cfg TransferConfig) error
}

// Result is the report a notifier receives when a copy finishes.
type Result struct {
	Query   string
	Table   string
	Shards  int
	Elapsed time.Duration
	Err     error
}

func (r Result) message() notify.Message {
	if r.Err != nil {
		return notify.Message{
			Subject: fmt.Sprintf("copy into %s failed", r.Table),
			Body:    fmt.Sprintf("query: %s\nelapsed: %s\nerror: %v", r.Query, r.Elapsed, r.Err),
		}
	}
	return notify.Message{
		Subject: fmt.Sprintf("copy into %s finished", r.Table),
		Body:    fmt.Sprintf("query: %s\nshards: %d\nelapsed: %s", r.Query, r.Shards, r.Elapsed),
	}
}

// Copier moves query results from a source store into destination
// tables through temporary shard files.
type Copier struct {
	src      Source
	dst      Destination
	workDir  string
	notifier notify.Notifier
	logger   zerolog.Logger
	pretty   bool
	level    string
}

// New builds a Copier from a source and a destination.
func New(src Source, dst Destination, opts ...Option) (*Copier, error) {
	if src == nil || dst == nil {
		return nil, &ConfigError{Msg: "source and destination must not be nil"}
	}

	c := &Copier{src: src, dst: dst, workDir: os.TempDir(), logger: log.Logger}
	for _, o := range opts {
		if err := o.apply(c); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}

	if c.pretty {
		c.logger = c.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if c.level != "" {
		lvl, err := zerolog.ParseLevel(c.level)
		if err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("unknown log level %q", c.level)}
		}
		c.logger = c.logger.Level(lvl)
	}
	return c, nil
}

// Copy moves the result of query into table. Rows travel through
// shard files in a private temporary directory that is removed on
// every exit path. When a notifier is configured it receives a report
// either way; notification failures are logged, never returned.
func (c *Copier) Copy(ctx context.Context, query, table string, cfg TransferConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx = c.logger.WithContext(ctx)
	ctx = withStartedTime(ctx)
	l := log.Ctx(ctx)
	l.Debug().Msgf("copy into %s started", table)

	dir, err := os.MkdirTemp(c.workDir, "dataglue-*")
	if err != nil {
		return &IOError{Op: "mkdir", Path: c.workDir, Err: err}
	}
	defer os.RemoveAll(dir)

	shards, err := c.extract(ctx, query, dir, cfg)
	if err == nil {
		err = c.load(ctx, table, shards, cfg)
	}

	c.report(ctx, Result{
		Query:   query,
		Table:   table,
		Shards:  len(shards),
		Elapsed: elapsed(ctx),
		Err:     err,
	})
	if err != nil {
		return err
	}

	l.Debug().Msgf("copy into %s finished with %d shards", table, len(shards))
	return nil
}

// extract runs the source side and returns shard paths in
// lexicographic order. A query with no output still yields one empty
// shard so the load step, and with it Truncate, always runs.
func (c *Copier) extract(ctx context.Context, query, dir string, cfg TransferConfig) ([]string, error) {
	s, ok := c.src.(ShardedSource)
	if !ok {
		return c.extractSingle(ctx, query, dir, cfg)
	}

	shards, err := s.ExtractShards(ctx, query, dir, cfg)
	if err != nil {
		return nil, xerrors.Errorf("failed to extract: %w", err)
	}
	if len(shards) == 0 {
		return c.emptyShard(dir)
	}
	sort.Strings(shards)
	return shards, nil
}

func (c *Copier) extractSingle(ctx context.Context, query, dir string, cfg TransferConfig) ([]string, error) {
	path := filepath.Join(dir, "shard-000000.csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	if err := c.src.Extract(ctx, query, f, cfg); err != nil {
		f.Close()
		return nil, xerrors.Errorf("failed to extract: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, &IOError{Op: "close", Path: path, Err: err}
	}
	return []string{path}, nil
}

func (c *Copier) emptyShard(dir string) ([]string, error) {
	path := filepath.Join(dir, "shard-000000.csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, &IOError{Op: "close", Path: path, Err: err}
	}
	return []string{path}, nil
}

func (c *Copier) load(ctx context.Context, table string, shards []string, cfg TransferConfig) error {
	if d, ok := c.dst.(ShardedDestination); ok {
		if err := d.LoadShards(ctx, table, shards, cfg); err != nil {
			return xerrors.Errorf("failed to load: %w", err)
		}
		return nil
	}

	for i, path := range shards {
		if i > 0 {
			// Truncating again would drop the shards already loaded.
			cfg.Truncate = false
		}
		if err := c.loadShard(ctx, table, path, cfg); err != nil {
			return xerrors.Errorf("failed to load shard %d: %w", i, err)
		}
	}
	return nil
}

func (c *Copier) loadShard(ctx context.Context, table, path string, cfg TransferConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return c.dst.Load(ctx, table, f, cfg)
}

func (c *Copier) report(ctx context.Context, r Result) {
	l := log.Ctx(ctx)
	if r.Err != nil {
		l.Error().Msgf("copy into %s failed after %s: %v", r.Table, r.Elapsed, r.Err)
	}
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, r.message()); err != nil {
		l.Warn().Msgf("failed to notify: %v", err)
	}
}

func elapsed(ctx context.Context) time.Duration {
	if t, ok := startedTimeFrom(ctx); ok {
		return time.Since(t).Round(time.Millisecond)
	}
	return 0
}

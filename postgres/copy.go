package postgres

import (
	"context"
	"io"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/okuraya/dataglue"
	"github.com/okuraya/dataglue/delim"
)

// Extract streams the result of query into w as delimited text. The
// rendering happens server side through COPY, so cfg's delimiter, null
// token, header and encoding are applied by PostgreSQL itself.
func (s *Store) Extract(ctx context.Context, query string, w io.Writer, cfg dataglue.TransferConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sql := copyToSQL(query, cfg)
	log.Ctx(ctx).Debug().Msgf("extracting: %s", sql)

	tag, err := s.conn.PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return classifyExtract(query, err)
	}
	log.Ctx(ctx).Debug().Msgf("extracted %d rows", tag.RowsAffected())
	return nil
}

// ExtractToPath writes the result of query to a file at path. A partial
// file left by a failed extract is removed.
func (s *Store) ExtractToPath(ctx context.Context, query, path string, cfg dataglue.TransferConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return &dataglue.IOError{Op: "create", Path: path, Err: err}
	}

	if err := s.Extract(ctx, query, f, cfg); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return &dataglue.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Dump streams a whole table into w. Column order is the table's own
// unless cfg.Columns narrows it.
func (s *Store) Dump(ctx context.Context, table string, w io.Writer, cfg dataglue.TransferConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sql := copyTableSQL(table, cfg)
	log.Ctx(ctx).Debug().Msgf("dumping: %s", sql)

	if _, err := s.conn.PgConn().CopyTo(ctx, w, sql); err != nil {
		return classifyExtract(sql, err)
	}
	return nil
}

// DumpToPath writes a whole table to a file at path.
func (s *Store) DumpToPath(ctx context.Context, table, path string, cfg dataglue.TransferConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return &dataglue.IOError{Op: "create", Path: path, Err: err}
	}

	if err := s.Dump(ctx, table, f, cfg); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return &dataglue.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Load copies delimited rows from r into table. The optional truncate
// and the copy run in one transaction: a failure at any point leaves
// the table exactly as it was.
func (s *Store) Load(ctx context.Context, table string, r io.Reader, cfg dataglue.TransferConfig) error {
	return s.load(ctx, table, cfg, func(ctx context.Context, conn *pgx.Conn) error {
		return copyIn(ctx, conn, table, r, cfg)
	})
}

// LoadFromPath loads one file into table.
func (s *Store) LoadFromPath(ctx context.Context, table, path string, cfg dataglue.TransferConfig) error {
	return s.LoadShards(ctx, table, []string{path}, cfg)
}

// LoadShards loads every shard file into table inside one transaction.
// With cfg.Truncate the table is emptied once, before the first shard;
// a failure in any shard rolls the whole load back.
func (s *Store) LoadShards(ctx context.Context, table string, paths []string, cfg dataglue.TransferConfig) error {
	return s.load(ctx, table, cfg, func(ctx context.Context, conn *pgx.Conn) error {
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				return &dataglue.IOError{Op: "open", Path: path, Err: err}
			}
			err = copyIn(ctx, conn, table, f, cfg)
			f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadRows encodes rows through the delimited codec into a scoped
// temporary file and loads that file. The file is removed on every
// exit path.
func (s *Store) LoadRows(ctx context.Context, table string, rows [][]string, cfg dataglue.TransferConfig) error {
	f, err := os.CreateTemp("", "dataglue-rows-")
	if err != nil {
		return &dataglue.IOError{Op: "create", Err: err}
	}
	defer os.Remove(f.Name())
	defer f.Close()

	w, err := delim.NewWriter(f, cfg)
	if err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return &dataglue.IOError{Op: "seek", Path: f.Name(), Err: err}
	}

	return s.Load(ctx, table, f, cfg)
}

func (s *Store) load(ctx context.Context, table string, cfg dataglue.TransferConfig, fn func(context.Context, *pgx.Conn) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(ctx)

	if cfg.Truncate {
		sql := truncateSQL(table)
		log.Ctx(ctx).Debug().Msgf("truncating: %s", sql)
		if _, err := tx.Exec(ctx, sql); err != nil {
			return classifyStatement(sql, err)
		}
	}

	if err := fn(ctx, tx.Conn()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return xerrors.Errorf("failed to commit load into %s: %w", table, err)
	}
	return nil
}

func copyIn(ctx context.Context, conn *pgx.Conn, table string, r io.Reader, cfg dataglue.TransferConfig) error {
	sql := copyFromSQL(table, cfg)
	log.Ctx(ctx).Debug().Msgf("loading: %s", sql)

	tag, err := conn.PgConn().CopyFrom(ctx, r, sql)
	if err != nil {
		return classifyLoad(table, sql, err)
	}
	log.Ctx(ctx).Debug().Msgf("loaded %d rows into %s", tag.RowsAffected(), table)
	return nil
}

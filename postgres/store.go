// Package postgres moves bulk data in and out of PostgreSQL over the
// server's native COPY protocol.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/xerrors"
)

// Store runs statements and bulk transfers on a single connection.
// It is not safe for concurrent use, the same as the connection it
// wraps.
type Store struct {
	conn    *pgx.Conn
	ownConn bool
}

// NewStore wraps an existing connection. The caller keeps ownership
// of the connection and is responsible for closing it.
func NewStore(conn *pgx.Conn) *Store {
	return &Store{conn: conn}
}

// Connect dials dsn and returns a Store that owns the connection.
// Close releases it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to connect to postgres: %w", err)
	}
	return &Store{conn: conn, ownConn: true}, nil
}

// Close closes the connection when the Store owns it and is a no-op
// otherwise.
func (s *Store) Close(ctx context.Context) error {
	if !s.ownConn {
		return nil
	}
	return s.conn.Close(ctx)
}

// Conn returns the underlying connection.
func (s *Store) Conn() *pgx.Conn { return s.conn }

// Execute runs a statement and returns the number of rows affected.
func (s *Store) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classifyStatement(sql, err)
	}
	return tag.RowsAffected(), nil
}

// Select runs a query and returns its result as a row stream.
func (s *Store) Select(ctx context.Context, sql string, args ...any) (*Rows, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyStatement(sql, err)
	}

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return &Rows{rows: rows, cols: cols}, nil
}

// Rows streams a query result with every value rendered as text.
type Rows struct {
	rows pgx.Rows
	cols []string
}

// Next advances to the next row. It returns false when no rows remain;
// check Err afterwards.
func (r *Rows) Next() bool { return r.rows.Next() }

// Strings returns the current row as text. SQL NULL renders as an
// empty string, indistinguishable from an empty text value; callers
// needing the distinction should extract through the COPY path with a
// dedicated null token instead.
func (r *Rows) Strings() ([]string, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, xerrors.Errorf("failed to read row: %w", err)
	}

	out := make([]string, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// Columns returns the column names of the result.
func (r *Rows) Columns() []string { return r.cols }

// Err returns the error, if any, that ended the iteration.
func (r *Rows) Err() error { return r.rows.Err() }

// Close releases the result. It is safe to call more than once.
func (r *Rows) Close() { r.rows.Close() }

package postgres

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okuraya/dataglue"
)

// lineRe pulls the line number out of a COPY error context such as
// `COPY users, line 3, column id: "x"`.
var lineRe = regexp.MustCompile(`\bline (\d+)`)

// classifyStatement maps server-side rejections of plain statements to
// QueryError. Transport errors pass through untouched.
func classifyStatement(sql string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &dataglue.QueryError{Query: sql, Err: pgErr}
	}
	return err
}

// classifyExtract maps COPY TO failures. The server rejects bad SQL as
// a PgError; anything else came from the destination stream.
func classifyExtract(query string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &dataglue.QueryError{Query: query, Err: pgErr}
	}
	return &dataglue.IOError{Op: "write", Err: err}
}

// classifyLoad maps COPY FROM failures. Column mismatches become
// SchemaError, malformed or rejected row data becomes LoadError with
// the server-reported line, and bad SQL or identifiers QueryError.
func classifyLoad(table, sql string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &dataglue.IOError{Op: "read", Err: err}
	}

	switch {
	case pgErr.Code == "42703" || pgErr.Code == "42P10" || pgErr.Code == "22P04":
		return &dataglue.SchemaError{Msg: pgErr.Message, Err: pgErr}
	case strings.HasPrefix(pgErr.Code, "42"):
		return &dataglue.QueryError{Query: sql, Err: pgErr}
	default:
		return &dataglue.LoadError{Table: table, Line: copyLine(pgErr), Err: pgErr}
	}
}

func copyLine(pgErr *pgconn.PgError) int64 {
	m := lineRe.FindStringSubmatch(pgErr.Where)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/okuraya/dataglue"
)

// quoteIdent quotes a possibly schema-qualified table name.
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// quoteLiteral quotes a string for use inside COPY options.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// pgEncoding maps an IANA-ish charset name onto a PostgreSQL encoding
// name. PostgreSQL knows the common aliases once separators are gone,
// e.g. utf-8 becomes UTF8 and shift_jis becomes SHIFTJIS.
func pgEncoding(name string) string {
	if name == "" {
		return "UTF8"
	}
	n := strings.ToUpper(name)
	n = strings.ReplaceAll(n, "-", "")
	n = strings.ReplaceAll(n, "_", "")
	return n
}

func columnSuffix(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return " (" + strings.Join(quoted, ", ") + ")"
}

func copyOptions(cfg dataglue.TransferConfig) string {
	header := "FALSE"
	if cfg.Header {
		header = "TRUE"
	}
	return fmt.Sprintf("(FORMAT CSV, HEADER %s, NULL %s, DELIMITER %s, ENCODING %s)",
		header,
		quoteLiteral(cfg.NullToken),
		quoteLiteral(string(cfg.Delimiter)),
		quoteLiteral(pgEncoding(cfg.Encoding)),
	)
}

func copyToSQL(query string, cfg dataglue.TransferConfig) string {
	return fmt.Sprintf("COPY (%s) TO STDOUT WITH %s", query, copyOptions(cfg))
}

func copyTableSQL(table string, cfg dataglue.TransferConfig) string {
	return fmt.Sprintf("COPY %s%s TO STDOUT WITH %s", quoteIdent(table), columnSuffix(cfg.Columns), copyOptions(cfg))
}

func copyFromSQL(table string, cfg dataglue.TransferConfig) string {
	return fmt.Sprintf("COPY %s%s FROM STDIN WITH %s", quoteIdent(table), columnSuffix(cfg.Columns), copyOptions(cfg))
}

func truncateSQL(table string) string {
	return "TRUNCATE TABLE " + quoteIdent(table)
}

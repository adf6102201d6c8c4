package postgres

import (
	"testing"

	"github.com/okuraya/dataglue"
)

func TestCopyToSQL(t *testing.T) {
	cfg := dataglue.TransferConfig{Delimiter: ',', Header: true}

	got := copyToSQL("SELECT id, name FROM users", cfg)
	want := `COPY (SELECT id, name FROM users) TO STDOUT WITH (FORMAT CSV, HEADER TRUE, NULL '', DELIMITER ',', ENCODING 'UTF8')`
	if got != want {
		t.Errorf("sql should be %q, but %q", want, got)
	}
}

func TestCopyFromSQL(t *testing.T) {
	cfg := dataglue.TransferConfig{
		Delimiter: '\t',
		NullToken: "\\N",
		Columns:   []string{"id", "name"},
	}

	got := copyFromSQL("public.users", cfg)
	want := `COPY "public"."users" ("id", "name") FROM STDIN WITH (FORMAT CSV, HEADER FALSE, NULL '\N', DELIMITER '	', ENCODING 'UTF8')`
	if got != want {
		t.Errorf("sql should be %q, but %q", want, got)
	}
}

func TestCopyTableSQL(t *testing.T) {
	cfg := dataglue.TransferConfig{Delimiter: ',', Encoding: "shift_jis"}

	got := copyTableSQL("events", cfg)
	want := `COPY "events" TO STDOUT WITH (FORMAT CSV, HEADER FALSE, NULL '', DELIMITER ',', ENCODING 'SHIFTJIS')`
	if got != want {
		t.Errorf("sql should be %q, but %q", want, got)
	}
}

func TestTruncateSQL(t *testing.T) {
	if got, want := truncateSQL("stats.daily"), `TRUNCATE TABLE "stats"."daily"`; got != want {
		t.Errorf("sql should be %q, but %q", want, got)
	}
}

func TestQuoteIdent(t *testing.T) {
	cases := map[string]string{
		"users":          `"users"`,
		"public.users":   `"public"."users"`,
		`weird"name`:     `"weird""name"`,
		"MixedCaseTable": `"MixedCaseTable"`,
	}
	for in, want := range cases {
		if got := quoteIdent(in); got != want {
			t.Errorf("quoteIdent(%q) should be %q, but %q", in, want, got)
		}
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got, want := quoteLiteral("it's"), `'it''s'`; got != want {
		t.Errorf("literal should be %q, but %q", want, got)
	}
}

func TestPgEncoding(t *testing.T) {
	cases := map[string]string{
		"":           "UTF8",
		"utf-8":      "UTF8",
		"UTF-8":      "UTF8",
		"latin1":     "LATIN1",
		"iso-8859-1": "ISO88591",
		"shift_jis":  "SHIFTJIS",
	}
	for in, want := range cases {
		if got := pgEncoding(in); got != want {
			t.Errorf("pgEncoding(%q) should be %q, but %q", in, want, got)
		}
	}
}

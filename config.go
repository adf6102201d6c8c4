package dataglue

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// TransferConfig describes the delimited text format exchanged between
// stores during a transfer. Configs are plain values created per call;
// there are no process-wide defaults to mutate.
type TransferConfig struct {
	// Delimiter separates fields within a row.
	Delimiter rune

	// Encoding names the character set of the delimited text, such as
	// "utf-8" or "shift_jis". Empty means UTF-8. The codec resolves
	// names through the IANA charset index; the Postgres store passes
	// the name to COPY's ENCODING option.
	Encoding string

	// NullToken is the text standing for an absent value. When it is
	// empty, an empty field and NULL are indistinguishable on decode;
	// callers that need the distinction must pick a token guaranteed
	// absent from real data.
	NullToken string

	// Header marks the first line as column names.
	Header bool

	// Columns restricts a load to the named destination columns, in
	// positional correspondence with the fields of each row. Writers
	// use it as the header line when Header is set.
	Columns []string

	// Truncate empties the destination table before loading, within
	// the same transaction as the load.
	Truncate bool
}

// DefaultTransferConfig returns the baseline format: tab-delimited UTF-8
// with no header and an empty null token.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{Delimiter: '\t'}
}

// Validate reports a ConfigError when the config cannot describe a valid
// delimited format.
func (c TransferConfig) Validate() error {
	if c.Delimiter == 0 {
		return &ConfigError{Msg: "delimiter must be set"}
	}
	if c.Delimiter != '\t' && (c.Delimiter < ' ' || c.Delimiter > '~') {
		return &ConfigError{Msg: fmt.Sprintf("delimiter %q must be a tab or a printable ASCII character", c.Delimiter)}
	}
	if c.Delimiter == '"' {
		return &ConfigError{Msg: "delimiter must not be a double quote"}
	}
	if c.NullToken != "" && strings.ContainsRune(c.NullToken, c.Delimiter) {
		return &ConfigError{Msg: "null token must not contain the delimiter"}
	}
	if c.Encoding != "" {
		if _, err := htmlindex.Get(c.Encoding); err != nil {
			return &ConfigError{Msg: fmt.Sprintf("unknown encoding %q", c.Encoding)}
		}
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		if col == "" {
			return &ConfigError{Msg: "column names must not be empty"}
		}
		if _, ok := seen[col]; ok {
			return &ConfigError{Msg: fmt.Sprintf("duplicate column %q", col)}
		}
		seen[col] = struct{}{}
	}
	return nil
}

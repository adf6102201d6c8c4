package delim

import (
	"encoding/csv"
	"errors"
	"io"

	"golang.org/x/text/transform"

	"github.com/okuraya/dataglue"
)

// Reader reads rows from delimited text. Rows are yielded lazily; a
// consumed stream can only be restarted by reopening it.
type Reader struct {
	cr      *csv.Reader
	columns []string
}

// NewReader returns a Reader on r configured by cfg. When cfg.Header is
// set the first line is consumed immediately and exposed via Columns.
func NewReader(r io.Reader, cfg dataglue.TransferConfig) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc, err := encodingFor(cfg.Encoding)
	if err != nil {
		return nil, &dataglue.ConfigError{Msg: err.Error()}
	}
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.Comma = cfg.Delimiter
	// Row width is the destination's concern, not the codec's.
	cr.FieldsPerRecord = -1

	dr := &Reader{cr: cr}
	if cfg.Header {
		header, err := dr.Read()
		if err != nil && err != io.EOF {
			return nil, err
		}
		dr.columns = header
	}
	return dr, nil
}

// Columns returns the column names consumed from the header line, or nil
// when the config has no header or the stream was empty.
func (r *Reader) Columns() []string { return r.columns }

// Read returns the next record. Fields pass through verbatim, including
// any that equal the null token. At the end of the stream Read returns
// io.EOF.
func (r *Reader) Read() ([]string, error) {
	record, err := r.cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Malformed rows keep their line context for the caller
			// to classify.
			return nil, err
		}
		return nil, &dataglue.IOError{Op: "read", Err: err}
	}
	return record, nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([][]string, error) {
	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

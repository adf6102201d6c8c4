package delim

import (
	"encoding/csv"
	"io"

	"golang.org/x/text/transform"

	"github.com/okuraya/dataglue"
)

// Writer writes rows as delimited text. It buffers internally; call
// Close (or WriteAll, which flushes) before relying on the destination
// stream being complete.
type Writer struct {
	cw *csv.Writer
	tw io.WriteCloser // transcoding layer, nil when the output is UTF-8
}

// NewWriter returns a Writer on w configured by cfg. When cfg.Header is
// set the column names are written as the first line, which requires
// cfg.Columns.
func NewWriter(w io.Writer, cfg dataglue.TransferConfig) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Header && len(cfg.Columns) == 0 {
		return nil, &dataglue.ConfigError{Msg: "header requested but no columns given"}
	}

	enc, err := encodingFor(cfg.Encoding)
	if err != nil {
		return nil, &dataglue.ConfigError{Msg: err.Error()}
	}

	out := w
	var tw io.WriteCloser
	if enc != nil {
		t := transform.NewWriter(w, enc.NewEncoder())
		tw, out = t, t
	}

	cw := csv.NewWriter(out)
	cw.Comma = cfg.Delimiter

	dw := &Writer{cw: cw, tw: tw}
	if cfg.Header {
		if err := dw.Write(cfg.Columns); err != nil {
			return nil, err
		}
	}
	return dw, nil
}

// Write writes one record. Fields pass through verbatim, including any
// that equal the null token.
func (w *Writer) Write(record []string) error {
	if err := w.cw.Write(record); err != nil {
		return &dataglue.IOError{Op: "write", Err: err}
	}
	return nil
}

// WriteAll writes every record and flushes.
func (w *Writer) WriteAll(records [][]string) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush writes buffered records to the underlying stream.
func (w *Writer) Flush() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return &dataglue.IOError{Op: "write", Err: err}
	}
	return nil
}

// Close flushes buffered records and completes any pending character
// transcoding. The underlying stream is not closed.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.tw != nil {
		if err := w.tw.Close(); err != nil {
			return &dataglue.IOError{Op: "write", Err: err}
		}
	}
	return nil
}

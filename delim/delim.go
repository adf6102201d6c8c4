// Package delim encodes and decodes row sets as delimited text.
//
// The format is CSV with a configurable delimiter, character encoding,
// and optional header line, as described by a dataglue.TransferConfig.
// Fields always round-trip as text; the codec never converts types and
// never substitutes null tokens. A field equal to the configured null
// token represents an absent value by convention between the producer
// and the consumer. With an empty null token an empty field and an
// absent value are indistinguishable; callers that need the distinction
// must configure a token guaranteed absent from real data.
package delim

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/xerrors"
)

// encodingFor resolves a charset name. It returns nil for UTF-8 so the
// identity transform can be skipped.
func encodingFor(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve encoding %q: %w", name, err)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

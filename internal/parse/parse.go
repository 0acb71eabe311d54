// Package parse turns raw document bytes into an ordered sequence of page
// texts.
//
// Text extraction quality is not this package's concern; the contract is
// only "bytes in, pages out". Pages with no extractable text are returned
// as-is — filtering belongs to the ingestion pipeline, which knows whether
// an all-empty document is an error.
package parse

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrParse indicates the document bytes could not be interpreted.
var ErrParse = errors.New("document parse failed")

// Parser extracts page texts from a raw document.
type Parser interface {
	Parse(raw []byte) ([]string, error)
}

// PlainText parses UTF-8 text documents. Pages are separated by form feed
// characters, the convention used by text exports of paginated documents.
type PlainText struct{}

// NewPlainText creates a plain-text parser.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Parse splits the document into pages. Returns ErrParse for byte content
// that is not valid UTF-8 text.
func (*PlainText) Parse(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", ErrParse)
	}

	pages := strings.Split(string(raw), "\f")
	for i := range pages {
		pages[i] = strings.TrimSpace(pages[i])
	}
	return pages, nil
}

// Package records holds the ordered string row that flows through a
// migration: a shared Schema (field names and their positions) and per-row
// values aligned to it.
package records

import (
	"io"
	"strings"
)

// KeySep joins the parts of a composite key or value. It is the ASCII unit
// separator, which does not occur in identifiers or names.
const KeySep = "\x1f"

// Join builds a composite key or value from its parts.
func Join(parts ...string) string { return strings.Join(parts, KeySep) }

// Split is the inverse of Join.
func Split(s string) []string { return strings.Split(s, KeySep) }

// Schema is the fixed field set of an input, resolved once at header time.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a Schema from header names. Names are trimmed; when a name
// repeats, lookups by name return the first occurrence.
func NewSchema(names []string) *Schema {
	s := &Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		s.names[i] = n
		if _, dup := s.index[n]; !dup {
			s.index[n] = i
		}
	}
	return s
}

// Names returns a copy of the field names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len is the number of fields.
func (s *Schema) Len() int { return len(s.names) }

// Index returns the position of name.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Has reports whether name is part of the schema.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Row is one input record. Values may be shorter than the schema (missing
// trailing cells); absent fields read as "".
type Row struct {
	Schema *Schema
	Values []string
	// Line is the 1-based data line in the input (header excluded).
	Line int
}

// Get returns the value of field name, or "" when the field is absent.
func (r Row) Get(name string) string {
	if r.Schema == nil {
		return ""
	}
	i, ok := r.Schema.index[name]
	if !ok {
		return ""
	}
	return r.At(i)
}

// At returns the value at position i, or "" when out of range.
func (r Row) At(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Reader yields rows of a tabular source lazily. Next returns io.EOF after the
// last row. Implementations are not safe for concurrent use.
type Reader interface {
	Schema() *Schema
	Next() (Row, error)
	Close() error
}

// SliceReader serves rows from memory. It backs tests and inline value maps.
type SliceReader struct {
	schema *Schema
	rows   [][]string
	pos    int
}

// NewSliceReader returns a Reader over header and rows.
func NewSliceReader(header []string, rows [][]string) *SliceReader {
	return &SliceReader{schema: NewSchema(header), rows: rows}
}

func (s *SliceReader) Schema() *Schema { return s.schema }

func (s *SliceReader) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	s.pos++
	return Row{Schema: s.schema, Values: s.rows[s.pos-1], Line: s.pos}, nil
}

func (s *SliceReader) Close() error { return nil }

// Package csv reads delimited text into records.Row values, one row per Next
// call, so inputs far larger than memory can be processed chunk by chunk.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"idremap/internal/config"
	"idremap/internal/records"
)

// Reader is a records.Reader over CSV text with a header line.
//
// Options (all optional):
//   - comma (string; first rune used, "tab" for a tab; default ',')
//   - lazy_quotes (bool; default false) → csv.Reader.LazyQuotes
//   - trim_header (bool; default true) trims header cells
//   - header_map (object) renames header cells (source name → field name)
type Reader struct {
	src    io.ReadCloser
	cr     *csv.Reader
	schema *records.Schema
	name   string
	line   int // physical record number, header = 1
	rows   int
}

// NewReader reads the header from src. name identifies the input in errors.
// A missing header (empty input) is an error.
func NewReader(src io.ReadCloser, name string, opt config.Options) (*Reader, error) {
	cr := csv.NewReader(SkipBOM(src))
	cr.Comma = DecodeDelimiter(opt.String("comma", ","))
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1 // short rows read as blank trailing cells

	hdr, err := cr.Read()
	if err != nil {
		src.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv %s: empty input, no header", name)
		}
		return nil, fmt.Errorf("csv %s: read header: %w", name, err)
	}
	hdr = append([]string(nil), hdr...)
	trim := opt.Bool("trim_header", true)
	hm := opt.StringMap("header_map")
	for i, h := range hdr {
		if trim {
			h = strings.TrimSpace(h)
		}
		if mapped, ok := hm[h]; ok {
			h = mapped
		}
		hdr[i] = h
	}
	cr.ReuseRecord = true

	return &Reader{src: src, cr: cr, schema: records.NewSchema(hdr), name: name, line: 1}, nil
}

func (r *Reader) Schema() *records.Schema { return r.schema }

// Next returns the next data row. Values are copied out of the reused record
// buffer, so rows stay valid after subsequent calls. A malformed line is an
// error naming the line: skipping it would lose a record from the audit.
func (r *Reader) Next() (records.Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return records.Row{}, io.EOF
		}
		return records.Row{}, fmt.Errorf("csv %s: record %d: %w", r.name, r.line+1, err)
	}
	r.line++
	r.rows++
	vals := make([]string, len(rec))
	copy(vals, rec)
	return records.Row{Schema: r.schema, Values: vals, Line: r.rows}, nil
}

// Rows is the number of data rows read so far.
func (r *Reader) Rows() int { return r.rows }

func (r *Reader) Close() error { return r.src.Close() }

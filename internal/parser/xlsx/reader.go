// Package xlsx reads the rows of one worksheet as records.Row values. Lookup
// extracts are often handed over as spreadsheets rather than CSV.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"idremap/internal/config"
	"idremap/internal/records"
)

// Reader is a records.Reader over a worksheet whose first row is the header.
//
// Options:
//   - sheet (string; default: first sheet of the workbook)
type Reader struct {
	f      *excelize.File
	rows   *excelize.Rows
	schema *records.Schema
	name   string
	n      int
}

// NewReader opens the workbook in src and reads the header row. src is
// closed before NewReader returns; excelize keeps the workbook in memory.
func NewReader(src io.ReadCloser, name string, opt config.Options) (*Reader, error) {
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("xlsx %s: open: %w", name, err)
	}
	sheet := opt.String("sheet", "")
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("xlsx %s: workbook has no sheets", name)
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx %s: sheet %q: %w", name, sheet, err)
	}

	r := &Reader{f: f, rows: rows, name: name}
	hdr, err := r.nextNonBlank()
	if err != nil {
		r.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("xlsx %s: sheet %q is empty, no header", name, sheet)
		}
		return nil, err
	}
	for i, h := range hdr {
		hdr[i] = strings.TrimSpace(h)
	}
	r.schema = records.NewSchema(hdr)
	return r, nil
}

// nextNonBlank returns the next row with at least one non-blank cell.
func (r *Reader) nextNonBlank() ([]string, error) {
	for r.rows.Next() {
		cols, err := r.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("xlsx %s: %w", r.name, err)
		}
		for _, c := range cols {
			if strings.TrimSpace(c) != "" {
				return cols, nil
			}
		}
	}
	if err := r.rows.Error(); err != nil {
		return nil, fmt.Errorf("xlsx %s: %w", r.name, err)
	}
	return nil, io.EOF
}

func (r *Reader) Schema() *records.Schema { return r.schema }

// Next returns the next data row. Entirely blank rows are skipped; cells past
// the last non-empty one read as "".
func (r *Reader) Next() (records.Row, error) {
	cols, err := r.nextNonBlank()
	if err != nil {
		return records.Row{}, err
	}
	r.n++
	return records.Row{Schema: r.schema, Values: cols, Line: r.n}, nil
}

func (r *Reader) Close() error {
	err := r.rows.Close()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

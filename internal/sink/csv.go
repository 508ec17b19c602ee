package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Encoding selects the byte form of a CSV sink.
type Encoding int

const (
	UTF8 Encoding = iota
	// UTF8BOM prefixes the file with a byte order mark so spreadsheet tools
	// detect UTF-8 ("utf-8-sig").
	UTF8BOM
)

// ParseEncoding accepts utf-8 and utf-8-sig with common spellings; empty
// means utf-8.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "utf-8-sig", "utf8-bom", "utf-8-bom":
		return UTF8BOM, nil
	}
	return UTF8, fmt.Errorf("unknown encoding %q (want utf-8|utf-8-sig)", s)
}

// CSV is a file sink. Each Append serializes the whole chunk in memory and
// issues a single write.
type CSV struct {
	path  string
	f     *os.File
	width int
	rows  int64
	bytes int64
}

// CreateCSV creates (or truncates) path, creating parent directories, and
// writes header.
func CreateCSV(path string, enc Encoding, header []string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sink %s: %w", path, err)
		}
	}
	head, err := encodeRows(len(header), [][]string{header})
	if err != nil {
		return nil, fmt.Errorf("sink %s: header: %w", path, err)
	}
	if enc == UTF8BOM {
		if head, err = unicode.UTF8BOM.NewEncoder().Bytes(head); err != nil {
			return nil, fmt.Errorf("sink %s: encode header: %w", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", path, err)
	}
	s := &CSV{path: path, f: f, width: len(header)}
	if err := s.write(head); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes rows as one block.
func (s *CSV) Append(ctx context.Context, rows [][]string) error {
	if s.f == nil {
		return wrapErr(s, errClosed)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeRows(s.width, rows)
	if err != nil {
		return wrapErr(s, err)
	}
	if err := s.write(b); err != nil {
		return err
	}
	s.rows += int64(len(rows))
	return nil
}

func (s *CSV) write(b []byte) error {
	n, err := s.f.Write(b)
	s.bytes += int64(n)
	if err != nil {
		return wrapErr(s, err)
	}
	return nil
}

// Close closes the file.
func (s *CSV) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return wrapErr(s, err)
	}
	return nil
}

// Name returns the file path.
func (s *CSV) Name() string { return s.path }

// Rows returns the data rows written so far.
func (s *CSV) Rows() int64 { return s.rows }

// Bytes returns the bytes written so far, header included.
func (s *CSV) Bytes() int64 { return s.bytes }

// encodeRows renders rows with encoding/csv, rejecting ragged rows.
func encodeRows(width int, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i, len(r), width)
		}
		if err := w.Write(r); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

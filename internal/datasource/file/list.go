package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"idremap/internal/records"
)

// ListReader serves a plain text list (one value per line) as single-column
// rows. Lines that are empty or start with '#' after trimming are skipped,
// so exclusion lists can carry comments and blank separators.
type ListReader struct {
	src    io.ReadCloser
	sc     *bufio.Scanner
	schema *records.Schema
	n      int
}

// NewListReader exposes src as rows of the single column name.
func NewListReader(src io.ReadCloser, column string) *ListReader {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ListReader{src: src, sc: sc, schema: records.NewSchema([]string{column})}
}

func (l *ListReader) Schema() *records.Schema { return l.schema }

func (l *ListReader) Next() (records.Row, error) {
	for l.sc.Scan() {
		line := strings.TrimSpace(l.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.n++
		return records.Row{Schema: l.schema, Values: []string{line}, Line: l.n}, nil
	}
	if err := l.sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return records.Row{}, fmt.Errorf("list: %w", err)
	}
	return records.Row{}, io.EOF
}

func (l *ListReader) Close() error { return l.src.Close() }

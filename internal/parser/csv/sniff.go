package csv

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"
)

// Sample describes the start of a delimited file.
type Sample struct {
	HasBOM    bool
	Delimiter rune
	Header    []string
	Rows      [][]string
}

// candidates are the delimiters Sniff considers, in tie-break order.
var candidates = []rune{',', ';', '\t', '|'}

// Sniff inspects up to maxRows rows of data. The delimiter is the candidate
// that splits the first line into the most fields. Parsing is best-effort:
// malformed sample lines are skipped.
func Sniff(data []byte, maxRows int) Sample {
	s := Sample{HasBOM: bytes.HasPrefix(data, utf8BOM)}
	data = bytes.TrimPrefix(data, utf8BOM)
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	s.Delimiter = ','
	best := 0
	for _, c := range candidates {
		if n := bytes.Count(first, []byte(string(c))); n > best {
			best, s.Delimiter = n, c
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = s.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		if s.Header == nil {
			s.Header = rec
			for i, h := range s.Header {
				s.Header[i] = strings.TrimSpace(h)
			}
			continue
		}
		if len(s.Rows) >= maxRows {
			break
		}
		s.Rows = append(s.Rows, rec)
	}
	return s
}

// DecodeDelimiter converts a user-supplied string into a single rune delimiter.
// "\t" and "tab" both mean a tab.
func DecodeDelimiter(s string) rune {
	switch s {
	case "":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

// Package lookup resolves identifiers from the source system to identifiers
// in the target system.
//
// A Table is a flat key to value map built once per run from a tabular
// source. Chain and Fallback compose tables; Identity, Constant and value
// maps cover fields that do not need a lookup file. Every resolver returns ""
// on a miss. Resolvers are immutable after construction and safe for
// concurrent use.
package lookup

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"idremap/internal/errs"
	"idremap/internal/records"
)

// Resolver maps a raw value to its migrated value, or "" when it has none.
type Resolver interface {
	Resolve(raw string) string
}

// Spec describes how a Table is built from source rows.
type Spec struct {
	Name      string
	Source    string // file or query, used in error messages
	Key       []string
	Value     []string
	PrefixLen int
}

// Table is an immutable normalized-key to value map.
type Table struct {
	name      string
	keyArity  int
	prefixLen int
	m         map[string]string
}

// Name returns the table's configured name.
func (t *Table) Name() string { return t.name }

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.m) }

// PrefixLen returns the key truncation length, 0 for none.
func (t *Table) PrefixLen() int { return t.prefixLen }

// Resolve normalizes raw with the table's prefix length and returns the
// stored value. Composite tables expect raw as records.Join of the parts.
func (t *Table) Resolve(raw string) string {
	var key string
	if t.keyArity > 1 {
		parts := records.Split(raw)
		if len(parts) != t.keyArity {
			return ""
		}
		key = NormalizeParts(parts, t.prefixLen)
	} else {
		key = Normalize(raw, t.prefixLen)
	}
	if key == "" {
		return ""
	}
	return t.m[key]
}

// BuildStats describes what happened while a table was built.
type BuildStats struct {
	Rows       int
	Duplicates int // keys written more than once; the last write won
	Skipped    int // rows whose key normalized to empty
}

// Builder accumulates entries for a Table. The last write for a key wins.
type Builder struct {
	t     *Table
	stats BuildStats
}

// NewBuilder starts a table whose keys have keyArity parts.
func NewBuilder(name string, keyArity, prefixLen int) *Builder {
	if keyArity < 1 {
		keyArity = 1
	}
	return &Builder{t: &Table{
		name:      name,
		keyArity:  keyArity,
		prefixLen: prefixLen,
		m:         make(map[string]string),
	}}
}

// Add stores value under the normalized key parts. The value is trimmed.
func (b *Builder) Add(keyParts []string, value string) {
	b.stats.Rows++
	key := NormalizeParts(keyParts, b.t.prefixLen)
	if key == "" {
		b.stats.Skipped++
		return
	}
	if _, ok := b.t.m[key]; ok {
		b.stats.Duplicates++
	}
	b.t.m[key] = strings.TrimSpace(value)
}

// Stats returns the counters collected so far.
func (b *Builder) Stats() BuildStats { return b.stats }

// Table returns the built table. The Builder must not be used afterwards.
func (b *Builder) Table() *Table {
	t := b.t
	b.t = nil
	return t
}

// Build reads every row of r into a Table. A missing key or value column is a
// configuration error reported before any row is read.
func Build(r records.Reader, spec Spec) (*Table, BuildStats, error) {
	if len(spec.Key) == 0 || len(spec.Value) == 0 {
		return nil, BuildStats{}, &errs.ConfigError{Source: spec.Source, Msg: fmt.Sprintf("lookup %q needs key and value columns", spec.Name)}
	}
	keyIdx, err := columnIndexes(r.Schema(), spec.Source, spec.Key)
	if err != nil {
		return nil, BuildStats{}, err
	}
	valIdx, err := columnIndexes(r.Schema(), spec.Source, spec.Value)
	if err != nil {
		return nil, BuildStats{}, err
	}

	b := NewBuilder(spec.Name, len(keyIdx), spec.PrefixLen)
	keyParts := make([]string, len(keyIdx))
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, BuildStats{}, fmt.Errorf("lookup %s: read %s: %w", spec.Name, spec.Source, err)
		}
		for i, idx := range keyIdx {
			keyParts[i] = row.At(idx)
		}
		b.Add(keyParts, compositeValue(row, valIdx))
	}
	stats := b.Stats()
	return b.Table(), stats, nil
}

// compositeValue joins the value columns; any blank part makes the whole
// value blank so it can never form a partial key downstream.
func compositeValue(row records.Row, idx []int) string {
	if len(idx) == 1 {
		return strings.TrimSpace(row.At(idx[0]))
	}
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = strings.TrimSpace(row.At(j))
		if parts[i] == "" {
			return ""
		}
	}
	return records.Join(parts...)
}

func columnIndexes(s *records.Schema, source string, cols []string) ([]int, error) {
	out := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := s.Index(c)
		if !ok {
			return nil, errs.MissingColumn(source, c)
		}
		out[i] = idx
	}
	return out, nil
}

// ValueMap builds a single-key table from inline pairs.
func ValueMap(name string, pairs map[string]string) *Table {
	b := NewBuilder(name, 1, 0)
	for k, v := range pairs {
		b.Add([]string{k}, v)
	}
	return b.Table()
}

// Identity passes any non-blank value through unchanged (trimmed).
type Identity struct{}

func (Identity) Resolve(raw string) string { return strings.TrimSpace(raw) }

// Constant maps any non-blank value to Value.
type Constant struct{ Value string }

func (c Constant) Resolve(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return c.Value
}

package lookup

import (
	"errors"
	"fmt"
	"io"

	"idremap/internal/records"
)

// Set is an exclusion set: normalized identifiers whose unmapped occurrences
// are expected (records deliberately not migrated, known-bad references).
type Set struct {
	name      string
	prefixLen int
	m         map[string]struct{}
}

// NewSet returns a set over ids normalized with prefixLen.
func NewSet(name string, prefixLen int, ids ...string) *Set {
	s := &Set{name: name, prefixLen: prefixLen, m: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Set) add(id string) {
	if k := Normalize(id, s.prefixLen); k != "" {
		s.m[k] = struct{}{}
	}
}

// Name returns the set's configured name.
func (s *Set) Name() string { return s.name }

// Len is the number of distinct members.
func (s *Set) Len() int { return len(s.m) }

// Contains reports whether raw, normalized with the set's own prefix length,
// is a member. A nil set contains nothing.
func (s *Set) Contains(raw string) bool {
	if s == nil {
		return false
	}
	k := Normalize(raw, s.prefixLen)
	if k == "" {
		return false
	}
	_, ok := s.m[k]
	return ok
}

// LoadSet reads column from every row of r.
func LoadSet(r records.Reader, name, source, column string, prefixLen int) (*Set, error) {
	idx, err := columnIndexes(r.Schema(), source, []string{column})
	if err != nil {
		return nil, err
	}
	s := NewSet(name, prefixLen)
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, fmt.Errorf("exclusion set %s: read %s: %w", name, source, err)
		}
		s.add(row.At(idx[0]))
	}
}

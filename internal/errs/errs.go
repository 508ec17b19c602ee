// Package errs defines the failure kinds a migration run distinguishes.
//
// A resolution miss is never an error; it is accounted for in the audit.
// Everything in this package is either fatal for the run (ConfigError,
// ResolutionError, WriteError) or isolated to a single row (RowFault).
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a problem with the job definition or its inputs that is
// detected before or while rows are processed: a lookup file without the
// configured key column, an unreadable input, an unknown resolver name.
type ConfigError struct {
	Source string // file, table or config path involved
	Column string // offending column, if any
	Field  string // policy field, if any
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Source != "" {
		fmt.Fprintf(&b, ": %s", e.Source)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MissingColumn is shorthand for the most common configuration error.
func MissingColumn(source, column string) *ConfigError {
	return &ConfigError{Source: source, Column: column, Msg: "column not found in header"}
}

// ResolutionError is raised by a policy whose on-unresolved behaviour is fatal.
// It is a configuration failure: the operator declared that every value of the
// field must resolve.
type ResolutionError struct {
	Field    string
	RecordID string
	Value    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("config: field %q: record %q: value %q did not resolve", e.Field, e.RecordID, e.Value)
}

// WriteError wraps a sink failure. Chunk is 1-based; 0 means the header.
type WriteError struct {
	Sink  string
	Chunk int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (chunk %d): %v", e.Sink, e.Chunk, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RowFault is a failure confined to one field of one row. The row is still
// written and the field is accounted as unresolved.
type RowFault struct {
	Line  int
	Field string
	Err   error
}

func (e *RowFault) Error() string {
	return fmt.Sprintf("row %d: field %q: %v", e.Line, e.Field, e.Err)
}

func (e *RowFault) Unwrap() error { return e.Err }

// IsConfig reports whether err is (or wraps) a configuration failure.
func IsConfig(err error) bool {
	var ce *ConfigError
	var re *ResolutionError
	return errors.As(err, &ce) || errors.As(err, &re)
}

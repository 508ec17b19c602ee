package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"idremap/internal/config"
	"idremap/internal/datasource"
	csvparser "idremap/internal/parser/csv"
	"idremap/internal/records"
)

type inspectOptions struct {
	kind     string
	sheet    string
	comma    string
	rows     int
	maxBytes int
	count    bool
}

func newInspectCmd(a *app) *cobra.Command {
	var o inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Show the header, sample rows and row count of a source file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd, args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.kind, "kind", "", "source kind (csv|xlsx|list); inferred from the extension when empty")
	f.StringVar(&o.sheet, "sheet", "", "xlsx sheet (default: first)")
	f.StringVar(&o.comma, "comma", "", "csv delimiter (default: detected)")
	f.IntVar(&o.rows, "rows", 5, "sample rows to print")
	f.IntVar(&o.maxBytes, "bytes", 64*1024, "bytes sampled for delimiter and BOM detection")
	f.BoolVar(&o.count, "count", true, "read the whole source to count rows")
	return cmd
}

func inspect(cmd *cobra.Command, path string, o inspectOptions) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	spec := config.SourceSpec{Kind: o.kind, Path: path, Options: config.Options{}}
	kind := config.SourceKind(spec)

	src := datasource.FileSource(spec)
	if sz, ok := src.(interface{ Size() int64 }); ok {
		_, _ = fmt.Fprintf(out, "source:    %s (%s, %s)\n", path, kind, humanize.Bytes(uint64(sz.Size())))
	} else {
		_, _ = fmt.Fprintf(out, "source:    %s (%s)\n", path, kind)
	}

	if kind == "csv" {
		sample, err := sniffSource(cmd, src, path, o.maxBytes, o.rows)
		if err != nil {
			return err
		}
		comma := o.comma
		if comma == "" {
			comma = string(sample.Delimiter)
		}
		spec.Options["comma"] = comma
		_, _ = fmt.Fprintf(out, "bom:       %t\n", sample.HasBOM)
		_, _ = fmt.Fprintf(out, "delimiter: %q\n", csvparser.DecodeDelimiter(comma))
	}
	if o.sheet != "" {
		spec.Options["sheet"] = o.sheet
	}

	r, err := datasource.OpenReader(ctx, spec)
	if err != nil {
		return err
	}
	defer r.Close()

	header := r.Schema().Names()
	_, _ = fmt.Fprintf(out, "columns:   %d\n", len(header))
	_, _ = fmt.Fprintf(out, "header:    %s\n", strings.Join(header, " | "))

	n := 0
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		n++
		if n <= o.rows {
			_, _ = fmt.Fprintf(out, "row %d:     %s\n", n, formatRow(row))
		}
		if !o.count && n >= o.rows {
			return nil
		}
	}
	_, _ = fmt.Fprintf(out, "rows:      %s\n", humanize.Comma(int64(n)))
	return nil
}

// sniffSource samples the first maxBytes of src. Remote sources are asked
// for a byte range instead of the whole body.
func sniffSource(cmd *cobra.Command, src datasource.Source, path string, maxBytes, rows int) (csvparser.Sample, error) {
	if p, ok := src.(interface {
		Peek(ctx context.Context, n int) ([]byte, error)
	}); ok {
		buf, err := p.Peek(cmd.Context(), maxBytes)
		if err != nil {
			return csvparser.Sample{}, err
		}
		return csvparser.Sniff(buf, rows), nil
	}
	rc, err := src.Open(cmd.Context())
	if err != nil {
		return csvparser.Sample{}, err
	}
	defer rc.Close()
	buf, err := io.ReadAll(io.LimitReader(rc, int64(maxBytes)))
	if err != nil {
		return csvparser.Sample{}, fmt.Errorf("sample %s: %w", path, err)
	}
	return csvparser.Sniff(buf, rows), nil
}

func formatRow(row records.Row) string {
	names := row.Schema.Names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + row.At(i)
	}
	return strings.Join(parts, " | ")
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"idremap/internal/job"
	"idremap/internal/records"
)

const missMarker = "<unresolved>"

func newResolveCmd(a *app) *cobra.Command {
	var fields map[string]string
	cmd := &cobra.Command{
		Use:   "resolve <resolver> <value>...",
		Short: "Resolve values through one of the job's resolvers",
		Long: `resolve loads the job's lookup tables and prints what each value resolves
to. Fallback resolvers read other fields of the row; pass them with --field.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.loadJob(nil)
			if err != nil {
				return err
			}
			rs, err := job.BuildResolvers(cmd.Context(), a.log, j)
			if err != nil {
				return err
			}
			r, err := rs.Lookup(args[0])
			if err != nil {
				return err
			}
			row := rowFromFields(fields)
			out := cmd.OutOrStdout()
			for _, v := range args[1:] {
				got := r.ResolveRow(row, v)
				if got == "" {
					got = missMarker
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\n", v, got)
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&fields, "field", nil, "row field for fallback resolvers, name=value (repeatable)")
	return cmd
}

// rowFromFields builds a single row with fields sorted by name.
func rowFromFields(fields map[string]string) records.Row {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	vals := make([]string, len(names))
	for i, n := range names {
		vals[i] = fields[n]
	}
	return records.Row{Schema: records.NewSchema(names), Values: vals, Line: 1}
}

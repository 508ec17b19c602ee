package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValidateCmd(a *app) *cobra.Command {
	var printJob bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a job file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.loadJob(nil)
			if err != nil {
				return err
			}
			if printJob {
				out, err := yaml.Marshal(j)
				if err != nil {
					return fmt.Errorf("render job: %w", err)
				}
				_, _ = cmd.OutOrStdout().Write(out)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", a.cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printJob, "print", false, "print the resolved job (defaults, env and flags applied) as YAML")
	return cmd
}

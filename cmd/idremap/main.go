// Package main is the idremap binary: it migrates tabular records between
// systems by resolving legacy identifiers through lookup tables and writes an
// audit of every field it touched.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	// register all backends with the storage factory.
	_ "idremap/internal/storage/all"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by the subcommands.
type app struct {
	cfgPath   string
	envFile   string
	logFormat string
	verbose   bool

	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "idremap",
		Short: "Resolve legacy identifiers while migrating records, with a full audit",
		Long: `idremap migrates tabular records from one system to another. Fields that
reference other records are resolved through lookup tables built from the
target system; misses are defaulted, blanked or kept per field, and every
outcome is counted in a summary and per-field reports.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(a.envFile); err != nil {
				return err
			}
			log, err := newLogger(a.verbose, a.logFormat)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "job.yaml", "job file (YAML or JSON)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the job (missing is fine)")
	pf.StringVar(&a.logFormat, "log-format", "json", "log encoding (json|console)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newResolveCmd(a),
		newInspectCmd(a),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(verbose bool, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	switch format {
	case "", "json":
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q (want json|console)", format)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "idremap %s\n", Version)
		},
	}
}

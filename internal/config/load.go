package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: IDREMAP_RUN__CHUNK_SIZE sets run.chunk_size.
const EnvPrefix = "IDREMAP_"

// DefaultChunkSize is the number of rows processed per chunk.
const DefaultChunkSize = 50_000

// Defaults are the values a job file may omit. Chunk size and worker counts
// are absent: they stay zero here and the command fills them from
// IDREMAP_CHUNK_SIZE, IDREMAP_TRANSFORM_WORKERS and IDREMAP_LOOKUP_WORKERS.
func Defaults() map[string]any {
	return map[string]any{
		"run.record_id_field":      "Id",
		"run.max_fault_log":        10,
		"outputs.dir":              ".",
		"outputs.main.kind":        "csv",
		"outputs.main.path":        "{input}_mapped.csv",
		"outputs.main.encoding":    "utf-8",
		"outputs.summary.kind":     "csv",
		"outputs.summary.path":     "{input}_SummaryReport.csv",
		"outputs.summary.encoding": "utf-8-sig",
		"outputs.detail.kind":      "csv",
		"outputs.detail.path":      "{field}_unmapped.csv",
		"outputs.detail.encoding":  "utf-8-sig",
		"outputs.gated.kind":       "csv",
		"outputs.gated.path":       "{field}_gated.csv",
		"outputs.gated.encoding":   "utf-8-sig",
		"outputs.flags.kind":       "csv",
		"outputs.flags.encoding":   "utf-8-sig",
		"metrics.backend":          "none",
	}
}

// flagKeys maps command-line flags onto config keys. Flags not listed here
// are not configuration (e.g. --verbose).
var flagKeys = map[string]string{
	"chunk-size":        "run.chunk_size",
	"transform-workers": "run.transform_workers",
	"dry-run":           "run.dry_run",
	"output-dir":        "outputs.dir",
	"metrics-backend":   "metrics.backend",
	"pushgateway-url":   "metrics.pushgateway_url",
	"statsd-addr":       "metrics.statsd_addr",
}

// Load reads a job from path with precedence flags > env > file > defaults.
// Only flags the user actually set override lower layers. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Job, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var job Job
	if err := k.Unmarshal("", &job); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &job, nil
}

// ExpandDSN substitutes ${VAR} references in a DSN so secrets can live in
// the environment or a .env file.
func ExpandDSN(dsn string) string { return os.ExpandEnv(dsn) }

// Package config defines the job model of a migration run and loads it from
// YAML (or JSON) files, environment variables and command-line flags.
//
// Example (trimmed):
//
//	job: case_surveys
//	input:   { kind: csv, path: source/CaseSurveys.csv }
//	lookups:
//	  user: { source: { path: lkp/User.csv }, key: [Legacy_SF_Record_ID__c], value: [Id] }
//	fields:
//	  - source: [OwnerId]
//	    resolver: user
//	    on_unresolved: default
//	    default: 005Vq000008gEtBIAU
//	    track_unmapped: true
//
// Map keys are split on "." by the loader, so inline value maps and
// header_map keys must not contain dots.
package config

// Job is the top-level object decoded from a job file.
type Job struct {
	// Job names the run in logs, metrics and report file names.
	Job string `koanf:"job" yaml:"job"`

	Run   RunConfig  `koanf:"run" yaml:"run"`
	Input SourceSpec `koanf:"input" yaml:"input"`

	Lookups    map[string]LookupSpec    `koanf:"lookups" yaml:"lookups,omitempty"`
	Resolvers  map[string]ResolverSpec  `koanf:"resolvers" yaml:"resolvers,omitempty"`
	Exclusions map[string]ExclusionSpec `koanf:"exclusions" yaml:"exclusions,omitempty"`

	// Drop removes input columns from the output before policies run.
	Drop []string `koanf:"drop" yaml:"drop,omitempty"`
	// Rename renames output columns after policies ran.
	Rename []RenameSpec `koanf:"rename" yaml:"rename,omitempty"`

	// Fields is the ordered policy list.
	Fields []FieldSpec `koanf:"fields" yaml:"fields"`

	Outputs Outputs       `koanf:"outputs" yaml:"outputs"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

// RunConfig controls chunking and parallelism.
type RunConfig struct {
	// ChunkSize is the number of rows read, transformed and written together.
	ChunkSize int `koanf:"chunk_size" yaml:"chunk_size"`
	// TransformWorkers splits each chunk across workers; 0 means one per CPU.
	TransformWorkers int `koanf:"transform_workers" yaml:"transform_workers"`
	// LookupWorkers bounds concurrent lookup and exclusion loads.
	LookupWorkers int `koanf:"lookup_workers" yaml:"lookup_workers"`

	RecordIDField     string   `koanf:"record_id_field" yaml:"record_id_field"`
	RecordIDFallbacks []string `koanf:"record_id_fallbacks" yaml:"record_id_fallbacks,omitempty"`

	// DryRun skips the main output; audit outputs are still written.
	DryRun bool `koanf:"dry_run" yaml:"dry_run"`
	// MaxFaultLog caps the row faults logged individually.
	MaxFaultLog int `koanf:"max_fault_log" yaml:"max_fault_log"`
}

// SourceSpec locates a tabular source.
//
// Kinds: csv, xlsx, list (one value per line) and the database kinds
// postgres, mssql, mysql, sqlite (which need DSN and Query). An empty kind is
// inferred from the path extension.
type SourceSpec struct {
	Kind  string `koanf:"kind" yaml:"kind,omitempty"`
	Path  string `koanf:"path" yaml:"path,omitempty"`
	DSN   string `koanf:"dsn" yaml:"dsn,omitempty"`
	Query string `koanf:"query" yaml:"query,omitempty"`
	// Column names the single column of a list source (default "Id").
	Column string `koanf:"column" yaml:"column,omitempty"`
	// Optional makes a missing file read as empty instead of failing.
	Optional bool `koanf:"optional" yaml:"optional,omitempty"`
	// Options is interpreted by the reader (comma, lazy_quotes, sheet, ...).
	Options Options `koanf:"options" yaml:"options,omitempty"`
}

// LookupSpec builds one lookup table.
type LookupSpec struct {
	Source    SourceSpec `koanf:"source" yaml:"source"`
	Key       []string   `koanf:"key" yaml:"key"`
	Value     []string   `koanf:"value" yaml:"value"`
	PrefixLen int        `koanf:"prefix_len" yaml:"prefix_len,omitempty"`
}

// ResolverSpec composes lookups. Exactly one of Chain, Fallback, Values or
// Constant is set.
type ResolverSpec struct {
	Chain    []string          `koanf:"chain" yaml:"chain,omitempty"`
	Fallback []AlternativeSpec `koanf:"fallback" yaml:"fallback,omitempty"`
	Values   map[string]string `koanf:"values" yaml:"values,omitempty"`
	Constant string            `koanf:"constant" yaml:"constant,omitempty"`
}

// AlternativeSpec is one fallback step. Empty Fields reads the field's own
// source value.
type AlternativeSpec struct {
	Fields   []string `koanf:"fields" yaml:"fields,omitempty"`
	Resolver string   `koanf:"resolver" yaml:"resolver"`
}

// ExclusionSpec loads an exclusion set.
type ExclusionSpec struct {
	Source    SourceSpec `koanf:"source" yaml:"source"`
	Column    string     `koanf:"column" yaml:"column"`
	PrefixLen int        `koanf:"prefix_len" yaml:"prefix_len,omitempty"`
}

// RenameSpec renames one output column.
type RenameSpec struct {
	From string `koanf:"from" yaml:"from"`
	To   string `koanf:"to" yaml:"to"`
}

// FieldSpec is one field policy.
type FieldSpec struct {
	// Name labels the field in reports; defaults to Source[0].
	Name   string   `koanf:"name" yaml:"name,omitempty"`
	Source []string `koanf:"source" yaml:"source"`
	Target string   `koanf:"target" yaml:"target,omitempty"`
	// Resolver names a lookup or resolver, or one of the built-ins
	// "identity" and "constant:<value>".
	Resolver      string    `koanf:"resolver" yaml:"resolver"`
	OnUnresolved  string    `koanf:"on_unresolved" yaml:"on_unresolved,omitempty"`
	Default       string    `koanf:"default" yaml:"default,omitempty"`
	TrackUnmapped bool      `koanf:"track_unmapped" yaml:"track_unmapped,omitempty"`
	TrackGated    bool      `koanf:"track_gated" yaml:"track_gated,omitempty"`
	Exclusions    []string  `koanf:"exclusions" yaml:"exclusions,omitempty"`
	Gate          *GateSpec `koanf:"gate" yaml:"gate,omitempty"`
}

// DisplayName returns Name or the first source field.
func (f FieldSpec) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	if len(f.Source) > 0 {
		return f.Source[0]
	}
	return ""
}

// GateSpec bypasses resolution by record category.
type GateSpec struct {
	Field string     `koanf:"field" yaml:"field"`
	Rules []GateRule `koanf:"rules" yaml:"rules"`
}

// GateRule applies Action to rows whose gate field equals one of Values
// (case-insensitive). Action is "blank" or "constant".
type GateRule struct {
	Values []string `koanf:"values" yaml:"values"`
	Action string   `koanf:"action" yaml:"action"`
	Value  string   `koanf:"value" yaml:"value,omitempty"`
}

// Outputs lists the sinks of a run. Path templates may use {job}, {input}
// (input base name without extension) and, for per-field outputs, {field}.
type Outputs struct {
	// Dir prefixes relative file paths.
	Dir     string   `koanf:"dir" yaml:"dir"`
	Main    SinkSpec `koanf:"main" yaml:"main"`
	Flags   SinkSpec `koanf:"flags" yaml:"flags,omitempty"`
	Summary SinkSpec `koanf:"summary" yaml:"summary"`
	Detail  SinkSpec `koanf:"detail" yaml:"detail"`
	Gated   SinkSpec `koanf:"gated" yaml:"gated"`
}

// SinkSpec describes one output table.
//
// Kinds: csv (Path, Encoding) and the database kinds postgres, mssql, mysql,
// sqlite (DSN, Table). A sink with neither Path nor Table is disabled.
type SinkSpec struct {
	Kind     string `koanf:"kind" yaml:"kind,omitempty"`
	Path     string `koanf:"path" yaml:"path,omitempty"`
	Encoding string `koanf:"encoding" yaml:"encoding,omitempty"`
	DSN      string `koanf:"dsn" yaml:"dsn,omitempty"`
	Table    string `koanf:"table" yaml:"table,omitempty"`
	// CreateTable creates the table (all TEXT columns) when missing.
	CreateTable bool `koanf:"create_table" yaml:"create_table,omitempty"`
	// Truncate empties the table before the first write.
	Truncate  bool `koanf:"truncate" yaml:"truncate,omitempty"`
	BatchSize int  `koanf:"batch_size" yaml:"batch_size,omitempty"`
}

// Enabled reports whether the sink is configured.
func (s SinkSpec) Enabled() bool { return s.Path != "" || s.Table != "" }

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string   `koanf:"backend" yaml:"backend"`
	PushgatewayURL string   `koanf:"pushgateway_url" yaml:"pushgateway_url,omitempty"`
	StatsdAddr     string   `koanf:"statsd_addr" yaml:"statsd_addr,omitempty"`
	Namespace      string   `koanf:"namespace" yaml:"namespace,omitempty"`
	Tags           []string `koanf:"tags" yaml:"tags,omitempty"`
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal type coercion and returns the provided default when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. YAML yields int, JSON float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object.
// Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

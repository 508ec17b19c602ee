package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Job.
//
// Path is a dotted path into the config (e.g. "fields[2].resolver").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Built-in resolver names usable without a lookup file.
const (
	ResolverIdentity       = "identity"
	ResolverConstantPrefix = "constant:"
)

var (
	fileKinds = map[string]bool{"csv": true, "xlsx": true, "list": true}
	dbKinds   = map[string]bool{"postgres": true, "mssql": true, "mysql": true, "sqlite": true}
)

// SourceKind returns the effective kind of s, inferring it from the path
// extension when unset.
func SourceKind(s SourceSpec) string {
	if s.Kind != "" {
		return strings.ToLower(s.Kind)
	}
	p, _, _ := strings.Cut(s.Path, "?")
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".txt", ".lst":
		return "list"
	}
	return "csv"
}

// ValidateJob performs static validation of a Job. It does not mutate the
// job; callers decide whether warnings are fatal.
//
//	issues := config.ValidateJob(job)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateJob(j *Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and report names",
		})
	}
	issues = append(issues, validateRun(j.Run)...)
	issues = append(issues, validateSource("input", j.Input)...)
	issues = append(issues, validateLookups(j)...)
	issues = append(issues, validateResolvers(j)...)
	issues = append(issues, validateExclusions(j)...)
	issues = append(issues, validateFields(j)...)
	issues = append(issues, validateOutputs(j)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	return issues
}

func validateRun(r RunConfig) []Issue {
	var issues []Issue
	if r.ChunkSize < 0 {
		issues = append(issues, Issue{SeverityError, "run.chunk_size", "chunk_size must not be negative"})
	} else if r.ChunkSize > 0 && r.ChunkSize < 100 {
		issues = append(issues, Issue{SeverityWarning, "run.chunk_size", fmt.Sprintf("chunk_size=%d; tiny chunks add per-chunk write overhead", r.ChunkSize)})
	}
	if r.TransformWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "run.transform_workers", "transform_workers must not be negative"})
	}
	if r.LookupWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "run.lookup_workers", "lookup_workers must not be negative"})
	}
	return issues
}

func validateSource(path string, s SourceSpec) []Issue {
	var issues []Issue
	kind := SourceKind(s)
	switch {
	case fileKinds[kind]:
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{SeverityError, path + ".path", fmt.Sprintf("%s source requires a non-empty path", kind)})
		}
	case dbKinds[kind]:
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{SeverityError, path + ".dsn", fmt.Sprintf("%s source requires a dsn", kind)})
		}
		if strings.TrimSpace(s.Query) == "" {
			issues = append(issues, Issue{SeverityError, path + ".query", fmt.Sprintf("%s source requires a query", kind)})
		}
	default:
		issues = append(issues, Issue{SeverityError, path + ".kind", fmt.Sprintf("unknown source kind %q (want csv|xlsx|list|postgres|mssql|mysql|sqlite)", s.Kind)})
	}
	return issues
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validateLookups(j *Job) []Issue {
	var issues []Issue
	for _, name := range sortedKeys(j.Lookups) {
		l := j.Lookups[name]
		p := "lookups." + name
		issues = append(issues, validateSource(p+".source", l.Source)...)
		if len(l.Key) == 0 {
			issues = append(issues, Issue{SeverityError, p + ".key", "lookup requires at least one key column"})
		}
		if len(l.Value) == 0 {
			issues = append(issues, Issue{SeverityError, p + ".value", "lookup requires at least one value column"})
		}
		if l.PrefixLen < 0 {
			issues = append(issues, Issue{SeverityError, p + ".prefix_len", "prefix_len must not be negative"})
		}
		if _, clash := j.Resolvers[name]; clash {
			issues = append(issues, Issue{SeverityError, p, "name is used by both a lookup and a resolver"})
		}
	}
	return issues
}

// resolverExists reports whether name refers to a lookup, a resolver or a
// built-in.
func resolverExists(j *Job, name string) bool {
	if name == ResolverIdentity || strings.HasPrefix(name, ResolverConstantPrefix) {
		return true
	}
	if _, ok := j.Lookups[name]; ok {
		return true
	}
	_, ok := j.Resolvers[name]
	return ok
}

func validateResolvers(j *Job) []Issue {
	var issues []Issue
	for _, name := range sortedKeys(j.Resolvers) {
		r := j.Resolvers[name]
		p := "resolvers." + name
		set := 0
		if len(r.Chain) > 0 {
			set++
		}
		if len(r.Fallback) > 0 {
			set++
		}
		if len(r.Values) > 0 {
			set++
		}
		if r.Constant != "" {
			set++
		}
		if set != 1 {
			issues = append(issues, Issue{SeverityError, p, "resolver needs exactly one of chain, fallback, values or constant"})
		}
		for i, hop := range r.Chain {
			if !resolverExists(j, hop) {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("%s.chain[%d]", p, i), fmt.Sprintf("unknown lookup or resolver %q", hop)})
			}
		}
		for i, alt := range r.Fallback {
			if !resolverExists(j, alt.Resolver) {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("%s.fallback[%d].resolver", p, i), fmt.Sprintf("unknown lookup or resolver %q", alt.Resolver)})
			}
		}
	}
	if cyc := resolverCycle(j); cyc != "" {
		issues = append(issues, Issue{SeverityError, "resolvers", "resolver cycle: " + cyc})
	}
	return issues
}

// resolverCycle returns a description of the first reference cycle among
// resolvers, or "".
func resolverCycle(j *Job) string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[string]int{}
	var path []string
	var visit func(name string) string
	visit = func(name string) string {
		r, ok := j.Resolvers[name]
		if !ok {
			return ""
		}
		switch state[name] {
		case visiting:
			return strings.Join(append(path, name), " -> ")
		case done:
			return ""
		}
		state[name] = visiting
		path = append(path, name)
		refs := append([]string(nil), r.Chain...)
		for _, a := range r.Fallback {
			refs = append(refs, a.Resolver)
		}
		for _, ref := range refs {
			if c := visit(ref); c != "" {
				return c
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return ""
	}
	for _, name := range sortedKeys(j.Resolvers) {
		if c := visit(name); c != "" {
			return c
		}
	}
	return ""
}

func validateExclusions(j *Job) []Issue {
	var issues []Issue
	for _, name := range sortedKeys(j.Exclusions) {
		e := j.Exclusions[name]
		p := "exclusions." + name
		issues = append(issues, validateSource(p+".source", e.Source)...)
		if e.Column == "" && SourceKind(e.Source) != "list" {
			issues = append(issues, Issue{SeverityError, p + ".column", "exclusion set requires the id column"})
		}
		if e.PrefixLen < 0 {
			issues = append(issues, Issue{SeverityError, p + ".prefix_len", "prefix_len must not be negative"})
		}
	}
	return issues
}

func validateFields(j *Job) []Issue {
	var issues []Issue
	if len(j.Fields) == 0 {
		return append(issues, Issue{SeverityWarning, "fields", "no fields configured; rows will be copied unchanged"})
	}
	seen := map[string]int{}
	for i, f := range j.Fields {
		p := fmt.Sprintf("fields[%d]", i)
		if len(f.Source) == 0 {
			issues = append(issues, Issue{SeverityError, p + ".source", "field requires at least one source column"})
			continue
		}
		name := f.DisplayName()
		if prev, dup := seen[name]; dup {
			issues = append(issues, Issue{SeverityError, p + ".name", fmt.Sprintf("field %q already defined at fields[%d]", name, prev)})
		}
		seen[name] = i

		if f.Resolver == "" {
			issues = append(issues, Issue{SeverityError, p + ".resolver", "field requires a resolver (use \"identity\" for passthrough)"})
		} else if !resolverExists(j, f.Resolver) {
			issues = append(issues, Issue{SeverityError, p + ".resolver", fmt.Sprintf("unknown lookup or resolver %q", f.Resolver)})
		}

		switch strings.ToLower(strings.TrimSpace(f.OnUnresolved)) {
		case "", "blank", "leave-blank", "leave_blank", "fatal", "error", "keep", "keep-original", "keep_original":
			if f.Default != "" {
				issues = append(issues, Issue{SeverityWarning, p + ".default", "default is ignored unless on_unresolved is \"default\""})
			}
		case "default", "substitute":
			if f.Default == "" {
				issues = append(issues, Issue{SeverityError, p + ".default", "on_unresolved \"default\" requires a default value"})
			}
		default:
			issues = append(issues, Issue{SeverityError, p + ".on_unresolved", fmt.Sprintf("unknown on_unresolved %q (want blank|default|fatal|keep)", f.OnUnresolved)})
		}

		for k, ex := range f.Exclusions {
			if _, ok := j.Exclusions[ex]; !ok {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("%s.exclusions[%d]", p, k), fmt.Sprintf("unknown exclusion set %q", ex)})
			}
		}
		if len(f.Exclusions) > 0 && !f.TrackUnmapped {
			issues = append(issues, Issue{SeverityWarning, p + ".exclusions", "exclusion sets only apply to tracked unmapped values; set track_unmapped"})
		}
		if f.TrackGated && f.Gate == nil {
			issues = append(issues, Issue{SeverityWarning, p + ".track_gated", "track_gated has no effect without a gate"})
		}
		if f.Gate != nil {
			issues = append(issues, validateGate(p+".gate", *f.Gate)...)
		}
	}
	for i, r := range j.Rename {
		if r.From == "" || r.To == "" {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("rename[%d]", i), "rename requires from and to"})
		}
	}
	return issues
}

func validateGate(p string, g GateSpec) []Issue {
	var issues []Issue
	if g.Field == "" {
		issues = append(issues, Issue{SeverityError, p + ".field", "gate requires a field"})
	}
	if len(g.Rules) == 0 {
		issues = append(issues, Issue{SeverityWarning, p + ".rules", "gate has no rules and never fires"})
	}
	for i, r := range g.Rules {
		rp := fmt.Sprintf("%s.rules[%d]", p, i)
		if len(r.Values) == 0 {
			issues = append(issues, Issue{SeverityError, rp + ".values", "gate rule requires at least one value"})
		}
		switch r.Action {
		case "blank":
		case "constant":
			if r.Value == "" {
				issues = append(issues, Issue{SeverityError, rp + ".value", "constant gate rule requires a value"})
			}
		default:
			issues = append(issues, Issue{SeverityError, rp + ".action", fmt.Sprintf("unknown gate action %q (want blank|constant)", r.Action)})
		}
	}
	return issues
}

func validateSink(p string, s SinkSpec) []Issue {
	var issues []Issue
	if !s.Enabled() {
		return nil
	}
	kind := strings.ToLower(s.Kind)
	switch {
	case kind == "" || kind == "csv":
		if s.Path == "" {
			issues = append(issues, Issue{SeverityError, p + ".path", "csv sink requires a path"})
		}
		switch strings.ToLower(s.Encoding) {
		case "", "utf-8", "utf8", "utf-8-sig", "utf8-bom", "utf-8-bom":
		default:
			issues = append(issues, Issue{SeverityError, p + ".encoding", fmt.Sprintf("unknown encoding %q (want utf-8|utf-8-sig)", s.Encoding)})
		}
	case dbKinds[kind]:
		if s.DSN == "" {
			issues = append(issues, Issue{SeverityError, p + ".dsn", fmt.Sprintf("%s sink requires a dsn", kind)})
		}
		if s.Table == "" {
			issues = append(issues, Issue{SeverityError, p + ".table", fmt.Sprintf("%s sink requires a table", kind)})
		}
	default:
		issues = append(issues, Issue{SeverityError, p + ".kind", fmt.Sprintf("unknown sink kind %q (want csv|postgres|mssql|mysql|sqlite)", s.Kind)})
	}
	return issues
}

func validateOutputs(j *Job) []Issue {
	o := j.Outputs
	var issues []Issue
	if !o.Main.Enabled() && !j.Run.DryRun {
		issues = append(issues, Issue{SeverityError, "outputs.main", "main output is required unless run.dry_run is set"})
	}
	issues = append(issues, validateSink("outputs.main", o.Main)...)
	issues = append(issues, validateSink("outputs.flags", o.Flags)...)
	issues = append(issues, validateSink("outputs.summary", o.Summary)...)
	issues = append(issues, validateSink("outputs.detail", o.Detail)...)
	issues = append(issues, validateSink("outputs.gated", o.Gated)...)
	for name, s := range map[string]SinkSpec{"detail": o.Detail, "gated": o.Gated} {
		if strings.EqualFold(s.Kind, "csv") || s.Kind == "" {
			if s.Path != "" && !strings.Contains(s.Path, "{field}") {
				issues = append(issues, Issue{SeverityError, "outputs." + name + ".path", "per-field output path must contain {field}"})
			}
		} else if s.Table != "" && !strings.Contains(s.Table, "{field}") {
			issues = append(issues, Issue{SeverityError, "outputs." + name + ".table", "per-field output table must contain {field}"})
		}
	}
	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue
	switch strings.ToLower(m.Backend) {
	case "", "none":
	case "pushgateway", "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend requires pushgateway_url"})
		}
	case "datadog":
		if m.StatsdAddr == "" {
			issues = append(issues, Issue{SeverityError, "metrics.statsd_addr", "datadog backend requires statsd_addr"})
		}
	default:
		issues = append(issues, Issue{SeverityWarning, "metrics.backend", fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend)})
	}
	return issues
}

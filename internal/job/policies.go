package job

import (
	"fmt"
	"strings"

	"idremap/internal/config"
	"idremap/internal/errs"
	"idremap/internal/transformer"
)

// BuildPolicies turns the field list into policies, in order.
func BuildPolicies(fields []config.FieldSpec, rs *Resolvers) ([]*transformer.Policy, error) {
	out := make([]*transformer.Policy, 0, len(fields))
	for i, f := range fields {
		p, err := buildPolicy(f, rs)
		if err != nil {
			return nil, fmt.Errorf("fields[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func buildPolicy(f config.FieldSpec, rs *Resolvers) (*transformer.Policy, error) {
	if len(f.Source) == 0 {
		return nil, &errs.ConfigError{Field: f.DisplayName(), Msg: "field requires at least one source column"}
	}
	res, err := rs.Lookup(f.Resolver)
	if err != nil {
		return nil, err
	}
	onMiss, err := transformer.ParseOnUnresolved(f.OnUnresolved)
	if err != nil {
		return nil, &errs.ConfigError{Field: f.DisplayName(), Err: err}
	}
	if onMiss == transformer.Substitute && f.Default == "" {
		return nil, &errs.ConfigError{Field: f.DisplayName(), Msg: `on_unresolved "default" requires a default value`}
	}
	gate, err := buildGate(f)
	if err != nil {
		return nil, err
	}
	return &transformer.Policy{
		Field:         f.Name,
		Source:        f.Source,
		Target:        f.Target,
		Resolver:      res,
		OnUnresolved:  onMiss,
		Default:       f.Default,
		TrackUnmapped: f.TrackUnmapped,
		TrackGated:    f.TrackGated,
		Gate:          gate,
	}, nil
}

func buildGate(f config.FieldSpec) (*transformer.Gate, error) {
	if f.Gate == nil {
		return nil, nil
	}
	values := map[string]transformer.GateAction{}
	for _, r := range f.Gate.Rules {
		var a transformer.GateAction
		switch strings.ToLower(strings.TrimSpace(r.Action)) {
		case "blank":
			a.Blank = true
		case "constant":
			a.Constant = r.Value
		default:
			return nil, &errs.ConfigError{Field: f.DisplayName(), Msg: fmt.Sprintf("unknown gate action %q (want blank|constant)", r.Action)}
		}
		for _, v := range r.Values {
			values[v] = a
		}
	}
	return transformer.NewGate(f.Gate.Field, values), nil
}

// renameMap converts the ordered rename list into the map Compile expects.
func renameMap(rs []config.RenameSpec) map[string]string {
	if len(rs) == 0 {
		return nil
	}
	m := make(map[string]string, len(rs))
	for _, r := range rs {
		m[r.From] = r.To
	}
	return m
}

// Package transformer applies per-field resolution policies to input rows.
//
// A Policy says how one field is migrated: where its value comes from, which
// resolver maps it, what happens when resolution fails, and which record
// categories bypass resolution entirely. Compile turns the policy list plus
// the column drop/rename steps into a Plan bound to an input header, so the
// per-row path works on positions instead of names.
package transformer

import (
	"fmt"
	"strings"

	"idremap/internal/lookup"
	"idremap/internal/records"
)

// OnUnresolved selects what a policy outputs when a non-blank value does not
// resolve.
type OnUnresolved uint8

const (
	// LeaveBlank outputs "".
	LeaveBlank OnUnresolved = iota
	// Substitute outputs the policy's Default.
	Substitute
	// Fatal aborts the run.
	Fatal
	// Keep outputs the trimmed input.
	Keep
)

// ParseOnUnresolved accepts the configuration spellings of OnUnresolved.
func ParseOnUnresolved(s string) (OnUnresolved, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blank", "leave-blank", "leave_blank":
		return LeaveBlank, nil
	case "default", "substitute":
		return Substitute, nil
	case "fatal", "error":
		return Fatal, nil
	case "keep", "keep-original", "keep_original":
		return Keep, nil
	}
	return LeaveBlank, fmt.Errorf("unknown on_unresolved %q (want blank|default|fatal|keep)", s)
}

func (o OnUnresolved) String() string {
	switch o {
	case Substitute:
		return "default"
	case Fatal:
		return "fatal"
	case Keep:
		return "keep"
	}
	return "blank"
}

// GateAction is what a firing gate writes to the field.
type GateAction struct {
	// Constant is written when Blank is false.
	Constant string
	Blank    bool
}

// Gate bypasses resolution for records of certain categories. Values are
// matched case-insensitively against the trimmed gate field.
type Gate struct {
	Field  string
	Values map[string]GateAction
}

// NewGate builds a gate with case-folded keys.
func NewGate(field string, values map[string]GateAction) *Gate {
	g := &Gate{Field: field, Values: make(map[string]GateAction, len(values))}
	for k, v := range values {
		g.Values[gateKey(k)] = v
	}
	return g
}

func gateKey(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// match returns the action and canonical gate value for row, if any.
func (g *Gate) match(row records.Row) (GateAction, string, bool) {
	if g == nil {
		return GateAction{}, "", false
	}
	k := gateKey(row.Get(g.Field))
	if k == "" {
		return GateAction{}, "", false
	}
	a, ok := g.Values[k]
	return a, k, ok
}

// Policy describes how one field is migrated.
type Policy struct {
	// Field names the policy in audit output. Defaults to Source[0].
	Field string
	// Source lists the input field(s). Several fields form a composite value.
	Source []string
	// Target is the output column. Defaults to Source[0].
	Target string

	Resolver      lookup.RowResolver
	OnUnresolved  OnUnresolved
	Default       string
	TrackUnmapped bool
	TrackGated    bool
	Gate          *Gate
}

// Name returns Field, falling back to the first source field.
func (p *Policy) Name() string {
	if p.Field != "" {
		return p.Field
	}
	if len(p.Source) > 0 {
		return p.Source[0]
	}
	return ""
}

func (p *Policy) target() string {
	if p.Target != "" {
		return p.Target
	}
	return p.Source[0]
}

// Outcome classifies what a policy did with one row.
type Outcome uint8

const (
	PassthroughBlank Outcome = iota
	GatedBlank
	GatedConstant
	Matched
	UnmatchedDefaulted
	UnmatchedBlank
	UnmatchedKept
)

var outcomeNames = [...]string{
	PassthroughBlank:   "passthrough-blank",
	GatedBlank:         "gated-blank",
	GatedConstant:      "gated-constant",
	Matched:            "matched",
	UnmatchedDefaulted: "unmatched-defaulted",
	UnmatchedBlank:     "unmatched-blank",
	UnmatchedKept:      "unmatched-kept",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", o)
}

// Gated reports a gate fired.
func (o Outcome) Gated() bool { return o == GatedBlank || o == GatedConstant }

// Unmatched reports a non-blank value failed to resolve.
func (o Outcome) Unmatched() bool {
	return o == UnmatchedDefaulted || o == UnmatchedBlank || o == UnmatchedKept
}

// Result is one policy's output for one row.
type Result struct {
	Value   string
	Outcome Outcome
	// Input is the trimmed pre-gate source value ("" when blank).
	Input string
	// GateValue is the canonical gate value when a gate fired.
	GateValue string
}

// errUnresolved marks a miss under a Fatal policy.
type errUnresolved struct{ value string }

func (e errUnresolved) Error() string { return fmt.Sprintf("value %q did not resolve", e.value) }

// sourceValue reads the policy's trimmed input. A composite with any blank
// part is blank.
func sourceValue(row records.Row, idx []int) string {
	if len(idx) == 1 {
		return strings.TrimSpace(row.At(idx[0]))
	}
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = strings.TrimSpace(row.At(j))
		if parts[i] == "" {
			return ""
		}
	}
	return records.Join(parts...)
}

// apply evaluates the policy in its fixed order: gate, blank check, resolve,
// unresolved handling.
func (p *Policy) apply(row records.Row, srcIdx []int) (Result, error) {
	in := sourceValue(row, srcIdx)

	if a, gv, ok := p.Gate.match(row); ok {
		if a.Blank {
			return Result{Outcome: GatedBlank, Input: in, GateValue: gv}, nil
		}
		return Result{Value: a.Constant, Outcome: GatedConstant, Input: in, GateValue: gv}, nil
	}

	if in == "" {
		return Result{Outcome: PassthroughBlank}, nil
	}

	if v := p.Resolver.ResolveRow(row, in); v != "" {
		return Result{Value: v, Outcome: Matched, Input: in}, nil
	}
	return p.unresolved(in)
}

func (p *Policy) unresolved(in string) (Result, error) {
	switch p.OnUnresolved {
	case Substitute:
		return Result{Value: p.Default, Outcome: UnmatchedDefaulted, Input: in}, nil
	case Keep:
		return Result{Value: in, Outcome: UnmatchedKept, Input: in}, nil
	case Fatal:
		return Result{Outcome: UnmatchedBlank, Input: in}, errUnresolved{value: in}
	}
	return Result{Outcome: UnmatchedBlank, Input: in}, nil
}

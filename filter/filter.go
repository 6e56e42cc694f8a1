// Package filter decides which records an import keeps, using CEL
// expressions evaluated against the sparse, flattened record.
//
// Two variables are in scope:
//
//	record  map(string, dyn)  every non-empty field, dates as timestamps
//	type    string            the declared type name
//
// Example rules:
//
//	- name: has-url
//	  expr: has(record.url)
//	- name: skip-drafts
//	  expr: '!has(record.draft) || record.draft == false'
//	- name: posts-after-2010
//	  expr: type != "BlogPosting" || record.date > timestamp("2010-01-01T00:00:00Z")
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "filter"

// Rule is one named predicate. A record is kept only when every rule
// evaluates to true.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

type program struct {
	name string
	prg  cel.Program
}

// Set is a compiled, immutable list of rules. It is safe for concurrent use.
type Set struct {
	programs []program
}

// NewEnv returns the CEL environment rules are compiled in.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("type", cel.StringType),
	)
}

// Compile type-checks every rule. Rules must produce a bool; parse and type
// errors are configuration errors naming the rule.
func Compile(rules []Rule) (*Set, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, thingerr.New(component, "compile", thingerr.CodeConfig, "failed to create CEL environment").WithCause(err)
	}

	s := &Set{programs: make([]program, 0, len(rules))}
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
		}
		ast, iss := env.Compile(r.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, thingerr.Newf(component, "compile", thingerr.CodeConfig, "rule %q: %v", name, iss.Err()).
				WithDetails(map[string]any{"rule": name, "expr": r.Expr})
		}
		out := ast.OutputType()
		if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, thingerr.Newf(component, "compile", thingerr.CodeConfig,
				"rule %q must evaluate to bool, got %s", name, out)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, thingerr.Newf(component, "compile", thingerr.CodeConfig, "rule %q: %v", name, err)
		}
		s.programs = append(s.programs, program{name: name, prg: prg})
	}
	return s, nil
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.programs)
}

// Allow evaluates the rules in order. It returns false and the name of the
// first rule that did not hold. Evaluation failures (such as reading an
// absent field without has()) are thingerr.CodeInvalidRecord errors.
func (s *Set) Allow(t thing.Thing) (bool, string, error) {
	if s.Len() == 0 {
		return true, "", nil
	}
	vars := map[string]any{
		"record": t.Sparse().Fields(),
		"type":   t.Type,
	}
	for _, p := range s.programs {
		out, _, err := p.prg.Eval(vars)
		if err != nil {
			return false, p.name, thingerr.Newf(component, "allow", thingerr.CodeInvalidRecord,
				"rule %q failed: %v", p.name, err).WithCause(err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return false, p.name, thingerr.Newf(component, "allow", thingerr.CodeInvalidRecord,
				"rule %q returned %T, want bool", p.name, out.Value())
		}
		if !ok {
			return false, p.name, nil
		}
	}
	return true, "", nil
}

package manifest

import (
	"fmt"
	"strings"

	"github.com/conceptkit/ckit/internal/dsl"
)

// buildInvariants materializes each concept invariant's free variables
// with the deterministic test value `{prefix}-test-invariant-{NNN}`. NNN
// is unique within the invariant, not across the whole manifest: the
// first free variable of every invariant is 001.
func buildInvariants(decls []dsl.InvariantDecl) []*Invariant {
	out := make([]*Invariant, 0, len(decls))
	for _, d := range decls {
		freeVars := make(map[string]string, len(d.FreeVariables))
		manifestVars := make([]*FreeVariable, 0, len(d.FreeVariables))
		for i, fv := range d.FreeVariables {
			prefix := strings.ToLower(string(fv.ParamType[0]))
			testValue := fmt.Sprintf("%s-test-invariant-%03d", prefix, i+1)
			freeVars[fv.Name] = testValue
			manifestVars = append(manifestVars, &FreeVariable{
				Name: fv.Name, ParamType: fv.ParamType, TestValue: testValue,
			})
		}

		setup := make([]*PatternStep, 0, len(d.After))
		for _, ref := range d.After {
			setup = append(setup, patternStepFromRef(ref, freeVars))
		}
		assertions := make([]*PatternStep, 0, len(d.Then))
		for _, ref := range d.Then {
			assertions = append(assertions, patternStepFromRef(ref, freeVars))
		}

		out = append(out, &Invariant{
			Description:   describeInvariant(d),
			FreeVariables: manifestVars,
			Setup:         setup,
			Assertions:    assertions,
		})
	}
	return out
}

func patternStepFromRef(ref dsl.PatternRef, freeVars map[string]string) *PatternStep {
	return &PatternStep{
		Action:       ref.Action,
		VariantTag:   ref.VariantName,
		CallFields:   bindingsToFields(ref.CallArgs, freeVars),
		ResultFields: bindingsToFields(ref.ResultArgs, freeVars),
	}
}

// bindingsToFields resolves invariant-pattern bindings to concrete
// values: a literal passes through, a `?var` substitutes the free
// variable's materialized test value, and `_` is omitted entirely (it
// asserts nothing about that field).
func bindingsToFields(bindings []dsl.Binding, freeVars map[string]string) map[string]any {
	if len(bindings) == 0 {
		return nil
	}
	out := make(map[string]any, len(bindings))
	for _, b := range bindings {
		switch b.Value.Kind {
		case dsl.ValueLiteral:
			out[b.Name] = b.Value.Literal
		case dsl.ValueVariable:
			if tv, ok := freeVars[b.Value.VarName]; ok {
				out[b.Name] = tv
			}
		case dsl.ValueWildcard:
			// intentionally omitted: wildcard asserts nothing
		}
	}
	return out
}

func describeInvariant(d dsl.InvariantDecl) string {
	var after, then []string
	for _, r := range d.After {
		after = append(after, r.Action+" -> "+r.VariantName)
	}
	for _, r := range d.Then {
		then = append(then, r.Action+" -> "+r.VariantName)
	}
	return fmt.Sprintf("after %s, then %s", strings.Join(after, ", "), strings.Join(then, ", "))
}

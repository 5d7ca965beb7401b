package synccompile

import (
	"fmt"

	"github.com/conceptkit/ckit/internal/dsl"
)

// Warning is a non-fatal compilation finding: a pattern mentions a
// concept URI with no known manifest. This is a warning, not an error,
// since remote concepts may lack local manifests.
type Warning struct {
	SyncName string
	Message  string
}

// Error is a fatal compilation finding: an unbound then-variable, a
// wildcard in a then-field, or a sync with no when-patterns.
type Error struct {
	SyncName string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sync %q: %s", e.SyncName, e.Message)
}

// KnownConcepts reports which concept URIs have a local manifest
// registered, so Compile can downgrade unknown-concept references to
// warnings rather than errors.
type KnownConcepts interface {
	Has(conceptURI string) bool
}

// Compile lowers one raw dsl.SyncDecl into a CompiledSync, validating
// that it declares at least one when-pattern, that no then-variable is
// left unbound by when/where, and downgrading unknown concept URIs to
// warnings.
func Compile(raw *dsl.SyncDecl, known KnownConcepts) (*CompiledSync, []Warning, error) {
	if len(raw.When) == 0 {
		return nil, nil, &Error{SyncName: raw.Name, Message: "must declare at least one when-pattern"}
	}

	var warnings []Warning
	bound := make(map[string]bool)

	when := make([]WhenPattern, 0, len(raw.When))
	triggerKeys := make([]TriggerKey, 0, len(raw.When))
	for _, wp := range raw.When {
		if known != nil && !known.Has(wp.ConceptURI) {
			warnings = append(warnings, Warning{
				SyncName: raw.Name,
				Message:  fmt.Sprintf("when-pattern references unknown concept %q", wp.ConceptURI),
			})
		}
		input := compileBindings(wp.Input, bound)
		output := compileBindings(wp.Output, bound)
		when = append(when, WhenPattern{ConceptURI: wp.ConceptURI, Action: wp.Action, Input: input, Output: output})
		triggerKeys = append(triggerKeys, TriggerKey{ConceptURI: wp.ConceptURI, Action: wp.Action})
	}

	where := make([]WhereClause, 0, len(raw.Where))
	for _, wc := range raw.Where {
		switch wc.Kind {
		case dsl.WhereQuery:
			if known != nil && !known.Has(wc.ConceptURI) {
				warnings = append(warnings, Warning{
					SyncName: raw.Name,
					Message:  fmt.Sprintf("where-clause references unknown concept %q", wc.ConceptURI),
				})
			}
			criteria := compileBindings(wc.Criteria, bound)
			bound[wc.BindVar] = true
			where = append(where, WhereClause{
				Kind: WhereQuery, ConceptURI: wc.ConceptURI, Relation: wc.Relation,
				Criteria: criteria, BindVar: wc.BindVar,
			})
		case dsl.WhereBind:
			val := compileValueExpr(wc.BindValue)
			bound[wc.BindVar] = true
			where = append(where, WhereClause{Kind: WhereBind, BindVar: wc.BindVar, BindValue: val})
		}
	}

	then := make([]ThenTemplate, 0, len(raw.Then))
	for _, ti := range raw.Then {
		fields := make([]FieldMatch, 0, len(ti.Fields))
		for _, b := range ti.Fields {
			fm := compileValueExpr(b.Value)
			fm.Name = b.Name
			if fm.Kind == MatchVariable && !bound[fm.VarName] {
				return nil, warnings, &Error{
					SyncName: raw.Name,
					Message:  fmt.Sprintf("then-invocation %s/%s references unbound variable ?%s", ti.ConceptURI, ti.Action, fm.VarName),
				}
			}
			if fm.Kind == MatchWildcard {
				return nil, warnings, &Error{
					SyncName: raw.Name,
					Message:  fmt.Sprintf("then-invocation %s/%s field %q cannot use a wildcard", ti.ConceptURI, ti.Action, b.Name),
				}
			}
			fields = append(fields, fm)
		}
		if known != nil && !known.Has(ti.ConceptURI) {
			warnings = append(warnings, Warning{
				SyncName: raw.Name,
				Message:  fmt.Sprintf("then-invocation references unknown concept %q", ti.ConceptURI),
			})
		}
		then = append(then, ThenTemplate{ConceptURI: ti.ConceptURI, Action: ti.Action, Fields: fields})
	}

	return &CompiledSync{
		Name:        raw.Name,
		Eager:       raw.HasAnnotation("eager"),
		When:        when,
		Where:       where,
		Then:        then,
		TriggerKeys: triggerKeys,
	}, warnings, nil
}

func compileBindings(bindings []dsl.Binding, bound map[string]bool) []FieldMatch {
	out := make([]FieldMatch, 0, len(bindings))
	for _, b := range bindings {
		fm := compileValueExpr(b.Value)
		fm.Name = b.Name
		if fm.Kind == MatchVariable {
			bound[fm.VarName] = true
		}
		out = append(out, fm)
	}
	return out
}

func compileValueExpr(v dsl.ValueExpr) FieldMatch {
	switch v.Kind {
	case dsl.ValueLiteral:
		return FieldMatch{Kind: MatchLiteral, Literal: v.Literal}
	case dsl.ValueVariable:
		return FieldMatch{Kind: MatchVariable, VarName: v.VarName}
	default:
		return FieldMatch{Kind: MatchWildcard}
	}
}

package manifest

import (
	"strings"

	"github.com/conceptkit/ckit/internal/dsl"
)

// builder accumulates violations across an ordered sequence of passes,
// mirroring a builder-pass style common in this codebase: each pass is
// a plain method, state lives on the struct, and errors are collected
// rather than returned eagerly so one spec file can report every problem
// at once.
type builder struct {
	file         string
	conceptName  string
	typeParamSet map[string]bool
	violations   []*Violation
}

// Build lowers one parsed concept spec into its manifest. uri is the
// concept's registration URI (e.g. "Echo", "com/example/User"); it is
// supplied by the caller because a bare AST carries no notion of registry
// placement.
func Build(spec *dsl.ConceptSpec, uri string) (*Manifest, error) {
	b := &builder{
		file:        spec.Pos.File,
		conceptName: spec.Name,
	}
	b.typeParamSet = make(map[string]bool, len(spec.TypeParams))
	for _, tp := range spec.TypeParams {
		b.typeParamSet[tp] = true
	}

	relations, err := b.buildRelations(spec.State)
	if err != nil {
		return nil, err
	}
	actions, err := b.buildActions(spec.Actions)
	if err != nil {
		return nil, err
	}
	if len(b.violations) > 0 {
		return nil, ValidationError(b.violations)
	}

	typeParams := make([]TypeParam, 0, len(spec.TypeParams))
	for _, tp := range spec.TypeParams {
		typeParams = append(typeParams, TypeParam{Name: tp, WireType: wireTypeFor(tp)})
	}

	m := &Manifest{
		URI:          uri,
		Name:         spec.Name,
		Purpose:      strings.TrimSpace(spec.Purpose),
		Capabilities: spec.Capabilities,
		TypeParams:   typeParams,
		Relations:    relations,
		Actions:      actions,
		Invariants:   buildInvariants(spec.Invariants),
		JSONSchemas:  buildJSONSchemas(actions),
		Gate:         spec.HasAnnotation("gate"),
	}
	m.GraphQLSchema = buildGraphQLSchema(relations)

	if err := validateGate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// validateGate enforces that a gate-annotated action has at least one
// terminal-success variant and at least one failure variant. This
// implementation treats the conventional tag "ok" as the success marker
// and "error" or "timeout" as a failure marker; a concept author using different tags must still include ones
// recognizable under that convention.
func validateGate(m *Manifest) error {
	if !m.Gate {
		return nil
	}
	var violations []*Violation
	for _, a := range m.Actions {
		hasSuccess, hasFailure := false, false
		for _, v := range a.Variants {
			switch v.Tag {
			case "ok":
				hasSuccess = true
			case "error", "timeout":
				hasFailure = true
			}
		}
		if !hasSuccess {
			violations = append(violations, &Violation{
				Message: "gate action " + a.Name + " has no terminal success variant (expected tag \"ok\")",
				File:    m.Name,
			})
		}
		if !hasFailure {
			violations = append(violations, &Violation{
				Message: "gate action " + a.Name + " has no failure variant (expected tag \"error\" or \"timeout\")",
				File:    m.Name,
			})
		}
	}
	if len(violations) > 0 {
		return ValidationError(violations)
	}
	return nil
}

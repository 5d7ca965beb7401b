package manifest

import "github.com/conceptkit/ckit/internal/dsl"

// buildActions lowers a concept's action declarations into manifest
// Actions, resolving every param and variant field type-expression.
func (b *builder) buildActions(decls []dsl.ActionDecl) ([]*Action, error) {
	actions := make([]*Action, 0, len(decls))
	for _, d := range decls {
		params, err := b.resolveParams(d.Params)
		if err != nil {
			return nil, err
		}
		variants := make([]*Variant, 0, len(d.Variants))
		for _, vd := range d.Variants {
			vfields, err := b.resolveRelationFields(vd.Params)
			if err != nil {
				return nil, err
			}
			variants = append(variants, &Variant{Tag: vd.Tag, Fields: vfields})
		}
		actions = append(actions, &Action{Name: d.Name, Params: params, Variants: variants})
	}
	return actions, nil
}

func (b *builder) resolveParams(params []dsl.Param) ([]*ActionParam, error) {
	out := make([]*ActionParam, 0, len(params))
	for _, p := range params {
		typ, v := resolveTypeExpr(p.Type, b.typeParamSet, b.file)
		if v != nil {
			b.violations = append(b.violations, v)
			continue
		}
		out = append(out, &ActionParam{Name: p.Name, Type: typ})
	}
	return out, nil
}

func (b *builder) resolveRelationFields(params []dsl.Param) ([]*RelationField, error) {
	out := make([]*RelationField, 0, len(params))
	for _, p := range params {
		typ, v := resolveTypeExpr(p.Type, b.typeParamSet, b.file)
		if v != nil {
			b.violations = append(b.violations, v)
			continue
		}
		resolved, optional := unwrapOption(typ)
		out = append(out, &RelationField{Name: p.Name, Type: resolved, Optional: optional})
	}
	return out, nil
}

package manifest

import (
	"sort"
	"strings"

	"github.com/conceptkit/ckit/internal/dsl"
)

// relationScratch is the builder's working copy of a relation: a map of
// fields keyed by name plus an insertion-order index, mirroring the
// "map + Index + OrderedX()" idiom used elsewhere in this codebase so
// repeated merges can check for an existing field in O(1) before the
// final sort-by-index pass produces the public, array-shaped Relation.
type relationScratch struct {
	name     string
	source   RelationSource
	keyField string
	index    int
	fields   map[string]*RelationField
	nextIdx  int
}

// buildRelations groups a concept's state fields into relations: mapping
// fields sharing a key type-parameter merge into one relation named after
// that parameter (lowercased); `set T` fields become their own set-valued
// relation.
func (b *builder) buildRelations(fields []dsl.StateField) ([]*Relation, error) {
	scratch := make(map[string]*relationScratch)
	nextRelIdx := 0

	ensure := func(name string, source RelationSource, keyField string) *relationScratch {
		if r, ok := scratch[name]; ok {
			return r
		}
		r := &relationScratch{name: name, source: source, keyField: keyField, index: nextRelIdx, fields: make(map[string]*RelationField)}
		nextRelIdx++
		scratch[name] = r
		return r
	}

	for _, f := range fields {
		typ, v := resolveTypeExpr(f.Type, b.typeParamSet, b.file)
		if v != nil {
			b.violations = append(b.violations, v)
			continue
		}
		switch typ.Kind {
		case KindMap:
			groupName := groupKeyName(typ.Key)
			rel := ensure(groupName, RelationMerged, "id")
			valType, optional := unwrapOption(typ.Val)
			addField(rel, f.Name, valType, optional)
		case KindSet:
			rel := ensure(f.Name, RelationSetValued, "id")
			addField(rel, "id", typ.Elem, false)
		default:
			valType, optional := unwrapOption(typ)
			rel := ensure(strings.ToLower(b.conceptName), RelationMerged, "id")
			addField(rel, f.Name, valType, optional)
		}
	}

	names := make([]string, 0, len(scratch))
	for n := range scratch {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return scratch[names[i]].index < scratch[names[j]].index })

	relations := make([]*Relation, 0, len(names))
	for _, n := range names {
		rs := scratch[n]
		fieldNames := make([]string, 0, len(rs.fields))
		for fn := range rs.fields {
			fieldNames = append(fieldNames, fn)
		}
		sort.Slice(fieldNames, func(i, j int) bool { return rs.fields[fieldNames[i]].index < rs.fields[fieldNames[j]].index })
		orderedFields := make([]*RelationField, 0, len(fieldNames))
		for _, fn := range fieldNames {
			orderedFields = append(orderedFields, rs.fields[fn])
		}
		relations = append(relations, &Relation{
			Name: rs.name, Source: rs.source, KeyField: rs.keyField, Fields: orderedFields,
		})
	}
	return relations, nil
}

func addField(rel *relationScratch, name string, typ *TypeTree, optional bool) {
	if _, ok := rel.fields[name]; ok {
		return
	}
	rel.fields[name] = &RelationField{Name: name, Type: typ, Optional: optional, index: rel.nextIdx}
	rel.nextIdx++
}

// groupKeyName returns the relation name a mapping field's key groups
// under: the lowercased type-parameter name, or a synthesized name when
// the key is a bare primitive (uncommon, but not excluded by the grammar).
func groupKeyName(key *TypeTree) string {
	if key.Kind == KindParam {
		return strings.ToLower(key.Param)
	}
	return "by_" + strings.ToLower(key.Primitive)
}

func unwrapOption(t *TypeTree) (*TypeTree, bool) {
	if t.Kind == KindOption {
		return t.Elem, true
	}
	return t, false
}

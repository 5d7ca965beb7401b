package manifest

import "github.com/conceptkit/ckit/internal/dsl"

// TypeTreeKind enumerates the resolved type-tree kinds: a fully resolved
// type is one of primitive, param, set, list, option, map, or record.
type TypeTreeKind string

const (
	KindPrimitive TypeTreeKind = "primitive"
	KindParam     TypeTreeKind = "param"
	KindSet       TypeTreeKind = "set"
	KindList      TypeTreeKind = "list"
	KindOption    TypeTreeKind = "option"
	KindMap       TypeTreeKind = "map"
	KindRecord    TypeTreeKind = "record"
)

// TypeTree is a fully resolved type, containing no raw source tokens.
type TypeTree struct {
	Kind      TypeTreeKind         `json:"kind"`
	Primitive string               `json:"primitive,omitempty"`
	Param     string               `json:"param,omitempty"`
	Elem      *TypeTree            `json:"elem,omitempty"`
	Key       *TypeTree            `json:"key,omitempty"`
	Val       *TypeTree            `json:"val,omitempty"`
	Fields    map[string]*TypeTree `json:"fields,omitempty"`
}

// resolveTypeExpr lowers a parsed dsl.TypeExpr into a TypeTree, failing
// with a Violation when it references an unknown type parameter.
func resolveTypeExpr(te dsl.TypeExpr, typeParams map[string]bool, file string) (*TypeTree, *Violation) {
	switch te.Kind {
	case dsl.TypePrimitive:
		return &TypeTree{Kind: KindPrimitive, Primitive: te.Name}, nil
	case dsl.TypeParamRef:
		if !typeParams[te.Name] {
			return nil, newViolation(file, te.Pos, "unknown type parameter %q", te.Name)
		}
		return &TypeTree{Kind: KindParam, Param: te.Name}, nil
	case dsl.TypeSet:
		elem, v := resolveTypeExpr(*te.Elem, typeParams, file)
		if v != nil {
			return nil, v
		}
		return &TypeTree{Kind: KindSet, Elem: elem}, nil
	case dsl.TypeList:
		elem, v := resolveTypeExpr(*te.Elem, typeParams, file)
		if v != nil {
			return nil, v
		}
		return &TypeTree{Kind: KindList, Elem: elem}, nil
	case dsl.TypeOption:
		elem, v := resolveTypeExpr(*te.Elem, typeParams, file)
		if v != nil {
			return nil, v
		}
		return &TypeTree{Kind: KindOption, Elem: elem}, nil
	case dsl.TypeMap:
		key, v := resolveTypeExpr(*te.Key, typeParams, file)
		if v != nil {
			return nil, v
		}
		val, v := resolveTypeExpr(*te.Val, typeParams, file)
		if v != nil {
			return nil, v
		}
		return &TypeTree{Kind: KindMap, Key: key, Val: val}, nil
	default:
		return nil, newViolation(file, te.Pos, "unresolvable type expression")
	}
}

// wireTypeFor returns the scalar a type parameter should render as on the
// wire. Type parameters in this grammar always stand for opaque entity
// identifiers, so every one maps to "ID".
func wireTypeFor(string) string { return "ID" }

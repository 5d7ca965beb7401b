package dsl

// ConceptSpec is the parsed form of one concept source file.
type ConceptSpec struct {
	Name         string
	Annotations  []Annotation
	Version      int // default 1
	TypeParams   []string
	Purpose      string
	Capabilities []string
	State        []StateField
	Actions      []ActionDecl
	Invariants   []InvariantDecl
	Pos          Position
}

// Annotation is `@gate` or `@version(N)`.
type Annotation struct {
	Name string
	Arg  *int
	Pos  Position
}

func (c *ConceptSpec) HasAnnotation(name string) bool {
	for _, a := range c.Annotations {
		if a.Name == name {
			return true
		}
	}
	return false
}

// StateField is one entry of a concept's `state { ... }` block.
type StateField struct {
	Name string
	Type TypeExpr
	Pos  Position
}

// TypeExprKind enumerates the unresolved, source-level type expression
// forms a concept or action parameter may use. Resolution into a
// manifest.TypeTree happens in the manifest generator, not here: the
// parser only records what the grammar allows.
type TypeExprKind int

const (
	TypePrimitive TypeExprKind = iota
	TypeParamRef
	TypeSet
	TypeList
	TypeOption
	TypeMap
)

// TypeExpr is one parsed type expression, e.g. `String`, `T`, `set T`,
// `list T`, `option T` / `T?`, or `K -> V`.
type TypeExpr struct {
	Kind TypeExprKind
	Name string    // primitive name or type-parameter name
	Elem *TypeExpr  // set/list/option element
	Key  *TypeExpr  // map key
	Val  *TypeExpr  // map value
	Pos  Position
}

// ActionDecl is one `action NAME(params) { variant+ }` block.
type ActionDecl struct {
	Name     string
	Params   []Param
	Variants []VariantDecl
	Pos      Position
}

// Param is one action or variant parameter: `name: Type`.
type Param struct {
	Name string
	Type TypeExpr
	Pos  Position
}

// VariantDecl is one `-> TAG(params) { text }` result arm.
type VariantDecl struct {
	Tag    string
	Params []Param
	Body   string
	Pos    Position
}

// InvariantDecl is a concept's `invariant { ... }` block: a free-variable
// scoped round-trip property over the concept's own actions.
type InvariantDecl struct {
	FreeVariables []FreeVar
	After         []PatternRef
	Then          []PatternRef
	Pos           Position
}

// FreeVar is one invariant-scoped variable, bound to a type parameter.
type FreeVar struct {
	Name      string
	ParamType string
	Pos       Position
}

// PatternRef is one `action(args) -> variant(args)` clause inside an
// invariant's `after`/`then` lists.
type PatternRef struct {
	Action      string
	VariantName string
	CallArgs    []Binding
	ResultArgs  []Binding
	Pos         Position
}

// Binding pairs a field name with a value expression: a literal, a
// `?variable` reference, or a `_` wildcard.
type Binding struct {
	Name  string
	Value ValueExpr
	Pos   Position
}

// ValueExprKind enumerates field-match/assignment value forms shared by
// invariants, sync `when` patterns, and sync `then` templates.
type ValueExprKind int

const (
	ValueLiteral ValueExprKind = iota
	ValueVariable
	ValueWildcard
)

// ValueExpr is one matched or assigned value: `"literal"`, `?var`, or `_`.
type ValueExpr struct {
	Kind    ValueExprKind
	Literal any    // string, int64, float64, or bool
	VarName string // set when Kind == ValueVariable
	Pos     Position
}

// ---- Sync file AST ----

// SyncDecl is one parsed `sync NAME { when {...} where {...} then {...} }`
// block.
type SyncDecl struct {
	Name        string
	Annotations []Annotation
	When        []WhenPattern
	Where       []WhereClause
	Then        []ThenInvocation
	Pos         Position
}

func (s *SyncDecl) HasAnnotation(name string) bool {
	for _, a := range s.Annotations {
		if a.Name == name {
			return true
		}
	}
	return false
}

// WhenPattern is one `concept/action:[in] => [out]` trigger clause.
type WhenPattern struct {
	ConceptURI string
	Action     string
	Input      []Binding
	Output     []Binding
	Pos        Position
}

// WhereClauseKind distinguishes a state query from a plain variable bind.
type WhereClauseKind int

const (
	WhereQuery WhereClauseKind = iota
	WhereBind
)

// WhereClause is one `where` entry: either a constrained state query
// against a concept's relation, or a bind of a new variable to an
// expression over already-bound variables.
type WhereClause struct {
	Kind       WhereClauseKind
	ConceptURI string
	Relation   string
	Criteria   []Binding
	BindVar    string
	BindValue  ValueExpr
	Pos        Position
}

// ThenInvocation is one `then` template: a follow-on action invocation to
// emit once `When`/`Where` resolve successfully.
type ThenInvocation struct {
	ConceptURI string
	Action     string
	Fields     []Binding
	Pos        Position
}

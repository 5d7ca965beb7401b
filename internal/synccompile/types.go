// Package synccompile lowers parsed sync declarations (internal/dsl) into
// CompiledSync values the engine can index and evaluate.
package synccompile

// MatchKind distinguishes a field's matching mode in a when-pattern or
// the value mode of a then-template field.
type MatchKind int

const (
	MatchLiteral MatchKind = iota
	MatchVariable
	MatchWildcard
)

// FieldMatch is one `{name, match}` entry, shared by when-pattern input/
// output fields and then-template fields (then never uses MatchWildcard).
type FieldMatch struct {
	Name    string
	Kind    MatchKind
	Literal any
	VarName string
}

// TriggerKey is the (conceptURI, action) pair the engine indexes compiled
// syncs by.
type TriggerKey struct {
	ConceptURI string
	Action     string
}

// WhenPattern is one compiled `when` clause.
type WhenPattern struct {
	ConceptURI string
	Action     string
	Input      []FieldMatch
	Output     []FieldMatch
}

// WhereClauseKind distinguishes a state query from a variable bind.
type WhereClauseKind int

const (
	WhereQuery WhereClauseKind = iota
	WhereBind
)

// WhereClause is one compiled `where` entry.
type WhereClause struct {
	Kind       WhereClauseKind
	ConceptURI string
	Relation   string
	Criteria   []FieldMatch
	BindVar    string
	BindValue  FieldMatch // only meaningful when Kind == WhereBind
}

// ThenTemplate is one compiled `then` invocation template.
type ThenTemplate struct {
	ConceptURI string
	Action     string
	Fields     []FieldMatch
}

// CompiledSync is the lowered, ready-to-index form of one sync
// declaration.
type CompiledSync struct {
	Name        string
	Eager       bool
	When        []WhenPattern
	Where       []WhereClause
	Then        []ThenTemplate
	TriggerKeys []TriggerKey
}

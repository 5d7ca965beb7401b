// Package manifest builds the language-neutral concept manifest from a
// parsed dsl.ConceptSpec. The manifest is the single artifact every code
// generator consumes; nothing downstream ever looks back at the AST.
package manifest

// Manifest is the canonical, language-neutral description of one concept.
type Manifest struct {
	URI          string         `json:"uri"`
	Name         string         `json:"name"`
	Purpose      string         `json:"purpose,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	TypeParams   []TypeParam    `json:"typeParams,omitempty"`
	Relations    []*Relation    `json:"relations"`
	Actions      []*Action      `json:"actions"`
	Invariants   []*Invariant   `json:"invariants,omitempty"`
	JSONSchemas  JSONSchemaSet  `json:"jsonSchemas"`
	GraphQLSchema string        `json:"graphqlSchema"`
	Gate         bool           `json:"gate,omitempty"`
}

// TypeParam is one of a concept's type parameters, with the wire-level
// scalar name generators should use when they have no better information
// (always "ID" in this implementation; type parameters stand for opaque
// entity identifiers).
type TypeParam struct {
	Name     string `json:"name"`
	WireType string `json:"wireType"`
}

// RelationSource distinguishes a relation produced by merging co-keyed
// mapping fields from one produced by a bare `set T` field.
type RelationSource string

const (
	RelationMerged    RelationSource = "merged"
	RelationSetValued RelationSource = "set-valued"
)

// Relation is one storage relation derived from a concept's state block.
type Relation struct {
	Name     string          `json:"name"`
	Source   RelationSource  `json:"source"`
	KeyField string          `json:"keyField"`
	Fields   []*RelationField `json:"fields"`

	index int
}

// RelationField is one field of a relation or a variant's result shape.
type RelationField struct {
	Name     string    `json:"name"`
	Type     *TypeTree `json:"type"`
	Optional bool      `json:"optional,omitempty"`

	index int
}

// Action is one concept action: a named operation with ordered params and
// ordered result variants.
type Action struct {
	Name     string     `json:"name"`
	Params   []*ActionParam `json:"params"`
	Variants []*Variant `json:"variants"`

	index int
}

// ActionParam is one parameter of an action invocation.
type ActionParam struct {
	Name string    `json:"name"`
	Type *TypeTree `json:"type"`

	index int
}

// Variant is one tagged result shape an action may produce.
type Variant struct {
	Tag    string           `json:"tag"`
	Fields []*RelationField `json:"fields"`

	index int
}

// Invariant is one materialized round-trip property, ready for every
// code generator's conformance-test emitter to consume verbatim.
type Invariant struct {
	Description   string          `json:"description"`
	FreeVariables []*FreeVariable `json:"freeVariables"`
	Setup         []*PatternStep  `json:"setup"`
	Assertions    []*PatternStep  `json:"assertions"`
}

// FreeVariable is one invariant-scoped variable with its materialized
// deterministic test value.
type FreeVariable struct {
	Name      string `json:"name"`
	ParamType string `json:"paramType"`
	TestValue string `json:"testValue"`
}

// PatternStep is one `setup` or `assertion` step of a materialized
// invariant: an expected action call and its expected result variant.
type PatternStep struct {
	Action       string         `json:"action"`
	VariantTag   string         `json:"variantTag"`
	CallFields   map[string]any `json:"callFields,omitempty"`
	ResultFields map[string]any `json:"resultFields,omitempty"`
}

// JSONSchemaSet holds the per-action invocation and completion schemas.
type JSONSchemaSet struct {
	Invocations map[string]JSONSchema            `json:"invocations"`
	Completions map[string]map[string]JSONSchema `json:"completions"`
}

// JSONSchema is a minimal JSON-Schema-shaped document: Go's encoding/json
// already sorts map[string]any keys alphabetically on marshal, so this
// needs no bespoke ordering machinery to keep manifest output deterministic.
type JSONSchema map[string]any

package manifest

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// buildGraphQLSchema emits the manifest's relations as GraphQL object
// types and extends Query with one read field per relation. The `dsl`
// package wraps gqlparser only for parsing; here the manifest generator is
// the producer, so it builds the ast.SchemaDocument directly and renders it
// with the same library's formatter, guaranteeing syntactically valid SDL
// without string concatenation.
func buildGraphQLSchema(relations []*Relation) string {
	doc := &ast.SchemaDocument{}

	for _, rel := range relations {
		doc.Definitions = append(doc.Definitions, relationObjectType(rel))
	}

	queryExt := &ast.Definition{
		Kind: ast.Object,
		Name: "Query",
	}
	for _, rel := range relations {
		queryExt.Fields = append(queryExt.Fields, relationQueryField(rel))
	}
	doc.Extensions = append(doc.Extensions, queryExt)

	var sb strings.Builder
	formatter.NewFormatter(&sb).FormatSchemaDocument(doc)
	return sb.String()
}

func relationObjectType(rel *Relation) *ast.Definition {
	def := &ast.Definition{
		Kind: ast.Object,
		Name: graphqlTypeName(rel.Name),
	}
	def.Fields = append(def.Fields, &ast.FieldDefinition{
		Name: "id",
		Type: ast.NonNullNamedType("ID", nil),
	})
	for _, f := range rel.Fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: f.Name,
			Type: graphqlType(f.Type, f.Optional),
		})
	}
	return def
}

func relationQueryField(rel *Relation) *ast.FieldDefinition {
	named := graphqlTypeName(rel.Name)
	var fieldType *ast.Type
	if rel.Source == RelationSetValued {
		fieldType = ast.NonNullListType(ast.NonNullNamedType(named, nil), nil)
	} else {
		fieldType = ast.NamedType(named, nil)
	}
	return &ast.FieldDefinition{
		Name: rel.Name,
		Arguments: ast.ArgumentDefinitionList{
			{Name: "id", Type: ast.NamedType("ID", nil)},
		},
		Type: fieldType,
	}
}

func graphqlType(t *TypeTree, optional bool) *ast.Type {
	named := graphqlScalarName(t)
	if optional {
		return ast.NamedType(named, nil)
	}
	return ast.NonNullNamedType(named, nil)
}

func graphqlScalarName(t *TypeTree) string {
	switch t.Kind {
	case KindPrimitive:
		switch t.Primitive {
		case "String", "Bytes", "DateTime":
			return "String"
		case "Int":
			return "Int"
		case "Bool":
			return "Boolean"
		case "Float":
			return "Float"
		default:
			return "String"
		}
	case KindParam:
		return "ID"
	case KindOption:
		return graphqlScalarName(t.Elem)
	case KindSet, KindList:
		return graphqlScalarName(t.Elem)
	default:
		return "String"
	}
}

func graphqlTypeName(relationName string) string {
	if relationName == "" {
		return relationName
	}
	return strings.ToUpper(relationName[:1]) + relationName[1:]
}

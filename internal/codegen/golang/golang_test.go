package golang_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/codegen/golang"
	"github.com/conceptkit/ckit/internal/manifest"
)

func sampleManifest() *manifest.Manifest {
	return &manifest.Manifest{
		URI:  "Echo",
		Name: "Echo",
		Relations: []*manifest.Relation{
			{
				Name: "messages",
				Fields: []*manifest.RelationField{
					{Name: "id", Type: &manifest.TypeTree{Kind: manifest.KindPrimitive, Primitive: "String"}},
					{Name: "sentAt", Type: &manifest.TypeTree{Kind: manifest.KindPrimitive, Primitive: "DateTime"}},
				},
			},
		},
		Actions: []*manifest.Action{
			{
				Name: "send",
				Params: []*manifest.ActionParam{
					{Name: "text", Type: &manifest.TypeTree{Kind: manifest.KindPrimitive, Primitive: "String"}},
				},
				Variants: []*manifest.Variant{
					{Tag: "ok", Fields: []*manifest.RelationField{
						{Name: "echo", Type: &manifest.TypeTree{Kind: manifest.KindPrimitive, Primitive: "String"}},
					}},
				},
			},
		},
	}
}

func TestGenerateProducesTypesHandlerAndTransport(t *testing.T) {
	files, err := golang.Generator{}.Generate(sampleManifest())
	require.NoError(t, err)

	paths := make(map[string]string)
	for _, f := range files {
		paths[f.Path] = f.Content
	}
	require.Contains(t, paths, "echo/types.go")
	require.Contains(t, paths, "echo/handler.go")
	require.Contains(t, paths, "echo/transport.go")
	require.NotContains(t, paths, "echo/conformance_test.go")

	require.Contains(t, paths["echo/types.go"], "type Messages struct")
	require.Contains(t, paths["echo/types.go"], "SentAt time.Time")
	require.Contains(t, paths["echo/handler.go"], "Send(ctx context.Context, in SendInput)")
	require.Contains(t, paths["echo/transport.go"], `case "send":`)
}

func TestGenerateEmitsConformanceTestWhenInvariantsPresent(t *testing.T) {
	m := sampleManifest()
	m.Invariants = []*manifest.Invariant{
		{
			Description: "sending an echo returns the same text",
			FreeVariables: []*manifest.FreeVariable{
				{Name: "text", ParamType: "String", TestValue: "hi"},
			},
			Assertions: []*manifest.PatternStep{
				{
					Action:       "send",
					VariantTag:   "ok",
					CallFields:   map[string]any{"text": "hi"},
					ResultFields: map[string]any{"echo": "hi"},
				},
			},
		},
	}
	files, err := golang.Generator{}.Generate(m)
	require.NoError(t, err)

	var conformance string
	for _, f := range files {
		if f.Path == "echo/conformance_test.go" {
			conformance = f.Content
		}
	}
	require.NotEmpty(t, conformance)
	require.Contains(t, conformance, "Test0_Invariant")
	require.Contains(t, conformance, `text := "hi"`)
	require.Contains(t, conformance, "Text: text,")
	require.Contains(t, conformance, `fields["echo"]`)
	require.Contains(t, conformance, "require.Equal(t, text, fields[\"echo\"])")
	require.NotContains(t, conformance, "SendInput{}")
}

func TestGenerateRejectsUnsupportedPrimitive(t *testing.T) {
	m := sampleManifest()
	m.Relations[0].Fields[0].Type = &manifest.TypeTree{Kind: manifest.KindPrimitive, Primitive: "Decimal"}
	_, err := golang.Generator{}.Generate(m)
	require.Error(t, err)
}

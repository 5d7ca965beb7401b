package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/conceptkit/ckit/internal/dsl"
	"github.com/conceptkit/ckit/internal/manifest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const echoSource = `
concept Echo {
	state {
		messages: set M
		text: M -> String
	}
	actions {
		action send(id: M, text: String) {
			-> ok(id: M, echo: String) { the echo reply }
		}
	}
}
`

func TestBuildEchoManifest(t *testing.T) {
	spec, err := dsl.ParseConcept("echo.concept", echoSource)
	require.NoError(t, err)

	m, err := manifest.Build(spec, "Echo")
	require.NoError(t, err)

	require.Equal(t, "Echo", m.Name)
	require.Len(t, m.Relations, 2)

	var messages, byM *manifest.Relation
	for _, r := range m.Relations {
		switch r.Name {
		case "messages":
			messages = r
		case "m":
			byM = r
		}
	}
	require.NotNil(t, messages, "expected a set-valued relation for `messages: set M`")
	require.Equal(t, manifest.RelationSetValued, messages.Source)
	require.NotNil(t, byM, "expected a merged relation named after key param M")
	require.Equal(t, manifest.RelationMerged, byM.Source)
	require.Len(t, byM.Fields, 1)
	require.Equal(t, "text", byM.Fields[0].Name)

	require.Len(t, m.Actions, 1)
	send := m.Actions[0]
	require.Equal(t, "send", send.Name)
	require.Len(t, send.Variants, 1)
	require.Equal(t, "ok", send.Variants[0].Tag)

	invocationSchema, ok := m.JSONSchemas.Invocations["send"]
	require.True(t, ok)
	require.Equal(t, "object", invocationSchema["type"])

	require.Contains(t, m.GraphQLSchema, "type Query")
}

func TestManifestDeterminism(t *testing.T) {
	spec, err := dsl.ParseConcept("echo.concept", echoSource)
	require.NoError(t, err)

	m1, err := manifest.Build(spec, "Echo")
	require.NoError(t, err)
	m2, err := manifest.Build(spec, "Echo")
	require.NoError(t, err)

	j1, err := json.Marshal(m1)
	require.NoError(t, err)
	j2, err := json.Marshal(m2)
	require.NoError(t, err)

	if diff := cmp.Diff(string(j1), string(j2)); diff != "" {
		t.Fatalf("manifest JSON is not deterministic across identical builds:\n%s", diff)
	}
}

func TestUnknownTypeParameterIsViolation(t *testing.T) {
	src := `
concept Broken {
	state { x: Q -> String }
	actions { action noop() { -> ok() {} } }
}
`
	spec, err := dsl.ParseConcept("broken.concept", src)
	require.NoError(t, err)

	_, err = manifest.Build(spec, "Broken")
	require.Error(t, err)
	var verr manifest.ValidationError
	require.ErrorAs(t, err, &verr)
}

package synccompile_test

import (
	"testing"

	"github.com/conceptkit/ckit/internal/dsl"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/stretchr/testify/require"
)

type fakeKnown map[string]bool

func (f fakeKnown) Has(uri string) bool { return f[uri] }

const echoSyncSource = `
sync EchoRequest {
	when {
		Web/request: [method: "echo", text: ?t] => []
	}
	then {
		Echo/send[id: "1", text: ?t]
	}
}
`

func TestCompileBindsVariablesAcrossWhenThen(t *testing.T) {
	syncs, err := dsl.ParseSyncFile("echo.sync", echoSyncSource)
	require.NoError(t, err)
	require.Len(t, syncs, 1)

	compiled, warnings, err := synccompile.Compile(syncs[0], fakeKnown{"Web": true, "Echo": true})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "EchoRequest", compiled.Name)
	require.Len(t, compiled.Then, 1)
	require.Equal(t, "text", compiled.Then[0].Fields[1].Name)
	require.Equal(t, synccompile.MatchVariable, compiled.Then[0].Fields[1].Kind)
	require.Equal(t, "t", compiled.Then[0].Fields[1].VarName)
}

func TestCompileRejectsUnboundThenVariable(t *testing.T) {
	src := `
sync Bad {
	when { Web/request: [method: "x"] => [] }
	then { Echo/send[id: "1", text: ?missing] }
}
`
	syncs, err := dsl.ParseSyncFile("bad.sync", src)
	require.NoError(t, err)

	_, _, err = synccompile.Compile(syncs[0], fakeKnown{"Web": true, "Echo": true})
	require.Error(t, err)
}

func TestCompileWarnsOnUnknownConcept(t *testing.T) {
	syncs, err := dsl.ParseSyncFile("echo.sync", echoSyncSource)
	require.NoError(t, err)

	_, warnings, err := synccompile.Compile(syncs[0], fakeKnown{})
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
}

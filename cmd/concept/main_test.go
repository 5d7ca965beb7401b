package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const echoConceptSource = `
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

const echoSyncSource = `
sync EchoReply {
	when {
		Echo/send: [id: ?id, text: ?t] => [variant: "ok"]
	}
	then {
		Echo/send[id: ?id, text: ?t]
	}
}
`

func TestLoadManifestsReadsConceptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Echo.concept"), []byte(echoConceptSource), 0o644))

	manifests, err := loadManifests([]string{dir})
	require.NoError(t, err)
	require.Contains(t, manifests, "Echo")
	require.Equal(t, "Echo", manifests["Echo"].Name)
}

func TestLoadSyncsCompilesAgainstKnownConcepts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Echo.sync"), []byte(echoSyncSource), 0o644))

	syncs, err := loadSyncs([]string{dir}, alwaysKnown{})
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	require.Equal(t, "EchoReply", syncs[0].Name)
}

type alwaysKnown struct{}

func (alwaysKnown) Has(string) bool { return true }

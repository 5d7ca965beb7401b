package trace_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/trace"
)

func TestBuildReconstructsTreeWithPendingLeaf(t *testing.T) {
	flow := "flow-1"
	now := time.Now().UTC()
	records := []actionlog.Record{
		{ID: "i0", Type: actionlog.TypeInvocation, Concept: "Echo", Action: "send", Flow: flow, Timestamp: now},
		{ID: "i0", Type: actionlog.TypeCompletion, Concept: "Echo", Action: "send", Flow: flow, Variant: "ok", Timestamp: now},
		{ID: "i1", Type: actionlog.TypeInvocation, Concept: "Web", Action: "respond", Flow: flow, Parent: "i0", Sync: "EchoReply", Timestamp: now},
	}

	root := trace.Build(records, nil, nil, nil)
	require.NotNil(t, root)
	require.Equal(t, "i0", root.CompletionID)
	require.False(t, root.Pending)
	require.Len(t, root.Children, 1)
	require.True(t, root.Children[0].Pending)
	require.Equal(t, "Web", root.Children[0].Concept)
	require.Equal(t, "EchoReply", root.Children[0].SyncName)
}

func TestBuildAnnotatesGateNodes(t *testing.T) {
	flow := "flow-2"
	now := time.Now().UTC()
	records := []actionlog.Record{
		{ID: "i0", Type: actionlog.TypeInvocation, Concept: "Export", Action: "start", Flow: flow, Timestamp: now},
		{ID: "i0", Type: actionlog.TypeCompletion, Concept: "Export", Action: "start", Flow: flow, Variant: "ok", Timestamp: now},
	}
	gates := trace.GateConcepts{"Export": {Gate: true}}

	root := trace.Build(records, nil, gates, nil)
	require.NotNil(t, root.Gate)
	require.False(t, root.Gate.Pending)
}

func TestGateOnlyPrunesNonGateSubtrees(t *testing.T) {
	root := &trace.Node{
		InvocationID: "root",
		Children: []*trace.Node{
			{InvocationID: "a"},
			{InvocationID: "b", Gate: &trace.Gate{Pending: true}},
		},
	}
	pruned := trace.GateOnly(root)
	require.NotNil(t, pruned)
	require.Len(t, pruned.Children, 1)
	require.Equal(t, "b", pruned.Children[0].InvocationID)
}

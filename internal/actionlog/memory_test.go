package actionlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/stretchr/testify/require"
)

func TestAppendInvocationSetsParent(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()

	completionID, err := log.Append(ctx, actionlog.Record{
		ID: "c1", Type: actionlog.TypeCompletion, Flow: "f1",
		Concept: "Echo", Action: "send", Variant: "ok", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	invID, err := log.AppendInvocation(ctx, actionlog.Record{
		ID: "i1", Flow: "f1", Concept: "Web", Action: "respond", Sync: "EchoReply",
	}, completionID)
	require.NoError(t, err)
	require.Equal(t, "i1", invID)

	records, err := log.LoadFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, completionID, records[1].Parent)
	require.Equal(t, actionlog.TypeInvocation, records[1].Type)
}

func TestOnceOnlyFiring(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()

	has, err := log.HasFiring(ctx, "EchoReply", []string{"c1"})
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, log.RecordFiring(ctx, "EchoReply", []string{"c1"}))

	has, err = log.HasFiring(ctx, "EchoReply", []string{"c1"})
	require.NoError(t, err)
	require.True(t, has)

	// A different parent tuple is a distinct firing.
	has, err = log.HasFiring(ctx, "EchoReply", []string{"c2"})
	require.NoError(t, err)
	require.False(t, has)
}

func TestFlowIsolation(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()

	_, err := log.Append(ctx, actionlog.Record{ID: "a1", Flow: "flowA", Concept: "Echo", Action: "send"})
	require.NoError(t, err)
	_, err = log.Append(ctx, actionlog.Record{ID: "b1", Flow: "flowB", Concept: "Echo", Action: "send"})
	require.NoError(t, err)

	flowA, err := log.LoadFlow(ctx, "flowA")
	require.NoError(t, err)
	require.Len(t, flowA, 1)
	require.Equal(t, "a1", flowA[0].ID)
}

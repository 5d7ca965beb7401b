package correlator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/correlator"
	"github.com/conceptkit/ckit/internal/manifest"
	"github.com/conceptkit/ckit/internal/synccompile"
)

func TestCorrelateCompletedFlow(t *testing.T) {
	idx := correlator.NewStaticIndex(
		[]*manifest.Manifest{{URI: "Echo", Actions: []*manifest.Action{{Name: "send"}}}},
		[]*synccompile.CompiledSync{{Name: "EchoReply"}},
	)
	now := time.Now().UTC()
	records := []actionlog.Record{
		{ID: "i0", Type: actionlog.TypeInvocation, Concept: "Echo", Action: "send", Flow: "f1", Timestamp: now},
		{ID: "i0", Type: actionlog.TypeCompletion, Concept: "Echo", Action: "send", Flow: "f1", Variant: "ok", Timestamp: now},
	}

	rf, err := correlator.Correlate("f1", records, idx)
	require.NoError(t, err)
	require.Equal(t, correlator.StatusCompleted, rf.Status)
	require.Empty(t, rf.Unresolved)
}

func TestCorrelateFailedFlowOnErrorVariant(t *testing.T) {
	idx := correlator.NewStaticIndex(
		[]*manifest.Manifest{{URI: "Echo", Actions: []*manifest.Action{{Name: "send"}}}}, nil,
	)
	now := time.Now().UTC()
	records := []actionlog.Record{
		{ID: "i0", Type: actionlog.TypeInvocation, Concept: "Echo", Action: "send", Flow: "f2", Timestamp: now},
		{ID: "i0", Type: actionlog.TypeCompletion, Concept: "Echo", Action: "send", Flow: "f2", Variant: "error", Timestamp: now},
	}

	rf, err := correlator.Correlate("f2", records, idx)
	require.NoError(t, err)
	require.Equal(t, correlator.StatusFailed, rf.Status)
}

func TestCorrelatePartialFlowOnUnresolvedConcept(t *testing.T) {
	idx := correlator.NewStaticIndex(nil, nil)
	now := time.Now().UTC()
	records := []actionlog.Record{
		{ID: "i0", Type: actionlog.TypeInvocation, Concept: "Unknown", Action: "do", Flow: "f3", Timestamp: now},
		{ID: "i0", Type: actionlog.TypeCompletion, Concept: "Unknown", Action: "do", Flow: "f3", Variant: "ok", Timestamp: now},
	}

	rf, err := correlator.Correlate("f3", records, idx)
	require.NoError(t, err)
	require.Equal(t, correlator.StatusPartial, rf.Status)
	require.NotEmpty(t, rf.Unresolved)
}

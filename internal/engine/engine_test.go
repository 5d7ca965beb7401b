package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/engine"
	"github.com/conceptkit/ckit/internal/idgen"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"echo": input["text"]}}, nil
}

type webHandler struct{ responses []map[string]any }

func (h *webHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	h.responses = append(h.responses, input)
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{}}, nil
}

func lit(name string, v any) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchLiteral, Literal: v}
}

func variable(name, varName string) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchVariable, VarName: varName}
}

func buildEchoReplySync() *synccompile.CompiledSync {
	return &synccompile.CompiledSync{
		Name: "EchoReply",
		When: []synccompile.WhenPattern{{
			ConceptURI: "Echo", Action: "send",
			Input:  []synccompile.FieldMatch{variable("text", "t")},
			Output: []synccompile.FieldMatch{lit("variant", "ok"), variable("echo", "e")},
		}},
		Then: []synccompile.ThenTemplate{{
			ConceptURI: "Web", Action: "respond",
			Fields: []synccompile.FieldMatch{variable("body", "e")},
		}},
		TriggerKeys: []synccompile.TriggerKey{{ConceptURI: "Echo", Action: "send"}},
	}
}

func TestEngineDrainsEchoReplySync(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Echo", transport.NewInProcess(echoHandler{}, storage.NewMemory()))
	web := &webHandler{}
	registry.Register("Web", transport.NewInProcess(web, storage.NewMemory()))

	ids := idgen.NewGenerator(1)
	e := engine.New(log, registry, ids, []*synccompile.CompiledSync{buildEchoReplySync()})

	flow := "flow-1"
	initial := actionlog.Record{ID: "i0", Concept: "Echo", Action: "send", Flow: flow, Input: map[string]any{"text": "hi"}}
	completion, err := invokeDirect(ctx, registry, initial)
	require.NoError(t, err)

	require.NoError(t, e.Drain(ctx, completion))

	require.Len(t, web.responses, 1)
	require.Equal(t, "hi", web.responses[0]["body"])

	records, err := log.LoadFlow(ctx, flow)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 3) // send completion, respond invocation, respond completion

	has, err := log.HasFiring(ctx, "EchoReply", []string{completion.ID})
	require.NoError(t, err)
	require.True(t, has)
}

func TestEngineSkipsOnceOnlyFiring(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Echo", transport.NewInProcess(echoHandler{}, storage.NewMemory()))
	web := &webHandler{}
	registry.Register("Web", transport.NewInProcess(web, storage.NewMemory()))

	ids := idgen.NewGenerator(2)
	e := engine.New(log, registry, ids, []*synccompile.CompiledSync{buildEchoReplySync()})

	flow := "flow-2"
	initial := actionlog.Record{ID: "i1", Concept: "Echo", Action: "send", Flow: flow, Input: map[string]any{"text": "hi"}}
	completion, err := invokeDirect(ctx, registry, initial)
	require.NoError(t, err)

	invocations, err := e.OnCompletion(ctx, completion)
	require.NoError(t, err)
	require.Len(t, invocations, 1)

	// Re-delivering the same completion must not refire the sync.
	again, err := e.OnCompletion(ctx, completion)
	require.NoError(t, err)
	require.Len(t, again, 0)
}

func invokeDirect(ctx context.Context, registry *transport.Registry, invocation actionlog.Record) (actionlog.Record, error) {
	t, _ := registry.Get(invocation.Concept)
	return t.Invoke(ctx, invocation)
}

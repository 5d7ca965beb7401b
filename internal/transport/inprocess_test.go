package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/transport"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	if action != "send" {
		return transport.CompletionBody{}, errUnknownAction{action}
	}
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"echo": input["text"]}}, nil
}

type errUnknownAction struct{ action string }

func (e errUnknownAction) Error() string { return "unknown action: " + e.action }

func TestInProcessInvokeReusesInvocationID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	adapter := transport.NewInProcess(echoHandler{}, store)

	completion, err := adapter.Invoke(ctx, actionlog.Record{
		ID: "inv-1", Concept: "Echo", Action: "send", Flow: "f1",
		Input: map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "inv-1", completion.ID)
	require.Equal(t, actionlog.TypeCompletion, completion.Type)
	require.Equal(t, "ok", completion.Variant)
	require.Equal(t, "hi", completion.Output["echo"])
}

func TestInProcessInvokeErrorBecomesErrorVariant(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	adapter := transport.NewInProcess(echoHandler{}, store)

	completion, err := adapter.Invoke(ctx, actionlog.Record{ID: "inv-2", Concept: "Echo", Action: "bogus"})
	require.NoError(t, err)
	require.Equal(t, "inv-2", completion.ID)
	require.Equal(t, "error", completion.Variant)
}

func TestInProcessQueryDelegatesToStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "messages", "m1", storage.Record{"id": "m1"}))
	adapter := transport.NewInProcess(echoHandler{}, store)

	records, err := adapter.Query(ctx, transport.QueryRequest{Relation: "messages"})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := transport.NewRegistry()
	adapter := transport.NewInProcess(echoHandler{}, storage.NewMemory())
	registry.Register("Echo", adapter)

	got, ok := registry.Get("Echo")
	require.True(t, ok)
	require.Same(t, adapter, got)

	_, ok = registry.Get("Missing")
	require.False(t, ok)
}

package grpcenvelope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/grpcenvelope"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/transport"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"echo": input["text"]}}, nil
}

func TestBuildSchemaHasDispatchMethod(t *testing.T) {
	schema, err := grpcenvelope.Build()
	require.NoError(t, err)
	require.Equal(t, protoreflectName(t, schema), "Dispatch")
	require.NotNil(t, schema.Envelope.Fields().ByName("input_json"))
	require.NotNil(t, schema.Envelope.Fields().ByName("output_json"))
}

func protoreflectName(t *testing.T, schema *grpcenvelope.Schema) string {
	t.Helper()
	return string(schema.Dispatch.Name())
}

func TestServerHandleDelegatesToRegisteredTransport(t *testing.T) {
	schema, err := grpcenvelope.Build()
	require.NoError(t, err)

	registry := transport.NewRegistry()
	registry.Register("Echo", transport.NewInProcess(echoHandler{}, storage.NewMemory()))

	server := grpcenvelope.NewServer(schema, registry)
	desc := server.ServiceDesc()
	require.Equal(t, "ckit.grpcenvelope.ConceptService", desc.ServiceName)
	require.Len(t, desc.Methods, 1)
	require.Equal(t, "Dispatch", desc.Methods[0].MethodName)
}

package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/httpserver"
	"github.com/conceptkit/ckit/internal/kernel"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

type webHandler struct{}

func (webHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"path": input["path"]}}, nil
}

func lit(name string, v any) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchLiteral, Literal: v}
}
func variable(name, varName string) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchVariable, VarName: varName}
}

func buildRespondSync() *synccompile.CompiledSync {
	return &synccompile.CompiledSync{
		Name: "RequestToRespond",
		When: []synccompile.WhenPattern{{
			ConceptURI: "Web", Action: "request",
			Input:  []synccompile.FieldMatch{variable("path", "p")},
			Output: []synccompile.FieldMatch{lit("variant", "ok")},
		}},
		Then: []synccompile.ThenTemplate{{
			ConceptURI: "Web", Action: "respond",
			Fields: []synccompile.FieldMatch{variable("path", "p")},
		}},
		TriggerKeys: []synccompile.TriggerKey{{ConceptURI: "Web", Action: "request"}},
	}
}

func TestServeHTTPRendersRespondBody(t *testing.T) {
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Web", transport.NewInProcess(webHandler{}, storage.NewMemory()))
	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())
	k.RegisterSync(buildRespondSync())

	h := httpserver.New(k, "Web", "request")

	req := httptest.NewRequest(http.MethodPost, "/hello", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["flowId"])
	respBody, ok := body["body"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/hello", respBody["path"])
}

func TestServeHTTPOptionsHandlesCORSPreflight(t *testing.T) {
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Web", transport.NewInProcess(webHandler{}, storage.NewMemory()))
	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())

	h := httpserver.New(k, "Web", "request", httpserver.WithCORS("*"))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

package kernel_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/dsl"
	"github.com/conceptkit/ckit/internal/kernel"
	"github.com/conceptkit/ckit/internal/manifest"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/trace"
	"github.com/conceptkit/ckit/internal/transport"
)

type webEntryHandler struct{}

func (webEntryHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"method": input["method"], "text": input["text"]}}, nil
}

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"echo": input["text"]}}, nil
}

func lit(name string, v any) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchLiteral, Literal: v}
}

func variable(name, varName string) synccompile.FieldMatch {
	return synccompile.FieldMatch{Name: name, Kind: synccompile.MatchVariable, VarName: varName}
}

func buildSyncs() []*synccompile.CompiledSync {
	toEcho := &synccompile.CompiledSync{
		Name: "RequestToEcho",
		When: []synccompile.WhenPattern{{
			ConceptURI: "Web", Action: "request",
			Input:  []synccompile.FieldMatch{lit("method", "echo"), variable("text", "t")},
			Output: []synccompile.FieldMatch{lit("variant", "ok")},
		}},
		Then: []synccompile.ThenTemplate{{
			ConceptURI: "Echo", Action: "send",
			Fields: []synccompile.FieldMatch{variable("text", "t")},
		}},
		TriggerKeys: []synccompile.TriggerKey{{ConceptURI: "Web", Action: "request"}},
	}
	toRespond := &synccompile.CompiledSync{
		Name: "EchoToRespond",
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
	return []*synccompile.CompiledSync{toEcho, toRespond}
}

func newTestKernel() *kernel.Kernel {
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Web", transport.NewInProcess(webEntryHandler{}, storage.NewMemory()))
	registry.Register("Echo", transport.NewInProcess(echoHandler{}, storage.NewMemory()))
	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())
	for _, s := range buildSyncs() {
		k.RegisterSync(s)
	}
	return k
}

func TestHandleRequestDrainsToRespond(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel()

	var respondedWith string
	result, err := k.HandleRequest(ctx, "Web", "request", map[string]any{"method": "echo", "text": "hi"}, func(records []actionlog.Record) kernel.RequestResult {
		for _, r := range records {
			if r.Type == actionlog.TypeInvocation && r.Concept == "Web" && r.Action == "respond" {
				respondedWith, _ = r.Input["body"].(string)
			}
		}
		return kernel.RequestResult{Body: map[string]any{"echo": respondedWith}}
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.FlowID)
	require.Equal(t, "hi", respondedWith)
	require.Equal(t, "hi", result.Body["echo"])
}

func TestInvokeConceptBypassesSyncs(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel()

	completion, err := k.InvokeConcept(ctx, "Echo", "send", map[string]any{"text": "direct"})
	require.NoError(t, err)
	require.Equal(t, "ok", completion.Variant)
	require.Equal(t, "direct", completion.Output["echo"])

	records, err := k.GetFlowLog(ctx, completion.Flow)
	require.NoError(t, err)
	require.Len(t, records, 2) // invocation + completion, no syncs fired by design
}

func TestQueryConceptDelegatesToTransport(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel()

	_, err := k.QueryConcept(ctx, "Echo", "anything", nil)
	require.NoError(t, err) // InProcess.Query delegates to an empty Memory store, which returns no rows, no error
}

const passwordSource = `
concept Password[U] {
	state {
		hash: U -> String
	}
	actions {
		action set(id: U, password: String) {
			-> ok(id: U) { password stored }
		}
		action check(id: U, password: String) {
			-> ok(id: U, match: Bool) { whether the password matches }
		}
	}
	invariant {
		free u: U
		after set(id: ?u, password: "secret") -> ok(id: ?u)
		then check(id: ?u, password: "secret") -> ok(id: ?u, match: true)
		then check(id: ?u, password: "wrong") -> ok(id: ?u, match: false)
	}
}
`

type passwordHandler struct{}

func (passwordHandler) Handle(ctx context.Context, action string, input map[string]any, store storage.Store) (transport.CompletionBody, error) {
	id, _ := input["id"].(string)
	password, _ := input["password"].(string)
	switch action {
	case "set":
		if err := store.Put(ctx, "hash", id, storage.Record{"password": password}); err != nil {
			return transport.CompletionBody{}, err
		}
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"id": id}}, nil
	case "check":
		rec, _, err := store.Get(ctx, "hash", id)
		if err != nil {
			return transport.CompletionBody{}, err
		}
		match := rec["password"] == password
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"id": id, "match": match}}, nil
	}
	return transport.CompletionBody{}, fmt.Errorf("password: unknown action %q", action)
}

// TestPasswordSetAndCheckInvariant drives the Password/set and
// Password/check actions with the invariant's own materialized test
// values (the manifest builder's deterministic {prefix}-test-invariant-
// NNN scheme), proving the same literals a generated conformance suite
// asserts also hold against a running handler.
func TestPasswordSetAndCheckInvariant(t *testing.T) {
	ctx := context.Background()

	spec, err := dsl.ParseConcept("password.concept", passwordSource)
	require.NoError(t, err)
	m, err := manifest.Build(spec, "Password")
	require.NoError(t, err)
	require.Len(t, m.Invariants, 1)
	require.Len(t, m.Invariants[0].FreeVariables, 1)

	testUser := m.Invariants[0].FreeVariables[0].TestValue
	require.Equal(t, "u-test-invariant-001", testUser)

	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("Password", transport.NewInProcess(passwordHandler{}, storage.NewMemory()))
	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())

	setCompletion, err := k.InvokeConcept(ctx, "Password", "set", map[string]any{"id": testUser, "password": "secret"})
	require.NoError(t, err)
	require.Equal(t, "ok", setCompletion.Variant)

	okCheck, err := k.InvokeConcept(ctx, "Password", "check", map[string]any{"id": testUser, "password": "secret"})
	require.NoError(t, err)
	require.Equal(t, "ok", okCheck.Variant)
	require.Equal(t, true, okCheck.Output["match"])

	wrongCheck, err := k.InvokeConcept(ctx, "Password", "check", map[string]any{"id": testUser, "password": "wrong"})
	require.NoError(t, err)
	require.Equal(t, "ok", wrongCheck.Variant)
	require.Equal(t, false, wrongCheck.Output["match"])
}

type userHandler struct{}

func (userHandler) Handle(ctx context.Context, action string, input map[string]any, store storage.Store) (transport.CompletionBody, error) {
	switch action {
	case "register":
		username, _ := input["username"].(string)
		_, found, err := store.Get(ctx, "users", username)
		if err != nil {
			return transport.CompletionBody{}, err
		}
		if found {
			return transport.CompletionBody{Variant: "error", Fields: map[string]any{"username": username}}, nil
		}
		if err := store.Put(ctx, "users", username, storage.Record{"username": username}); err != nil {
			return transport.CompletionBody{}, err
		}
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"username": username}}, nil
	}
	return transport.CompletionBody{}, fmt.Errorf("user: unknown action %q", action)
}

type jwtHandler struct{}

func (jwtHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	switch action {
	case "generate":
		username, _ := input["username"].(string)
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"token": "jwt-for-" + username}}, nil
	}
	return transport.CompletionBody{}, fmt.Errorf("jwt: unknown action %q", action)
}

func registerToJWTSync() *synccompile.CompiledSync {
	return &synccompile.CompiledSync{
		Name: "RegisterToJWT",
		When: []synccompile.WhenPattern{{
			ConceptURI: "User", Action: "register",
			Input:  []synccompile.FieldMatch{variable("username", "u")},
			Output: []synccompile.FieldMatch{lit("variant", "ok")},
		}},
		Then: []synccompile.ThenTemplate{{
			ConceptURI: "JWT", Action: "generate",
			Fields: []synccompile.FieldMatch{variable("username", "u")},
		}},
		TriggerKeys: []synccompile.TriggerKey{{ConceptURI: "User", Action: "register"}},
	}
}

func hasCompletion(records []actionlog.Record, concept, action string) bool {
	for _, r := range records {
		if r.Type == actionlog.TypeCompletion && r.Concept == concept && r.Action == action {
			return true
		}
	}
	return false
}

// TestDuplicateRegistrationSkipsJWT registers the same username twice in
// separate flows: the first registration's completion carries variant
// "ok" and fires RegisterToJWT; the second carries "error" (the when-
// pattern requires "ok"), so no JWT/generate invocation is ever logged
// for it.
func TestDuplicateRegistrationSkipsJWT(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()
	registry.Register("User", transport.NewInProcess(userHandler{}, storage.NewMemory()))
	registry.Register("JWT", transport.NewInProcess(jwtHandler{}, storage.NewMemory()))
	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())
	k.RegisterSync(registerToJWTSync())

	noop := func(records []actionlog.Record) kernel.RequestResult { return kernel.RequestResult{} }

	first, err := k.HandleRequest(ctx, "User", "register", map[string]any{"username": "alice"}, noop)
	require.NoError(t, err)
	firstRecords, err := k.GetFlowLog(ctx, first.FlowID)
	require.NoError(t, err)
	require.True(t, hasCompletion(firstRecords, "JWT", "generate"))

	second, err := k.HandleRequest(ctx, "User", "register", map[string]any{"username": "alice"}, noop)
	require.NoError(t, err)
	secondRecords, err := k.GetFlowLog(ctx, second.FlowID)
	require.NoError(t, err)
	require.False(t, hasCompletion(secondRecords, "JWT", "generate"))

	var registerCompletion actionlog.Record
	for _, r := range secondRecords {
		if r.Type == actionlog.TypeCompletion && r.Concept == "User" && r.Action == "register" {
			registerCompletion = r
		}
	}
	require.Equal(t, "error", registerCompletion.Variant)
}

type articleHandler struct{}

func (articleHandler) Handle(_ context.Context, action string, input map[string]any, _ storage.Store) (transport.CompletionBody, error) {
	switch action {
	case "delete":
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"id": input["id"]}}, nil
	}
	return transport.CompletionBody{}, fmt.Errorf("article: unknown action %q", action)
}

type commentHandler struct{}

func (commentHandler) Handle(ctx context.Context, action string, input map[string]any, store storage.Store) (transport.CompletionBody, error) {
	switch action {
	case "delete":
		row, _ := input["comment"].(storage.Record)
		id, _ := row["id"].(string)
		if err := store.Del(ctx, "comments", id); err != nil {
			return transport.CompletionBody{}, err
		}
		return transport.CompletionBody{Variant: "ok", Fields: map[string]any{"id": id}}, nil
	}
	return transport.CompletionBody{}, fmt.Errorf("comment: unknown action %q", action)
}

func cascadeDeleteSync() *synccompile.CompiledSync {
	return &synccompile.CompiledSync{
		Name: "ArticleDeleteCascade",
		When: []synccompile.WhenPattern{{
			ConceptURI: "Article", Action: "delete",
			Input:  []synccompile.FieldMatch{variable("id", "articleID")},
			Output: []synccompile.FieldMatch{lit("variant", "ok")},
		}},
		Where: []synccompile.WhereClause{{
			Kind: synccompile.WhereQuery, ConceptURI: "Comment", Relation: "comments",
			Criteria: []synccompile.FieldMatch{variable("articleId", "articleID")},
			BindVar:  "comment",
		}},
		Then: []synccompile.ThenTemplate{{
			ConceptURI: "Comment", Action: "delete",
			Fields: []synccompile.FieldMatch{variable("comment", "comment")},
		}},
		TriggerKeys: []synccompile.TriggerKey{{ConceptURI: "Article", Action: "delete"}},
	}
}

// TestCascadeDeleteFansOutOverWhereQuery deletes an article with two
// comments: the where-query matches both rows, so the sync fans out into
// exactly two Comment/delete invocations, leaving the unrelated third
// comment (on a different article) untouched.
func TestCascadeDeleteFansOutOverWhereQuery(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()
	registry := transport.NewRegistry()

	commentStore := storage.NewMemory()
	require.NoError(t, commentStore.Put(ctx, "comments", "c1", storage.Record{"id": "c1", "articleId": "a1"}))
	require.NoError(t, commentStore.Put(ctx, "comments", "c2", storage.Record{"id": "c2", "articleId": "a1"}))
	require.NoError(t, commentStore.Put(ctx, "comments", "c3", storage.Record{"id": "c3", "articleId": "a2"}))

	registry.Register("Article", transport.NewInProcess(articleHandler{}, storage.NewMemory()))
	registry.Register("Comment", transport.NewInProcess(commentHandler{}, commentStore))

	k := kernel.New(log, registry, storage.NewMemory(), zerolog.Nop())
	k.RegisterSync(cascadeDeleteSync())

	noop := func(records []actionlog.Record) kernel.RequestResult { return kernel.RequestResult{} }
	result, err := k.HandleRequest(ctx, "Article", "delete", map[string]any{"id": "a1"}, noop)
	require.NoError(t, err)

	records, err := k.GetFlowLog(ctx, result.FlowID)
	require.NoError(t, err)

	var deletedIDs []string
	for _, r := range records {
		if r.Type == actionlog.TypeCompletion && r.Concept == "Comment" && r.Action == "delete" {
			id, _ := r.Output["id"].(string)
			deletedIDs = append(deletedIDs, id)
		}
	}
	sort.Strings(deletedIDs)
	require.Equal(t, []string{"c1", "c2"}, deletedIDs)

	remaining, err := commentStore.Find(ctx, "comments", storage.Record{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "c3", remaining[0]["id"])
}

// TestGateTraceCarriesFieldsAndWaitDescription builds a flow trace for a
// pending gate invocation, then again once its completion arrives:
// pending nodes must expose the invocation's own input under Fields, and
// a completed gate node must derive WaitDescription directly from the
// completion's "description" output field.
func TestGateTraceCarriesFieldsAndWaitDescription(t *testing.T) {
	ctx := context.Background()
	log := actionlog.NewMemory()
	flow := "flow-gate"

	invocation := actionlog.Record{
		ID: "inv-1", Concept: "Bridge", Action: "settle",
		Flow: flow, Input: map[string]any{"batchId": "4891"}, Timestamp: time.Now().UTC(),
	}
	_, err := log.AppendInvocation(ctx, invocation, "")
	require.NoError(t, err)

	gates := trace.GateConcepts{"Bridge": &manifest.Manifest{URI: "Bridge", Gate: true}}

	records, err := log.LoadFlow(ctx, flow)
	require.NoError(t, err)
	edges, err := log.LoadEdges(ctx, flow)
	require.NoError(t, err)

	pendingTree := trace.Build(records, edges, gates, nil)
	require.NotNil(t, pendingTree)
	require.True(t, pendingTree.Pending)
	require.NotNil(t, pendingTree.Gate)
	require.True(t, pendingTree.Gate.Pending)
	require.Equal(t, "4891", pendingTree.Fields["batchId"])

	completion := actionlog.Record{
		ID: "inv-1", Type: actionlog.TypeCompletion, Concept: "Bridge", Action: "settle",
		Flow: flow, Variant: "ok", Output: map[string]any{"description": "Arbitrum batch #4891 posted to L1"},
		Timestamp: time.Now().UTC(),
	}
	_, err = log.Append(ctx, completion)
	require.NoError(t, err)

	records, err = log.LoadFlow(ctx, flow)
	require.NoError(t, err)
	completedTree := trace.Build(records, edges, gates, nil)
	require.NotNil(t, completedTree)
	require.False(t, completedTree.Pending)
	require.NotNil(t, completedTree.Gate)
	require.False(t, completedTree.Gate.Pending)
	require.Equal(t, "Arbitrum batch #4891 posted to L1", completedTree.Gate.WaitDescription)
}

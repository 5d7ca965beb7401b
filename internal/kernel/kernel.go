// Package kernel composes the storage, action log, transport registry,
// and sync engine into the runtime API.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/engine"
	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"
	"github.com/conceptkit/ckit/internal/idgen"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

// Kernel is the composition root: one per process, wiring a single
// action log and transport registry to a sync engine.
type Kernel struct {
	Log      actionlog.Log
	Registry *transport.Registry
	Store    storage.Store
	IDs      *idgen.Generator
	Logger   zerolog.Logger

	syncs  []*synccompile.CompiledSync
	engine *engine.Engine
}

func New(log actionlog.Log, registry *transport.Registry, store storage.Store, logger zerolog.Logger) *Kernel {
	return &Kernel{
		Log: log, Registry: registry, Store: store,
		IDs: idgen.NewProcessGenerator(), Logger: logger,
	}
}

// RegisterConcept wires an already-constructed transport (an InProcess
// handler, or a remote HTTP/WebSocket/gRPC adapter) under a concept URI.
func (k *Kernel) RegisterConcept(conceptURI string, t transport.Transport) {
	k.Registry.Register(conceptURI, t)
}

// RegisterSync adds a compiled sync and rebuilds the engine's trigger
// index. Rebuilding on every registration keeps the API simple; it is
// only ever called at startup in the reference CLI.
func (k *Kernel) RegisterSync(s *synccompile.CompiledSync) {
	k.syncs = append(k.syncs, s)
	k.engine = engine.New(k.Log, k.Registry, k.IDs, k.syncs)
}

// InvokeConcept is a single-shot invocation, bypassing any Web/request
// sync layer: it creates no flow-spanning relationship beyond itself.
func (k *Kernel) InvokeConcept(ctx context.Context, conceptURI, action string, input map[string]any) (actionlog.Record, error) {
	t, ok := k.Registry.Get(conceptURI)
	if !ok {
		return actionlog.Record{}, fmt.Errorf("kernel: no transport registered for %q", conceptURI)
	}
	flow := idgen.NewFlowID()
	eventbus.Publish(ctx, events.FlowStart{FlowID: flow, Concept: conceptURI, Action: action})
	invocation := actionlog.Record{
		ID: k.IDs.Next(), Concept: conceptURI, Action: action,
		Flow: flow, Input: input, Timestamp: time.Now().UTC(),
	}
	if _, err := k.Log.AppendInvocation(ctx, invocation, ""); err != nil {
		return actionlog.Record{}, fmt.Errorf("kernel: append invocation: %w", err)
	}
	completion, err := t.Invoke(ctx, invocation)
	if err != nil {
		eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "error"})
		return actionlog.Record{}, fmt.Errorf("kernel: invoke %s/%s: %w", conceptURI, action, err)
	}
	if _, err := k.Log.Append(ctx, completion); err != nil {
		eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "error"})
		return actionlog.Record{}, fmt.Errorf("kernel: append completion: %w", err)
	}
	eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "completed"})
	return completion, nil
}

// QueryConcept routes through the concept's registered transport. A
// transport with no query capability surfaces
// transport.ErrQueryUnsupported unchanged.
func (k *Kernel) QueryConcept(ctx context.Context, conceptURI, relation string, criteria map[string]any) ([]storage.Record, error) {
	t, ok := k.Registry.Get(conceptURI)
	if !ok {
		return nil, fmt.Errorf("kernel: no transport registered for %q", conceptURI)
	}
	return t.Query(ctx, transport.QueryRequest{Relation: relation, Args: criteria})
}

// GetFlowLog returns the full action log for one flow.
func (k *Kernel) GetFlowLog(ctx context.Context, flowID string) ([]actionlog.Record, error) {
	return k.Log.LoadFlow(ctx, flowID)
}

// RequestResult is HandleRequest's response shape.
type RequestResult struct {
	FlowID string
	Body   map[string]any
	Error  string
	Code   int
}

// HandleRequest creates a flow, invokes entryConcept/entryAction (the
// initial invocation a Web/request-style sync is meant to trigger), and
// drains the engine to quiescence. The terminal response is whatever a
// caller-supplied extractor reads back from the flow log afterward
// (typically the input fields of a Web/respond invocation) — the kernel
// itself has no opinion on which sync is "the" response sync.
func (k *Kernel) HandleRequest(ctx context.Context, entryConcept, entryAction string, input map[string]any, extractResponse func([]actionlog.Record) RequestResult) (RequestResult, error) {
	if k.engine == nil {
		k.engine = engine.New(k.Log, k.Registry, k.IDs, k.syncs)
	}

	flow := idgen.NewFlowID()
	t, ok := k.Registry.Get(entryConcept)
	if !ok {
		return RequestResult{}, fmt.Errorf("kernel: no transport registered for %q", entryConcept)
	}
	eventbus.Publish(ctx, events.FlowStart{FlowID: flow, Concept: entryConcept, Action: entryAction})
	invocation := actionlog.Record{
		ID: k.IDs.Next(), Concept: entryConcept, Action: entryAction,
		Flow: flow, Input: input, Timestamp: time.Now().UTC(),
	}
	if _, err := k.Log.AppendInvocation(ctx, invocation, ""); err != nil {
		return RequestResult{}, fmt.Errorf("kernel: append entry invocation: %w", err)
	}
	k.Logger.Info().Str("flow", flow).Str("concept", entryConcept).Str("action", entryAction).Msg("flow started")

	completion, err := t.Invoke(ctx, invocation)
	if err != nil {
		eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "error"})
		return RequestResult{}, fmt.Errorf("kernel: invoke %s/%s: %w", entryConcept, entryAction, err)
	}
	if err := k.engine.Drain(ctx, completion); err != nil {
		k.Logger.Error().Err(err).Str("flow", flow).Msg("drain failed")
		eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "error"})
		return RequestResult{}, fmt.Errorf("kernel: drain flow %s: %w", flow, err)
	}

	records, err := k.Log.LoadFlow(ctx, flow)
	if err != nil {
		eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "error"})
		return RequestResult{}, fmt.Errorf("kernel: load flow %s: %w", flow, err)
	}
	result := extractResponse(records)
	result.FlowID = flow
	eventbus.Publish(ctx, events.FlowFinish{FlowID: flow, Status: "completed"})
	return result, nil
}

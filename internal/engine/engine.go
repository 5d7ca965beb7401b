// Package engine implements the sync engine: a single-threaded, per-flow
// dispatch loop that evaluates one completion at a time against a
// trigger index, re-scanning a flow's history on every completion rather
// than assuming temporal locality (remote transports may deliver
// completions out of order).
package engine

import (
	"context"
	"fmt"
	"time"

	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/idgen"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

// Engine holds the trigger index and the dependencies a dispatch loop
// needs: the action log, the transport registry, and an id generator
// for new invocation records.
type Engine struct {
	Log      actionlog.Log
	Registry *transport.Registry
	IDs      *idgen.Generator

	syncs        []*synccompile.CompiledSync
	triggerIndex map[synccompile.TriggerKey][]*synccompile.CompiledSync
}

func New(log actionlog.Log, registry *transport.Registry, ids *idgen.Generator, syncs []*synccompile.CompiledSync) *Engine {
	e := &Engine{
		Log: log, Registry: registry, IDs: ids,
		syncs:        syncs,
		triggerIndex: make(map[synccompile.TriggerKey][]*synccompile.CompiledSync),
	}
	for _, s := range syncs {
		for _, key := range s.TriggerKeys {
			e.triggerIndex[key] = append(e.triggerIndex[key], s)
		}
	}
	return e
}

// OnCompletion implements the per-completion evaluation: append C if
// not present, find every sync indexed by C's trigger key, enumerate
// when-pattern matches that include C, resolve where-clauses, emit
// then-invocations, and record the firing. It returns the newly produced
// invocation records for the caller's drain loop to dispatch.
func (e *Engine) OnCompletion(ctx context.Context, completion actionlog.Record) ([]actionlog.Record, error) {
	records, err := e.Log.LoadFlow(ctx, completion.Flow)
	if err != nil {
		return nil, fmt.Errorf("engine: load flow %s: %w", completion.Flow, err)
	}
	if !containsRecord(records, completion) {
		if _, err := e.Log.Append(ctx, completion); err != nil {
			return nil, fmt.Errorf("engine: append completion %s: %w", completion.ID, err)
		}
		records = append(records, completion)
	}

	key := synccompile.TriggerKey{ConceptURI: completion.Concept, Action: completion.Action}
	var newInvocations []actionlog.Record

	for _, sync := range e.triggerIndex[key] {
		combos := enumerateCombos(sync, records, completion.ID)
		for _, combo := range combos {
			has, err := e.Log.HasFiring(ctx, sync.Name, combo.ids)
			if err != nil {
				return nil, fmt.Errorf("engine: check firing %s: %w", sync.Name, err)
			}
			if has {
				continue
			}

			sigmas, err := e.resolveWhere(ctx, sync.Where, combo.sigma)
			if err != nil {
				// Where-clause unresolved: abandon this match. A future
				// completion re-entering OnCompletion may resolve it.
				continue
			}

			invocations := make([]actionlog.Record, 0, len(sync.Then)*len(sigmas))
			for _, sigma := range sigmas {
				for _, then := range sync.Then {
					invocation := e.buildInvocation(then, sigma, completion.Flow, sync.Name)
					if _, err := e.Log.AppendInvocation(ctx, invocation, completion.ID); err != nil {
						return nil, fmt.Errorf("engine: append invocation: %w", err)
					}
					invocations = append(invocations, invocation)
				}
			}
			for _, otherID := range combo.ids {
				if otherID == completion.ID {
					continue
				}
				for _, inv := range invocations {
					if err := e.Log.AddEdge(ctx, actionlog.Edge{Flow: completion.Flow, From: otherID, To: inv.ID, SyncName: sync.Name}); err != nil {
						return nil, fmt.Errorf("engine: add edge: %w", err)
					}
				}
			}
			if err := e.Log.RecordFiring(ctx, sync.Name, combo.ids); err != nil {
				return nil, fmt.Errorf("engine: record firing %s: %w", sync.Name, err)
			}
			eventbus.Publish(ctx, events.SyncFired{FlowID: completion.Flow, SyncName: sync.Name, CompletionIDs: combo.ids})
			newInvocations = append(newInvocations, invocations...)
		}
	}
	return newInvocations, nil
}

func (e *Engine) buildInvocation(then synccompile.ThenTemplate, sigma map[string]any, flow, syncName string) actionlog.Record {
	input := make(map[string]any, len(then.Fields))
	for _, f := range then.Fields {
		switch f.Kind {
		case synccompile.MatchLiteral:
			input[f.Name] = f.Literal
		case synccompile.MatchVariable:
			input[f.Name] = sigma[f.VarName]
		}
	}
	return actionlog.Record{
		ID:      e.IDs.Next(),
		Concept: then.ConceptURI, Action: then.Action,
		Flow: flow, Input: input, Sync: syncName,
		Timestamp: time.Now().UTC(),
	}
}

// Drain runs a flow to quiescence starting from an initial completion,
// using a single-threaded cooperative model: one completion is processed
// at a time, and every invocation it produces is actually dispatched
// through the transport registry before the loop continues.
func (e *Engine) Drain(ctx context.Context, initial actionlog.Record) error {
	queue := []actionlog.Record{initial}
	for len(queue) > 0 {
		completion := queue[0]
		queue = queue[1:]

		invocations, err := e.OnCompletion(ctx, completion)
		if err != nil {
			return err
		}
		for _, invocation := range invocations {
			next, err := e.dispatch(ctx, invocation)
			if err != nil {
				return err
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error) {
	t, ok := e.Registry.Get(invocation.Concept)
	if !ok {
		return actionlog.Record{
			ID: invocation.ID, Type: actionlog.TypeCompletion,
			Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
			Variant: "error", Output: map[string]any{"message": fmt.Sprintf("engine: no transport registered for %q", invocation.Concept)},
			Timestamp: time.Now().UTC(),
		}, nil
	}
	start := time.Now()
	completion, err := t.Invoke(ctx, invocation)
	eventbus.Publish(ctx, events.TransportInvoke{Concept: invocation.Concept, Action: invocation.Action, Duration: time.Since(start), Err: err})
	if err != nil {
		return actionlog.Record{
			ID: invocation.ID, Type: actionlog.TypeCompletion,
			Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
			Variant: "error", Output: map[string]any{"message": err.Error()},
			Timestamp: time.Now().UTC(),
		}, nil
	}
	return completion, nil
}

func containsRecord(records []actionlog.Record, target actionlog.Record) bool {
	for _, r := range records {
		if r.ID == target.ID && r.Type == target.Type {
			return true
		}
	}
	return false
}

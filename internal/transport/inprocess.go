package transport

import (
	"context"
	"time"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/storage"
)

// CompletionBody is what a concept handler returns for one invocation: a
// variant tag plus that variant's declared fields.
type CompletionBody struct {
	Variant string
	Fields  map[string]any
}

// Handler is a concept implementation: a mapping from action name to an
// operation over (input, storage).
type Handler interface {
	Handle(ctx context.Context, action string, input map[string]any, store storage.Store) (CompletionBody, error)
}

// InProcess is the in-process Transport adapter: it wraps a concept
// handler and a storage, dispatching synchronously by action name. It is
// the only adapter used in the kernel's unit tests.
type InProcess struct {
	Handler Handler
	Store   storage.Store
}

func NewInProcess(h Handler, store storage.Store) *InProcess {
	return &InProcess{Handler: h, Store: store}
}

func (a *InProcess) Invoke(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error) {
	body, err := a.Handler.Handle(ctx, invocation.Action, invocation.Input, a.Store)
	if err != nil {
		return actionlog.Record{
			ID: invocation.ID, Type: actionlog.TypeCompletion,
			Concept: invocation.Concept, Action: invocation.Action,
			Flow: invocation.Flow, Variant: "error",
			Output:    map[string]any{"message": err.Error()},
			Timestamp: time.Now().UTC(),
		}, nil
	}
	return actionlog.Record{
		ID: invocation.ID, Type: actionlog.TypeCompletion,
		Concept: invocation.Concept, Action: invocation.Action,
		Flow: invocation.Flow, Variant: body.Variant, Output: body.Fields,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (a *InProcess) Query(ctx context.Context, req QueryRequest) ([]storage.Record, error) {
	return a.Store.Find(ctx, req.Relation, req.Args)
}

func (a *InProcess) Health(context.Context) (Health, error) {
	return Health{Available: true, Latency: 0}, nil
}

// Package transport implements the transport registry and adapters: a
// map from concept URI to an invocation adapter, each optionally
// supporting state queries and a health check.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/storage"
)

// ErrQueryUnsupported is returned by a Transport whose adapter does not
// implement query. The engine treats this as "where-clause unresolved,
// sync skipped", not a fatal error.
var ErrQueryUnsupported = errors.New("transport: query not supported")

// ErrHealthUnsupported is returned by a Transport with no health check.
var ErrHealthUnsupported = errors.New("transport: health not supported")

// QueryRequest is the lite query protocol's request shape.
type QueryRequest struct {
	Relation string         `json:"relation"`
	Args     map[string]any `json:"args,omitempty"`
}

// Snapshot is the lite query protocol's response shape.
type Snapshot struct {
	AsOf      time.Time                  `json:"asOf"`
	Relations map[string][]storage.Record `json:"relations"`
}

// Health is the result of a transport's optional health check.
type Health struct {
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency"`
}

// Transport is one concept's invocation adapter. invocation and the
// returned completion share the same actionlog.Record.ID: they are the
// two log entries of one action instance, distinguished only by Type.
type Transport interface {
	Invoke(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error)
	Query(ctx context.Context, req QueryRequest) ([]storage.Record, error)
	Health(ctx context.Context) (Health, error)
}

// Registry maps concept URI to its registered Transport.
type Registry struct {
	transports map[string]Transport
}

func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

func (r *Registry) Register(conceptURI string, t Transport) {
	r.transports[conceptURI] = t
}

func (r *Registry) Get(conceptURI string) (Transport, bool) {
	t, ok := r.transports[conceptURI]
	return t, ok
}

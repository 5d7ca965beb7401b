package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/storage"
)

// invokeWireRequest/invokeWireResponse mirror the wire envelope: a
// remote concept adapter receives the invocation fields and returns a
// variant tag plus output fields. The completion's id is never sent by
// the server and never read from it; the caller always sets it to the
// invocation's own id.
type invokeWireRequest struct {
	Action string         `json:"action"`
	Input  map[string]any `json:"input"`
}

type invokeWireResponse struct {
	Variant string         `json:"variant"`
	Output  map[string]any `json:"output"`
	Error   string         `json:"error,omitempty"`
}

type queryWireResponse struct {
	Records []storage.Record `json:"records"`
}

// HTTP is a remote Transport adapter speaking a small JSON protocol over
// resty: POST {baseURL}/invoke for actions, GET {baseURL}/query for the
// lite query protocol, GET {baseURL}/health for the health check.
type HTTP struct {
	client  *resty.Client
	baseURL string
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond)
	return &HTTP{client: client, baseURL: baseURL}
}

func (h *HTTP) Invoke(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error) {
	var wire invokeWireResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(invokeWireRequest{Action: invocation.Action, Input: invocation.Input}).
		SetResult(&wire).
		Post(h.baseURL + "/invoke")
	if err != nil {
		return actionlog.Record{}, fmt.Errorf("transport: http invoke %s/%s: %w", invocation.Concept, invocation.Action, err)
	}
	if resp.IsError() {
		return actionlog.Record{}, fmt.Errorf("transport: http invoke %s/%s: status %d", invocation.Concept, invocation.Action, resp.StatusCode())
	}
	return actionlog.Record{
		ID: invocation.ID, Type: actionlog.TypeCompletion,
		Concept: invocation.Concept, Action: invocation.Action,
		Flow: invocation.Flow, Variant: wire.Variant, Output: wire.Output,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (h *HTTP) Query(ctx context.Context, req QueryRequest) ([]storage.Record, error) {
	var wire queryWireResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("relation", req.Relation).
		SetResult(&wire).
		Get(h.baseURL + "/query")
	if err != nil {
		return nil, fmt.Errorf("transport: http query %s: %w", req.Relation, err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrQueryUnsupported
	}
	if resp.IsError() {
		return nil, fmt.Errorf("transport: http query %s: status %d", req.Relation, resp.StatusCode())
	}
	return wire.Records, nil
}

func (h *HTTP) Health(ctx context.Context) (Health, error) {
	start := time.Now()
	resp, err := h.client.R().SetContext(ctx).Get(h.baseURL + "/health")
	if err != nil {
		return Health{}, fmt.Errorf("transport: http health: %w", err)
	}
	if resp.StatusCode() == 404 {
		return Health{}, ErrHealthUnsupported
	}
	return Health{Available: !resp.IsError(), Latency: time.Since(start)}, nil
}

package grpcenvelope

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/conceptkit/ckit/internal/actionlog"
	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/transport"
)

// Client is a gRPC Transport adapter: one Client per endpoint, pooling
// connections the way grpctp's Transport does, but invoking the single
// shared Dispatch method built by Build() instead of one method per
// action.
type Client struct {
	endpoint string
	schema   *Schema

	mu     sync.Mutex
	conns  chan *grpc.ClientConn
	max    int
	closed atomic.Bool
}

func NewClient(endpoint string, schema *Schema) *Client {
	return &Client{
		endpoint: endpoint,
		schema:   schema,
		conns:    make(chan *grpc.ClientConn, 4),
		max:      4,
	}
}

func (c *Client) getConn(ctx context.Context) (*grpc.ClientConn, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("grpcenvelope: client closed")
	}
	select {
	case cc := <-c.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, c.endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		)
	}
}

func (c *Client) putConn(cc *grpc.ClientConn) {
	if cc == nil || c.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case c.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.conns)
	for cc := range c.conns {
		_ = cc.Close()
	}
	return nil
}

func (c *Client) newEnvelope() *dynamicpb.Message {
	return dynamicpb.NewMessage(c.schema.Envelope)
}

func (c *Client) dispatch(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	cc, err := c.getConn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.putConn(cc)

	serviceName := string(c.schema.Dispatch.Parent().FullName())
	methodName := string(c.schema.Dispatch.Name())
	fullMethod := fmt.Sprintf("/%s/%s", serviceName, methodName)
	eventbus.Publish(ctx, events.GRPCClientStart{Service: serviceName, Method: methodName, Target: c.endpoint})

	start := time.Now()
	resp := dynamicpb.NewMessage(c.schema.Envelope)
	err = cc.Invoke(ctx, fullMethod, req, resp)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Service: serviceName, Method: methodName, Target: c.endpoint,
		Code: status.Code(err), Err: err, Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) field(name string) protoreflect.FieldDescriptor {
	return c.schema.Envelope.Fields().ByName(protoreflect.Name(name))
}

func (c *Client) Invoke(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error) {
	inputJSON, err := json.Marshal(invocation.Input)
	if err != nil {
		return actionlog.Record{}, fmt.Errorf("grpcenvelope: encode input: %w", err)
	}

	req := c.newEnvelope()
	req.Set(c.field("id"), protoreflect.ValueOfString(invocation.ID))
	req.Set(c.field("concept"), protoreflect.ValueOfString(invocation.Concept))
	req.Set(c.field("action"), protoreflect.ValueOfString(invocation.Action))
	req.Set(c.field("input_json"), protoreflect.ValueOfBytes(inputJSON))

	resp, err := c.dispatch(ctx, req)
	if err != nil {
		return actionlog.Record{}, fmt.Errorf("grpcenvelope: dispatch %s/%s: %w", invocation.Concept, invocation.Action, err)
	}

	if errMsg := resp.Get(c.field("error")).String(); errMsg != "" {
		return actionlog.Record{
			ID: invocation.ID, Type: actionlog.TypeCompletion,
			Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
			Variant: "error", Output: map[string]any{"message": errMsg},
			Timestamp: time.Now().UTC(),
		}, nil
	}

	var output map[string]any
	outputJSON := resp.Get(c.field("output_json")).Bytes()
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &output); err != nil {
			return actionlog.Record{}, fmt.Errorf("grpcenvelope: decode output: %w", err)
		}
	}

	return actionlog.Record{
		ID: invocation.ID, Type: actionlog.TypeCompletion,
		Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
		Variant: resp.Get(c.field("variant")).String(), Output: output,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Query is unsupported over the envelope transport: state queries use
// the lite JSON protocol (internal/transport HTTP/WebSocket adapters),
// never the gRPC envelope.
func (c *Client) Query(context.Context, transport.QueryRequest) ([]storage.Record, error) {
	return nil, transport.ErrQueryUnsupported
}

func (c *Client) Health(ctx context.Context) (transport.Health, error) {
	start := time.Now()
	cc, err := c.getConn(ctx)
	if err != nil {
		return transport.Health{}, transport.ErrHealthUnsupported
	}
	defer c.putConn(cc)
	return transport.Health{Available: true, Latency: time.Since(start)}, nil
}

var _ transport.Transport = (*Client)(nil)

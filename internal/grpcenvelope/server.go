package grpcenvelope

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/transport"
)

// Dispatcher resolves a concept URI to the local Transport that serves
// its actions; the server side is itself just a transport.Registry,
// letting the same InProcess adapters the kernel uses locally also
// answer remote Dispatch calls.
type Dispatcher interface {
	Get(conceptURI string) (transport.Transport, bool)
}

// Server exposes Dispatcher over the Dispatch RPC built by Build().
type Server struct {
	schema     *Schema
	dispatcher Dispatcher
}

func NewServer(schema *Schema, dispatcher Dispatcher) *Server {
	return &Server{schema: schema, dispatcher: dispatcher}
}

// ServiceDesc returns the grpc.ServiceDesc to register against a
// *grpc.Server, built dynamically from the same descriptor the client
// dials against so wire compatibility never depends on generated code.
func (s *Server) ServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: string(s.schema.Dispatch.Parent().FullName()),
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: string(s.schema.Dispatch.Name()),
				Handler:    s.dispatchHandler,
			},
		},
		Metadata: s.schema.File.Path(),
	}
}

func (s *Server) field(name string) protoreflect.FieldDescriptor {
	return s.schema.Envelope.Fields().ByName(protoreflect.Name(name))
}

func (s *Server) dispatchHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := dynamicpb.NewMessage(s.schema.Envelope)
	if err := dec(req); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handle(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, req)
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/" + string(s.schema.Dispatch.Parent().FullName()) + "/" + string(s.schema.Dispatch.Name())}
	return interceptor(ctx, req, info, handle)
}

func (s *Server) handle(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	concept := req.Get(s.field("concept")).String()
	action := req.Get(s.field("action")).String()
	id := req.Get(s.field("id")).String()

	resp := dynamicpb.NewMessage(s.schema.Envelope)
	resp.Set(s.field("id"), protoreflect.ValueOfString(id))
	resp.Set(s.field("concept"), protoreflect.ValueOfString(concept))
	resp.Set(s.field("action"), protoreflect.ValueOfString(action))

	target, ok := s.dispatcher.Get(concept)
	if !ok {
		resp.Set(s.field("error"), protoreflect.ValueOfString(fmt.Sprintf("grpcenvelope: no handler for concept %q", concept)))
		return resp, nil
	}

	var input map[string]any
	if raw := req.Get(s.field("input_json")).Bytes(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			resp.Set(s.field("error"), protoreflect.ValueOfString("grpcenvelope: decode input: "+err.Error()))
			return resp, nil
		}
	}

	completion, err := target.Invoke(ctx, actionlog.Record{ID: id, Concept: concept, Action: action, Input: input})
	if err != nil {
		resp.Set(s.field("error"), protoreflect.ValueOfString(err.Error()))
		return resp, nil
	}

	outputJSON, err := json.Marshal(completion.Output)
	if err != nil {
		resp.Set(s.field("error"), protoreflect.ValueOfString("grpcenvelope: encode output: "+err.Error()))
		return resp, nil
	}
	resp.Set(s.field("variant"), protoreflect.ValueOfString(completion.Variant))
	resp.Set(s.field("output_json"), protoreflect.ValueOfBytes(outputJSON))
	return resp, nil
}

// Package grpcenvelope builds a single dynamic protobuf message and a
// single generic Dispatch RPC that carries any concept action over
// gRPC, in the manner of protoreg's descriptor builder: instead of one
// message per action (which would require regenerating .proto files per
// manifest), every action rides the same wire shape with Input/Output
// held as JSON bytes, since concept field sets are only known at
// compile time of a manifest, not at build time of this binary.
package grpcenvelope

import (
	"fmt"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Schema is the built descriptor set: one Envelope message and one
// ConceptService with a single Dispatch method.
type Schema struct {
	File     protoreflect.FileDescriptor
	Envelope protoreflect.MessageDescriptor
	Dispatch protoreflect.MethodDescriptor
}

// Build constructs the Envelope/ConceptService descriptors. Field
// numbers are assigned in declaration order since the schema is fixed
// and never evolves per manifest, unlike protoreg's generated messages.
func Build() (*Schema, error) {
	fb := protobuilder.NewFile("grpcenvelope/envelope.proto")
	fb.SetPackageName("ckit.grpcenvelope")
	fb.SetSyntax(protoreflect.Proto3)

	mb := protobuilder.NewMessage("Envelope")
	fields := []struct {
		name string
		kind protoreflect.Kind
	}{
		{"id", protoreflect.StringKind},
		{"concept", protoreflect.StringKind},
		{"action", protoreflect.StringKind},
		{"variant", protoreflect.StringKind},
		{"input_json", protoreflect.BytesKind},
		{"output_json", protoreflect.BytesKind},
		{"error", protoreflect.StringKind},
	}
	for i, f := range fields {
		field := protobuilder.NewField(protoreflect.Name(f.name), protobuilder.FieldTypeScalar(f.kind))
		field.SetNumber(protoreflect.FieldNumber(i + 1))
		field.SetOptional()
		mb.AddField(field)
	}
	fb.AddMessage(mb)

	sb := protobuilder.NewService("ConceptService")
	method := protobuilder.NewMethod("Dispatch",
		protobuilder.RpcTypeMessage(mb, false),
		protobuilder.RpcTypeMessage(mb, false),
	)
	sb.AddMethod(method)
	fb.AddService(sb)

	fd, err := fb.Build()
	if err != nil {
		return nil, fmt.Errorf("grpcenvelope: build file descriptor: %w", err)
	}

	envelopeDesc := fd.Messages().ByName("Envelope")
	svc := fd.Services().ByName("ConceptService")
	dispatchDesc := svc.Methods().ByName("Dispatch")

	return &Schema{File: fd, Envelope: envelopeDesc, Dispatch: dispatchDesc}, nil
}

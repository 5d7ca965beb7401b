package golang

const typesTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
package {{.Package}}
{{if .NeedsTime}}
import "time"
{{end}}
{{range .Relations}}
// {{.GoName}} is a row of the {{.Name}} relation.
type {{.GoName}} struct {
{{range .Fields}}	{{.GoName}} {{.GoType}} ` + "`json:\"{{.Name}}\"`" + `
{{end}}}
{{end}}
{{range $action := .Actions}}
// {{.GoName}}Input is the {{.Name}} action's invocation payload.
type {{.GoName}}Input struct {
{{range .Params}}	{{.GoName}} {{.GoType}} ` + "`json:\"{{.Name}}\"`" + `
{{end}}}
{{range .Variants}}
// {{.GoName}}Result is the {{.Tag}} result variant of the {{$action.Name}} action.
type {{.GoName}}Result struct {
{{range .Fields}}	{{.GoName}} {{.GoType}} ` + "`json:\"{{.Name}}\"`" + `
{{end}}}
{{end}}
{{end}}
`

const handlerTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
package {{.Package}}

import "context"

// Handler implements {{.Manifest.URI}}'s actions. Each method takes the
// action's typed input and returns the tagged variant its caller should
// render back onto the wire.
type Handler interface {
{{range .Actions}}	{{.GoName}}(ctx context.Context, in {{.GoName}}Input) (string, map[string]any, error)
{{end}}}
`

const transportTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
package {{.Package}}

import (
	"context"
	"fmt"

	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/transport"
)

// NewInProcess wires h into an in-process transport.Handler dispatching on
// the invocation's action name.
func NewInProcess(h Handler) transport.Handler {
	return handlerFunc{h: h}
}

type handlerFunc struct{ h Handler }

func (f handlerFunc) Handle(ctx context.Context, action string, input map[string]any, store storage.Store) (transport.CompletionBody, error) {
	switch action {
{{range .Actions}}	case {{printf "%q" .Name}}:
		in, err := decode{{.GoName}}Input(input)
		if err != nil {
			return transport.CompletionBody{}, err
		}
		variant, fields, err := f.h.{{.GoName}}(ctx, in)
		if err != nil {
			return transport.CompletionBody{}, err
		}
		return transport.CompletionBody{Variant: variant, Fields: fields}, nil
{{end}}	default:
		return transport.CompletionBody{}, fmt.Errorf("{{.Manifest.URI}}: unknown action %q", action)
	}
}
{{range .Actions}}
func decode{{.GoName}}Input(input map[string]any) ({{.GoName}}Input, error) {
	var in {{.GoName}}Input
{{range .Params}}	if v, ok := input[{{printf "%q" .Name}}]; ok {
		if tv, ok := v.({{.GoType}}); ok {
			in.{{.GoName}} = tv
		}
	}
{{end}}	return in, nil
}
{{end}}
`

const conformanceTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
package {{.Package}}

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// newHarness must be supplied (e.g. in a hand-written file alongside this
// generated one) to wire a concrete Handler for the invariant checks below
// to drive.
var newHarness func(t *testing.T) Handler

{{range $i, $inv := .Invariants}}
// Test{{$i}}_Invariant checks: {{$inv.Description}}
func Test{{$i}}_Invariant(t *testing.T) {
	if newHarness == nil {
		t.Skip("no harness wired for generated conformance suite")
	}
	h := newHarness(t)
	ctx := context.Background()
{{range $inv.FreeVars}}
	{{.GoVar}} := {{.Literal}}
	_ = {{.GoVar}}
{{end}}
{{range $inv.Setup}}
	{
		in := {{.GoAction}}Input{
{{range .CallFields}}			{{.GoName}}: {{.Expr}},
{{end}}		}
		variant, _, err := h.{{.GoAction}}(ctx, in)
		require.NoError(t, err)
		require.Equal(t, {{printf "%q" .VariantTag}}, variant)
	}
{{end}}
{{range $inv.Assertions}}
	{
		in := {{.GoAction}}Input{
{{range .CallFields}}			{{.GoName}}: {{.Expr}},
{{end}}		}
		variant, fields, err := h.{{.GoAction}}(ctx, in)
		require.NoError(t, err)
		require.Equal(t, {{printf "%q" .VariantTag}}, variant)
{{range .ResultFields}}		require.Equal(t, {{.Expr}}, fields[{{printf "%q" .Name}}])
{{end}}	}
{{end}}
}
{{end}}
`

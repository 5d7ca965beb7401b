package typescript

const typesTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
{{range .Relations}}
export interface {{.Name}} {
{{range .Fields}}  {{.Name}}{{if .Optional}}?{{end}}: {{.TSType}};
{{end}}}
{{end}}
{{range .Actions}}
export interface {{.TSName}}Input {
{{range .Params}}  {{.Name}}: {{.TSType}};
{{end}}}
{{range .Variants}}
export interface {{$.Manifest.Name}}{{.Tag}}Result {
{{range .Fields}}  {{.Name}}{{if .Optional}}?{{end}}: {{.TSType}};
{{end}}}
{{end}}
{{end}}
`

const handlerTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
import type {
{{range .Actions}}  {{.TSName}}Input,
{{end}}} from "./types";

export interface Handler {
{{range .Actions}}  {{.Name}}(input: {{.TSName}}Input): Promise<{ variant: string; fields: Record<string, unknown> }>;
{{end}}}
`

const transportTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
import type { Handler } from "./handler";

export interface CompletionBody {
  variant: string;
  fields: Record<string, unknown>;
}

// createInProcessTransport wires h into a dispatcher keyed by action name,
// mirroring the Go kernel's InProcess transport adapter.
export function createInProcessTransport(h: Handler) {
  return {
    async handle(action: string, input: Record<string, unknown>): Promise<CompletionBody> {
      switch (action) {
{{range .Actions}}        case {{printf "%q" .Name}}: {
          const result = await h.{{.Name}}(input as any);
          return { variant: result.variant, fields: result.fields };
        }
{{end}}        default:
          throw new Error("{{.Manifest.URI}}: unknown action " + action);
      }
    },
  };
}
`

const conformanceTemplate = `// Code generated from the {{.Manifest.URI}} concept manifest. DO NOT EDIT.
import type { Handler } from "./handler";

// newHarness must be supplied by the test runner to wire a concrete
// Handler for the invariant checks below to drive.
export let newHarness: (() => Handler) | undefined;

{{range $i, $inv := .Invariants}}
// Invariant {{$i}}: {{$inv.Description}}
test("invariant {{$i}}", async () => {
  if (!newHarness) {
    return;
  }
  const h = newHarness();
{{range $inv.FreeVars}}  const {{.TSVar}} = {{.Literal}};
{{end}}
{{range $inv.Setup}}
  {
    const input = {
{{range .CallFields}}      {{.Name}}: {{.Expr}},
{{end}}    };
    const result = await h.{{.Action}}(input as any);
    expect(result.variant).toBe({{printf "%q" .VariantTag}});
  }
{{end}}
{{range $inv.Assertions}}
  {
    const input = {
{{range .CallFields}}      {{.Name}}: {{.Expr}},
{{end}}    };
    const result = await h.{{.Action}}(input as any);
    expect(result.variant).toBe({{printf "%q" .VariantTag}});
{{range .ResultFields}}    expect(result.fields[{{printf "%q" .Name}}]).toBe({{.Expr}});
{{end}}  }
{{end}}
});
{{end}}
`

// Package golang implements codegen.Generator for Go: it renders a
// manifest.Manifest into a types file, a handler interface, an in-process
// transport adapter stub, and (when the manifest carries invariants) a
// conformance test file, using text/template in the manner of the
// text/template rendering patterns used elsewhere in this codebase, and of
// evalgo-org-eve's db/poolparty.go, the pack's other text/template user.
package golang

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/conceptkit/ckit/internal/codegen"
	"github.com/conceptkit/ckit/internal/manifest"
)

const language = "go"

// Generator renders a manifest into a Go package bundle.
type Generator struct {
	// PackageName overrides the generated package's name. Defaults to the
	// lowercased concept name when empty.
	PackageName string
}

func (g Generator) Language() string { return language }

func (g Generator) Generate(m *manifest.Manifest) ([]codegen.File, error) {
	if m == nil {
		return nil, &codegen.Error{Language: language, Feature: "manifest", Message: "nil manifest"}
	}
	pkg := g.PackageName
	if pkg == "" {
		pkg = strings.ToLower(m.Name)
	}
	data, err := newTemplateData(m, pkg)
	if err != nil {
		return nil, err
	}

	var files []codegen.File
	for _, tpl := range []struct {
		name string
		path string
		text string
	}{
		{"types", fmt.Sprintf("%s/types.go", pkg), typesTemplate},
		{"handler", fmt.Sprintf("%s/handler.go", pkg), handlerTemplate},
		{"transport", fmt.Sprintf("%s/transport.go", pkg), transportTemplate},
	} {
		content, err := render(tpl.name, tpl.text, data)
		if err != nil {
			return nil, &codegen.Error{Language: language, Concept: m.URI, Feature: tpl.name, Message: err.Error()}
		}
		files = append(files, codegen.File{Path: tpl.path, Content: content})
	}

	if len(m.Invariants) > 0 {
		content, err := render("conformance", conformanceTemplate, data)
		if err != nil {
			return nil, &codegen.Error{Language: language, Concept: m.URI, Feature: "conformance", Message: err.Error()}
		}
		files = append(files, codegen.File{Path: fmt.Sprintf("%s/conformance_test.go", pkg), Content: content})
	}

	return files, nil
}

func render(name, text string, data templateData) (string, error) {
	tpl, err := template.New(name).Funcs(funcMap).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

type templateData struct {
	Package    string
	Manifest   *manifest.Manifest
	Relations  []relationData
	Actions    []actionData
	Invariants []invariantData
	NeedsTime  bool
}

type relationData struct {
	Name   string
	GoName string
	Fields []fieldData
}

type fieldData struct {
	Name     string
	GoName   string
	GoType   string
	Optional bool
}

type actionData struct {
	Name     string
	GoName   string
	Params   []fieldData
	Variants []variantData
}

type variantData struct {
	Tag    string
	GoName string
	Fields []fieldData
}

type invariantData struct {
	Description string
	FreeVars    []freeVarData
	Setup       []stepData
	Assertions  []stepData
}

// freeVarData is one invariant free variable, declared as a local Go
// variable so the conformance test can reference it by identifier as
// well as by literal value.
type freeVarData struct {
	Name      string
	GoVar     string
	TestValue string
	Literal   string
}

// stepData is one setup or assertion step: the action to call, the
// call's input fields (from the pattern's argument bindings), and —
// for assertion steps — the result fields to check against the
// returned completion fields.
type stepData struct {
	Action       string
	GoAction     string
	VariantTag   string
	CallFields   []fieldLiteralData
	ResultFields []fieldLiteralData
}

// fieldLiteralData is one field of a step's call or result: Name is the
// manifest field name, GoName its exported struct-field name (only
// meaningful for call fields), and Expr a Go expression evaluating to
// the field's materialized value — either a free variable's identifier
// or a literal.
type fieldLiteralData struct {
	Name   string
	GoName string
	Expr   string
}

func newTemplateData(m *manifest.Manifest, pkg string) (templateData, error) {
	data := templateData{Package: pkg, Manifest: m}

	for _, r := range m.Relations {
		rd := relationData{Name: r.Name, GoName: exportName(r.Name)}
		for _, f := range r.Fields {
			gt, err := goType(f.Type)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "relation:" + r.Name, Message: err.Error()}
			}
			rd.Fields = append(rd.Fields, fieldData{Name: f.Name, GoName: exportName(f.Name), GoType: gt, Optional: f.Optional})
		}
		data.Relations = append(data.Relations, rd)
	}

	for _, a := range m.Actions {
		ad := actionData{Name: a.Name, GoName: exportName(a.Name)}
		for _, p := range a.Params {
			gt, err := goType(p.Type)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "action:" + a.Name, Message: err.Error()}
			}
			ad.Params = append(ad.Params, fieldData{Name: p.Name, GoName: exportName(p.Name), GoType: gt})
		}
		for _, v := range a.Variants {
			vd := variantData{Tag: v.Tag, GoName: exportName(v.Tag)}
			for _, f := range v.Fields {
				gt, err := goType(f.Type)
				if err != nil {
					return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "variant:" + a.Name + "/" + v.Tag, Message: err.Error()}
				}
				vd.Fields = append(vd.Fields, fieldData{Name: f.Name, GoName: exportName(f.Name), GoType: gt, Optional: f.Optional})
			}
			ad.Variants = append(ad.Variants, vd)
		}
		data.Actions = append(data.Actions, ad)
	}

	actionParamGoNames := make(map[string]map[string]string, len(m.Actions))
	for _, a := range m.Actions {
		lookup := make(map[string]string, len(a.Params))
		for _, p := range a.Params {
			lookup[p.Name] = exportName(p.Name)
		}
		actionParamGoNames[a.Name] = lookup
	}

	for _, inv := range m.Invariants {
		id := invariantData{Description: inv.Description}
		for _, fv := range inv.FreeVariables {
			lit, err := goLiteral(fv.TestValue)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:freeVariable", Message: err.Error()}
			}
			id.FreeVars = append(id.FreeVars, freeVarData{Name: fv.Name, GoVar: fv.Name, TestValue: fv.TestValue, Literal: lit})
		}
		for _, s := range inv.Setup {
			sd, err := buildStepData(s, actionParamGoNames[s.Action], id.FreeVars)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:setup:" + s.Action, Message: err.Error()}
			}
			id.Setup = append(id.Setup, sd)
		}
		for _, s := range inv.Assertions {
			sd, err := buildStepData(s, actionParamGoNames[s.Action], id.FreeVars)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:assertion:" + s.Action, Message: err.Error()}
			}
			id.Assertions = append(id.Assertions, sd)
		}
		data.Invariants = append(data.Invariants, id)
	}

	for _, r := range data.Relations {
		for _, f := range r.Fields {
			if strings.Contains(f.GoType, "time.Time") {
				data.NeedsTime = true
			}
		}
	}
	for _, a := range data.Actions {
		for _, f := range a.Params {
			if strings.Contains(f.GoType, "time.Time") {
				data.NeedsTime = true
			}
		}
		for _, v := range a.Variants {
			for _, f := range v.Fields {
				if strings.Contains(f.GoType, "time.Time") {
					data.NeedsTime = true
				}
			}
		}
	}

	return data, nil
}

func buildStepData(s *manifest.PatternStep, paramGoNames map[string]string, freeVars []freeVarData) (stepData, error) {
	sd := stepData{Action: s.Action, GoAction: exportName(s.Action), VariantTag: s.VariantTag}
	callFields, err := buildFieldLiterals(s.CallFields, paramGoNames, freeVars)
	if err != nil {
		return stepData{}, fmt.Errorf("call fields: %w", err)
	}
	sd.CallFields = callFields
	resultFields, err := buildFieldLiterals(s.ResultFields, nil, freeVars)
	if err != nil {
		return stepData{}, fmt.Errorf("result fields: %w", err)
	}
	sd.ResultFields = resultFields
	return sd, nil
}

// buildFieldLiterals renders a pattern step's resolved field values (test
// values already substituted for free variables by the manifest builder)
// into Go expressions: a field whose value equals a free variable's test
// value references that variable's identifier, so the conformance test
// reads the manifest's declared variable rather than repeating its
// literal. paramGoNames maps field name to its exported struct-field
// name; pass nil when the fields index into a map instead (result
// fields, checked against the handler's returned fields map).
func buildFieldLiterals(fields map[string]any, paramGoNames map[string]string, freeVars []freeVarData) ([]fieldLiteralData, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]fieldLiteralData, 0, len(names))
	for _, name := range names {
		expr, err := fieldExpr(fields[name], freeVars)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		goName := paramGoNames[name]
		if goName == "" {
			goName = exportName(name)
		}
		out = append(out, fieldLiteralData{Name: name, GoName: goName, Expr: expr})
	}
	return out, nil
}

func fieldExpr(v any, freeVars []freeVarData) (string, error) {
	if s, ok := v.(string); ok {
		for _, fv := range freeVars {
			if fv.TestValue == s {
				return fv.GoVar, nil
			}
		}
	}
	return goLiteral(v)
}

// goLiteral renders a manifest literal value (string, bool, int64, or
// float64 — the only kinds the DSL parser produces) as a Go source
// expression.
func goLiteral(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported literal value %v (%T)", v, v)
	}
}

// goType renders a manifest.TypeTree as a Go type expression. Record trees
// render as an inline struct so that nested shapes never need a name of
// their own.
func goType(tt *manifest.TypeTree) (string, error) {
	if tt == nil {
		return "", fmt.Errorf("nil type tree")
	}
	switch tt.Kind {
	case manifest.KindPrimitive:
		return goPrimitive(tt.Primitive)
	case manifest.KindParam:
		return "string", nil // type parameters are opaque IDs on the wire
	case manifest.KindList:
		elem, err := goType(tt.Elem)
		if err != nil {
			return "", err
		}
		return "[]" + elem, nil
	case manifest.KindSet:
		elem, err := goType(tt.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("map[%s]struct{}", elem), nil
	case manifest.KindOption:
		elem, err := goType(tt.Elem)
		if err != nil {
			return "", err
		}
		return "*" + elem, nil
	case manifest.KindMap:
		key, err := goType(tt.Key)
		if err != nil {
			return "", err
		}
		val, err := goType(tt.Val)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("map[%s]%s", key, val), nil
	case manifest.KindRecord:
		names := make([]string, 0, len(tt.Fields))
		for name := range tt.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("struct {\n")
		for _, name := range names {
			ft, err := goType(tt.Fields[name])
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "\t\t%s %s `json:\"%s\"`\n", exportName(name), ft, name)
		}
		b.WriteString("\t}")
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported type tree kind %q", tt.Kind)
	}
}

func goPrimitive(name string) (string, error) {
	switch name {
	case "String":
		return "string", nil
	case "Int":
		return "int64", nil
	case "Float":
		return "float64", nil
	case "Bool":
		return "bool", nil
	case "Bytes":
		return "[]byte", nil
	case "DateTime":
		return "time.Time", nil
	default:
		return "", fmt.Errorf("unsupported primitive %q", name)
	}
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	if b.Len() == 0 {
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return b.String()
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

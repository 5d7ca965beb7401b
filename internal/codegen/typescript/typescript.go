// Package typescript implements codegen.Generator for TypeScript: a
// types module, a handler interface, and an in-process transport adapter
// stub rendered from a manifest.Manifest, mirroring internal/codegen/golang's
// structure in TypeScript's own idiom.
package typescript

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

const language = "typescript"

// Generator renders a manifest into a TypeScript module bundle.
type Generator struct{}

func (g Generator) Language() string { return language }

func (g Generator) Generate(m *manifest.Manifest) ([]codegen.File, error) {
	if m == nil {
		return nil, &codegen.Error{Language: language, Feature: "manifest", Message: "nil manifest"}
	}
	data, err := newTemplateData(m)
	if err != nil {
		return nil, err
	}

	var files []codegen.File
	for _, tpl := range []struct {
		name string
		path string
		text string
	}{
		{"types", "types.ts", typesTemplate},
		{"handler", "handler.ts", handlerTemplate},
		{"transport", "transport.ts", transportTemplate},
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
		files = append(files, codegen.File{Path: "conformance.test.ts", Content: content})
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
	Manifest   *manifest.Manifest
	Relations  []relationData
	Actions    []actionData
	Invariants []invariantData
}

type relationData struct {
	Name   string
	Fields []fieldData
}

type fieldData struct {
	Name     string
	TSType   string
	Optional bool
}

type actionData struct {
	Name     string
	TSName   string
	Params   []fieldData
	Variants []variantData
}

type variantData struct {
	Tag    string
	Fields []fieldData
}

type invariantData struct {
	Description string
	FreeVars    []freeVarData
	Setup       []stepData
	Assertions  []stepData
}

// freeVarData is one invariant free variable, declared as a local const
// so the conformance test can reference it by identifier as well as by
// literal value.
type freeVarData struct {
	Name      string
	TSVar     string
	TestValue string
	Literal   string
}

// stepData is one setup or assertion step: the action to call, the
// call's input fields (from the pattern's argument bindings), and —
// for assertion steps — the result fields to check against the
// returned completion fields.
type stepData struct {
	Action       string
	VariantTag   string
	CallFields   []fieldLiteralData
	ResultFields []fieldLiteralData
}

// fieldLiteralData is one field of a step's call or result: Name is the
// manifest field name and Expr a TypeScript expression evaluating to the
// field's materialized value — either a free variable's identifier or a
// literal.
type fieldLiteralData struct {
	Name string
	Expr string
}

func newTemplateData(m *manifest.Manifest) (templateData, error) {
	data := templateData{Manifest: m}

	for _, r := range m.Relations {
		rd := relationData{Name: r.Name}
		for _, f := range r.Fields {
			tt, err := tsType(f.Type)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "relation:" + r.Name, Message: err.Error()}
			}
			rd.Fields = append(rd.Fields, fieldData{Name: f.Name, TSType: tt, Optional: f.Optional})
		}
		data.Relations = append(data.Relations, rd)
	}

	for _, a := range m.Actions {
		ad := actionData{Name: a.Name, TSName: camelExport(a.Name)}
		for _, p := range a.Params {
			tt, err := tsType(p.Type)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "action:" + a.Name, Message: err.Error()}
			}
			ad.Params = append(ad.Params, fieldData{Name: p.Name, TSType: tt})
		}
		for _, v := range a.Variants {
			vd := variantData{Tag: v.Tag}
			for _, f := range v.Fields {
				tt, err := tsType(f.Type)
				if err != nil {
					return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "variant:" + a.Name + "/" + v.Tag, Message: err.Error()}
				}
				vd.Fields = append(vd.Fields, fieldData{Name: f.Name, TSType: tt, Optional: f.Optional})
			}
			ad.Variants = append(ad.Variants, vd)
		}
		data.Actions = append(data.Actions, ad)
	}

	for _, inv := range m.Invariants {
		id := invariantData{Description: inv.Description}
		for _, fv := range inv.FreeVariables {
			lit, err := tsLiteral(fv.TestValue)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:freeVariable", Message: err.Error()}
			}
			id.FreeVars = append(id.FreeVars, freeVarData{Name: fv.Name, TSVar: fv.Name, TestValue: fv.TestValue, Literal: lit})
		}
		for _, s := range inv.Setup {
			sd, err := buildStepData(s, id.FreeVars)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:setup:" + s.Action, Message: err.Error()}
			}
			id.Setup = append(id.Setup, sd)
		}
		for _, s := range inv.Assertions {
			sd, err := buildStepData(s, id.FreeVars)
			if err != nil {
				return templateData{}, &codegen.Error{Language: language, Concept: m.URI, Feature: "invariant:assertion:" + s.Action, Message: err.Error()}
			}
			id.Assertions = append(id.Assertions, sd)
		}
		data.Invariants = append(data.Invariants, id)
	}

	return data, nil
}

func buildStepData(s *manifest.PatternStep, freeVars []freeVarData) (stepData, error) {
	sd := stepData{Action: s.Action, VariantTag: s.VariantTag}
	callFields, err := buildFieldLiterals(s.CallFields, freeVars)
	if err != nil {
		return stepData{}, fmt.Errorf("call fields: %w", err)
	}
	sd.CallFields = callFields
	resultFields, err := buildFieldLiterals(s.ResultFields, freeVars)
	if err != nil {
		return stepData{}, fmt.Errorf("result fields: %w", err)
	}
	sd.ResultFields = resultFields
	return sd, nil
}

// buildFieldLiterals renders a pattern step's resolved field values
// (test values already substituted for free variables by the manifest
// builder) into TypeScript expressions: a field whose value equals a
// free variable's test value references that variable's identifier, so
// the conformance test reads the manifest's declared variable rather
// than repeating its literal.
func buildFieldLiterals(fields map[string]any, freeVars []freeVarData) ([]fieldLiteralData, error) {
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
		out = append(out, fieldLiteralData{Name: name, Expr: expr})
	}
	return out, nil
}

func fieldExpr(v any, freeVars []freeVarData) (string, error) {
	if s, ok := v.(string); ok {
		for _, fv := range freeVars {
			if fv.TestValue == s {
				return fv.TSVar, nil
			}
		}
	}
	return tsLiteral(v)
}

// tsLiteral renders a manifest literal value (string, bool, int64, or
// float64 — the only kinds the DSL parser produces) as a TypeScript
// source expression.
func tsLiteral(v any) (string, error) {
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

// tsType renders a manifest.TypeTree as a TypeScript type expression.
func tsType(tt *manifest.TypeTree) (string, error) {
	if tt == nil {
		return "", fmt.Errorf("nil type tree")
	}
	switch tt.Kind {
	case manifest.KindPrimitive:
		return tsPrimitive(tt.Primitive)
	case manifest.KindParam:
		return "string", nil
	case manifest.KindList:
		elem, err := tsType(tt.Elem)
		if err != nil {
			return "", err
		}
		return elem + "[]", nil
	case manifest.KindSet:
		elem, err := tsType(tt.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Set<%s>", elem), nil
	case manifest.KindOption:
		elem, err := tsType(tt.Elem)
		if err != nil {
			return "", err
		}
		return elem + " | null", nil
	case manifest.KindMap:
		key, err := tsType(tt.Key)
		if err != nil {
			return "", err
		}
		val, err := tsType(tt.Val)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Map<%s, %s>", key, val), nil
	case manifest.KindRecord:
		names := make([]string, 0, len(tt.Fields))
		for name := range tt.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("{ ")
		for _, name := range names {
			ft, err := tsType(tt.Fields[name])
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s: %s; ", name, ft)
		}
		b.WriteString("}")
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported type tree kind %q", tt.Kind)
	}
}

func tsPrimitive(name string) (string, error) {
	switch name {
	case "String":
		return "string", nil
	case "Int", "Float":
		return "number", nil
	case "Bool":
		return "boolean", nil
	case "Bytes":
		return "Uint8Array", nil
	case "DateTime":
		return "string", nil // ISO-8601 on the wire
	default:
		return "", fmt.Errorf("unsupported primitive %q", name)
	}
}

func camelExport(name string) string {
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
		return name
	}
	return b.String()
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

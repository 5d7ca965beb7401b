package manifest

// buildJSONSchemas derives the per-action invocation schema and the
// per-action-per-variant completion schema.
func buildJSONSchemas(actions []*Action) JSONSchemaSet {
	set := JSONSchemaSet{
		Invocations: make(map[string]JSONSchema, len(actions)),
		Completions: make(map[string]map[string]JSONSchema, len(actions)),
	}
	for _, a := range actions {
		set.Invocations[a.Name] = invocationSchema(a)
		byTag := make(map[string]JSONSchema, len(a.Variants))
		for _, v := range a.Variants {
			byTag[v.Tag] = completionSchema(v)
		}
		set.Completions[a.Name] = byTag
	}
	return set
}

func invocationSchema(a *Action) JSONSchema {
	props := make(map[string]any, len(a.Params))
	required := make([]string, 0, len(a.Params))
	for _, p := range a.Params {
		props[p.Name] = typeTreeJSONSchema(p.Type, false)
		required = append(required, p.Name)
	}
	return JSONSchema{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func completionSchema(v *Variant) JSONSchema {
	props := map[string]any{
		"variant": JSONSchema{"type": "string", "const": v.Tag},
	}
	required := []string{"variant"}
	for _, f := range v.Fields {
		props[f.Name] = typeTreeJSONSchema(f.Type, f.Optional)
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	return JSONSchema{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func typeTreeJSONSchema(t *TypeTree, optional bool) JSONSchema {
	var schema JSONSchema
	switch t.Kind {
	case KindPrimitive:
		schema = primitiveJSONSchema(t.Primitive)
	case KindParam:
		schema = JSONSchema{"type": "string", "description": "opaque " + t.Param + " identifier"}
	case KindSet:
		schema = JSONSchema{"type": "array", "items": typeTreeJSONSchema(t.Elem, false), "uniqueItems": true}
	case KindList:
		schema = JSONSchema{"type": "array", "items": typeTreeJSONSchema(t.Elem, false)}
	case KindOption:
		schema = typeTreeJSONSchema(t.Elem, true)
	case KindMap:
		schema = JSONSchema{"type": "object", "additionalProperties": typeTreeJSONSchema(t.Val, false)}
	case KindRecord:
		props := make(map[string]any, len(t.Fields))
		for name, ft := range t.Fields {
			props[name] = typeTreeJSONSchema(ft, false)
		}
		schema = JSONSchema{"type": "object", "properties": props}
	default:
		schema = JSONSchema{}
	}
	if optional {
		schema["nullable"] = true
	}
	return schema
}

func primitiveJSONSchema(name string) JSONSchema {
	switch name {
	case "String":
		return JSONSchema{"type": "string"}
	case "Int":
		return JSONSchema{"type": "integer"}
	case "Bool":
		return JSONSchema{"type": "boolean"}
	case "Bytes":
		return JSONSchema{"type": "string", "contentEncoding": "base64"}
	case "DateTime":
		return JSONSchema{"type": "string", "format": "date-time"}
	case "Float":
		return JSONSchema{"type": "number"}
	default:
		return JSONSchema{"type": "string"}
	}
}

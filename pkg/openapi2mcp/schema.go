// schema.go
package openapi2mcp

import (
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// schemaKind is the closed set of shapes the visitor understands
type schemaKind int

const (
	kindOther schemaKind = iota
	kindObject
	kindString
	kindNumber
	kindInteger
	kindBoolean
	kindArray
)

func (k schemaKind) String() string {
	switch k {
	case kindObject:
		return "object"
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindInteger:
		return "integer"
	case kindBoolean:
		return "boolean"
	case kindArray:
		return "array"
	default:
		return "other"
	}
}

// maxRefDepth is how many $ref hops the visitor follows
const maxRefDepth = 1

// classify picks the kind of s. Schemas without a type but with properties
// are objects; compositions whose variants are all objects fold into one.
func classify(s *openapi3.Schema) schemaKind {
	if s == nil {
		return kindOther
	}
	for _, t := range s.Type.Slice() {
		switch t {
		case openapi3.TypeObject:
			return kindObject
		case openapi3.TypeString:
			return kindString
		case openapi3.TypeNumber:
			return kindNumber
		case openapi3.TypeInteger:
			return kindInteger
		case openapi3.TypeBoolean:
			return kindBoolean
		case openapi3.TypeArray:
			return kindArray
		}
	}
	if len(s.Properties) > 0 {
		return kindObject
	}
	if composedObject(s) {
		return kindObject
	}
	return kindOther
}

func composedObject(s *openapi3.Schema) bool {
	variants := compositionVariants(s)
	if len(variants) == 0 {
		return false
	}
	for _, v := range variants {
		if v == nil || v.Value == nil {
			return false
		}
		if k := classify(v.Value); k != kindObject {
			return false
		}
	}
	return true
}

func compositionVariants(s *openapi3.Schema) openapi3.SchemaRefs {
	switch {
	case len(s.AllOf) > 0:
		return s.AllOf
	case len(s.OneOf) > 0:
		return s.OneOf
	case len(s.AnyOf) > 0:
		return s.AnyOf
	}
	return nil
}

// schemaVisitor converts kin-openapi schemas into the JSON Schema subset
// accepted by MCP clients
type schemaVisitor struct{}

// visit converts ref. refDepth counts the $ref hops already taken.
func (v schemaVisitor) visit(ref *openapi3.SchemaRef, refDepth int) map[string]any {
	if ref == nil {
		return stringSchema("")
	}
	if ref.Ref != "" {
		if refDepth >= maxRefDepth || ref.Value == nil {
			return stringSchema("")
		}
		refDepth++
	}
	s := ref.Value
	if s == nil {
		return stringSchema("")
	}

	switch classify(s) {
	case kindObject:
		return v.visitObject(s, refDepth)
	case kindString:
		return v.visitPrimitive(s, kindString)
	case kindNumber:
		return v.visitPrimitive(s, kindNumber)
	case kindInteger:
		return v.visitPrimitive(s, kindInteger)
	case kindBoolean:
		return v.visitPrimitive(s, kindBoolean)
	case kindArray:
		return v.visitArray(s, refDepth)
	default:
		return v.visitOther(s)
	}
}

func (v schemaVisitor) visitObject(s *openapi3.Schema, refDepth int) map[string]any {
	properties := map[string]any{}
	required := append([]string(nil), s.Required...)

	for name, prop := range s.Properties {
		properties[name] = v.visit(prop, refDepth)
	}

	// allOf merges everything; oneOf/anyOf only require what every variant requires
	if variants := compositionVariants(s); len(variants) > 0 {
		counts := map[string]int{}
		for _, variant := range variants {
			if variant == nil || variant.Value == nil {
				continue
			}
			if variant.Ref != "" && refDepth >= maxRefDepth {
				continue
			}
			depth := refDepth
			if variant.Ref != "" {
				depth++
			}
			for name, prop := range variant.Value.Properties {
				if _, ok := properties[name]; !ok {
					properties[name] = v.visit(prop, depth)
				}
			}
			for _, r := range variant.Value.Required {
				counts[r]++
			}
		}
		for name, n := range counts {
			if len(s.AllOf) > 0 || n == len(variants) {
				required = append(required, name)
			}
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if req := dedupeSorted(required, properties); len(req) > 0 {
		out["required"] = req
	}
	return out
}

func (v schemaVisitor) visitPrimitive(s *openapi3.Schema, kind schemaKind) map[string]any {
	out := map[string]any{"type": kind.String()}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	return out
}

func (v schemaVisitor) visitArray(s *openapi3.Schema, refDepth int) map[string]any {
	items := map[string]any{}
	if s.Items != nil {
		items = v.visit(s.Items, refDepth)
	}
	out := map[string]any{
		"type":  "array",
		"items": items,
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	return out
}

func (v schemaVisitor) visitOther(s *openapi3.Schema) map[string]any {
	return stringSchema(s.Description)
}

func stringSchema(description string) map[string]any {
	out := map[string]any{"type": "string"}
	if description != "" {
		out["description"] = description
	}
	return out
}

// dedupeSorted keeps required names that exist in properties, once each
func dedupeSorted(names []string, properties map[string]any) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		if _, ok := properties[n]; !ok {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ensureProperties makes every object schema carry a properties map, recursively
func ensureProperties(schema map[string]any) {
	if schema == nil {
		return
	}
	if schema["type"] == "object" {
		props, ok := schema["properties"].(map[string]any)
		if !ok {
			props = map[string]any{}
			schema["properties"] = props
		}
		for _, p := range props {
			if child, ok := p.(map[string]any); ok {
				ensureProperties(child)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureProperties(items)
	}
}

// parameterSchema converts a query or header parameter
func (v schemaVisitor) parameterSchema(p *openapi3.Parameter) map[string]any {
	var out map[string]any
	if p.Schema != nil {
		out = v.visit(p.Schema, 0)
	} else {
		out = stringSchema("")
	}
	if p.Description != "" {
		out["description"] = p.Description
	} else if _, ok := out["description"]; !ok {
		label := "Query"
		if p.In == openapi3.ParameterInHeader {
			label = "Header"
		}
		out["description"] = fmt.Sprintf("%s parameter: %s", label, p.Name)
	}
	return out
}

package openapi2mcp

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// decodeRaw parses data as JSON, falling back to YAML. It reports which
// format succeeded.
func decodeRaw(data []byte) (map[string]any, string, error) {
	var doc map[string]any
	jsonErr := json.Unmarshal(data, &doc)
	if jsonErr == nil && doc != nil {
		return doc, "json", nil
	}

	var raw any
	yamlErr := yaml.Unmarshal(data, &raw)
	if yamlErr == nil {
		if m, ok := normalizeYAML(raw).(map[string]any); ok {
			return m, "yaml", nil
		}
		yamlErr = fmt.Errorf("top level is not a mapping")
	}

	return nil, "", server.NewError(server.ErrorTypeParse,
		"failed to parse OpenAPI document as JSON or YAML",
		fmt.Sprintf("json: %v; yaml: %v", jsonErr, yamlErr))
}

// normalizeYAML converts map[interface{}]interface{} nodes, produced for
// non-string keys such as response codes, into string-keyed maps
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeYAML(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalizeYAML(child)
		}
		return t
	default:
		return v
	}
}

// sanitizeRefs reduces every object carrying $ref to that key alone, since
// siblings of $ref are ignored by OpenAPI 3.0 and trip the typed decoder
func sanitizeRefs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := t["$ref"]; ok {
			return map[string]any{"$ref": ref}
		}
		for k, child := range t {
			t[k] = sanitizeRefs(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = sanitizeRefs(child)
		}
		return t
	default:
		return v
	}
}

// decodeDocument turns raw spec bytes into a typed document. Reference
// resolution failures are returned separately as a non-fatal warning.
func decodeDocument(data []byte) (doc *openapi3.T, format string, resolveErr error, err error) {
	raw, format, err := decodeRaw(data)
	if err != nil {
		return nil, "", nil, err
	}

	sanitized, err := json.Marshal(sanitizeRefs(raw))
	if err != nil {
		return nil, "", nil, server.Wrap(err, server.ErrorTypeParse, "failed to re-encode OpenAPI document")
	}

	doc = &openapi3.T{}
	if err := doc.UnmarshalJSON(sanitized); err != nil {
		return nil, "", nil, server.Wrap(err, server.ErrorTypeParse, "invalid OpenAPI 3 document")
	}
	if doc.OpenAPI == "" {
		return nil, "", nil, server.NewError(server.ErrorTypeParse,
			"not an OpenAPI 3 document", "missing openapi version field")
	}

	loader := openapi3.NewLoader()
	if rerr := loader.ResolveRefsIn(doc, nil); rerr != nil {
		resolveErr = rerr
	}
	return doc, format, resolveErr, nil
}

// DocumentInfo summarizes an OpenAPI document without compiling it
type DocumentInfo struct {
	Title      string
	Version    string
	Format     string
	Operations int
}

// Inspect decodes spec and reports its title, version, format and the
// number of operations a compile would consider
func Inspect(spec []byte) (DocumentInfo, error) {
	doc, format, _, err := decodeDocument(spec)
	if err != nil {
		return DocumentInfo{}, err
	}
	info := DocumentInfo{Format: format}
	if doc.Info != nil {
		info.Title = doc.Info.Title
		info.Version = doc.Info.Version
	}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			if item.GetOperation(method) != nil {
				info.Operations++
			}
		}
	}
	return info, nil
}

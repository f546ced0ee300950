// Package openapi2mcp compiles OpenAPI 3.x documents into MCP tools.
//
// Every (path, method) pair that survives the adjustments filter becomes a
// CompiledTool: the mcp.Tool advertised to clients plus the RouteConfig the
// requester package turns into an executor.
//
//	adj := adjuster.New(logger)
//	c := openapi2mcp.NewCompiler(adj, logger)
//	tools, err := c.Init(ctx, "petstore.yaml", "adjustments.yaml")
//
// Tool names follow NormalizeToolName; descriptions are rendered as
// "{METHOD} {path} - {description}" and pass through NormalizeDescription.
package openapi2mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"
	"github.com/yosida95/uritemplate/v3"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/auth"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// BodyField is the input property carrying the request body
const BodyField = "body"

const (
	mediaJSON      = "application/json"
	mediaForm      = "application/x-www-form-urlencoded"
	mediaMultipart = "multipart/form-data"
)

// Compiler turns a spec document into tools
type Compiler interface {
	Compile(ctx context.Context, spec []byte) ([]CompiledTool, error)
}

// CompiledTool pairs an advertised tool with the route it calls
type CompiledTool struct {
	Route requester.RouteConfig
	Tool  mcp.Tool
}

// SpecReader fetches spec bytes for a source string
type SpecReader func(ctx context.Context, source string) ([]byte, error)

// Option configures an OpenAPICompiler
type Option func(*OpenAPICompiler)

// WithSpecReader replaces the default file reader used by Init
func WithSpecReader(r SpecReader) Option {
	return func(c *OpenAPICompiler) {
		c.readSpec = r
	}
}

// OpenAPICompiler compiles OpenAPI 3.0 documents
type OpenAPICompiler struct {
	adjuster *adjuster.Adjuster
	logger   *log.Logger
	readSpec SpecReader
	visitor  schemaVisitor
}

var _ Compiler = (*OpenAPICompiler)(nil)

// methodOrder is the traversal order within one path
var methodOrder = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// NewCompiler creates a compiler filtering through adj
func NewCompiler(adj *adjuster.Adjuster, logger *log.Logger, opts ...Option) *OpenAPICompiler {
	if adj == nil {
		adj = adjuster.New(logger)
	}
	c := &OpenAPICompiler{
		adjuster: adj,
		logger:   logger,
		readSpec: readFile,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAdjuster returns a copy of c filtering through adj
func (c *OpenAPICompiler) WithAdjuster(adj *adjuster.Adjuster) Compiler {
	cp := *c
	cp.adjuster = adj
	return &cp
}

func readFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Init loads the adjustments, reads the spec and compiles it
func (c *OpenAPICompiler) Init(ctx context.Context, specPath, adjustmentsPath string) ([]CompiledTool, error) {
	if err := c.adjuster.Load(adjustmentsPath); err != nil {
		return nil, err
	}

	data, err := c.readSpec(ctx, specPath)
	if err != nil {
		var se *server.ServerError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, server.Wrap(err, server.ErrorTypeParse, fmt.Sprintf("failed to read spec %s", specPath))
	}
	return c.Compile(ctx, data)
}

// Compile parses spec and emits one tool per included operation, in sorted
// path order and GET, POST, PUT, DELETE, PATCH order within a path
func (c *OpenAPICompiler) Compile(ctx context.Context, spec []byte) ([]CompiledTool, error) {
	doc, format, resolveErr, err := decodeDocument(spec)
	if err != nil {
		return nil, err
	}
	if resolveErr != nil {
		c.logger.Warn().Err(resolveErr).Msg("some references could not be resolved, they will degrade to strings")
	}

	title := ""
	if doc.Info != nil {
		title = doc.Info.Title
	}
	c.logger.Info().
		Str("format", format).
		Str("openapi", doc.OpenAPI).
		Str("title", title).
		Msg("OpenAPI document parsed")

	if scheme := auth.ExtractAuthSchemeFromSpec(doc); scheme != nil {
		c.logger.Info().
			Str("scheme", scheme.Name).
			Str("type", scheme.Type).
			Str("in", scheme.Location).
			Msg("document declares a security scheme, configure endpoint.auth_type to match")
	}

	if n := c.adjuster.RoutesCount(); n > 0 {
		c.logger.Info().Int("routes", n).Msg("adjuster filters routes")
	}

	paths := doc.Paths.Map()
	if len(paths) == 0 {
		c.logger.Warn().Msg("no paths found in OpenAPI document")
		return nil, nil
	}

	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var tools []CompiledTool
	for _, path := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := paths[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			if !c.adjuster.ExistsInMcp(path, method) {
				c.logger.Debug().Str("method", method).Str("path", path).Msg("route filtered by adjustments")
				continue
			}
			tool, err := c.compileOperation(path, method, item, op)
			if err != nil {
				return nil, err
			}
			tools = append(tools, tool)
			c.logger.Debug().Str("tool", tool.Tool.Name).Msg("tool compiled")
		}
	}

	c.logger.Info().Int("tools", len(tools)).Msg("OpenAPI document compiled")
	return tools, nil
}

func (c *OpenAPICompiler) compileOperation(path, method string, item *openapi3.PathItem, op *openapi3.Operation) (CompiledTool, error) {
	description := op.Description
	if description == "" {
		description = op.Summary
	}
	description = c.adjuster.GetDescription(path, method, description)

	route := requester.RouteConfig{
		Path:        path,
		Method:      method,
		Description: description,
		Headers:     map[string]string{"Content-Type": mediaJSON},
		Parameters:  map[string]string{},
	}
	if accept := firstResponseContentType(op); accept != "" {
		route.Headers["Accept"] = accept
	}

	properties := map[string]any{}
	var required []string

	for _, name := range pathParams(path) {
		route.Parameters[name] = ""
		properties[name] = map[string]any{
			"type":        "string",
			"description": "Path parameter: " + name,
		}
		required = append(required, name)
	}

	for _, p := range mergedParameters(item, op) {
		switch p.In {
		case openapi3.ParameterInQuery:
			route.MethodConfig.QueryParams = append(route.MethodConfig.QueryParams, p.Name)
		case openapi3.ParameterInHeader:
			route.MethodConfig.HeaderParams = append(route.MethodConfig.HeaderParams, p.Name)
		default:
			continue
		}
		properties[p.Name] = c.visitor.parameterSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if method == "POST" || method == "PUT" || method == "PATCH" {
		if body := c.bodySchema(op, &route); body != nil {
			properties[BodyField] = body
			required = append(required, BodyField)
			route.MethodConfig.BodyField = BodyField
		}
	}

	input := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		input["required"] = dedupeSorted(required, properties)
	}
	ensureProperties(input)

	rawInput, err := json.Marshal(input)
	if err != nil {
		return CompiledTool{}, server.Wrap(err, server.ErrorTypeInternal,
			fmt.Sprintf("failed to encode input schema for %s %s", method, path))
	}

	tool := mcp.Tool{
		Name:           NormalizeToolName(path, method),
		Description:    toolDescription(method, path, description),
		RawInputSchema: rawInput,
		Annotations:    annotationsFor(method, op.Summary),
	}

	if output := c.outputSchema(op); output != nil {
		rawOutput, err := json.Marshal(output)
		if err != nil {
			return CompiledTool{}, server.Wrap(err, server.ErrorTypeInternal,
				fmt.Sprintf("failed to encode output schema for %s %s", method, path))
		}
		tool.RawOutputSchema = rawOutput
	}

	return CompiledTool{Route: route, Tool: tool}, nil
}

// pathParams lists the template variables of path. RFC 6570 parsing is
// tried first; names it rejects, such as ones with dashes, fall back to a
// plain brace scan.
func pathParams(path string) []string {
	if tmpl, err := uritemplate.New(path); err == nil {
		return tmpl.Varnames()
	}
	var names []string
	rest := path
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			break
		}
		if name := rest[open+1 : open+end]; name != "" {
			names = append(names, name)
		}
		rest = rest[open+end+1:]
	}
	return names
}

// mergedParameters returns query and header parameters, operation entries
// overriding path-item entries with the same name and location
func mergedParameters(item *openapi3.PathItem, op *openapi3.Operation) []*openapi3.Parameter {
	type key struct{ name, in string }
	index := map[key]int{}
	var out []*openapi3.Parameter

	add := func(params openapi3.Parameters) {
		for _, ref := range params {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			if p.In == openapi3.ParameterInPath {
				continue
			}
			k := key{p.Name, p.In}
			if i, ok := index[k]; ok {
				out[i] = p
				continue
			}
			index[k] = len(out)
			out = append(out, p)
		}
	}
	add(item.Parameters)
	add(op.Parameters)
	return out
}

// bodySchema builds the body property. JSON bodies win; form and multipart
// bodies switch the route content type and record their fields.
func (c *OpenAPICompiler) bodySchema(op *openapi3.Operation, route *requester.RouteConfig) map[string]any {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	content := op.RequestBody.Value.Content

	if mt := jsonMediaType(content); mt != nil && mt.Schema != nil {
		body := c.visitor.visit(mt.Schema, 0)
		describeBody(body, op.RequestBody.Value.Description)
		return body
	}

	for _, mediaType := range []string{mediaForm, mediaMultipart} {
		mt := content.Get(mediaType)
		if mt == nil || mt.Schema == nil {
			continue
		}
		body := c.visitor.visit(mt.Schema, 0)
		describeBody(body, op.RequestBody.Value.Description)
		route.Headers["Content-Type"] = mediaType

		if mt.Schema.Value != nil {
			fields := make([]string, 0, len(mt.Schema.Value.Properties))
			for name, prop := range mt.Schema.Value.Properties {
				fields = append(fields, name)
				if mediaType == mediaMultipart && isBinary(prop) {
					route.MethodConfig.FileUpload = &requester.FileUploadConfig{
						FieldName:    name,
						AllowedTypes: encodingTypes(mt, name),
					}
				}
			}
			sort.Strings(fields)
			route.MethodConfig.FormFields = fields
		}
		return body
	}

	c.logger.Debug().Str("path", route.Path).Msg("request body has no supported media type")
	return nil
}

func describeBody(body map[string]any, description string) {
	if _, ok := body["description"]; ok {
		return
	}
	if description == "" {
		description = "Request body"
	}
	body["description"] = description
}

// jsonMediaType finds application/json, with or without parameters, then
// any +json media type
func jsonMediaType(content openapi3.Content) *openapi3.MediaType {
	if mt := content.Get(mediaJSON); mt != nil {
		return mt
	}
	keys := sortedContentTypes(content)
	for _, k := range keys {
		if strings.HasSuffix(baseMediaType(k), "+json") {
			return content[k]
		}
	}
	return nil
}

func baseMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(strings.ToLower(mt))
}

func isBinary(ref *openapi3.SchemaRef) bool {
	if ref == nil || ref.Value == nil {
		return false
	}
	return ref.Value.Type.Is(openapi3.TypeString) && ref.Value.Format == "binary"
}

func encodingTypes(mt *openapi3.MediaType, field string) []string {
	enc, ok := mt.Encoding[field]
	if !ok || enc == nil || enc.ContentType == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(enc.ContentType, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// outputSchema describes the first 2xx response with a content schema
func (c *OpenAPICompiler) outputSchema(op *openapi3.Operation) map[string]any {
	responses := op.Responses.Map()
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		status, ok := successStatus(code)
		if !ok {
			continue
		}
		ref := responses[code]
		if ref == nil || ref.Value == nil {
			continue
		}
		schema := firstContentSchema(ref.Value.Content)
		if schema == nil {
			continue
		}
		out := c.visitor.visit(schema, 0)
		ensureProperties(out)
		if out["type"] == "object" {
			out["http_status"] = status
		}
		return out
	}
	return nil
}

func successStatus(code string) (int, bool) {
	if len(code) != 3 || code[0] != '2' {
		return 0, false
	}
	n := 0
	for _, r := range code {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func firstContentSchema(content openapi3.Content) *openapi3.SchemaRef {
	if mt := jsonMediaType(content); mt != nil && mt.Schema != nil {
		return mt.Schema
	}
	for _, k := range sortedContentTypes(content) {
		if mt := content[k]; mt != nil && mt.Schema != nil {
			return mt.Schema
		}
	}
	return nil
}

// firstResponseContentType is the Accept header value: the first content
// type of the first response that declares any
func firstResponseContentType(op *openapi3.Operation) string {
	responses := op.Responses.Map()
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		ref := responses[code]
		if ref == nil || ref.Value == nil {
			continue
		}
		if types := sortedContentTypes(ref.Value.Content); len(types) > 0 {
			return types[0]
		}
	}
	return ""
}

func sortedContentTypes(content openapi3.Content) []string {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func annotationsFor(method, summary string) mcp.ToolAnnotation {
	a := mcp.ToolAnnotation{
		Title:         strings.TrimSpace(summary),
		OpenWorldHint: mcp.ToBoolPtr(true),
	}
	switch method {
	case "GET":
		a.ReadOnlyHint = mcp.ToBoolPtr(true)
		a.IdempotentHint = mcp.ToBoolPtr(true)
	case "PUT":
		a.ReadOnlyHint = mcp.ToBoolPtr(false)
		a.IdempotentHint = mcp.ToBoolPtr(true)
	case "DELETE":
		a.ReadOnlyHint = mcp.ToBoolPtr(false)
		a.DestructiveHint = mcp.ToBoolPtr(true)
		a.IdempotentHint = mcp.ToBoolPtr(true)
	default:
		a.ReadOnlyHint = mcp.ToBoolPtr(false)
	}
	return a
}

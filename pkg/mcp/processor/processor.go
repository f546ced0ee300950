// Package processor answers JSON-RPC requests against the tool registry.
// It knows nothing about transports.
package processor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ubermorgenland/yas-mcp/pkg/mcp/protocol"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/registry"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

const defaultInstructions = "Each tool calls one operation of the backend REST API. " +
	"Path and query parameters are top-level arguments; request bodies go under \"body\"."

// Options configures a Processor
type Options struct {
	Name         string
	Version      string
	Instructions string
	// ValidateArguments checks tools/call arguments against the input schema
	ValidateArguments bool
}

// Processor handles MCP requests. It is safe for concurrent use.
type Processor struct {
	registry *registry.Registry
	info     mcp.Implementation
	instr    string
	validate bool
	logger   *log.Logger

	// compiled input schemas keyed by tool name
	schemas sync.Map
}

// cachedSchema is reused while the raw schema of a tool keeps its digest
type cachedSchema struct {
	sum    [sha256.Size]byte
	schema *gojsonschema.Schema
}

// New creates a Processor serving reg
func New(reg *registry.Registry, opts Options, logger *log.Logger) *Processor {
	instr := opts.Instructions
	if instr == "" {
		instr = defaultInstructions
	}
	return &Processor{
		registry: reg,
		info:     mcp.Implementation{Name: opts.Name, Version: opts.Version},
		instr:    instr,
		validate: opts.ValidateArguments,
		logger:   logger,
	}
}

// ProcessRequest answers req. Responses to notifications are returned too;
// callers decide whether to transmit them.
func (p *Processor) ProcessRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	if !req.IsNotification() {
		ctx = server.WithRequestID(ctx, string(req.ID))
	}
	p.logger.Debug().Str("method", req.Method).Msg("processing request")

	switch req.Method {
	case protocol.MethodInitialize:
		return protocol.NewResult(req.ID, p.initialize(req.Params))
	case protocol.MethodInitialized:
		return protocol.NewResult(req.ID, struct{}{})
	case protocol.MethodToolsList:
		return protocol.NewResult(req.ID, protocol.ListToolsResult{Tools: p.registry.ListMetadata()})
	case protocol.MethodToolsCall:
		return p.callTool(ctx, req)
	case protocol.MethodPing:
		return protocol.NewResult(req.ID, struct{}{})
	default:
		return protocol.NewErrorResponse(req.ID, protocol.CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (p *Processor) initialize(params json.RawMessage) protocol.InitializeResult {
	version := mcp.LATEST_PROTOCOL_VERSION
	var in struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(params) > 0 && json.Unmarshal(params, &in) == nil {
		for _, v := range mcp.ValidProtocolVersions {
			if v == in.ProtocolVersion {
				version = v
				break
			}
		}
	}
	return protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}},
		ServerInfo:      p.info,
		Instructions:    p.instr,
	}
}

func (p *Processor) callTool(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "Invalid params: missing tool name")
	}

	tool, ok := p.registry.Get(params.Name)
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.CodeMethodNotFound, "Tool not found: "+params.Name)
	}

	args := params.Arguments
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		args = json.RawMessage("{}")
	} else if trimmed[0] != '{' {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "Invalid params: arguments must be an object")
	}

	if p.validate {
		if problems, err := p.validateArguments(params.Name, tool, args); err != nil {
			p.logger.Warn().Err(err).Str("tool", params.Name).Msg("input schema does not compile, skipping validation")
		} else if len(problems) > 0 {
			resp := protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams,
				"Invalid arguments: "+strings.Join(problems, "; "))
			resp.Error.Data = problems
			return resp
		}
	}

	p.logger.Info().Str("tool", params.Name).Msg("calling tool")
	httpResp, err := tool.Executor.Invoke(ctx, args)
	if err != nil {
		var se *server.ServerError
		if errors.As(err, &se) {
			se.LogError(p.logger)
		} else {
			p.logger.Error().Err(err).Str("tool", params.Name).Msg("tool execution failed")
		}
		return protocol.NewErrorResponse(req.ID, protocol.CodeExecution, err.Error())
	}

	isError := httpResp.StatusCode >= 400
	if isError {
		p.logger.Warn().Str("tool", params.Name).Int("status", httpResp.StatusCode).Msg("backend returned an error status")
	}
	return protocol.NewResult(req.ID, protocol.NewTextResult(string(httpResp.Body), isError))
}

// validateArguments returns the schema violations of args, if any
func (p *Processor) validateArguments(name string, tool *registry.RegisteredTool, args json.RawMessage) ([]string, error) {
	schema, err := p.inputSchema(name, tool)
	if err != nil {
		return nil, err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}, nil
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}

// inputSchema compiles the input schema of tool. One entry is kept per tool
// name; a reload that changes the schema replaces it.
func (p *Processor) inputSchema(name string, tool *registry.RegisteredTool) (*gojsonschema.Schema, error) {
	raw := tool.Metadata.RawInputSchema
	if raw == nil {
		var err error
		if raw, err = json.Marshal(tool.Metadata.InputSchema); err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(raw)
	if v, ok := p.schemas.Load(name); ok {
		if cached := v.(cachedSchema); cached.sum == sum {
			return cached.schema, nil
		}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	p.schemas.Store(name, cachedSchema{sum: sum, schema: schema})
	return schema, nil
}

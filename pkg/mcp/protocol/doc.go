// Package protocol defines the JSON-RPC 2.0 envelopes and MCP result types
// exchanged by yas-mcp.
//
// # Core Concepts
//
// Every message is a JSON-RPC 2.0 request or response. A request without an
// id (or with a null id) is a notification and is never answered.
//
// The server implements the tools subset of MCP:
//   - initialize and notifications/initialized
//   - tools/list
//   - tools/call
//   - ping
//
// # Tool Types
//
// Tool metadata and content blocks reuse the mcp-go types (mcp.Tool,
// mcp.TextContent) so the wire shape matches other MCP implementations.
// ToolResult is defined here because isError must always be serialized.
//
// # Error Codes
//
// Standard JSON-RPC codes are used for protocol failures; CodeExecution
// (-32000) reports a failed backend call.
//
// For the request processor, see the processor package. For transports and
// the message loop, see the transport package.
package protocol

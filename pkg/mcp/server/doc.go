// Package server serves the MCP processor over HTTP.
//
// Three surfaces share one processor:
//
//   - POST /mcp: one JSON-RPC message per request, answered inline.
//   - GET /sse plus POST /message?sessionId=: a Server-Sent Events stream
//     that receives the responses to messages posted for its session.
//   - DELETE /session: ends a session named by the x-session-id header.
//
// /health and, when a reload function is configured, /reload are served
// alongside.
//
//	srv := server.NewHTTPServer(proc, logger,
//		server.WithToolCount(reg.Count),
//		server.WithHeartbeatInterval(15*time.Second))
//	go srv.Start(":3000")
//	defer srv.Shutdown(ctx)
package server

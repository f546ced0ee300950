// Package transport moves JSON-RPC messages between MCP clients and the
// processor. Transports frame bytes; the Runner drives the message loop.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by ReadMessage once the peer has gone away
var ErrClosed = errors.New("transport closed")

// Transport reads and writes whole JSON-RPC messages
type Transport interface {
	// ReadMessage blocks for the next message. It returns ErrClosed at end
	// of input.
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Flush() error
}

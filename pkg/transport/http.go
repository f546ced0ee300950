package transport

import (
	"context"
	"sync"
)

// HTTPTransport carries exactly one request and at most one response, the
// shape of a single POST exchange
type HTTPTransport struct {
	mu       sync.Mutex
	request  []byte
	consumed bool
	response []byte
}

// NewHTTPTransport wraps one request body
func NewHTTPTransport(body []byte) *HTTPTransport {
	return &HTTPTransport{request: body}
}

// ReadMessage returns the request once, then ErrClosed
func (t *HTTPTransport) ReadMessage(context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return nil, ErrClosed
	}
	t.consumed = true
	return t.request, nil
}

// WriteMessage stores the response
func (t *HTTPTransport) WriteMessage(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.response = append([]byte(nil), data...)
	return nil
}

// Flush is a no-op
func (t *HTTPTransport) Flush() error { return nil }

// Response returns the written response, nil for notifications
func (t *HTTPTransport) Response() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response
}

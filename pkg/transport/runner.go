package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/mcp/processor"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/protocol"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// Runner pumps messages from a transport through the processor
type Runner struct {
	transport Transport
	processor *processor.Processor
	logger    *log.Logger
}

// NewRunner creates a runner over t
func NewRunner(t Transport, p *processor.Processor, logger *log.Logger) *Runner {
	return &Runner{transport: t, processor: p, logger: logger}
}

// Run serves until the transport closes or ctx is cancelled. Cancellation
// is observed between messages; a call in flight runs to completion.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Debug().Msg("transport runner started")
	for {
		if ctx.Err() != nil {
			r.logger.Info().Msg("transport runner stopping")
			return nil
		}

		data, err := r.transport.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				r.logger.Debug().Msg("transport closed")
				return nil
			}
			if ctx.Err() != nil {
				r.logger.Info().Msg("transport runner stopping")
				return nil
			}
			return server.Wrap(err, server.ErrorTypeNetwork, "failed to read message")
		}

		out, err := r.Handle(context.WithoutCancel(ctx), data)
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		if err := r.transport.WriteMessage(ctx, out); err != nil {
			return server.Wrap(err, server.ErrorTypeNetwork, "failed to write message")
		}
		if err := r.transport.Flush(); err != nil {
			return server.Wrap(err, server.ErrorTypeNetwork, "failed to flush transport")
		}
	}
}

// Handle processes one raw message and returns the encoded reply, or nil
// when nothing must be sent back
func (r *Runner) Handle(ctx context.Context, data []byte) ([]byte, error) {
	return HandleMessage(ctx, r.processor, r.logger, data)
}

// HandleMessage decodes data, processes it and encodes the reply. Parse
// failures produce a -32700 reply with a null id; notifications produce nil.
func HandleMessage(ctx context.Context, p *processor.Processor, logger *log.Logger, data []byte) ([]byte, error) {
	req, err := protocol.ParseRequest(data)
	var resp *protocol.Response
	switch {
	case errors.Is(err, protocol.ErrEmptyMethod):
		logger.Warn().Msg("message without method")
		resp = protocol.NewErrorResponse(requestID(data), protocol.CodeInvalidRequest, "Invalid Request: missing method")
	case err != nil:
		logger.Warn().Err(err).Msg("failed to parse message")
		resp = protocol.ParseErrorResponse(err)
	default:
		resp = p.ProcessRequest(ctx, req)
		if req.IsNotification() {
			return nil, nil
		}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeInternal, "failed to encode response")
	}
	return out, nil
}

// requestID salvages the id of a well-formed message that lacks a method
func requestID(data []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(data, &probe) != nil {
		return nil
	}
	return probe.ID
}

// Exchange runs a single request through a fresh HTTPTransport and returns
// the reply, nil for notifications
func Exchange(ctx context.Context, p *processor.Processor, logger *log.Logger, body []byte) ([]byte, error) {
	t := NewHTTPTransport(body)
	if err := NewRunner(t, p, logger).Run(ctx); err != nil {
		return nil, err
	}
	return t.Response(), nil
}

package gemini

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/transport"
)

// Recorder appends every message crossing a transport to a JSONL
// transcript. One Recorder may wrap many transports.
type Recorder struct {
	mu     sync.Mutex
	out    io.Writer
	logger *log.Logger
}

// NewRecorder writes entries to out
func NewRecorder(out io.Writer, logger *log.Logger) *Recorder {
	return &Recorder{out: out, logger: logger}
}

// Record appends one entry. Messages that are not JSON objects, such as
// malformed input, are stored under a "raw" key.
func (r *Recorder) Record(dir Direction, msg []byte) {
	entry := Entry{Direction: dir, Timestamp: now(), Message: msg}
	line, err := json.Marshal(entry)
	if err != nil {
		raw, _ := json.Marshal(map[string]string{"raw": string(msg)})
		entry.Message = raw
		if line, err = json.Marshal(entry); err != nil {
			r.logger.Warn().Err(err).Msg("failed to encode transcript entry")
			return
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(append(line, '\n')); err != nil {
		r.logger.Warn().Err(err).Msg("failed to write transcript entry")
	}
}

// Wrap decorates t so its traffic is recorded
func (r *Recorder) Wrap(t transport.Transport) transport.Transport {
	return &recordingTransport{Transport: t, rec: r}
}

type recordingTransport struct {
	transport.Transport
	rec *Recorder
}

func (t *recordingTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	data, err := t.Transport.ReadMessage(ctx)
	if err == nil {
		t.rec.Record(ClientToServer, data)
	}
	return data, err
}

func (t *recordingTransport) WriteMessage(ctx context.Context, data []byte) error {
	t.rec.Record(ServerToClient, data)
	return t.Transport.WriteMessage(ctx, data)
}

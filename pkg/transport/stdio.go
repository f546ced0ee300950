package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/ubermorgenland/yas-mcp/pkg/memory"
)

type readResult struct {
	line []byte
	err  error
}

// StdioTransport speaks line-delimited JSON over a reader/writer pair,
// normally stdin and stdout
type StdioTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer

	startOnce sync.Once
	lines     chan readResult
	wmu       sync.Mutex
}

// NewStdioTransport uses the process stdin and stdout
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWith(os.Stdin, os.Stdout)
}

// NewStdioTransportWith uses r and w
func NewStdioTransportWith(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
		lines:  make(chan readResult),
	}
}

// readLoop owns the reader. Blocking reads cannot be interrupted, so they
// run here and ReadMessage selects on the context.
func (t *StdioTransport) readLoop() {
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			t.lines <- readResult{line: line}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			t.lines <- readResult{err: err}
			close(t.lines)
			return
		}
	}
}

// ReadMessage returns the next non-blank line without its terminator
func (t *StdioTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	t.startOnce.Do(func() { go t.readLoop() })
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-t.lines:
			if !ok {
				return nil, ErrClosed
			}
			if res.err != nil {
				return nil, res.err
			}
			line := bytes.TrimSpace(res.line)
			if len(line) == 0 {
				continue
			}
			return line, nil
		}
	}
}

// WriteMessage writes data followed by a newline
func (t *StdioTransport) WriteMessage(_ context.Context, data []byte) error {
	buf := memory.Default.Get()
	defer memory.Default.Put(buf)
	buf.Write(bytes.TrimRight(data, "\r\n"))
	buf.WriteByte('\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.writer.Write(buf.Bytes())
	return err
}

// Flush pushes buffered output to the writer
func (t *StdioTransport) Flush() error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.writer.Flush()
}

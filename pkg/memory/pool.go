// Package memory provides pooled buffers for the message and response paths.
package memory

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// maxPooledCap keeps oversized buffers out of the pool
const maxPooledCap = 64 * 1024

// ErrTooLarge is returned when a read exceeds its limit
var ErrTooLarge = errors.New("payload exceeds size limit")

// BufferPool manages a pool of reusable bytes.Buffer instances
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
	}
}

// Get retrieves an empty buffer from the pool
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool for reuse
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() <= maxPooledCap {
		bp.pool.Put(buf)
	}
}

// ReadAll reads r through a pooled buffer and returns an owned copy.
// A positive limit caps the number of bytes read.
func (bp *BufferPool) ReadAll(r io.Reader, limit int64) ([]byte, error) {
	buf := bp.Get()
	defer bp.Put(buf)

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	if _, err := buf.ReadFrom(src); err != nil {
		return nil, err
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, ErrTooLarge
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Default is the process-wide pool
var Default = NewBufferPool()

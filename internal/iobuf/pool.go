// Package iobuf provides shared buffer pools for control records and
// rendered section output.
package iobuf

import (
	"bytes"
	"sync"
)

// Size is 4096 to align with PIPE_BUF on Linux for atomic pipe writes.
// A control record must fit in one atomic write to the control fifo.
// See: http://man7.org/linux/man-pages/man7/pipe.7.html
const Size = 4096

// maxRetained caps the capacity of render buffers returned to the pool so a
// single huge memory map does not pin memory forever.
const maxRetained = 1 << 20

var pool = sync.Pool{
	New: func() any {
		buf := make([]byte, Size)
		return &buf
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, Size))
	},
}

// Get returns a pooled 4096-byte buffer.
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.
func Put(buf *[]byte) {
	if buf == nil {
		return
	}
	pool.Put(buf)
}

// GetBuffer returns an empty pooled bytes.Buffer.
func GetBuffer() *bytes.Buffer {
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// PutBuffer returns a render buffer to the pool.
func PutBuffer(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxRetained {
		return
	}
	bufferPool.Put(b)
}

// Package sink provides the output files section exporters write into.
package sink

import (
	"fmt"
	"io"
	"os"
)

// DefaultPerm is the mode of newly created section files.
const DefaultPerm os.FileMode = 0o644

// File is an open output file addressed by explicit offsets.
// *os.File satisfies it.
type File interface {
	WriteAt(p []byte, off int64) (int, error)
	Close() error
	Name() string
}

// WriteError reports a failure of the sink itself, as opposed to a failure
// of the exporter producing the data.
type WriteError struct {
	Op   string // "open" or "write"
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FileSink creates or truncates regular files.
type FileSink struct {
	Perm os.FileMode
}

// New returns a FileSink using DefaultPerm.
func New() *FileSink {
	return &FileSink{Perm: DefaultPerm}
}

// Open creates path for writing, truncating any previous dump.
func (s *FileSink) Open(path string) (File, error) {
	perm := s.Perm
	if perm == 0 {
		perm = DefaultPerm
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, &WriteError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

// Writer adapts a File to io.Writer, advancing a caller owned running offset
// after every write.
type Writer struct {
	f   File
	off *int64
}

// NewWriter returns a Writer positioned at *off.
func NewWriter(f File, off *int64) *Writer {
	return &Writer{f: f, off: off}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, *w.off)
	*w.off += int64(n)
	if err != nil {
		return n, &WriteError{Op: "write", Path: w.f.Name(), Err: err}
	}
	if n < len(p) {
		return n, &WriteError{Op: "write", Path: w.f.Name(), Err: io.ErrShortWrite}
	}
	return n, nil
}

// Package export renders process state into the section files of a dump.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/containerd/log"

	"github.com/spin-stack/procsnap/internal/iobuf"
	"github.com/spin-stack/procsnap/internal/sink"
)

type field struct {
	key   string
	value any
}

// writeFields renders key: value lines with the values aligned.
func writeFields(w io.Writer, fields []field) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.key))
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%-*s %v\n", width+1, f.key+":", f.value)
	}
}

// flush writes buf to f at *off and returns the number of bytes written.
func flush(ctx context.Context, buf *bytes.Buffer, f sink.File, off *int64) (int64, error) {
	start := *off
	if _, err := buf.WriteTo(sink.NewWriter(f, off)); err != nil {
		return *off - start, err
	}
	log.G(ctx).WithField("path", f.Name()).WithField("bytes", *off-start).Debug("section written")
	return *off - start, nil
}

func render(ctx context.Context, f sink.File, off *int64, fill func(*bytes.Buffer) error) (int64, error) {
	buf := iobuf.GetBuffer()
	defer iobuf.PutBuffer(buf)

	if err := fill(buf); err != nil {
		return 0, err
	}
	return flush(ctx, buf, f, off)
}

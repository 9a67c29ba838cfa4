package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/containerd/fifo"
	"github.com/containerd/log"

	"github.com/spin-stack/procsnap/internal/iobuf"
	"github.com/spin-stack/procsnap/internal/snapshot"
)

// DefaultPerm is the mode of a newly created control fifo: owner write,
// group write, no read access for anyone but the owner.
const DefaultPerm os.FileMode = 0o620

// ShowMessage is returned to anyone reading the control channel.
const ShowMessage = "read operation not supported, write a request record to trigger a snapshot\n"

// Handler receives every well formed request, one at a time.
type Handler func(ctx context.Context, req snapshot.OperationRequest)

// Channel is the write-only request endpoint served by the daemon.
type Channel struct {
	path    string
	perm    os.FileMode
	handler Handler
}

// NewChannel returns a channel on the fifo at path.
func NewChannel(path string, handler Handler) *Channel {
	return &Channel{
		path:    path,
		perm:    DefaultPerm,
		handler: handler,
	}
}

// Path returns the fifo path.
func (c *Channel) Path() string {
	return c.path
}

// Show returns the fixed reply for read attempts.
func (c *Channel) Show() string {
	return ShowMessage
}

// Serve creates the fifo if needed and dispatches records until ctx is done.
// The fifo is opened read-write so the reader never sees EOF when a writer
// hangs up. Malformed records are logged and dropped.
func (c *Channel) Serve(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("control channel has no handler")
	}
	logger := log.G(ctx).WithField("path", c.path)

	f, err := fifo.OpenFifo(ctx, c.path, syscall.O_RDWR|syscall.O_CREAT, c.perm)
	if err != nil {
		return fmt.Errorf("failed to open control fifo %s: %w", c.path, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = f.Close()
	}()

	logger.Info("control channel ready")

	bufp := iobuf.Get()
	defer iobuf.Put(bufp)
	rec := (*bufp)[:RecordSize]

	for {
		if _, err := io.ReadFull(f, rec); err != nil {
			if ctx.Err() != nil {
				logger.Debug("control channel closed")
				return nil
			}
			return fmt.Errorf("failed to read control record: %w", err)
		}

		req, err := Decode(rec)
		if err != nil {
			logger.WithError(err).Warn("dropping malformed control record")
			continue
		}

		log.G(ctx).WithFields(log.Fields{
			"cmd":       fmt.Sprintf("%#x", uint32(req.Command)),
			"pid":       req.TargetID,
			"directory": req.OutputDirectory,
		}).Debug("control request")

		c.handler(ctx, req)
	}
}

// Send writes one request record to the fifo at path. It blocks until a
// reader has the fifo open or ctx is done.
func Send(ctx context.Context, path string, req snapshot.OperationRequest) error {
	bufp := iobuf.Get()
	defer iobuf.Put(bufp)
	rec := (*bufp)[:RecordSize]
	if err := EncodeTo(rec, req); err != nil {
		return err
	}

	f, err := fifo.OpenFifo(ctx, path, syscall.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open control fifo %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	n, err := f.Write(rec)
	if err != nil {
		return fmt.Errorf("failed to write control record: %w", err)
	}
	if n != RecordSize {
		return fmt.Errorf("short control record write: %d of %d bytes: %w", n, RecordSize, io.ErrShortWrite)
	}
	return nil
}

//go:build linux

package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/containerd/log"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/snapshot"
)

// ErrNotStopped indicates the target did not reach the stopped state in time.
var ErrNotStopped = errors.New("target did not stop")

// ErrStillStopped indicates the target did not leave the stopped state after SIGCONT.
var ErrStillStopped = errors.New("target still stopped after resume")

// Target is a resolved process. It holds a pidfd until Close.
type Target struct {
	pid  int
	proc procfs.Proc
	fs   procfs.FS
	sig  Signaler
	reg  *Registry
}

var _ snapshot.Target = (*Target)(nil)

// PID returns the process id.
func (t *Target) PID() int {
	return t.pid
}

// Proc returns the procfs handle for exporters.
func (t *Target) Proc() procfs.Proc {
	return t.proc
}

// Close releases the pidfd.
func (t *Target) Close() error {
	return t.sig.Close()
}

// Quiesce stops the target with SIGSTOP and waits until procfs reports
// every thread stopped. A target that was already stopped is left exactly
// as found and its Restorer does nothing.
//
// This is advisory: it does not pin memory and does not prevent the process
// from being killed while stopped.
func (t *Target) Quiesce(ctx context.Context) (snapshot.Restorer, error) {
	logger := log.G(ctx).WithField("pid", t.pid)

	st, err := t.proc.Stat()
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if stopped(st.State) {
		logger.WithField("state", st.State).Debug("target already stopped, leaving it as found")
		return noopRestorer{}, nil
	}

	if err := t.sig.Signal(unix.SIGSTOP); err != nil {
		return nil, fmt.Errorf("SIGSTOP: %w", err)
	}
	r := &restorer{t: t}

	if err := t.waitState(ctx, t.reg.quiesceTimeout, t.allStopped, ErrNotStopped); err != nil {
		if rerr := r.Restore(context.WithoutCancel(ctx)); rerr != nil {
			logger.WithError(rerr).Error("failed to resume target after failed quiesce")
		}
		return nil, err
	}

	logger.Debug("target quiesced")
	return r, nil
}

// waitState polls /proc/<pid>/stat until want holds.
func (t *Target) waitState(ctx context.Context, timeout time.Duration, want func(string) bool, errTimeout error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.reg.pollInterval
	b.MaxInterval = max(t.reg.pollInterval, timeout/8)
	b.MaxElapsedTime = timeout
	b.Reset()

	var last string
	op := func() error {
		st, err := t.proc.Stat()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("pid %d: %w: %v", t.pid, ErrNoProcess, err))
		}
		last = st.State
		if exited(st.State) {
			return backoff.Permanent(fmt.Errorf("pid %d exited: %w", t.pid, ErrNoProcess))
		}
		if want(st.State) {
			return nil
		}
		return fmt.Errorf("pid %d in state %s", t.pid, st.State)
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrNoProcess) {
			return err
		}
		return fmt.Errorf("%w within %s (last state %q): %v", errTimeout, timeout, last, err)
	}
	return nil
}

// allStopped reports whether the leader state and every thread are stopped.
// Group stop reaches threads one at a time, so the leader can report T first.
func (t *Target) allStopped(state string) bool {
	if !stopped(state) {
		return false
	}
	threads, err := t.fs.AllThreads(t.pid)
	if err != nil {
		return false
	}
	for _, th := range threads {
		st, err := th.Stat()
		if err != nil {
			// The thread exited between listing and reading.
			continue
		}
		if !stopped(st.State) && !exited(st.State) {
			return false
		}
	}
	return true
}

type noopRestorer struct{}

func (noopRestorer) Restore(context.Context) error { return nil }

// restorer sends SIGCONT exactly once.
type restorer struct {
	t    *Target
	once sync.Once
	err  error
}

func (r *restorer) Restore(ctx context.Context) error {
	r.once.Do(func() {
		r.err = r.restore(ctx)
	})
	return r.err
}

func (r *restorer) restore(ctx context.Context) error {
	logger := log.G(ctx).WithField("pid", r.t.pid)

	if err := r.t.sig.Signal(unix.SIGCONT); err != nil {
		if errors.Is(err, unix.ESRCH) {
			logger.Warn("target exited while quiesced")
			return nil
		}
		return fmt.Errorf("SIGCONT: %w", err)
	}

	running := func(state string) bool { return !stopped(state) }
	if err := r.t.waitState(ctx, r.t.reg.restoreTimeout, running, ErrStillStopped); err != nil {
		if errors.Is(err, ErrNoProcess) {
			logger.Warn("target exited while resuming")
			return nil
		}
		return err
	}

	logger.Debug("target restored")
	return nil
}

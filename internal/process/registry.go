//go:build linux

// Package process resolves process ids against procfs and freezes resolved
// processes with SIGSTOP while they are inspected.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/prometheus/procfs"

	"github.com/spin-stack/procsnap/internal/snapshot"
)

// ErrNoProcess indicates the id does not name a live process.
var ErrNoProcess = fmt.Errorf("no such process: %w", errdefs.ErrNotFound)

// ErrSelf indicates the id names the calling process, which cannot stop itself.
var ErrSelf = fmt.Errorf("refusing to quiesce the calling process: %w", errdefs.ErrInvalidArgument)

// Registry is the process registry. Lookups share a read guard; Remount
// takes it exclusively.
type Registry struct {
	mu   sync.RWMutex
	fs   procfs.FS
	root string

	open           OpenSignaler
	self           int
	quiesceTimeout time.Duration
	pollInterval   time.Duration
	restoreTimeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithSignaler replaces the pidfd based signaler.
func WithSignaler(open OpenSignaler) Option {
	return func(r *Registry) {
		r.open = open
	}
}

// WithTimeouts sets the stop wait, the initial poll interval and the
// resume wait.
func WithTimeouts(quiesce, poll, restore time.Duration) Option {
	return func(r *Registry) {
		r.quiesceTimeout = quiesce
		r.pollInterval = poll
		r.restoreTimeout = restore
	}
}

// NewRegistry opens the procfs mounted at root.
func NewRegistry(root string, opts ...Option) (*Registry, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", root, err)
	}
	r := &Registry{
		fs:             fs,
		root:           root,
		open:           OpenPidfd,
		self:           os.Getpid(),
		quiesceTimeout: 2 * time.Second,
		pollInterval:   10 * time.Millisecond,
		restoreTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Root returns the procfs mount point in use.
func (r *Registry) Root() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// Acquire takes the shared registry guard.
func (r *Registry) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var once sync.Once
	return func() { once.Do(r.mu.RUnlock) }, nil
}

// Remount points the registry at a different procfs mount. It waits for
// every outstanding guard, so it never changes the view under an operation.
func (r *Registry) Remount(root string) error {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return fmt.Errorf("failed to open procfs at %s: %w", root, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.root
	r.fs = fs
	r.root = root
	log.L.WithField("from", old).WithField("to", root).Info("process registry remounted")
	return nil
}

// Resolve maps id to a live process and opens a signal handle on it.
// Callers must hold the guard returned by Acquire.
func (r *Registry) Resolve(ctx context.Context, id int) (snapshot.Target, error) {
	if id <= 0 {
		return nil, fmt.Errorf("pid %d: %w", id, ErrNoProcess)
	}
	if id == r.self {
		return nil, ErrSelf
	}

	p, err := r.fs.Proc(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("pid %d: %w", id, ErrNoProcess)
		}
		return nil, fmt.Errorf("pid %d: %w", id, err)
	}

	// The directory can outlive the process briefly; a zombie has no
	// state worth dumping.
	st, err := p.Stat()
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w: %v", id, ErrNoProcess, err)
	}
	if exited(st.State) {
		return nil, fmt.Errorf("pid %d exited (state %s): %w", id, st.State, ErrNoProcess)
	}

	sig, err := r.open(id)
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", id, err)
	}

	log.G(ctx).WithField("pid", id).WithField("comm", st.Comm).Debug("resolved target")
	return &Target{
		pid:  id,
		proc: p,
		fs:   r.fs,
		sig:  sig,
		reg:  r,
	}, nil
}

func exited(state string) bool {
	return state == "Z" || state == "X" || state == "x"
}

func stopped(state string) bool {
	return state == "T" || state == "t"
}

//go:build linux

package process

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signaler delivers signals to one resolved process.
type Signaler interface {
	Signal(sig syscall.Signal) error
	Close() error
}

// OpenSignaler opens a Signaler bound to pid.
type OpenSignaler func(pid int) (Signaler, error)

// pidfd signals through a process file descriptor, so a recycled pid can
// never receive a signal meant for the resolved process.
type pidfd struct {
	fd   int
	once sync.Once
	err  error
}

// OpenPidfd opens a pidfd for pid.
func OpenPidfd(pid int) (Signaler, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil, ErrNoProcess
		}
		return nil, fmt.Errorf("pidfd_open: %w", err)
	}
	return &pidfd{fd: fd}, nil
}

func (p *pidfd) Signal(sig syscall.Signal) error {
	return unix.PidfdSendSignal(p.fd, sig, nil, 0)
}

func (p *pidfd) Close() error {
	p.once.Do(func() {
		p.err = unix.Close(p.fd)
	})
	return p.err
}

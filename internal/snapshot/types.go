// Package snapshot coordinates point-in-time dumps of a live process.
//
// A Coordinator admits at most one operation at a time. An admitted
// operation takes the shared registry guard, resolves the target, freezes it,
// runs the requested section exporters in canonical order and then restores
// the target, releases the guard and reopens admission on every exit path.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/spin-stack/procsnap/internal/sink"
)

// Command is the bitmask of requested sections.
type Command uint32

const (
	CommandControlBlock Command = 0x1
	CommandMemoryMap    Command = 0x2

	// commandKnown covers every bit bound to a section.
	commandKnown = CommandControlBlock | CommandMemoryMap
)

// Has reports whether every bit of c2 is set in c.
func (c Command) Has(c2 Command) bool {
	return c2 != 0 && c&c2 == c2
}

// Reserved returns the bits that do not map to any section.
func (c Command) Reserved() Command {
	return c &^ commandKnown
}

func (c Command) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, s := range Sections() {
		if c.Has(s.Bit()) {
			parts = append(parts, s.String())
		}
	}
	if r := c.Reserved(); r != 0 {
		parts = append(parts, fmt.Sprintf("reserved(0x%x)", uint32(r)))
	}
	return strings.Join(parts, "|")
}

// OperationRequest is one decoded snapshot request. It is a value type and
// is never modified after decoding.
type OperationRequest struct {
	Command         Command
	TargetID        int32
	OutputDirectory string
}

// Registry resolves process ids while a shared guard is held.
type Registry interface {
	// Acquire takes the shared registry guard. The returned func releases it
	// and is safe to call more than once.
	Acquire(ctx context.Context) (release func(), err error)
	// Resolve maps id to a live process. Callers must hold the guard.
	Resolve(ctx context.Context, id int) (Target, error)
}

// Target is a resolved live process.
type Target interface {
	PID() int
	// Proc is the handle exporters read from.
	Proc() procfs.Proc
	// Quiesce marks the process non-schedulable until the returned
	// Restorer runs.
	Quiesce(ctx context.Context) (Restorer, error)
	// Close releases the resolution handle.
	Close() error
}

// Restorer undoes a Quiesce. Restore is idempotent; only the first call has
// an effect and later calls return the first result.
type Restorer interface {
	Restore(ctx context.Context) error
}

// Exporter serializes one section of a quiesced process into f starting at
// *off, advancing *off past what it wrote. It must not retain p.
type Exporter interface {
	Export(ctx context.Context, p procfs.Proc, f sink.File, off *int64) (int64, error)
}

// Sink opens output files.
type Sink interface {
	Open(path string) (sink.File, error)
}

// Recorder persists finished operations.
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

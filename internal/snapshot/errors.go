package snapshot

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Sentinel errors for snapshot failures.
// Use errors.Is() to check for these error types.
var (
	// ErrBusy indicates another operation is in flight. Retry later.
	ErrBusy = fmt.Errorf("snapshot in progress: %w", errdefs.ErrUnavailable)

	// ErrInvalidTarget indicates the target id does not resolve to a live process.
	ErrInvalidTarget = fmt.Errorf("invalid target: %w", errdefs.ErrNotFound)

	// ErrNoExporter indicates a requested section has no exporter bound.
	ErrNoExporter = fmt.Errorf("no exporter bound: %w", errdefs.ErrNotImplemented)

	// ErrQuiesce indicates the target could not be frozen.
	ErrQuiesce = errors.New("quiesce failed")

	// ErrRestore indicates the target could not be made schedulable again.
	ErrRestore = errors.New("restore failed")

	// ErrInvalidStateTransition indicates an invalid admission gate transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// ErrorKind classifies a section failure.
type ErrorKind string

const (
	// KindIO is a sink open or write failure.
	KindIO ErrorKind = "io"
	// KindExport is a failure of the exporter itself.
	KindExport ErrorKind = "export"
)

// SectionError records why one section failed.
type SectionError struct {
	Section Section
	Kind    ErrorKind
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %s %s failure: %v", e.Section, e.Kind, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// Phase identifies the stage of an operation where a fatal error occurred.
type Phase string

const (
	PhaseGuard   Phase = "registry_guard"
	PhaseResolve Phase = "resolve"
	PhaseQuiesce Phase = "quiesce"
	PhaseRestore Phase = "restore"
	PhasePanic   Phase = "panic"
)

// PhaseError is a failure outside the per-section work.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("snapshot failed at %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError creates a new phase error.
func NewPhaseError(phase Phase, err error) *PhaseError {
	return &PhaseError{Phase: phase, Err: err}
}

// StateTransitionError represents an invalid admission gate transition.
type StateTransitionError struct {
	From    string
	To      string
	Current string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s (current state: %s)", e.From, e.To, e.Current)
}

func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// NewStateTransitionError creates a new state transition error.
func NewStateTransitionError(from, to, current string) *StateTransitionError {
	return &StateTransitionError{From: from, To: to, Current: current}
}

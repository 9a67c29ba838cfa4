package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of Submit.
type Status int

const (
	// StatusCompleted means every requested section was written.
	StatusCompleted Status = iota
	// StatusRejectedBusy means another operation was in flight.
	StatusRejectedBusy
	// StatusRejectedInvalidTarget means the target did not resolve.
	StatusRejectedInvalidTarget
	// StatusPartialFailure means at least one requested section failed.
	StatusPartialFailure
	// StatusFailed means quiescence or restoration failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusRejectedBusy:
		return "rejected_busy"
	case StatusRejectedInvalidTarget:
		return "rejected_invalid_target"
	case StatusPartialFailure:
		return "partial_failure"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SectionResult is the outcome of one attempted section.
type SectionResult struct {
	Section Section
	Path    string
	Bytes   int64
	Err     *SectionError
}

// OK reports whether the section was written.
func (r SectionResult) OK() bool {
	return r.Err == nil
}

// Result is returned by every Submit call.
type Result struct {
	Status   Status
	Request  OperationRequest
	PID      int
	Sections []SectionResult // attempted sections, canonical order
	Err      error
	Started  time.Time
	Duration time.Duration
}

// FailedSections names the sections that failed.
func (r *Result) FailedSections() []Section {
	var out []Section
	for _, s := range r.Sections {
		if !s.OK() {
			out = append(out, s.Section)
		}
	}
	return out
}

// SucceededSections names the sections that were written.
func (r *Result) SucceededSections() []Section {
	var out []Section
	for _, s := range r.Sections {
		if s.OK() {
			out = append(out, s.Section)
		}
	}
	return out
}

// HasErrors returns true for any status other than StatusCompleted.
func (r *Result) HasErrors() bool {
	return r.Status != StatusCompleted
}

// Error implements the error interface.
// Returns a combined message listing the fatal error and failed sections.
//
//nolint:errname // Result is a result container that can be used as an error
func (r *Result) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := []string{r.Status.String()}
	if r.Err != nil {
		msgs = append(msgs, r.Err.Error())
	}
	for _, s := range r.Sections {
		if s.Err != nil {
			msgs = append(msgs, s.Err.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

// AsError returns the Result as an error, or nil on full success.
func (r *Result) AsError() error {
	if !r.HasErrors() {
		return nil
	}
	return r
}

// Unwrap exposes the fatal error and every section error to errors.Is/As.
func (r *Result) Unwrap() []error {
	var errs []error
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	for _, s := range r.Sections {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// sectionErr builds the per-section error.
func sectionErr(s Section, kind ErrorKind, err error) *SectionError {
	return &SectionError{Section: s, Kind: kind, Err: err}
}

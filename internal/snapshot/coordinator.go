package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/log"

	"github.com/spin-stack/procsnap/internal/paths"
	"github.com/spin-stack/procsnap/internal/sink"
)

// Coordinator is the single-flight snapshot engine. It is safe for
// concurrent use; concurrent callers race only on admission.
type Coordinator struct {
	state     *StateMachine
	registry  Registry
	sink      Sink
	exporters map[Section]Exporter
	recorder  Recorder
	metrics   MetricsProvider
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExporter binds the exporter for a section.
func WithExporter(s Section, e Exporter) Option {
	return func(c *Coordinator) {
		c.exporters[s] = e
	}
}

// WithSink replaces the default file sink.
func WithSink(s Sink) Option {
	return func(c *Coordinator) {
		c.sink = s
	}
}

// WithRecorder persists every admitted operation.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithMetrics sets the metrics provider.
func WithMetrics(m MetricsProvider) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a coordinator in the Available state.
func NewCoordinator(registry Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:     NewStateMachine(),
		registry:  registry,
		sink:      sink.New(),
		exporters: make(map[Section]Exporter),
		metrics:   NewNoopMetricsProvider(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the admission state.
func (c *Coordinator) State() State {
	return c.state.State()
}

// Submit runs one snapshot operation to completion on the caller's
// goroutine, or rejects it immediately if another is in flight. Every
// outcome, including panics in collaborators, is returned as a Result; the
// gate is Available again by the time Submit returns.
func (c *Coordinator) Submit(ctx context.Context, req OperationRequest) *Result {
	if !c.state.TryAcquire() {
		res := &Result{Status: StatusRejectedBusy, Request: req, Err: ErrBusy, Started: c.now()}
		log.G(ctx).WithField("pid", req.TargetID).Warn("snapshot rejected, another operation is in progress")
		contain(ctx, "metrics", func() { c.metrics.ObserveResult(res) })
		return res
	}

	res := c.admitted(ctx, req)
	c.finish(ctx, res)
	return res
}

// admitted owns the Busy state. The gate release is deferred before any
// collaborator runs, so every return and panic path passes through it.
func (c *Coordinator) admitted(ctx context.Context, req OperationRequest) (res *Result) {
	res = &Result{Request: req}
	defer func() {
		if err := c.state.Release(); err != nil {
			log.G(ctx).WithError(err).Error("failed to release admission gate")
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			log.G(ctx).WithField("panic", p).Error("recovered from panic during snapshot")
			res.Status = StatusFailed
			res.Err = errors.Join(res.Err, NewPhaseError(PhasePanic, fmt.Errorf("%v", p)))
		}
		contain(ctx, "clock", func() {
			if !res.Started.IsZero() {
				res.Duration = c.now().Sub(res.Started)
			}
		})
		contain(ctx, "metrics", func() { c.metrics.SetBusy(false) })
	}()

	res.Started = c.now()
	c.metrics.SetBusy(true)
	c.run(ctx, req, res)
	return res
}

// contain runs fn and logs a panic instead of propagating it.
func contain(ctx context.Context, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.G(ctx).WithField("panic", p).Errorf("recovered from panic in %s", what)
		}
	}()
	fn()
}

func (c *Coordinator) run(ctx context.Context, req OperationRequest, res *Result) {
	logger := log.G(ctx).WithFields(log.Fields{
		"pid":       req.TargetID,
		"cmd":       req.Command.String(),
		"directory": req.OutputDirectory,
	})
	if r := req.Command.Reserved(); r != 0 {
		logger.WithField("reserved", fmt.Sprintf("0x%x", uint32(r))).Debug("ignoring reserved command bits")
	}

	release, err := c.registry.Acquire(ctx)
	if err != nil {
		res.Status = StatusFailed
		res.Err = NewPhaseError(PhaseGuard, err)
		return
	}
	defer release()

	target, err := c.registry.Resolve(ctx, int(req.TargetID))
	if err != nil {
		logger.WithError(err).Warn("invalid pid")
		res.Status = StatusRejectedInvalidTarget
		res.Err = fmt.Errorf("%w: pid %d: %w", ErrInvalidTarget, req.TargetID, err)
		return
	}
	defer func() {
		if err := target.Close(); err != nil {
			logger.WithError(err).Debug("failed to close target handle")
		}
	}()
	res.PID = target.PID()

	sections := req.Command.Requested()
	if len(sections) == 0 {
		logger.Debug("no sections requested")
		res.Status = StatusCompleted
		return
	}

	restorer, err := target.Quiesce(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to quiesce target")
		res.Status = StatusFailed
		res.Err = NewPhaseError(PhaseQuiesce, fmt.Errorf("%w: %w", ErrQuiesce, err))
		return
	}
	// Only restores when the export loop panics.
	restored := false
	defer func() {
		if restored {
			return
		}
		if err := restorer.Restore(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Error("failed to restore target after panic")
			res.Err = errors.Join(res.Err, NewPhaseError(PhaseRestore, fmt.Errorf("%w: %w", ErrRestore, err)))
		}
	}()

	for _, s := range sections {
		res.Sections = append(res.Sections, c.exportSection(ctx, target, req.OutputDirectory, s))
	}

	restored = true
	if err := restorer.Restore(context.WithoutCancel(ctx)); err != nil {
		logger.WithError(err).Error("failed to restore target")
		res.Status = StatusFailed
		res.Err = NewPhaseError(PhaseRestore, fmt.Errorf("%w: %w", ErrRestore, err))
		return
	}

	if len(res.FailedSections()) > 0 {
		res.Status = StatusPartialFailure
		return
	}
	res.Status = StatusCompleted
}

func (c *Coordinator) exportSection(ctx context.Context, t Target, dir string, s Section) SectionResult {
	r := SectionResult{Section: s}
	logger := log.G(ctx).WithField("section", s.String())

	exp, ok := c.exporters[s]
	if !ok {
		r.Err = sectionErr(s, KindExport, ErrNoExporter)
		logger.Warn("no exporter bound for section")
		return r
	}

	path, err := paths.OutputPath(dir, s.Filename())
	if err != nil {
		r.Err = sectionErr(s, KindIO, err)
		logger.WithError(err).Warn("invalid output path")
		return r
	}
	r.Path = path
	logger = logger.WithField("path", path)

	f, err := c.sink.Open(path)
	if err != nil {
		r.Err = sectionErr(s, KindIO, err)
		logger.WithError(err).Warn("failed to open section file")
		return r
	}
	defer func() {
		// Data is already written; a close error is reported but does not
		// fail the section.
		if err := f.Close(); err != nil {
			logger.WithError(err).Warn("failed to close section file")
		}
	}()

	var off int64
	n, err := exp.Export(ctx, t.Proc(), f, &off)
	r.Bytes = n
	if err != nil {
		kind := KindExport
		var we *sink.WriteError
		if errors.As(err, &we) {
			kind = KindIO
		}
		r.Err = sectionErr(s, kind, err)
		logger.WithError(err).WithField("kind", kind).Warn("failed to export section")
		return r
	}

	logger.WithField("bytes", n).Debug("section exported")
	return r
}

// finish runs after the gate is released. Nothing here can change res.
func (c *Coordinator) finish(ctx context.Context, res *Result) {
	contain(ctx, "metrics", func() { c.metrics.ObserveResult(res) })

	entry := log.G(ctx).WithFields(log.Fields{
		"pid":      res.Request.TargetID,
		"status":   res.Status.String(),
		"duration": res.Duration,
	})
	if failed := res.FailedSections(); len(failed) > 0 {
		entry = entry.WithField("failed", failed)
	}
	if res.Err != nil {
		entry = entry.WithError(res.Err)
	}
	if res.HasErrors() {
		entry.Warn("snapshot finished with errors")
	} else {
		entry.Info("snapshot completed")
	}

	if c.recorder == nil {
		return
	}
	contain(ctx, "recorder", func() {
		if err := c.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
			log.G(ctx).WithError(err).Warn("failed to record snapshot history")
		}
	})
}

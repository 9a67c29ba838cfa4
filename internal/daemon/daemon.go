//go:build linux

// Package daemon wires the coordinator to its registry, exporters, journal,
// metrics and control channel.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/containerd/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/config"
	"github.com/spin-stack/procsnap/internal/control"
	"github.com/spin-stack/procsnap/internal/export"
	"github.com/spin-stack/procsnap/internal/history"
	"github.com/spin-stack/procsnap/internal/paths"
	"github.com/spin-stack/procsnap/internal/process"
	"github.com/spin-stack/procsnap/internal/snapshot"
)

const shutdownTimeout = 5 * time.Second

// Reloader returns a fresh configuration on SIGHUP.
type Reloader func() (*config.Config, error)

type options struct {
	signaler process.OpenSignaler
	reload   Reloader
	metrics  bool
}

// Option configures a Daemon.
type Option func(*options)

// WithSignaler replaces the pidfd signaler of the process registry.
func WithSignaler(open process.OpenSignaler) Option {
	return func(o *options) {
		o.signaler = open
	}
}

// WithReloader sets how configuration is re-read on SIGHUP.
func WithReloader(r Reloader) Option {
	return func(o *options) {
		o.reload = r
	}
}

// WithoutMetrics uses the no-op metrics provider and never serves /metrics.
func WithoutMetrics() Option {
	return func(o *options) {
		o.metrics = false
	}
}

// Daemon owns one coordinator and everything around it.
type Daemon struct {
	cfg      *config.Config
	registry *process.Registry
	coord    *snapshot.Coordinator
	journal  *history.Journal
	gatherer prometheus.Gatherer
	reload   Reloader
}

// New builds a daemon from cfg.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	o := options{reload: config.Load, metrics: true}
	for _, opt := range opts {
		opt(&o)
	}

	if err := paths.CheckProcRoot(cfg.Paths); err != nil {
		return nil, err
	}
	regOpts := []process.Option{
		process.WithTimeouts(cfg.Timeouts.GetQuiesce(), cfg.Timeouts.GetQuiescePoll(), cfg.Timeouts.GetRestore()),
	}
	if o.signaler != nil {
		regOpts = append(regOpts, process.WithSignaler(o.signaler))
	}
	registry, err := process.NewRegistry(cfg.Paths.ProcRoot, regOpts...)
	if err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, registry: registry, reload: o.reload}

	coordOpts := []snapshot.Option{
		snapshot.WithExporter(snapshot.SectionControlBlock, export.NewControlBlock()),
		snapshot.WithExporter(snapshot.SectionMemoryMap, export.NewMemoryMap()),
	}

	if o.metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		coordOpts = append(coordOpts, snapshot.WithMetrics(snapshot.NewPrometheusMetricsProvider(reg)))
		d.gatherer = reg
	}

	if cfg.History.Enabled {
		store, err := history.NewBoltStore[history.Record](paths.HistoryDBPath(cfg.Paths), history.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		d.journal = history.NewJournal(store, cfg.History.MaxRecords)
		coordOpts = append(coordOpts, snapshot.WithRecorder(d.journal))
	}

	d.coord = snapshot.NewCoordinator(registry, coordOpts...)
	return d, nil
}

// Coordinator returns the daemon's coordinator.
func (d *Daemon) Coordinator() *snapshot.Coordinator {
	return d.coord
}

// Registry returns the process registry.
func (d *Daemon) Registry() *process.Registry {
	return d.registry
}

// Submit runs one operation.
func (d *Daemon) Submit(ctx context.Context, req snapshot.OperationRequest) *snapshot.Result {
	return d.coord.Submit(ctx, req)
}

// Reload re-reads the configuration and remounts the registry when the
// procfs root changed. Other settings take effect on restart.
func (d *Daemon) Reload(ctx context.Context) error {
	cfg, err := d.reload()
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	root := cfg.Paths.ProcRoot
	if root == d.registry.Root() {
		log.G(ctx).Debug("configuration reloaded, procfs root unchanged")
		return nil
	}
	if err := paths.CheckProcRoot(cfg.Paths); err != nil {
		return err
	}
	return d.registry.Remount(root)
}

// Run serves the control channel, and /metrics when configured, until ctx
// is done. SIGHUP triggers Reload.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	channel := control.NewChannel(d.cfg.Paths.ControlFIFO, func(ctx context.Context, req snapshot.OperationRequest) {
		d.Submit(ctx, req)
	})
	if err := paths.EnsureParent(channel.Path(), 0o755); err != nil {
		return err
	}
	g.Go(func() error {
		return channel.Serve(ctx)
	})

	if d.gatherer != nil && d.cfg.Metrics.Address != "" {
		srv := &http.Server{
			Addr:              d.cfg.Metrics.Address,
			Handler:           d.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.G(ctx).WithField("address", srv.Addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, unix.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				if err := d.Reload(ctx); err != nil {
					log.G(ctx).WithError(err).Error("reload failed")
				}
			}
		}
	})

	return g.Wait()
}

func (d *Daemon) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Close releases the journal.
func (d *Daemon) Close() error {
	if d.journal == nil {
		return nil
	}
	return d.journal.Close()
}

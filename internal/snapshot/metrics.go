package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsProvider defines the interface for providing metrics for snapshot operations.
type MetricsProvider interface {
	SetBusy(busy bool)
	ObserveResult(res *Result)
}

// NoopMetricsProvider implements MetricsProvider with no-op operations.
type NoopMetricsProvider struct{}

func (n *NoopMetricsProvider) SetBusy(busy bool)         {}
func (n *NoopMetricsProvider) ObserveResult(res *Result) {}

// NewNoopMetricsProvider creates a new NoopMetricsProvider.
func NewNoopMetricsProvider() *NoopMetricsProvider {
	return &NoopMetricsProvider{}
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus.
type PrometheusMetricsProvider struct {
	busy           prometheus.Gauge
	operations     *prometheus.CounterVec
	sectionFailure *prometheus.CounterVec
	sectionBytes   *prometheus.CounterVec
	duration       prometheus.Histogram
}

// NewPrometheusMetricsProvider creates a new PrometheusMetricsProvider and
// registers its collectors with registry.
func NewPrometheusMetricsProvider(registry prometheus.Registerer) *PrometheusMetricsProvider {
	p := &PrometheusMetricsProvider{
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procsnap_busy",
			Help: "1 while a snapshot operation is in flight",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procsnap_operations_total",
			Help: "Snapshot requests by outcome",
		}, []string{"status"}),
		sectionFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procsnap_section_failures_total",
			Help: "Failed sections by section and failure kind",
		}, []string{"section", "kind"}),
		sectionBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procsnap_section_bytes_total",
			Help: "Bytes written per section",
		}, []string{"section"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "procsnap_operation_duration_seconds",
			Help:    "Duration of admitted snapshot operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}

	registry.MustRegister(p.busy, p.operations, p.sectionFailure, p.sectionBytes, p.duration)
	return p
}

func (p *PrometheusMetricsProvider) SetBusy(busy bool) {
	if busy {
		p.busy.Set(1)
		return
	}
	p.busy.Set(0)
}

func (p *PrometheusMetricsProvider) ObserveResult(res *Result) {
	p.operations.WithLabelValues(res.Status.String()).Inc()
	if res.Status == StatusRejectedBusy {
		return
	}
	p.duration.Observe(res.Duration.Seconds())
	for _, s := range res.Sections {
		if s.Err != nil {
			p.sectionFailure.WithLabelValues(s.Section.String(), string(s.Err.Kind)).Inc()
			continue
		}
		p.sectionBytes.WithLabelValues(s.Section.String()).Add(float64(s.Bytes))
	}
}

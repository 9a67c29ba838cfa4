package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsProvider(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetricsProvider(reg)

	m.SetBusy(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.busy))
	m.SetBusy(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.busy))

	m.ObserveResult(&Result{
		Status:   StatusPartialFailure,
		Duration: 5 * time.Millisecond,
		Sections: []SectionResult{
			{Section: SectionControlBlock, Bytes: 100},
			{Section: SectionMemoryMap, Err: sectionErr(SectionMemoryMap, KindIO, errors.New("EACCES"))},
		},
	})
	m.ObserveResult(&Result{Status: StatusRejectedBusy, Err: ErrBusy})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("partial_failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("rejected_busy")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sectionFailure.WithLabelValues("memory_map", "io")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.sectionBytes.WithLabelValues("control_block")))

	// Busy rejections never ran, so they are not timed.
	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "procsnap_operation_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), samples)
}

func TestNoopMetricsProvider(t *testing.T) {
	m := NewNoopMetricsProvider()
	m.SetBusy(true)
	m.ObserveResult(&Result{Status: StatusCompleted})
}

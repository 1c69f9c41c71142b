// Package prometheus exports tenantdb timings as a Prometheus histogram.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/burugo/tenantdb"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics implements tenantdb.Metrics. Every Timing call is observed under its
// operation name, the tenant host and whether the work succeeded.
type Metrics struct {
	duration *prometheus.HistogramVec
}

var _ tenantdb.Metrics = (*Metrics)(nil)

// New creates the histogram and registers it with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tenantdb",
				Name:      "operation_duration_seconds",
				Help:      "Duration of tenant database operations by name, host and status",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "host", "status"},
		),
	}
	if reg != nil {
		if err := reg.Register(m.duration); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Collector exposes the underlying histogram.
func (m *Metrics) Collector() prometheus.Collector { return m.duration }

func (m *Metrics) Timing(ctx context.Context, name, host string, work func(ctx context.Context) error, onComplete func(time.Duration)) error {
	start := time.Now()
	err := work(ctx)
	elapsed := time.Since(start)

	status := statusOK
	if err != nil {
		status = statusError
	}
	m.duration.WithLabelValues(name, host, status).Observe(elapsed.Seconds())

	if err != nil {
		return err
	}
	if onComplete != nil {
		onComplete(elapsed)
	}
	return nil
}

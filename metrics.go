package tenantdb

import (
	"context"
	"time"
)

// Metric names emitted by the dispatcher.
const (
	MetricConnectionTime = "db.connectionTime"
	MetricQueryPrefix    = "db.query."
)

// NopMetrics times work without emitting anything. It is the default Metrics.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

// Timing runs work and reports its elapsed time to onComplete on success.
func (NopMetrics) Timing(ctx context.Context, _, _ string, work func(ctx context.Context) error, onComplete func(time.Duration)) error {
	start := time.Now()
	if err := work(ctx); err != nil {
		return err
	}
	if onComplete != nil {
		onComplete(time.Since(start))
	}
	return nil
}

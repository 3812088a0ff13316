package ingest

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// dispatchMetrics is nil-safe; a nil meter disables recording.
type dispatchMetrics struct {
	accepted metric.Int64Counter
	dropped  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newDispatchMetrics(meter metric.Meter, logger *log.Helper) *dispatchMetrics {
	if meter == nil {
		return nil
	}
	accepted, err := meter.Int64Counter("ingest_accepted_total",
		metric.WithDescription("Events queued for persistence"))
	if err != nil {
		logger.Warnw("msg", "create ingest_accepted_total failed", "error", err)
		return nil
	}
	dropped, err := meter.Int64Counter("ingest_dropped_total",
		metric.WithDescription("Events dropped because the ingest queue was full"))
	if err != nil {
		logger.Warnw("msg", "create ingest_dropped_total failed", "error", err)
		return nil
	}
	failures, err := meter.Int64Counter("ingest_task_failures_total",
		metric.WithDescription("Persistence steps that failed, by stage"))
	if err != nil {
		logger.Warnw("msg", "create ingest_task_failures_total failed", "error", err)
		return nil
	}
	duration, err := meter.Float64Histogram("ingest_task_duration_seconds",
		metric.WithDescription("Time to run every persistence step of one event"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warnw("msg", "create ingest_task_duration_seconds failed", "error", err)
		return nil
	}
	return &dispatchMetrics{
		accepted: accepted,
		dropped:  dropped,
		failures: failures,
		duration: duration,
	}
}

func (m *dispatchMetrics) recordAccepted(ctx context.Context) {
	if m == nil {
		return
	}
	m.accepted.Add(ctx, 1)
}

func (m *dispatchMetrics) recordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1)
}

func (m *dispatchMetrics) recordFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *dispatchMetrics) recordDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds())
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics counts hits and misses on Redis-backed lookups.
type CacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

func NewCacheMetrics(meter metric.Meter) (*CacheMetrics, error) {
	hits, err := meter.Int64Counter("cache_hits_total",
		metric.WithDescription("Number of lookups that found data in Redis"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("cache_misses_total",
		metric.WithDescription("Number of lookups that found no data in Redis"))
	if err != nil {
		return nil, err
	}
	return &CacheMetrics{hits: hits, misses: misses}, nil
}

func (m *CacheMetrics) Hit(ctx context.Context, cache string) {
	if m == nil {
		return
	}
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

func (m *CacheMetrics) Miss(ctx context.Context, cache string) {
	if m == nil {
		return
	}
	m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nighttune/nighttune/internal/resilience"

// UpstreamMetrics holds metrics for outbound upstream calls.
type UpstreamMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
}

// NewUpstreamMetrics creates metrics for monitoring outbound upstream calls.
func NewUpstreamMetrics() (*UpstreamMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"upstream.request.duration",
		metric.WithDescription("Duration of upstream requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"upstream.request.total",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}, nil
}

// RecordRequest records metrics for one upstream request. A nil receiver is a
// no-op so clients without metrics configured can call it unconditionally.
func (m *UpstreamMetrics) RecordRequest(upstream, method string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("upstream.name", upstream),
		attribute.String("http.request.method", method),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Use background context for metrics to avoid context cancellation issues
	ctx := context.TODO()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

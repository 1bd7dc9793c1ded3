package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("pfls.lsp")

var (
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestTotal, err = meter.Int64Counter(
			"pfls_lsp_requests_total",
			metric.WithDescription("Total number of language server requests by method"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestDuration, err = meter.Float64Histogram(
			"pfls_lsp_request_duration_seconds",
			metric.WithDescription("Duration of language server requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRequest records one handled request. code is 0 on success.
func recordRequest(ctx context.Context, method string, code int, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("code", code),
	)
	requestTotal.Add(ctx, 1, attrs)
	requestDuration.Record(ctx, duration.Seconds(), attrs)
}

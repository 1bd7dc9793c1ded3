package impact

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pfls/internal/graph"
)

// Package-level tracer and meter for impact queries.
var (
	tracer = otel.Tracer("pfls.impact")
	meter  = otel.Meter("pfls.impact")
)

// Metrics for impact queries.
var (
	queryTotal   metric.Int64Counter
	queryLatency metric.Float64Histogram
	resultSizes  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryTotal, err = meter.Int64Counter(
			"pfls_impact_queries_total",
			metric.WithDescription("Total number of impact queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"pfls_impact_duration_seconds",
			metric.WithDescription("Duration of impact traversals"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultSizes, err = meter.Int64Histogram(
			"pfls_impact_results",
			metric.WithDescription("Number of requirements returned per impact query"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startImpactSpan creates a span for one impact query.
func startImpactSpan(ctx context.Context, seed graph.NodeRef) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Impact",
		trace.WithAttributes(
			attribute.String("impact.seed_kind", seed.Kind.String()),
			attribute.String("impact.seed_id", seed.ID),
		),
	)
}

// setImpactSpanResult sets the result attributes on an impact span.
func setImpactSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Int("impact.max_hops", res.MaxHops),
		attribute.String("impact.policy", string(res.Policy)),
		attribute.Int("impact.visited", res.Visited),
		attribute.Int("impact.impacted", len(res.Impacted)),
		attribute.Int64("impact.graph_version", int64(res.GraphVersion)),
	)
}

// recordImpactMetrics records metrics for one impact query. res is nil when
// the query failed.
func recordImpactMetrics(ctx context.Context, duration time.Duration, kind graph.NodeKind, policy Policy, res *Result, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("seed_kind", kind.String()),
		attribute.String("policy", string(policy)),
		attribute.Bool("success", success),
	)

	queryTotal.Add(ctx, 1, attrs)
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	if res != nil {
		resultSizes.Record(ctx, int64(len(res.Impacted)))
	}
}

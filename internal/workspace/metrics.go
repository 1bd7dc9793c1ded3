package workspace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("pfls.workspace")

var (
	graphRebuilds metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		graphRebuilds, metricsErr = meter.Int64Counter(
			"pfls_graph_rebuilds_total",
			metric.WithDescription("Number of graph snapshots linked"),
		)
	})
	return metricsErr
}

// recordRebuild counts one snapshot swap.
func recordRebuild(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	graphRebuilds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

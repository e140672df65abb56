// Package telemetry wires the OpenTelemetry meter to the Prometheus
// exporter and owns the engine's instruments.
package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

type Telemetry struct {
	Meter metric.Meter

	RunsTotal          metric.Int64Counter
	RowsApplied        metric.Int64Counter
	RowsFailed         metric.Int64Counter
	AggregationTargets metric.Int64Counter
}

func NewTelemetry(logger *zap.Logger) (*Telemetry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("housesync")

	t := &Telemetry{Meter: meter}

	if t.RunsTotal, err = meter.Int64Counter("housesync_runs_total",
		metric.WithDescription("Sync runs started")); err != nil {
		return nil, err
	}
	if t.RowsApplied, err = meter.Int64Counter("housesync_rows_applied_total",
		metric.WithDescription("Feed rows applied to the sink")); err != nil {
		return nil, err
	}
	if t.RowsFailed, err = meter.Int64Counter("housesync_rows_failed_total",
		metric.WithDescription("Feed rows that failed reconciliation or apply")); err != nil {
		return nil, err
	}
	if t.AggregationTargets, err = meter.Int64Counter("housesync_aggregation_targets_total",
		metric.WithDescription("Aggregation calls issued to the analytics service")); err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized")
	return t, nil
}

// Package telemetry installs the metrics pipeline and serves it over HTTP.
//
// Instruments are created by the packages that own them (impact, workspace,
// lsp) against the global OTel meter. Installing a Provider routes them into
// a Prometheus registry that the HTTP endpoint exposes.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"pfls/internal/config"
)

// ErrDisabled is returned by Setup when telemetry is turned off.
var ErrDisabled = errors.New("telemetry disabled")

// Provider owns the meter and tracer providers and the registry they export to.
type Provider struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
}

// NewProvider builds a provider with its own Prometheus registry. It does
// not touch the global OTel state; call Install for that.
func NewProvider(cfg config.TelemetryConfig, version string) (*Provider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version),
	)

	return &Provider{
		registry: registry,
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		),
		// Spans are recorded but not exported; they only need a live
		// provider so span contexts propagate.
		tracers: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
	}, nil
}

// Setup builds a provider and installs it globally. It returns ErrDisabled
// when cfg.Enabled is false.
func Setup(cfg config.TelemetryConfig, version string) (*Provider, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	p, err := NewProvider(cfg, version)
	if err != nil {
		return nil, err
	}
	p.Install()
	return p, nil
}

// Install makes p the global meter and tracer provider.
func (p *Provider) Install() {
	otel.SetMeterProvider(p.meters)
	otel.SetTracerProvider(p.tracers)
}

// MeterProvider returns the SDK meter provider.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider { return p.meters }

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.meters.Shutdown(ctx), p.tracers.Shutdown(ctx))
}

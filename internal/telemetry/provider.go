// SPDX-License-Identifier: MIT
/*
Package telemetry wires OpenTelemetry metrics through a Prometheus
exporter. Init installs the global meter provider; Handler exposes the
scrape endpoint; Metrics bundles the engine's instruments behind
nil-safe record methods so disabled telemetry costs nothing.
*/
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Init builds a Prometheus-backed meter provider and installs it as the
// global OpenTelemetry provider. It must run before the first
// DefaultMetrics call or the instruments bind to the no-op provider.
// The returned shutdown flushes the provider and must be called on
// exit.
func Init(serviceName, serviceVersion string) (func(context.Context) error, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// Handler returns the HTTP handler serving the Prometheus scrape
// endpoint fed by the exporter from Init.
func Handler() http.Handler {
	return promhttp.Handler()
}

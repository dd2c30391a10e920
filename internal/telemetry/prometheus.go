// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
)

// PrometheusRegistry bridges the otel metric SDK into a
// prometheus.Registry, so the same instruments recorded through
// Metrics are scraped at /metrics alongside the gin query surface
// (spec.md's DOMAIN STACK: "prometheus.client_golang ... /metrics
// endpoint alongside the gin query surface").
type PrometheusRegistry struct {
	registry *prometheus.Registry
	provider *metric.MeterProvider
}

func newPrometheusRegistry(res *sdkresource.Resource) (*PrometheusRegistry, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	return &PrometheusRegistry{registry: reg, provider: provider}, nil
}

// Handler returns the http.Handler /metrics should be routed to.
func (p *PrometheusRegistry) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

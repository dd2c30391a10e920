// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires OpenTelemetry tracing and metrics across the
// handshake, CHUM drain, and LLM-extraction paths (spec.md §4.G, §5),
// a Prometheus /metrics endpoint, and an optional InfluxDB sink for
// handshake-latency and sync-lag samples.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidConfig is returned when Config is missing required fields.
var ErrInvalidConfig = errors.New("telemetry: invalid configuration")

// Config selects which exporters Setup wires in.
type Config struct {
	// ServiceName identifies this instance in traces and metrics.
	// Required.
	ServiceName string

	// ServiceVersion is an informational resource attribute.
	ServiceVersion string

	// TraceToStdout enables the stdout span exporter, useful for a
	// local instance with no collector configured.
	TraceToStdout bool

	// PrometheusEnabled mounts the Prometheus exporter as the metric
	// reader (PrometheusRegistry.Handler serves it).
	PrometheusEnabled bool
}

func (c Config) validate() error {
	if c.ServiceName == "" {
		return errors.New("serviceName is required")
	}
	return nil
}

// Telemetry bundles the tracer and meter this instance records
// handshake, CHUM, and extraction telemetry through.
type Telemetry struct {
	tracer   trace.Tracer
	meter    metric.Meter
	tp       *sdktrace.TracerProvider
	Metrics  *Metrics
	Registry *PrometheusRegistry
}

// Setup builds providers from cfg and returns a ready Telemetry.
// Call Shutdown on the returned value before process exit to flush
// the trace exporter.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceToStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	var registry *PrometheusRegistry
	var meterProvider metric.MeterProvider
	if cfg.PrometheusEnabled {
		registry, err = newPrometheusRegistry(res)
		if err != nil {
			return nil, err
		}
		meterProvider = registry.provider
	} else {
		meterProvider = otel.GetMeterProvider()
	}

	tracer := tp.Tracer("github.com/kittwire/core/internal/telemetry")
	meter := meterProvider.Meter("github.com/kittwire/core/internal/telemetry")

	metrics, err := newMetrics(meter)
	if err != nil {
		return nil, err
	}

	return &Telemetry{tracer: tracer, meter: meter, tp: tp, Metrics: metrics, Registry: registry}, nil
}

// Shutdown flushes and stops the trace provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// Tracer returns the tracer spans in this package start from.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

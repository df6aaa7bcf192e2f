// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package metrics implements OpenTelemetry and Prometheus metrics
// collection for the name server: query counts, response outcomes,
// cache hit/miss rates, and resolution latency.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics manages OpenTelemetry and Prometheus metric collection.
type Metrics struct {
	queryCounter     metric.Int64Counter
	responseCounter  metric.Int64Counter
	errorCounter     metric.Int64Counter
	latencyRecorder  metric.Float64Histogram
	cacheCounter     metric.Int64Counter
	prometheusAddr   string
	prometheusServer *http.Server
}

// New initializes metrics with OpenTelemetry and/or Prometheus endpoints.
// Passing both endpoints empty disables collection entirely; the
// returned Metrics is still safe to call into, every method becomes a
// no-op.
func New(otelEndpoint string, prometheusEndpoint string) (*Metrics, error) {
	m := &Metrics{
		prometheusAddr: prometheusEndpoint,
	}

	if otelEndpoint == "" && prometheusEndpoint == "" {
		return m, nil
	}

	ctx := context.Background()

	var readers []sdkmetric.Reader

	if otelEndpoint != "" {
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(otelEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			slog.Warn("failed to create OTLP exporter", "error", err)
		} else {
			readers = append(readers, sdkmetric.NewPeriodicReader(exporter))
			slog.Info("OTLP exporter configured", "endpoint", otelEndpoint)
		}
	}

	if prometheusEndpoint != "" {
		promExporter, err := prometheus.New()
		if err != nil {
			slog.Warn("failed to create Prometheus exporter", "error", err)
		} else {
			readers = append(readers, promExporter)
			slog.Info("Prometheus exporter configured", "endpoint", prometheusEndpoint)
		}
	}

	if len(readers) == 0 {
		slog.Warn("no metric exporters configured")
		return m, nil
	}

	var opts []sdkmetric.Option
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	meter := otel.Meter("rdnsd")

	queryCounter, err := meter.Int64Counter(
		"rdnsd.queries.total",
		metric.WithDescription("Total DNS queries received"),
	)
	if err != nil {
		slog.Warn("failed to create query counter", "error", err)
		return m, nil
	}

	responseCounter, err := meter.Int64Counter(
		"rdnsd.responses.total",
		metric.WithDescription("Total DNS responses sent, by source and outcome"),
	)
	if err != nil {
		slog.Warn("failed to create response counter", "error", err)
		return m, nil
	}

	errorCounter, err := meter.Int64Counter(
		"rdnsd.errors.total",
		metric.WithDescription("Total query-handling errors"),
	)
	if err != nil {
		slog.Warn("failed to create error counter", "error", err)
		return m, nil
	}

	latencyRecorder, err := meter.Float64Histogram(
		"rdnsd.query.latency_ms",
		metric.WithDescription("Query handling latency in milliseconds"),
	)
	if err != nil {
		slog.Warn("failed to create latency recorder", "error", err)
		return m, nil
	}

	cacheCounter, err := meter.Int64Counter(
		"rdnsd.cache.lookups.total",
		metric.WithDescription("Cache lookups, by hit/miss"),
	)
	if err != nil {
		slog.Warn("failed to create cache counter", "error", err)
		return m, nil
	}

	m.queryCounter = queryCounter
	m.responseCounter = responseCounter
	m.errorCounter = errorCounter
	m.latencyRecorder = latencyRecorder
	m.cacheCounter = cacheCounter

	if m.prometheusAddr != "" {
		if err := m.startPrometheusServer(); err != nil {
			slog.Warn("failed to start Prometheus server", "error", err)
		}
	}

	return m, nil
}

// RecordQuery records one incoming query for the given record type.
func (m *Metrics) RecordQuery(qtype string) {
	if m.queryCounter == nil {
		return
	}
	m.queryCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("qtype", qtype)),
	)
}

// RecordResponse records one outgoing response, tagged by whether it
// was answered authoritatively or recursively and whether an answer
// was actually found.
func (m *Metrics) RecordResponse(source string, found bool) {
	if m.responseCounter == nil {
		return
	}
	m.responseCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.Bool("found", found),
		),
	)
}

// RecordError records a handling error by category.
func (m *Metrics) RecordError(errType string) {
	if m.errorCounter == nil {
		return
	}
	m.errorCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", errType)),
	)
}

// RecordLatency records end-to-end query handling latency.
func (m *Metrics) RecordLatency(latencyMs float64) {
	if m.latencyRecorder == nil {
		return
	}
	m.latencyRecorder.Record(context.Background(), latencyMs)
}

// RecordCacheLookup records whether a cache lookup hit or missed.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m.cacheCounter == nil {
		return
	}
	m.cacheCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("hit", hit)),
	)
}

func (m *Metrics) startPrometheusServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.prometheusServer = &http.Server{
		Addr:    m.prometheusAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("starting Prometheus metrics server", "endpoint", m.prometheusAddr+"/metrics")
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the Prometheus metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

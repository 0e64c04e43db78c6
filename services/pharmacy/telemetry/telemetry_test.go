// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg := DefaultConfig()
	assert.Equal(t, "pharmacy", cfg.ServiceName)
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin", MetricExporter: ExporterNone}, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: "statsd"}, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusNeedsRegistry(t *testing.T) {
	_, err := Init(context.Background(), Config{MetricExporter: ExporterPrometheus}, nil)
	assert.Error(t, err)
}

func TestInit_NoneIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutTracer(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{
		ServiceName:    "pharmacy-test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterNone,
		Writer:         &buf,
	}, nil)
	require.NoError(t, err)

	_, span := StartSpan(ctx, "telemetry-test", "catalog.GetMedication", attribute.Int("medication.id", 1))
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "catalog.GetMedication")
	assert.Contains(t, buf.String(), "pharmacy-test")
}

func TestInit_PrometheusMetricExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{
		ServiceName:    "pharmacy-test",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterPrometheus,
	}, reg)
	require.NoError(t, err)
	defer shutdown(ctx)

	counter, err := otel.Meter("telemetry-test").Int64Counter("pharmacy.test.events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "pharmacy_test_events") {
			found = true
		}
	}
	assert.True(t, found, "otel counter exported into the registry")
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordError(span, errors.New("boom"), attribute.String("kind", "internal"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.NotEmpty(t, TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

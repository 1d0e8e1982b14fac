/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics holds the OpenTelemetry instruments of the hubsync agent.
// Instruments bind to the global MeterProvider on first use.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "hubsync.agent"

	metricTickTotal        = "hubsync_tick_total"
	metricTickLatency      = "hubsync_tick_latency_seconds"
	metricRegistration     = "hubsync_registration_total"
	metricMappingRefresh   = "hubsync_mapping_refresh_total"
	metricSchemaPush       = "hubsync_schema_push_total"
	metricCryptoCall       = "hubsync_crypto_call_total"
	metricCryptoLatency    = "hubsync_crypto_latency_seconds"
	metricCryptoFallback   = "hubsync_crypto_fallback_total"
	metricTelemetryDropped = "hubsync_telemetry_dropped_total"
)

//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
var (
	meterOnce sync.Once

	tickCounter     metric.Int64Counter
	tickHistogram   metric.Float64Histogram
	registerCounter metric.Int64Counter
	refreshCounter  metric.Int64Counter
	schemaCounter   metric.Int64Counter
	cryptoCounter   metric.Int64Counter
	cryptoHistogram metric.Float64Histogram
	fallbackCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter
)

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
	}

	return c
}

func histogram(meter metric.Meter, name, description string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}

	return h
}

func initMeter() {
	meter := otel.Meter(meterName)

	tickCounter = counter(meter, metricTickTotal, "Orchestrator ticks by outcome")
	tickHistogram = histogram(meter, metricTickLatency, "Duration of orchestrator ticks")
	registerCounter = counter(meter, metricRegistration, "Hub registrations by outcome")
	refreshCounter = counter(meter, metricMappingRefresh, "Mapping version checks by outcome")
	schemaCounter = counter(meter, metricSchemaPush, "Schema push attempts by outcome")
	cryptoCounter = counter(meter, metricCryptoCall, "Crypto adapter calls by operation and outcome")
	cryptoHistogram = histogram(meter, metricCryptoLatency, "Latency of crypto engine calls")
	fallbackCounter = counter(meter, metricCryptoFallback, "Crypto calls answered by the fail-open fallback")
	droppedCounter = counter(meter, metricTelemetryDropped, "Telemetry events dropped because the queue was full")
}

func add(ctx context.Context, c *metric.Int64Counter, attrs ...attribute.KeyValue) {
	meterOnce.Do(initMeter)

	if *c == nil {
		return
	}

	(*c).Add(ctx, 1, metric.WithAttributes(attrs...))
}

func record(ctx context.Context, h *metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	meterOnce.Do(initMeter)

	if *h == nil {
		return
	}

	(*h).Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTick counts one orchestrator tick and its latency.
func RecordTick(ctx context.Context, outcome string, d time.Duration) {
	add(ctx, &tickCounter, attribute.String("outcome", outcome))
	record(ctx, &tickHistogram, d, attribute.String("outcome", outcome))
}

// RecordRegistration counts one registration attempt.
func RecordRegistration(ctx context.Context, outcome string) {
	add(ctx, &registerCounter, attribute.String("outcome", outcome))
}

// RecordMappingRefresh counts one mapping version check.
func RecordMappingRefresh(ctx context.Context, outcome string) {
	add(ctx, &refreshCounter, attribute.String("outcome", outcome))
}

// RecordSchemaPush counts one schema push attempt.
func RecordSchemaPush(ctx context.Context, outcome string) {
	add(ctx, &schemaCounter, attribute.String("outcome", outcome))
}

// RecordCryptoCall counts one adapter call and the engine latency.
func RecordCryptoCall(ctx context.Context, operation, outcome string, d time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	}

	add(ctx, &cryptoCounter, attrs...)
	record(ctx, &cryptoHistogram, d, attrs...)
}

// RecordCryptoFallback counts a fail-open passthrough.
func RecordCryptoFallback(ctx context.Context, operation, reason string) {
	add(ctx, &fallbackCounter,
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	)
}

// RecordTelemetryDropped counts an event dropped by the telemetry sink.
func RecordTelemetryDropped(ctx context.Context, mode string) {
	add(ctx, &droppedCounter, attribute.String("mode", mode))
}

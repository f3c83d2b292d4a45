// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// RuntimeMetrics counts the units of work the runtime recognizes in
// model streams: reasoning fragments, action lifecycle, answers, feed
// updates, and errors by code.
type RuntimeMetrics struct {
	eventCounter  metric.Int64Counter
	errorCounter  metric.Int64Counter
	actionCounter metric.Int64Counter
	tokenCounter  metric.Int64Counter
}

// NewRuntimeMetrics creates runtime metrics on the global meter
// provider.
func NewRuntimeMetrics() (*RuntimeMetrics, error) {
	meter := otel.Meter("weft/runtime")

	eventCounter, err := meter.Int64Counter(
		"weft.events.total",
		metric.WithDescription("Runtime events by type"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"weft.errors.total",
		metric.WithDescription("Errors by code and recoverability"),
	)
	if err != nil {
		return nil, err
	}

	actionCounter, err := meter.Int64Counter(
		"weft.actions.total",
		metric.WithDescription("Action completions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	tokenCounter, err := meter.Int64Counter(
		"weft.llm.tokens.total",
		metric.WithDescription("Model tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		eventCounter:  eventCounter,
		errorCounter:  errorCounter,
		actionCounter: actionCounter,
		tokenCounter:  tokenCounter,
	}, nil
}

// RecordEvent counts one runtime event.
func (rm *RuntimeMetrics) RecordEvent(ctx context.Context, event core.Event) {
	if rm == nil {
		return
	}
	rm.eventCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event.type", string(event.Type))),
	)

	switch event.Type {
	case core.EventError:
		code := "UNKNOWN"
		if c, ok := event.Payload["code"].(string); ok {
			code = c
		}
		rm.errorCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("error.code", code)),
		)
	case core.EventActionCompleted:
		outcome := "completed"
		if event.Err != "" {
			outcome = "failed"
		}
		rm.actionCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordError counts an error outside the event stream, attributed to
// a component.
func (rm *RuntimeMetrics) RecordError(ctx context.Context, err error, component string) {
	if rm == nil || err == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("component", component),
	}
	if we := errors.AsWeftError(err); we != nil {
		attrs = append(attrs,
			attribute.String("error.code", string(we.Code)),
			attribute.String("recoverable", we.RecoverableString()),
		)
	} else {
		attrs = append(attrs,
			attribute.String("error.code", "UNKNOWN"),
			attribute.String("recoverable", "unknown"),
		)
	}
	rm.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokens counts model token usage for a provider and model.
func (rm *RuntimeMetrics) RecordTokens(ctx context.Context, model string, prompt, completion int) {
	if rm == nil {
		return
	}
	if prompt > 0 {
		rm.tokenCounter.Add(ctx, int64(prompt), metric.WithAttributes(
			attribute.String(AttrLLMModel, model),
			attribute.String("direction", "input"),
		))
	}
	if completion > 0 {
		rm.tokenCounter.Add(ctx, int64(completion), metric.WithAttributes(
			attribute.String(AttrLLMModel, model),
			attribute.String("direction", "output"),
		))
	}
}

// MetricsEmitter wraps an emitter and records every event as a metric
// before forwarding.
type MetricsEmitter struct {
	next    core.Emitter
	metrics *RuntimeMetrics
}

// NewMetricsEmitter creates a counting wrapper around next. A nil next
// still records metrics.
func NewMetricsEmitter(next core.Emitter, metrics *RuntimeMetrics) *MetricsEmitter {
	if next == nil {
		next = core.NoopEmitter{}
	}
	return &MetricsEmitter{next: next, metrics: metrics}
}

// Emit implements core.Emitter.
func (m *MetricsEmitter) Emit(ctx context.Context, event core.Event) {
	m.metrics.RecordEvent(ctx, event)
	m.next.Emit(ctx, event)
}

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for weft runtime telemetry. LLM attributes
// follow the OpenTelemetry gen_ai conventions.
const (
	AttrSessionID     = "weft.session.id"
	AttrSessionIter   = "weft.session.iteration"
	AttrSessionMaxIter = "weft.session.max_iterations"

	AttrActionID     = "weft.action.id"
	AttrActionName   = "weft.action.name"
	AttrActionType   = "weft.action.type"
	AttrActionMode   = "weft.action.mode"
	AttrActionResult = "weft.action.result"
	AttrActionDurationMs = "weft.action.duration_ms"
	AttrActionSuccess    = "weft.action.success"

	AttrFeedID   = "weft.feed.id"
	AttrFeedType = "weft.feed.type"

	AttrEventType = "weft.event.type"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// SessionAttributes returns attributes for a session iteration span.
func SessionAttributes(sessionID string, iteration, maxIterations int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrSessionIter, iteration))
	}
	if maxIterations > 0 {
		attrs = append(attrs, attribute.Int(AttrSessionMaxIter, maxIterations))
	}
	return attrs
}

// ActionAttributes returns attributes for an action dispatch span.
func ActionAttributes(id, name, actionType, mode string, durationMs float64, success bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrActionID, id),
		attribute.String(AttrActionMode, mode),
		attribute.Float64(AttrActionDurationMs, durationMs),
		attribute.Bool(AttrActionSuccess, success),
	}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrActionName, name))
	}
	if actionType != "" {
		attrs = append(attrs, attribute.String(AttrActionType, actionType))
	}
	return attrs
}

// ActionResult returns the result attribute, truncated for span
// payload safety.
func ActionResult(result string, maxLen int) []attribute.KeyValue {
	if result == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = 500
	}
	if len(result) > maxLen {
		result = result[:maxLen] + "..."
	}
	return []attribute.KeyValue{attribute.String(AttrActionResult, result)}
}

// LLMAttributes returns attributes for model call spans.
func LLMAttributes(model, provider string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

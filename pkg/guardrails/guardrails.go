// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails filters session content at two points: user input
// before it reaches the model, and model output before it reaches the
// user or the event stream. Policy rules gate actions; guardrails
// inspect the text itself.
package guardrails

import (
	"context"
	"sync"
)

// CheckResult is the outcome of an input check.
type CheckResult struct {
	Blocked     bool
	Reason      string
	GuardrailID string
}

// FilterResult is the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction describes one content modification. Original is left
// empty for PII so the redaction log does not leak what it removed.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// InputChecker validates content before it reaches the model.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// OutputFilter processes model output before it leaves the runtime.
type OutputFilter interface {
	FilterOutput(ctx context.Context, output string) FilterResult
	ID() string
}

// Guardrails runs input checkers and output filters in order.
type Guardrails struct {
	mu            sync.RWMutex
	inputCheckers []InputChecker
	outputFilters []OutputFilter
}

// Option configures a Guardrails instance.
type Option func(*Guardrails)

// New creates a Guardrails instance.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithInputChecker adds an input checker.
func WithInputChecker(checker InputChecker) Option {
	return func(g *Guardrails) {
		g.inputCheckers = append(g.inputCheckers, checker)
	}
}

// WithOutputFilter adds an output filter.
func WithOutputFilter(filter OutputFilter) Option {
	return func(g *Guardrails) {
		g.outputFilters = append(g.outputFilters, filter)
	}
}

// CheckInput returns the first blocking result, or an empty allow.
func (g *Guardrails) CheckInput(ctx context.Context, input string) CheckResult {
	g.mu.RLock()
	checkers := g.inputCheckers
	g.mu.RUnlock()

	for _, checker := range checkers {
		if ctx.Err() != nil {
			return CheckResult{Blocked: true, Reason: "guardrail check cancelled", GuardrailID: "system"}
		}
		result := checker.CheckInput(ctx, input)
		if result.Blocked {
			result.GuardrailID = checker.ID()
			return result
		}
	}
	return CheckResult{}
}

// FilterOutput runs all output filters in sequence, each receiving the
// output of the previous one.
func (g *Guardrails) FilterOutput(ctx context.Context, output string) FilterResult {
	g.mu.RLock()
	filters := g.outputFilters
	g.mu.RUnlock()

	result := FilterResult{Content: output}
	for _, filter := range filters {
		if ctx.Err() != nil {
			return result
		}
		filtered := filter.FilterOutput(ctx, result.Content)
		if filtered.Modified {
			result.Content = filtered.Content
			result.Modified = true
			result.Redactions = append(result.Redactions, filtered.Redactions...)
		}
	}
	return result
}

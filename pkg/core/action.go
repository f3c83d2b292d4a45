// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package core defines the shared data model of the Weft runtime: actions
// decoded from the model stream, the events they produce, and the external
// execution boundary.
package core

import (
	"strings"
	"time"
)

// ActionType classifies the backend an action is dispatched to.
type ActionType string

const (
	ActionTypeTool     ActionType = "tool"
	ActionTypeAgent    ActionType = "agent"
	ActionTypeRelic    ActionType = "relic"
	ActionTypeWorkflow ActionType = "workflow"
	ActionTypeLLM      ActionType = "llm"
	ActionTypeInternal ActionType = "internal"
)

// ParseActionType maps a raw attribute value to an ActionType.
// Unknown or empty values default to tool.
func ParseActionType(raw string) ActionType {
	switch ActionType(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionTypeAgent:
		return ActionTypeAgent
	case ActionTypeRelic:
		return ActionTypeRelic
	case ActionTypeWorkflow:
		return ActionTypeWorkflow
	case ActionTypeLLM:
		return ActionTypeLLM
	case ActionTypeInternal:
		return ActionTypeInternal
	default:
		return ActionTypeTool
	}
}

// ActionMode expresses the concurrency intent of an action. Modes are
// advisory to the execution boundary: sync suspends the parse loop until
// the executor returns, async and fire_and_forget dispatch without
// blocking stream processing.
type ActionMode string

const (
	ModeSync          ActionMode = "sync"
	ModeAsync         ActionMode = "async"
	ModeFireAndForget ActionMode = "fire_and_forget"
)

// ParseActionMode maps a raw attribute value to an ActionMode.
// Unknown or empty values default to async.
func ParseActionMode(raw string) ActionMode {
	switch ActionMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSync:
		return ModeSync
	case ModeFireAndForget:
		return ModeFireAndForget
	default:
		return ModeAsync
	}
}

// ActionStatus describes the lifecycle state of an action.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusExecuting ActionStatus = "executing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Action is a structured, externally-dispatched unit of work decoded from
// the stream. The ID is caller-supplied; uniqueness is the caller's
// responsibility, and a duplicate ID silently replaces the tracking entry
// of the previous action.
type Action struct {
	ID                string
	Type              ActionType
	Mode              ActionMode
	Name              string
	Parameters        map[string]any
	OutputKey         string
	DependsOn         []string
	Timeout           time.Duration
	RetryCount        int
	SkipOnError       bool
	EmbeddedInThought bool

	Status     ActionStatus
	Result     any
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewAction creates a pending action with defaults applied.
func NewAction(id string) *Action {
	return &Action{
		ID:        id,
		Type:      ActionTypeTool,
		Mode:      ModeAsync,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the action reached a final status.
func (a *Action) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}

// Unblocks reports whether the action satisfies a dependent's depends_on
// entry: completed, or failed with skip_on_error set.
func (a *Action) Unblocks() bool {
	if a.Status == StatusCompleted {
		return true
	}
	return a.Status == StatusFailed && a.SkipOnError
}

// Response is an answer block decoded from the stream. Final defaults to
// true; a non-final response signals the iteration controller to loop.
type Response struct {
	Content string
	Final   bool
}

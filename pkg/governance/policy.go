// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance gates action dispatch with ordered policy rules.
// Rules match on action type and name (glob patterns) and decide
// allow or deny before the executor runs anything.
package governance

import (
	"context"
	"path"
	"strings"

	"github.com/weft-ai/weft/pkg/core"
)

// Decision captures the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
	RuleID  string
}

// PolicyEngine evaluates actions before dispatch.
type PolicyEngine interface {
	Evaluate(ctx context.Context, action *core.Action) Decision
}

// Rule defines a single policy rule. An empty Type or Name matches
// everything.
type Rule struct {
	ID     string
	Effect string // allow or deny
	Type   core.ActionType
	Name   string // glob pattern
	Reason string
}

// RuleSet evaluates rules in order; the first match wins.
type RuleSet struct {
	Rules           []Rule
	DefaultDecision Decision
}

// NewRuleSet creates a rule set that allows by default.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		Rules:           append([]Rule(nil), rules...),
		DefaultDecision: Decision{Allowed: true},
	}
}

// Evaluate implements PolicyEngine.
func (r *RuleSet) Evaluate(_ context.Context, action *core.Action) Decision {
	for _, rule := range r.Rules {
		if rule.Type != "" && rule.Type != action.Type {
			continue
		}
		if rule.Name != "" && !matchPattern(rule.Name, action.Name) {
			continue
		}
		return Decision{
			Allowed: !strings.EqualFold(rule.Effect, "deny"),
			Reason:  rule.Reason,
			RuleID:  rule.ID,
		}
	}
	return r.DefaultDecision
}

func matchPattern(pattern, value string) bool {
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}

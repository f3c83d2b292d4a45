// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// GuardedExecutor evaluates policy before delegating to the wrapped
// executor. Denied actions fail with an execution error that is not
// recoverable, so the scheduler will not retry them.
type GuardedExecutor struct {
	next   core.Executor
	policy PolicyEngine
}

// NewGuardedExecutor wraps next with the given policy engine.
func NewGuardedExecutor(next core.Executor, policy PolicyEngine) (*GuardedExecutor, error) {
	if next == nil {
		return nil, errors.New(errors.CodeInternal, "guarded executor requires a next executor", nil)
	}
	if policy == nil {
		return nil, errors.New(errors.CodeInternal, "guarded executor requires a policy engine", nil)
	}
	return &GuardedExecutor{next: next, policy: policy}, nil
}

// Execute implements core.Executor.
func (g *GuardedExecutor) Execute(ctx context.Context, action *core.Action) (any, error) {
	decision := g.policy.Evaluate(ctx, action)
	if !decision.Allowed {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		return nil, errors.Newf(errors.CodeExecution, "action %q blocked: %s", action.Name, reason).
			WithContext("action_id", action.ID).
			WithContext("rule_id", decision.RuleID).
			WithRecoverable(false)
	}
	return g.next.Execute(ctx, action)
}

var _ core.Executor = (*GuardedExecutor)(nil)

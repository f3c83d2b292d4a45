package governance

import (
	"context"
	"strings"
	"testing"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

func TestRuleSetFirstMatchWins(t *testing.T) {
	rules := NewRuleSet([]Rule{
		{ID: "deny-shell", Effect: "deny", Type: core.ActionTypeTool, Name: "shell_*", Reason: "no shell access"},
		{ID: "allow-tools", Effect: "allow", Type: core.ActionTypeTool},
	})
	ctx := context.Background()

	denied := rules.Evaluate(ctx, &core.Action{Type: core.ActionTypeTool, Name: "shell_exec"})
	if denied.Allowed || denied.RuleID != "deny-shell" {
		t.Errorf("decision = %+v", denied)
	}

	allowed := rules.Evaluate(ctx, &core.Action{Type: core.ActionTypeTool, Name: "web_search"})
	if !allowed.Allowed || allowed.RuleID != "allow-tools" {
		t.Errorf("decision = %+v", allowed)
	}
}

func TestRuleSetDefaultAllows(t *testing.T) {
	rules := NewRuleSet(nil)
	decision := rules.Evaluate(context.Background(), &core.Action{Name: "anything"})
	if !decision.Allowed {
		t.Error("empty rule set must allow by default")
	}
}

func TestRuleTypeFilterSkipsOtherTypes(t *testing.T) {
	rules := NewRuleSet([]Rule{
		{ID: "deny-agents", Effect: "deny", Type: core.ActionTypeAgent},
	})
	decision := rules.Evaluate(context.Background(), &core.Action{Type: core.ActionTypeTool, Name: "x"})
	if !decision.Allowed {
		t.Error("tool action must not match an agent rule")
	}
}

func TestGuardedExecutorBlocksDeniedActions(t *testing.T) {
	var executed bool
	next := core.ExecutorFunc(func(_ context.Context, _ *core.Action) (any, error) {
		executed = true
		return "ok", nil
	})
	guard, err := NewGuardedExecutor(next, NewRuleSet([]Rule{
		{ID: "r1", Effect: "deny", Name: "dangerous", Reason: "not today"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = guard.Execute(context.Background(), &core.Action{ID: "a1", Name: "dangerous"})
	if err == nil || !strings.Contains(err.Error(), "not today") {
		t.Fatalf("err = %v", err)
	}
	if errors.CodeOf(err) != errors.CodeExecution {
		t.Errorf("code = %v", errors.CodeOf(err))
	}
	if we := errors.AsWeftError(err); we == nil || we.Recoverable {
		t.Error("policy denial must not be retryable")
	}
	if executed {
		t.Error("denied action must not reach the executor")
	}

	out, err := guard.Execute(context.Background(), &core.Action{ID: "a2", Name: "harmless"})
	if err != nil || out != "ok" {
		t.Errorf("out = %v, err = %v", out, err)
	}
}

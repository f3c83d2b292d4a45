// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"testing"
	"time"

	"github.com/weft-ai/weft/pkg/core"
)

func actionWithoutServer() *core.Action {
	return &core.Action{ID: "a1", Name: "ping", Parameters: map[string]any{}}
}

func TestNewPoolAndStats(t *testing.T) {
	p := New()
	defer p.Close()

	stats := p.Stats()
	if stats.RegisteredServers != 0 || stats.ActiveConnections != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRegisterValidation(t *testing.T) {
	p := New()
	defer p.Close()

	if err := p.RegisterStdio("", "cmd", nil); err != ErrInvalidServerConfig {
		t.Errorf("empty name: %v", err)
	}
	if err := p.RegisterStdio("fs", "", nil); err != ErrInvalidServerConfig {
		t.Errorf("empty command: %v", err)
	}
	if err := p.RegisterHTTP("gh", ""); err != ErrInvalidServerConfig {
		t.Errorf("empty url: %v", err)
	}
	if err := p.RegisterHTTP("gh", "http://localhost:8080/mcp"); err != nil {
		t.Errorf("valid register: %v", err)
	}

	servers := p.ListServers()
	if len(servers) != 1 || servers[0] != "gh" {
		t.Errorf("servers = %v", servers)
	}
}

func TestGetUnknownServer(t *testing.T) {
	p := New()
	defer p.Close()

	if _, err := p.Get(context.Background(), "ghost"); err == nil {
		t.Error("want error for unregistered server")
	}
}

func TestUnregisterRemovesServer(t *testing.T) {
	p := New()
	defer p.Close()

	p.RegisterHTTP("gh", "http://localhost:8080/mcp")
	if err := p.Unregister("gh"); err != nil {
		t.Fatal(err)
	}
	if len(p.ListServers()) != 0 {
		t.Error("server still listed after unregister")
	}
}

func TestClosedPoolRejectsOperations(t *testing.T) {
	p := New(WithHealthCheckInterval(10 * time.Millisecond))
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	if err := p.Close(); err != ErrPoolClosed {
		t.Errorf("double close: %v", err)
	}
	if err := p.RegisterHTTP("gh", "http://x"); err != ErrPoolClosed {
		t.Errorf("register after close: %v", err)
	}
	if _, err := p.Get(context.Background(), "gh"); err != ErrPoolClosed {
		t.Errorf("get after close: %v", err)
	}
}

func TestPooledExecutorRequiresServer(t *testing.T) {
	p := New()
	defer p.Close()

	executor, err := NewExecutor(p, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := executor.Execute(context.Background(), actionWithoutServer()); err == nil {
		t.Error("want error when no server can be selected")
	}
}

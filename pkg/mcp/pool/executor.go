// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
	"github.com/weft-ai/weft/pkg/mcp"
)

// Executor dispatches actions through pooled MCP connections. The
// action parameter "server" selects the registered server; without it
// the default server is used.
type Executor struct {
	pool          *Pool
	defaultServer string
}

// NewExecutor builds an executor over the pool. defaultServer handles
// actions that do not name a server.
func NewExecutor(p *Pool, defaultServer string) (*Executor, error) {
	if p == nil {
		return nil, errors.New(errors.CodeInternal, "pooled executor requires a pool", nil)
	}
	return &Executor{pool: p, defaultServer: defaultServer}, nil
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, action *core.Action) (any, error) {
	server := e.defaultServer
	if name, ok := action.Parameters["server"].(string); ok && name != "" {
		server = name
		// The routing parameter is not a tool argument.
		params := make(map[string]any, len(action.Parameters))
		for k, v := range action.Parameters {
			if k != "server" {
				params[k] = v
			}
		}
		stripped := *action
		stripped.Parameters = params
		action = &stripped
	}
	if server == "" {
		return nil, errors.New(errors.CodePayload, "action names no mcp server and the pool has no default", nil).
			WithContext("action_id", action.ID)
	}

	client, err := e.pool.Get(ctx, server)
	if err != nil {
		return nil, errors.New(errors.CodeExecution, "failed to acquire mcp connection", err).
			WithContext("server", server).
			WithRecoverable(true)
	}
	defer e.pool.Release(server, client)

	inner, err := mcp.NewExecutor(client)
	if err != nil {
		return nil, err
	}
	return inner.Execute(ctx, action)
}

var _ core.Executor = (*Executor)(nil)

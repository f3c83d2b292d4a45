// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
	"github.com/weft-ai/weft/pkg/profile"
)

// ToolCaller abstracts MCP tool execution.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// ToolLister abstracts MCP tool discovery.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Executor dispatches tool actions to an MCP server. It satisfies
// core.Executor so the scheduler can route declared actions straight
// to MCP tools.
type Executor struct {
	caller ToolCaller
}

// NewExecutor builds an executor over an MCP tool caller.
func NewExecutor(caller ToolCaller) (*Executor, error) {
	if caller == nil {
		return nil, errors.New(errors.CodeInternal, "mcp executor requires a tool caller", nil)
	}
	return &Executor{caller: caller}, nil
}

// Execute implements core.Executor. The action name selects the MCP
// tool and the action parameters become the tool arguments.
func (e *Executor) Execute(ctx context.Context, action *core.Action) (any, error) {
	if action.Name == "" {
		return nil, errors.New(errors.CodePayload, "mcp action requires a name", nil).
			WithContext("action_id", action.ID)
	}

	args := action.Parameters
	if args == nil {
		args = map[string]any{}
	}

	result, err := e.caller.CallTool(ctx, action.Name, args)
	if err != nil {
		return nil, errors.New(errors.CodeExecution, "mcp tool call failed", err).
			WithContext("action_id", action.ID).
			WithContext("tool", action.Name).
			WithRecoverable(true)
	}
	return resultToOutput(result)
}

// ActionDocs converts discovered MCP tools into profile action docs
// for prompt assembly.
func ActionDocs(ctx context.Context, lister ToolLister) ([]profile.ActionDoc, error) {
	tools, err := lister.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]profile.ActionDoc, 0, len(tools))
	for _, tool := range tools {
		doc := profile.ActionDoc{
			Name:        tool.Name,
			Type:        string(core.ActionTypeTool),
			Description: tool.Description,
		}
		if props := tool.InputSchema.Properties; len(props) > 0 {
			doc.Parameters = make(map[string]string, len(props))
			for name, raw := range props {
				doc.Parameters[name] = propertyDescription(raw)
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func propertyDescription(raw any) string {
	prop, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	desc, _ := prop["description"].(string)
	typ, _ := prop["type"].(string)
	switch {
	case desc != "" && typ != "":
		return fmt.Sprintf("%s (%s)", desc, typ)
	case desc != "":
		return desc
	default:
		return typ
	}
}

func resultToOutput(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New(errors.CodeExecution, "mcp tool returned no result", nil)
	}
	if result.IsError {
		return nil, errors.Newf(errors.CodeExecution, "mcp tool returned error: %s",
			extractTextContent(result.Content))
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Executor = (*Executor)(nil)

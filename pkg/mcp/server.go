// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Responder answers one user input. agent.Session satisfies it.
type Responder interface {
	Run(ctx context.Context, input string) (string, error)
}

// Server exposes weft functionality as an MCP server.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version),
	}
}

// RegisterTool registers a tool with the server.
func (s *Server) RegisterTool(name, description string, handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return handler(ctx, args)
	})
}

// RegisterResponder exposes an agent session as an "ask" tool so other
// MCP clients can converse with it.
func (s *Server) RegisterResponder(name, description string, responder Responder) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("input", mcp.Required(), mcp.Description("The question or instruction for the agent")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		input, _ := args["input"].(string)
		if input == "" {
			return mcp.NewToolResultError("input is required"), nil
		}
		reply, err := responder.Run(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(reply), nil
	})
}

// ServeStdio starts the server on stdio and blocks.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the model-provider boundary. Weft drives models
// through plain text: actions travel inside the protocol grammar, not
// through native function calling.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamChunk is one increment of a streamed model response. Chunks may
// split protocol tags or JSON payloads at any byte; the parser copes.
type StreamChunk struct {
	Content string
	Done    bool
	Usage   *Usage
	Error   error
}

// StreamingProvider is a Provider that can deliver the response
// incrementally.
type StreamingProvider interface {
	Provider
	// ChatStream returns a channel of chunks. The channel is closed
	// after the Done (or Error) chunk.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// Stream runs a request against any Provider. Non-streaming providers
// are adapted by delivering their full response as a single chunk.
func Stream(ctx context.Context, p Provider, req ChatRequest) (<-chan StreamChunk, error) {
	if sp, ok := p.(StreamingProvider); ok {
		return sp.ChatStream(ctx, req)
	}

	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	chunks := make(chan StreamChunk, 2)
	if resp.Content != "" {
		chunks <- StreamChunk{Content: resp.Content}
	}
	chunks <- StreamChunk{Done: true, Usage: &resp.Usage}
	close(chunks)
	return chunks, nil
}

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider returns a fixed reply and captures requests. With no
// Response set it answers with an empty final response in the protocol
// grammar so a session terminates after one iteration.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, fmt.Errorf("mock provider: %w", m.Err)
	}
	content := m.Response
	if content == "" {
		content = `<response final="true"></response>`
	}

	var prompt int
	for _, msg := range req.Messages {
		prompt += approxTokens(msg.Content)
	}
	completion := approxTokens(content)
	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// Requests returns the captured requests in arrival order.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// approxTokens mirrors the rough 4-chars-per-token rule used for feed
// truncation, good enough for asserting usage plumbing in tests.
func approxTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}

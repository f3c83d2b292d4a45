// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider returns a pre-defined sequence of responses,
// one per call. Useful for testing multi-iteration loops. When
// ChunkSize is set, ChatStream splits each response into chunks of
// that many bytes, exercising arbitrary tag/JSON splits.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	ChunkSize int
	// CallCount tracks how many times Chat or ChatStream has been called.
	CallCount int
	// Requests records every request received, newest last.
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a scripted provider with queued
// responses.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{Responses: responses}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	content, err := s.next(req)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream pops the next scripted response and delivers it chunked.
func (s *ScriptedMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	content, err := s.next(req)
	if err != nil {
		return nil, err
	}

	size := s.ChunkSize
	if size <= 0 {
		size = len(content)
	}

	chunks := make(chan StreamChunk, len(content)/max(size, 1)+2)
	for len(content) > 0 {
		n := size
		if n > len(content) {
			n = len(content)
		}
		chunks <- StreamChunk{Content: content[:n]}
		content = content[n:]
	}
	chunks <- StreamChunk{Done: true, Usage: &Usage{TotalTokens: 20}}
	close(chunks)
	return chunks, nil
}

func (s *ScriptedMockProvider) next(req ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", errors.New("scripted mock: no more responses available")
	}
	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return content, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

var _ StreamingProvider = (*ScriptedMockProvider)(nil)

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama implements memory.Embedder against the Ollama
// embeddings API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/weft-ai/weft/pkg/resilience"
)

// Embedder converts text to vectors using an Ollama embedding model.
// Transient API failures are retried.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
	retry   resilience.RetryConfig
}

// EmbedderOption configures the embedder.
type EmbedderOption func(*Embedder)

// WithHTTPTimeout bounds a single embedding call.
func WithHTTPTimeout(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(rc resilience.RetryConfig) EmbedderOption {
	return func(e *Embedder) { e.retry = rc }
}

// NewEmbedder creates an Embedder for the given model.
func NewEmbedder(baseURL, model string, opts ...EmbedderOption) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	e := &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		retry: resilience.DefaultRetryConfig().
			WithMaxAttempts(3).
			WithIsRecoverable(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	var vec []float32
	err := e.retry.Do(ctx, func() error {
		var embErr error
		vec, embErr = e.embedOnce(ctx, text)
		return embErr
	})
	return vec, err
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama api returned status: %d", resp.StatusCode)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	vec := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

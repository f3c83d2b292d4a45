// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// EnsureCollection creates a collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Embedder converts text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Recall pairs an embedder with a vector store to remember session
// snippets and retrieve the most relevant ones for prompt assembly.
type Recall struct {
	store      VectorStore
	embedder   Embedder
	collection string
	threshold  float32
}

// NewRecall creates a semantic recall helper over an existing
// collection.
func NewRecall(store VectorStore, embedder Embedder, collection string) *Recall {
	return &Recall{
		store:      store,
		embedder:   embedder,
		collection: collection,
		threshold:  0.3,
	}
}

// Remember embeds and stores a text snippet for a session.
func (r *Recall) Remember(ctx context.Context, sessionID, text string) error {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return r.store.Upsert(ctx, r.collection, []Point{{
		ID:     uuid.NewString(),
		Vector: vector,
		Payload: map[string]any{
			"session_id": sessionID,
			"text":       text,
			"stored_at":  time.Now().UTC().Unix(),
		},
	}})
}

// Recall returns the stored texts most similar to query, best first.
func (r *Recall) Recall(ctx context.Context, query string, limit int) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := r.store.Search(ctx, r.collection, vector, limit, r.threshold)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, res := range results {
		if text, ok := res.Payload["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

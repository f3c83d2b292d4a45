package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weft-ai/weft/pkg/resilience"
)

func TestEmbedConvertsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"embedding":[0.25,0.5,0.75]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(server.URL, "test-model")
	vec, err := embedder.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(server.URL, "test-model",
		WithRetry(resilience.DefaultRetryConfig().
			WithMaxAttempts(2).
			WithInitialDelay(time.Millisecond)))

	vec, err := embedder.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 1 || calls.Load() != 2 {
		t.Errorf("vec = %v, calls = %d", vec, calls.Load())
	}
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	embedder := NewEmbedder("http://localhost:1", "test-model")
	if _, err := embedder.Embed(context.Background(), ""); err == nil {
		t.Error("want error for empty text")
	}
}

package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestInMemoryAppendAndGet(t *testing.T) {
	store := NewInMemoryConversation(ConversationConfig{})
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		err := store.AppendMessage(ctx, "s1", ConversationMessage{Role: "user", Content: content})
		if err != nil {
			t.Fatal(err)
		}
	}

	messages, err := store.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 || messages[0].Content != "one" || messages[2].Content != "three" {
		t.Errorf("messages = %v", messages)
	}
	for _, msg := range messages {
		if msg.ID == "" || msg.SessionID != "s1" || msg.CreatedAt.IsZero() {
			t.Errorf("message defaults not applied: %+v", msg)
		}
	}
}

func TestInMemoryRecentAndClear(t *testing.T) {
	store := NewInMemoryConversation(ConversationConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.AppendMessage(ctx, "s1", ConversationMessage{Role: "user", Content: string(rune('a' + i))})
	}

	recent, err := store.GetRecentMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Content != "d" || recent[1].Content != "e" {
		t.Errorf("recent = %v", recent)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if store.MessageCount("s1") != 0 {
		t.Error("Clear should remove all messages")
	}
}

func TestWindowStrategyKeepsSystemMessages(t *testing.T) {
	strategy := NewWindowStrategy(3, true)
	messages := []ConversationMessage{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
		{Role: "assistant", Content: "a2"},
	}

	out, err := strategy.Truncate(context.Background(), messages)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Role != "system" {
		t.Error("system message must survive truncation")
	}
	if out[2].Content != "a2" {
		t.Errorf("latest message lost: %v", out)
	}
}

func TestSQLiteConversationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.db")
	store, err := OpenSQLiteConversation(path, ConversationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)
	for i, content := range []string{"hello", "world", "again"} {
		err := store.AppendMessage(ctx, "s1", ConversationMessage{
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	store.AppendMessage(ctx, "s2", ConversationMessage{Role: "user", Content: "other session"})

	messages, err := store.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 || messages[0].Content != "hello" || messages[2].Content != "again" {
		t.Errorf("messages = %v", messages)
	}

	recent, err := store.GetRecentMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Content != "world" || recent[1].Content != "again" {
		t.Errorf("recent = %v", recent)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if remaining, _ := store.GetMessages(ctx, "s1"); len(remaining) != 0 {
		t.Errorf("remaining after clear = %v", remaining)
	}
	if other, _ := store.GetMessages(ctx, "s2"); len(other) != 1 {
		t.Error("Clear must be scoped to one session")
	}
}

type stubEmbedder struct{ vec []float32 }

func (s stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, nil
}

type stubVectorStore struct {
	points  []Point
	results []SearchResult
}

func (s *stubVectorStore) Upsert(_ context.Context, _ string, points []Point) error {
	s.points = append(s.points, points...)
	return nil
}

func (s *stubVectorStore) Search(_ context.Context, _ string, _ []float32, _ int, _ float32) ([]SearchResult, error) {
	return s.results, nil
}

func (s *stubVectorStore) EnsureCollection(_ context.Context, _ string, _ uint64) error {
	return nil
}

func TestRecallRememberAndRecall(t *testing.T) {
	store := &stubVectorStore{
		results: []SearchResult{
			{ID: "1", Score: 0.9, Payload: map[string]any{"text": "the capital is Paris"}},
			{ID: "2", Score: 0.5, Payload: map[string]any{"text": "unrelated"}},
		},
	}
	recall := NewRecall(store, stubEmbedder{vec: []float32{0.1, 0.2}}, "weft_recall")

	ctx := context.Background()
	if err := recall.Remember(ctx, "s1", "the capital is Paris"); err != nil {
		t.Fatal(err)
	}
	if len(store.points) != 1 || store.points[0].Payload["session_id"] != "s1" {
		t.Errorf("points = %v", store.points)
	}

	texts, err := recall.Recall(ctx, "what is the capital?", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(texts) != 2 || texts[0] != "the capital is Paris" {
		t.Errorf("texts = %v", texts)
	}
}

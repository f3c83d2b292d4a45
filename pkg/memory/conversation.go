// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides conversation history and semantic recall
// backends for sessions.
package memory

import (
	"context"
	"time"
)

// ConversationMessage is a single message in a session's history.
type ConversationMessage struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"` // system, user, assistant
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ConversationMemory stores ordered message sequences for multi-turn
// sessions. Unlike semantic recall (vector-based), retrieval here is
// strictly chronological.
type ConversationMemory interface {
	// AppendMessage adds a message to the conversation.
	AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error

	// GetMessages retrieves all messages for a session, oldest first.
	GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error)

	// GetRecentMessages retrieves the last N messages for a session.
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error)

	// Clear removes all messages for a session.
	Clear(ctx context.Context, sessionID string) error
}

// TruncationStrategy reduces a message list while preserving context.
type TruncationStrategy interface {
	Truncate(ctx context.Context, messages []ConversationMessage) ([]ConversationMessage, error)
}

// WindowStrategy keeps only the last N messages. System messages can be
// pinned regardless of the window.
type WindowStrategy struct {
	MaxMessages        int
	KeepSystemMessages bool
}

// NewWindowStrategy creates a window-based truncation strategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages, KeepSystemMessages: keepSystem}
}

// Truncate implements TruncationStrategy.
func (w *WindowStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	if len(messages) <= w.MaxMessages {
		return messages, nil
	}
	if !w.KeepSystemMessages {
		return messages[len(messages)-w.MaxMessages:], nil
	}

	var system, rest []ConversationMessage
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	available := w.MaxMessages - len(system)
	if available < 0 {
		available = 0
	}
	if len(rest) > available {
		rest = rest[len(rest)-available:]
	}

	out := make([]ConversationMessage, 0, len(system)+len(rest))
	out = append(out, system...)
	out = append(out, rest...)
	return out, nil
}

// ConversationConfig configures conversation memory behavior.
type ConversationConfig struct {
	// TruncationStrategy applied by GetMessages. Optional.
	TruncationStrategy TruncationStrategy
}

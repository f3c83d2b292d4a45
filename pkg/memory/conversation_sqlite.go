// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteConversation persists conversation history in SQLite. One
// process owns the database file; the pure-Go driver needs no cgo.
type SQLiteConversation struct {
	db     *sql.DB
	config ConversationConfig
}

// NewSQLiteConversation wraps an open database handle and ensures the
// schema exists.
func NewSQLiteConversation(db *sql.DB, config ConversationConfig) (*SQLiteConversation, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureConversationSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteConversation{db: db, config: config}, nil
}

// OpenSQLiteConversation opens (or creates) a SQLite database at path.
func OpenSQLiteConversation(path string, config ConversationConfig) (*SQLiteConversation, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteConversation(db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database handle.
func (s *SQLiteConversation) Close() error { return s.db.Close() }

// AppendMessage adds a message to the conversation.
func (s *SQLiteConversation) AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

// GetMessages retrieves all messages for a session, oldest first.
func (s *SQLiteConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	messages, err := s.query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM conversation_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	if s.config.TruncationStrategy != nil && len(messages) > 0 {
		return s.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

// GetRecentMessages retrieves the last N messages for a session.
func (s *SQLiteConversation) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		return s.query(ctx, `
			SELECT id, session_id, role, content, created_at
			FROM conversation_messages
			WHERE session_id = ?
			ORDER BY created_at ASC, rowid ASC
		`, sessionID)
	}

	recent, err := s.query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM conversation_messages
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	// Flip back to chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// Clear removes all messages for a session.
func (s *SQLiteConversation) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteConversation) query(ctx context.Context, q string, args ...any) ([]ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var (
			msg     ConversationMessage
			created sql.NullTime
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &created); err != nil {
			return nil, err
		}
		if created.Valid {
			msg.CreatedAt = created.Time
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func ensureConversationSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_session ON conversation_messages(session_id);
	`)
	return err
}

var _ ConversationMemory = (*SQLiteConversation)(nil)

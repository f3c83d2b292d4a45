// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/weft-ai/weft/pkg/core"
)

// consoleEmitter renders runtime events for a terminal, or as JSON
// lines when requested.
type consoleEmitter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func newConsoleEmitter(w io.Writer, asJSON bool) *consoleEmitter {
	return &consoleEmitter{w: w, json: asJSON}
}

type jsonEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	ActionID  string         `json:"action_id,omitempty"`
	OutputKey string         `json:"output_key,omitempty"`
	Content   string         `json:"content,omitempty"`
	Final     bool           `json:"final,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Emit implements core.Emitter.
func (c *consoleEmitter) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.json {
		line, err := json.Marshal(jsonEvent{
			Type:      string(event.Type),
			SessionID: event.SessionID,
			ActionID:  event.ActionID,
			OutputKey: event.OutputKey,
			Content:   event.Content,
			Final:     event.Final,
			Error:     event.Err,
			Timestamp: event.Timestamp,
			Payload:   event.Payload,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(c.w, string(line))
		return
	}

	switch event.Type {
	case core.EventReasoning:
		fmt.Fprintf(c.w, "[thinking] %s\n", event.Content)
	case core.EventActionStarted:
		fmt.Fprintf(c.w, "[action] %s started\n", event.ActionID)
	case core.EventActionCompleted:
		if event.Err != "" {
			fmt.Fprintf(c.w, "[action] %s failed: %s\n", event.ActionID, event.Err)
		} else {
			fmt.Fprintf(c.w, "[action] %s completed\n", event.ActionID)
		}
	case core.EventFeedUpdated:
		fmt.Fprintf(c.w, "[feed] %s updated\n", event.OutputKey)
	case core.EventError:
		fmt.Fprintf(c.w, "[error] %s\n", event.Err)
	}
	// Answers reach the user through the command output, not the
	// event log.
}

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/llm"
)

// protocolInstructions teaches the model the stream grammar the parser
// recognizes.
const protocolInstructions = `Respond using this protocol:

<thought>your private reasoning, never shown verbatim to the user</thought>
<action type="tool" mode="async" id="unique_id">{"name": "action_name", "parameters": {...}, "output_key": "optional_name", "depends_on": ["other_id"]}</action>
<response final="true">your answer to the user</response>

Rules:
- Every action needs a unique id. Reference results of earlier actions
  as $id or $output_key inside parameters and responses.
- mode is one of sync, async, fire_and_forget. Use sync only when you
  must see the result before continuing.
- Use <response final="false">...</response> when you need another turn
  after actions complete; finish with final="true".
- Emit <context_feed id="name">content</context_feed> to pin content
  for later turns.`

// assembleMessages builds the prompt for one iteration: identity,
// persona, protocol, declared actions, refreshed feed contents, current
// bindings, recall hits, and conversation history.
func (s *Session) assembleMessages(ctx context.Context, input string) []llm.Message {
	var sys strings.Builder

	fmt.Fprintf(&sys, "You are %s.\n\n", s.prof.Name)
	if s.prof.Persona != "" {
		sys.WriteString(strings.TrimSpace(s.prof.Persona))
		sys.WriteString("\n\n")
	}
	if s.prof.Instructions != "" {
		sys.WriteString(strings.TrimSpace(s.prof.Instructions))
	} else {
		sys.WriteString(protocolInstructions)
	}

	if len(s.prof.Actions) > 0 {
		sys.WriteString("\n\n## Available actions\n")
		for _, doc := range s.prof.Actions {
			typ := doc.Type
			if typ == "" {
				typ = "tool"
			}
			fmt.Fprintf(&sys, "- %s (%s)", doc.Name, typ)
			if doc.Description != "" {
				sys.WriteString(": " + doc.Description)
			}
			sys.WriteString("\n")
			for _, param := range sortedKeys(doc.Parameters) {
				fmt.Fprintf(&sys, "    %s: %s\n", param, doc.Parameters[param])
			}
		}
	}

	if feedList := s.feedMgr.List(); len(feedList) > 0 {
		for _, feed := range feedList {
			if feed.Content == "" {
				continue
			}
			fmt.Fprintf(&sys, "\n\n## Context: %s\n%s", feed.ID, feed.Content)
		}
	}

	if snapshot := s.env.Snapshot(); len(snapshot) > 0 {
		sys.WriteString("\n\n## Current variables\n")
		for _, name := range sortedKeys(snapshot) {
			fmt.Fprintf(&sys, "$%s = %s\n", name, bindings.Stringify(snapshot[name]))
		}
	}

	if s.recall != nil {
		if hits, err := s.recall.Recall(ctx, input, 3); err != nil {
			s.logger.Warn("semantic recall failed", "error", err)
		} else if len(hits) > 0 {
			sys.WriteString("\n\n## Possibly relevant past exchanges\n")
			for _, hit := range hits {
				sys.WriteString(hit)
				sys.WriteString("\n")
			}
		}
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: sys.String()}}

	history, err := s.conversation.GetRecentMessages(ctx, s.id, s.historyLimit)
	if err != nil {
		s.logger.Warn("failed to load conversation history", "error", err)
		return messages
	}
	for _, msg := range history {
		messages = append(messages, llm.Message{
			Role:    mapRole(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

func mapRole(role string) llm.Role {
	switch role {
	case "assistant":
		return llm.RoleAssistant
	case "system":
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

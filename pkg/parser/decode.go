// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// attrPattern is a permissive key="value" scan; single quotes and
// sloppy spacing around '=' are tolerated.
var attrPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// parseAttributes extracts attributes from the text between a tag's
// name and its closing '>'. Keys are lowercased; duplicates keep the
// last occurrence.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		value := m[2]
		if value == "" && m[3] != "" {
			value = m[3]
		}
		attrs[strings.ToLower(m[1])] = value
	}
	return attrs
}

// DecodeAction turns a closed action region (attributes plus raw body)
// into an Action. The upstream generator is assumed imperfect: the
// payload is cleaned before JSON parsing, and payload fields may
// override attributes. Decoded parameters are passed through resolver
// substitution; unresolved $identifier references stay literal.
//
// Decode failure is a typed PAYLOAD_ERROR, never a panic.
func DecodeAction(attrs map[string]string, body string, resolver Resolver) (*core.Action, error) {
	if resolver == nil {
		resolver = noopResolver{}
	}

	id := strings.TrimSpace(attrs["id"])
	if id == "" {
		id = "action-" + uuid.NewString()[:8]
	}

	action := core.NewAction(id)
	action.Type = core.ParseActionType(attrs["type"])
	action.Mode = core.ParseActionMode(attrs["mode"])
	action.Name = strings.TrimSpace(attrs["name"])
	action.OutputKey = strings.TrimSpace(attrs["output_key"])
	action.DependsOn = splitList(attrs["depends_on"])
	if raw := attrs["timeout"]; raw != "" {
		action.Timeout = parseTimeout(raw)
	}
	if raw := attrs["retry_count"]; raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			action.RetryCount = n
		}
	}
	if raw := attrs["skip_on_error"]; raw != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			action.SkipOnError = b
		}
	}

	cleaned := CleanPayload(body)
	if cleaned != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
			return nil, errors.New(errors.CodePayload, "action payload is not valid JSON after cleanup", err).
				WithContext("action_id", id).
				WithContext("payload", truncate(cleaned, 200)).
				WithRecoverable(true)
		}
		applyPayload(action, payload)
	}

	if action.Name == "" {
		return nil, errors.New(errors.CodePayload, "action has no name", nil).
			WithContext("action_id", id).
			WithRecoverable(true)
	}

	if action.Parameters == nil {
		action.Parameters = map[string]any{}
	}
	if resolved, ok := resolver.ResolveValue(action.Parameters).(map[string]any); ok {
		action.Parameters = resolved
	}
	return action, nil
}

// applyPayload merges decoded payload fields into the action. A body
// with a top-level "name" key is a full descriptor; a bare object is
// treated as the parameters themselves.
func applyPayload(a *core.Action, payload map[string]any) {
	name, described := payload["name"].(string)
	if !described {
		a.Parameters = payload
		return
	}

	a.Name = name
	if params, ok := payload["parameters"].(map[string]any); ok {
		a.Parameters = params
	}
	if v, ok := payload["output_key"].(string); ok && v != "" {
		a.OutputKey = v
	}
	if v, ok := payload["depends_on"]; ok {
		if deps := toStringList(v); len(deps) > 0 {
			a.DependsOn = deps
		}
	}
	switch v := payload["timeout"].(type) {
	case float64:
		a.Timeout = time.Duration(v * float64(time.Second))
	case string:
		a.Timeout = parseTimeout(v)
	}
	if v, ok := payload["retry_count"].(float64); ok && v > 0 {
		a.RetryCount = int(v)
	}
	if v, ok := payload["skip_on_error"].(bool); ok {
		a.SkipOnError = v
	}
}

// parseTimeout accepts a Go duration string or a bare number of seconds.
func parseTimeout(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toStringList(v any) []string {
	switch list := v.(type) {
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		return splitList(list)
	default:
		return nil
	}
}

// CleanPayload normalizes a raw action body before JSON parsing: code
// fences, single- and multi-line comments, and trailing commas are
// stripped. All removal is string-aware so payload values survive
// untouched.
func CleanPayload(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = stripFences(s)
	s = stripComments(s)
	s = stripTrailingCommas(s)
	return strings.TrimSpace(s)
}

func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r' || s[j] == '\n') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

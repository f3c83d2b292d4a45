// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"time"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// isInternal reports whether an action bypasses the external executor.
// Models frequently emit internal actions with type="tool", so the name
// is authoritative too.
func isInternal(action *core.Action) bool {
	if action.Type == core.ActionTypeInternal {
		return true
	}
	switch action.Name {
	case core.InternalAddContextFeed, core.InternalRemoveContextFeed,
		core.InternalSetVariable, core.InternalDeleteVariable,
		core.InternalClearContext:
		return true
	}
	return false
}

// executeInternal mutates the binding environment or feed set directly
// and returns a simple success value. The environment serializes its own
// access, so no scheduler lock is taken here.
func (s *Scheduler) executeInternal(ctx context.Context, action *core.Action) (any, error) {
	switch action.Name {
	case core.InternalSetVariable:
		name := stringParam(action.Parameters, "name", "key")
		if name == "" {
			return nil, errors.New(errors.CodePayload, "set_variable requires a name parameter", nil).
				WithContext("action_id", action.ID)
		}
		value, ok := action.Parameters["value"]
		if !ok {
			return nil, errors.New(errors.CodePayload, "set_variable requires a value parameter", nil).
				WithContext("action_id", action.ID)
		}
		s.env.Bind(name, value)
		return value, nil

	case core.InternalDeleteVariable:
		name := stringParam(action.Parameters, "name", "key")
		if name == "" {
			return nil, errors.New(errors.CodePayload, "delete_variable requires a name parameter", nil).
				WithContext("action_id", action.ID)
		}
		s.env.Delete(name)
		return true, nil

	case core.InternalClearContext:
		s.env.Clear()
		s.logger.Debug("binding environment cleared", "action_id", action.ID)
		return true, nil

	case core.InternalAddContextFeed:
		return s.addContextFeed(ctx, action)

	case core.InternalRemoveContextFeed:
		id := stringParam(action.Parameters, "id", "feed_id")
		if id == "" {
			return nil, errors.New(errors.CodePayload, "remove_context_feed requires an id parameter", nil).
				WithContext("action_id", action.ID)
		}
		if s.feeds != nil {
			s.feeds.Remove(id)
		}
		s.env.Delete(id)
		return true, nil

	default:
		return nil, errors.Newf(errors.CodeUnknownInternal, "unknown internal action %q", action.Name).
			WithContext("action_id", action.ID)
	}
}

func (s *Scheduler) addContextFeed(ctx context.Context, action *core.Action) (any, error) {
	id := stringParam(action.Parameters, "id", "feed_id")
	if id == "" {
		return nil, errors.New(errors.CodePayload, "add_context_feed requires an id parameter", nil).
			WithContext("action_id", action.ID)
	}
	if s.feeds == nil {
		return nil, errors.New(errors.CodeExecution, "no feed registry configured", nil).
			WithContext("action_id", action.ID)
	}

	feed := &core.ContextFeed{
		ID:   id,
		Type: core.ParseFeedType(stringParam(action.Parameters, "type")),
	}
	if src, ok := action.Parameters["source"].(map[string]any); ok {
		feed.Source = src
	}
	if content := stringParam(action.Parameters, "content"); content != "" {
		feed.Content = content
		feed.FetchedAt = time.Now().UTC()
	}
	if ttl, ok := action.Parameters["cache_ttl"].(float64); ok && ttl > 0 {
		feed.CacheTTL = time.Duration(ttl * float64(time.Second))
	}
	if max, ok := action.Parameters["max_tokens"].(float64); ok && max > 0 {
		feed.MaxTokens = int(max)
	}

	s.feeds.Register(feed)
	if feed.Content != "" {
		s.env.Bind(feed.ID, feed.Content)
		s.emitFeedUpdated(ctx, feed)
	}
	return true, nil
}

func (s *Scheduler) emitFeedUpdated(ctx context.Context, feed *core.ContextFeed) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventFeedUpdated, sessionID)
	event.OutputKey = feed.ID
	event.Content = bindings.Stringify(feed.Content)
	s.emitter.Emit(ctx, event)
}

func stringParam(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

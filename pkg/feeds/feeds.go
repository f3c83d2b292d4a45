// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package feeds manages context feeds: named, dynamically resolved
// pieces of contextual content injected into subsequent prompts. Feed
// sources resolve through the same Executor boundary as actions.
package feeds

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// charsPerToken approximates token budgets for MaxTokens truncation.
const charsPerToken = 4

// Manager is the per-session feed registry.
type Manager struct {
	executor core.Executor
	env      *bindings.Environment
	emitter  core.Emitter
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	feeds map[string]*core.ContextFeed
	order []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor sets the boundary feed sources resolve through.
func WithExecutor(executor core.Executor) Option {
	return func(m *Manager) { m.executor = executor }
}

// WithEnvironment sets the environment feed contents are bound into.
func WithEnvironment(env *bindings.Environment) Option {
	return func(m *Manager) {
		if env != nil {
			m.env = env
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(emitter core.Emitter) Option {
	return func(m *Manager) {
		if emitter != nil {
			m.emitter = emitter
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an empty feed registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		env:     bindings.New(),
		emitter: core.NoopEmitter{},
		logger:  slog.Default(),
		now:     time.Now,
		feeds:   make(map[string]*core.ContextFeed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds or replaces a feed. Registration order is kept stable
// for listing and prompt assembly.
func (m *Manager) Register(feed *core.ContextFeed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.feeds[feed.ID]; !seen {
		m.order = append(m.order, feed.ID)
	}
	m.feeds[feed.ID] = feed
}

// Remove deletes a feed, reporting whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feeds[id]; !ok {
		return false
	}
	delete(m.feeds, id)
	for i, fid := range m.order {
		if fid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a feed by id.
func (m *Manager) Get(id string) (*core.ContextFeed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed, ok := m.feeds[id]
	return feed, ok
}

// List returns every feed in registration order.
func (m *Manager) List() []*core.ContextFeed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.ContextFeed, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.feeds[id])
	}
	return out
}

// SetContent sets a feed's content directly (internal-type feeds and
// content carried by stream tags), binds it, and emits feed.updated.
func (m *Manager) SetContent(ctx context.Context, id, content string) {
	m.mu.Lock()
	feed, ok := m.feeds[id]
	if !ok {
		feed = &core.ContextFeed{ID: id, Type: core.FeedInternal}
		m.feeds[id] = feed
		m.order = append(m.order, id)
	}
	feed.Content = truncateTokens(content, feed.MaxTokens)
	feed.FetchedAt = m.now()
	m.mu.Unlock()

	m.env.Bind(id, feed.Content)
	m.emitUpdated(ctx, feed)
}

// Refresh resolves every on_demand and periodic feed whose cache has
// lapsed. internal and other feeds are left untouched. A feed that
// fails to resolve keeps its previous content; resolution failures do
// not abort the pass.
func (m *Manager) Refresh(ctx context.Context) {
	for _, feed := range m.List() {
		if feed.Type != core.FeedOnDemand && feed.Type != core.FeedPeriodic {
			continue
		}
		if !feed.Stale(m.now()) {
			continue
		}
		if err := m.resolve(ctx, feed); err != nil {
			m.logger.Warn("context feed resolution failed", "feed_id", feed.ID, "error", err)
			m.emitError(ctx, feed, err)
		}
	}
}

func (m *Manager) resolve(ctx context.Context, feed *core.ContextFeed) error {
	if m.executor == nil {
		return errors.New(errors.CodeExecution, "no executor configured for feed resolution", nil).
			WithContext("feed_id", feed.ID)
	}

	action := sourceAction(feed)
	result, err := m.executor.Execute(ctx, action)
	if err != nil {
		return errors.New(errors.CodeExecution, "feed source returned an error", err).
			WithContext("feed_id", feed.ID).
			WithRecoverable(true)
	}

	m.mu.Lock()
	feed.Content = truncateTokens(bindings.Stringify(result), feed.MaxTokens)
	feed.FetchedAt = m.now()
	m.mu.Unlock()

	m.env.Bind(feed.ID, feed.Content)
	m.emitUpdated(ctx, feed)
	return nil
}

// sourceAction translates a feed's source descriptor into the action
// shape the execution boundary understands.
func sourceAction(feed *core.ContextFeed) *core.Action {
	action := core.NewAction("feed-" + feed.ID)
	action.Mode = core.ModeSync
	if name, ok := feed.Source["name"].(string); ok {
		action.Name = name
	}
	if typ, ok := feed.Source["type"].(string); ok {
		action.Type = core.ParseActionType(typ)
	}
	if params, ok := feed.Source["parameters"].(map[string]any); ok {
		action.Parameters = params
	} else {
		action.Parameters = feed.Source
	}
	if action.Parameters == nil {
		action.Parameters = map[string]any{}
	}
	return action
}

func (m *Manager) emitUpdated(ctx context.Context, feed *core.ContextFeed) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventFeedUpdated, sessionID)
	event.OutputKey = feed.ID
	event.Content = feed.Content
	m.emitter.Emit(ctx, event)
}

func (m *Manager) emitError(ctx context.Context, feed *core.ContextFeed, err error) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventError, sessionID)
	event.OutputKey = feed.ID
	event.Err = err.Error()
	m.emitter.Emit(ctx, event)
}

func truncateTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}
	limit := maxTokens * charsPerToken
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

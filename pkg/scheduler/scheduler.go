// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler decides when decoded actions run. Actions with
// satisfied dependencies dispatch to the execution boundary immediately;
// the rest wait in a pending queue that is rescanned whenever a
// dependency completes. Cascading, never polling.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
	"github.com/weft-ai/weft/pkg/resilience"
)

// FeedRegistry is the subset of feed management the internal actions
// need. feeds.Manager satisfies it.
type FeedRegistry interface {
	Register(feed *core.ContextFeed)
	Remove(id string) bool
}

// Scheduler tracks action lifecycle for one session. Action and pending
// state mutate under its mutex: the parse loop submits from one
// goroutine, async completions re-enter from theirs. The binding
// environment serializes its own access.
type Scheduler struct {
	executor core.Executor
	emitter  core.Emitter
	env      *bindings.Environment
	feeds    FeedRegistry
	logger   *slog.Logger
	retry    resilience.RetryConfig

	mu       sync.Mutex
	actions  map[string]*core.Action
	pending  []*core.Action
	inflight sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEmitter sets the event emitter.
func WithEmitter(emitter core.Emitter) Option {
	return func(s *Scheduler) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithEnvironment sets the binding environment completed outputs are
// bound into.
func WithEnvironment(env *bindings.Environment) Option {
	return func(s *Scheduler) {
		if env != nil {
			s.env = env
		}
	}
}

// WithFeeds sets the registry mutated by add/remove_context_feed.
func WithFeeds(registry FeedRegistry) Option {
	return func(s *Scheduler) { s.feeds = registry }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetry sets the base retry configuration applied to actions that
// declare a retry_count.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Scheduler) { s.retry = cfg }
}

// New creates a scheduler dispatching to executor.
func New(executor core.Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		executor: executor,
		emitter:  core.NoopEmitter{},
		env:      bindings.New(),
		logger:   slog.Default(),
		retry:    resilience.DefaultRetryConfig(),
		actions:  make(map[string]*core.Action),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Environment returns the binding environment the scheduler writes to.
func (s *Scheduler) Environment() *bindings.Environment { return s.env }

// Submit registers an action and dispatches it if its dependencies are
// already satisfied, otherwise enqueues it pending. A duplicate ID
// replaces the previous tracking entry.
func (s *Scheduler) Submit(ctx context.Context, action *core.Action) {
	s.mu.Lock()
	if _, seen := s.actions[action.ID]; seen {
		s.logger.Warn("duplicate action id replaces previous tracking entry", "action_id", action.ID)
		s.dropPendingLocked(action.ID)
	}
	s.actions[action.ID] = action

	if !s.satisfiedLocked(action) {
		action.Status = core.StatusPending
		s.pending = append(s.pending, action)
		s.logger.Debug("action deferred on dependencies",
			"action_id", action.ID, "depends_on", action.DependsOn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.dispatch(ctx, action)
}

// Wait blocks until every in-flight async dispatch has completed. Sync
// actions finish before Submit returns and are not tracked here.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unresolved returns the actions still pending after end of stream:
// cyclic or permanently-unsatisfiable depends_on sets. A diagnostic,
// never a crash.
func (s *Scheduler) Unresolved() []*core.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Action, 0, len(s.pending))
	for _, a := range s.pending {
		if a.Status == core.StatusPending {
			out = append(out, a)
		}
	}
	return out
}

// Action returns the tracking entry for an id.
func (s *Scheduler) Action(id string) (*core.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	return a, ok
}

// Completed returns every terminal action in no particular order.
func (s *Scheduler) Completed() []*core.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Action
	for _, a := range s.actions {
		if a.Terminal() {
			out = append(out, a)
		}
	}
	return out
}

func (s *Scheduler) satisfiedLocked(action *core.Action) bool {
	for _, dep := range action.DependsOn {
		entry, ok := s.actions[dep]
		if !ok || !entry.Unblocks() {
			return false
		}
	}
	return true
}

func (s *Scheduler) dropPendingLocked(id string) {
	for i, a := range s.pending {
		if a.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// dispatch runs an action according to its mode. Sync runs inline so
// the parse loop suspends; async and fire_and_forget run in a goroutine
// and the parser keeps scanning.
func (s *Scheduler) dispatch(ctx context.Context, action *core.Action) {
	s.mu.Lock()
	action.Status = core.StatusExecuting
	action.StartedAt = time.Now().UTC()
	s.mu.Unlock()

	s.emitStarted(ctx, action)

	if action.Mode == core.ModeSync {
		s.run(ctx, action)
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run(ctx, action)
	}()
}

func (s *Scheduler) run(ctx context.Context, action *core.Action) {
	result, err := s.execute(ctx, action)
	s.complete(ctx, action, result, err)
}

// execute performs the actual call: internal actions are handled
// without the external executor; everything else goes through the
// execution boundary with the action's timeout and retry budget.
func (s *Scheduler) execute(ctx context.Context, action *core.Action) (any, error) {
	if isInternal(action) {
		return s.executeInternal(ctx, action)
	}
	if s.executor == nil {
		return nil, errors.New(errors.CodeExecution, "no executor configured", nil).
			WithContext("action_id", action.ID)
	}

	call := func(ctx context.Context) (any, error) {
		return s.executor.Execute(ctx, action)
	}
	if action.Timeout > 0 {
		inner := call
		call = func(ctx context.Context) (any, error) {
			return resilience.WithTimeoutResult(ctx, action.Timeout, inner)
		}
	}
	if action.RetryCount > 0 {
		cfg := s.retry.WithMaxAttempts(action.RetryCount + 1)
		return cfg.DoWithResult(ctx, func() (any, error) { return call(ctx) })
	}
	return call(ctx)
}

// complete records the outcome, binds outputs, and cascades: every
// pending action whose dependencies are now satisfied is dispatched,
// in submission order.
func (s *Scheduler) complete(ctx context.Context, action *core.Action, result any, err error) {
	s.mu.Lock()
	action.FinishedAt = time.Now().UTC()
	if err != nil {
		action.Status = core.StatusFailed
		action.Error = err.Error()
	} else {
		action.Status = core.StatusCompleted
		action.Result = result
		s.env.Bind(action.ID, result)
		if action.OutputKey != "" {
			s.env.Bind(action.OutputKey, result)
		}
	}

	var ready []*core.Action
	if action.Unblocks() {
		remaining := s.pending[:0]
		for _, candidate := range s.pending {
			if s.satisfiedLocked(candidate) {
				ready = append(ready, candidate)
			} else {
				remaining = append(remaining, candidate)
			}
		}
		s.pending = remaining
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("action failed",
			"action_id", action.ID, "name", action.Name,
			"skip_on_error", action.SkipOnError, "error", err)
		s.emitFailed(ctx, action, err)
	} else {
		s.emitCompleted(ctx, action, result)
	}

	for _, next := range ready {
		s.dispatch(ctx, next)
	}
}

func (s *Scheduler) emitStarted(ctx context.Context, action *core.Action) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventActionStarted, sessionID)
	event.ActionID = action.ID
	event.OutputKey = action.OutputKey
	event.Payload = map[string]any{
		"type": string(action.Type),
		"mode": string(action.Mode),
		"name": action.Name,
	}
	s.emitter.Emit(ctx, event)
}

func (s *Scheduler) emitCompleted(ctx context.Context, action *core.Action, result any) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventActionCompleted, sessionID)
	event.ActionID = action.ID
	event.OutputKey = action.OutputKey
	event.Content = bindings.Stringify(result)
	s.emitter.Emit(ctx, event)
}

func (s *Scheduler) emitFailed(ctx context.Context, action *core.Action, err error) {
	sessionID, _ := core.SessionID(ctx)
	event := core.NewEvent(core.EventError, sessionID)
	event.ActionID = action.ID
	event.Err = err.Error()
	if we := errors.AsWeftError(err); we != nil {
		event.Payload = map[string]any{"code": string(we.Code)}
	}
	s.emitter.Emit(ctx, event)
}

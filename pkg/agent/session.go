// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the iteration controller: it assembles
// prompts, streams model output through the parser, lets the scheduler
// drain, and decides whether to loop again or stop.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
	"github.com/weft-ai/weft/pkg/feeds"
	"github.com/weft-ai/weft/pkg/guardrails"
	"github.com/weft-ai/weft/pkg/llm"
	"github.com/weft-ai/weft/pkg/memory"
	"github.com/weft-ai/weft/pkg/parser"
	"github.com/weft-ai/weft/pkg/profile"
	"github.com/weft-ai/weft/pkg/scheduler"
)

const (
	defaultMaxIterations = 10
	defaultHistoryLimit  = 50
)

// Session drives one conversation: a persistent binding environment and
// scheduler, plus a fresh parser per iteration. One Session serves one
// conversation exclusively.
type Session struct {
	id           string
	provider     llm.Provider
	executor     core.Executor
	emitter      core.Emitter
	prof         *profile.Profile
	conversation memory.ConversationMemory
	recall       *memory.Recall
	guard        *guardrails.Guardrails
	logger       *slog.Logger
	tracer       trace.Tracer

	env     *bindings.Environment
	feedMgr *feeds.Manager
	sched   *scheduler.Scheduler

	model         string
	temperature   float64
	maxIterations int
	historyLimit  int
	coalesce      int
}

// Option configures a Session.
type Option func(*Session)

// WithExecutor sets the external execution boundary.
func WithExecutor(executor core.Executor) Option {
	return func(s *Session) { s.executor = executor }
}

// WithEmitter sets the event emitter.
func WithEmitter(emitter core.Emitter) Option {
	return func(s *Session) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithProfile sets the agent profile.
func WithProfile(p *profile.Profile) Option {
	return func(s *Session) {
		if p != nil {
			s.prof = p
		}
	}
}

// WithConversation sets the conversation history backend.
func WithConversation(conv memory.ConversationMemory) Option {
	return func(s *Session) {
		if conv != nil {
			s.conversation = conv
		}
	}
}

// WithRecall enables semantic recall during prompt assembly.
func WithRecall(recall *memory.Recall) Option {
	return func(s *Session) { s.recall = recall }
}

// WithGuardrails enables input checking and output filtering.
func WithGuardrails(guard *guardrails.Guardrails) Option {
	return func(s *Session) { s.guard = guard }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithModel sets the model name passed to the provider.
func WithModel(model string) Option {
	return func(s *Session) { s.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Session) { s.temperature = t }
}

// WithMaxIterations caps the number of prompt/stream cycles.
func WithMaxIterations(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithHistoryLimit bounds how many past messages enter the prompt.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithSessionID fixes the session identifier.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithCoalesceThreshold sets the parser's reasoning coalescing
// threshold.
func WithCoalesceThreshold(chars int) Option {
	return func(s *Session) { s.coalesce = chars }
}

// NewSession creates a session around a model provider.
func NewSession(provider llm.Provider, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeInternal, "session requires a model provider", nil)
	}

	s := &Session{
		provider:      provider,
		emitter:       core.NoopEmitter{},
		prof:          profile.Default(),
		conversation:  memory.NewInMemoryConversation(memory.ConversationConfig{}),
		logger:        slog.Default(),
		tracer:        otel.Tracer("weft/agent"),
		env:           bindings.New(),
		maxIterations: defaultMaxIterations,
		historyLimit:  defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		_, s.id = core.EnsureSessionID(context.Background())
	}
	if s.prof.MaxIterations > 0 && s.maxIterations == defaultMaxIterations {
		s.maxIterations = s.prof.MaxIterations
	}

	s.feedMgr = feeds.NewManager(
		feeds.WithExecutor(s.executor),
		feeds.WithEnvironment(s.env),
		feeds.WithEmitter(s.emitter),
		feeds.WithLogger(s.logger),
	)
	s.sched = scheduler.New(s.executor,
		scheduler.WithEmitter(s.emitter),
		scheduler.WithEnvironment(s.env),
		scheduler.WithFeeds(s.feedMgr),
		scheduler.WithLogger(s.logger),
	)

	for _, feed := range s.prof.Feeds() {
		s.feedMgr.Register(feed)
		if feed.Content != "" {
			s.env.Bind(feed.ID, feed.Content)
		}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Environment returns the session's binding environment.
func (s *Session) Environment() *bindings.Environment { return s.env }

// Run processes one user input through up to maxIterations model
// cycles and returns the final reply. A provider failure is converted
// into a synthesized error reply, never propagated.
func (s *Session) Run(ctx context.Context, input string) (string, error) {
	ctx = core.WithSessionID(ctx, s.id)
	ctx, span := s.tracer.Start(ctx, "session.run",
		trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	if s.guard != nil {
		if check := s.guard.CheckInput(ctx, input); check.Blocked {
			s.logger.Warn("input blocked by guardrail",
				"session_id", s.id, "guardrail", check.GuardrailID, "reason", check.Reason)
			reply := "I can't process that request: " + check.Reason
			s.emitAnswer(ctx, reply, true)
			return reply, nil
		}
	}

	if err := s.conversation.AppendMessage(ctx, s.id, memory.ConversationMessage{
		Role:    "user",
		Content: input,
	}); err != nil {
		s.logger.Warn("failed to record user message", "error", err)
	}

	for iteration := 1; iteration <= s.maxIterations; iteration++ {
		reply, final, err := s.iterate(ctx, iteration, input)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return s.errorReply(ctx, err), nil
		}
		if final {
			span.SetAttributes(attribute.Int("session.iterations", iteration))
			return reply, nil
		}
	}

	s.logger.Warn("iteration cap reached without a final answer",
		"session_id", s.id, "max_iterations", s.maxIterations)
	return s.cappedReply(ctx), nil
}

// iterate runs one full prompt/stream/parse/drain cycle. The parser is
// fresh each iteration; environment, feeds, and scheduler persist.
func (s *Session) iterate(ctx context.Context, iteration int, input string) (string, bool, error) {
	s.feedMgr.Refresh(ctx)

	messages := s.assembleMessages(ctx, input)
	chunks, err := llm.Stream(ctx, s.provider, llm.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", false, errors.New(errors.CodeLLM, "model call failed", err)
	}

	var responses []core.Response
	sink := parser.SinkFuncs{
		Reasoning: func(ctx context.Context, fragment string) {
			s.emitReasoning(ctx, fragment)
		},
		Action: func(ctx context.Context, action *core.Action) {
			s.sched.Submit(ctx, action)
		},
		Response: func(_ context.Context, resp core.Response) {
			responses = append(responses, resp)
		},
		ContextFeed: func(ctx context.Context, id, content string) {
			s.feedMgr.SetContent(ctx, id, content)
		},
		Error: func(ctx context.Context, err error) {
			s.emitError(ctx, err)
		},
	}

	opts := []parser.Option{parser.WithResolver(s.env), parser.WithLogger(s.logger)}
	if s.coalesce > 0 {
		opts = append(opts, parser.WithCoalesceThreshold(s.coalesce))
	}
	p := parser.New(sink, opts...)

	var streamErr error
	for chunk := range chunks {
		if chunk.Error != nil {
			streamErr = chunk.Error
			break
		}
		p.Feed(ctx, chunk.Content)
		if chunk.Done {
			break
		}
	}
	p.Close(ctx)
	if streamErr != nil {
		return "", false, errors.New(errors.CodeLLM, "model stream failed", streamErr)
	}

	if err := s.sched.Wait(ctx); err != nil {
		return "", false, err
	}
	s.reportUnresolved(ctx)

	// Answers are emitted after the scheduler drains so outputs of
	// actions that completed during this iteration resolve.
	var finalContent string
	var sawFinal bool
	resolved := make([]string, 0, len(responses))
	for _, resp := range responses {
		content := s.filterOutput(ctx, s.env.Resolve(resp.Content))
		resolved = append(resolved, content)
		s.emitAnswer(ctx, content, resp.Final)
		if resp.Final {
			sawFinal = true
			finalContent = content
		}
	}

	if sawFinal {
		s.recordAssistant(ctx, finalContent)
		s.remember(ctx, input, finalContent)
		return finalContent, true, nil
	}

	s.recordAssistant(ctx, s.iterationSummary(iteration, resolved))
	return "", false, nil
}

// reportUnresolved surfaces dependency deadlocks after end of stream.
func (s *Session) reportUnresolved(ctx context.Context) {
	for _, action := range s.sched.Unresolved() {
		err := errors.Newf(errors.CodeDeadlock,
			"action %q still pending at end of stream, depends_on %v", action.ID, action.DependsOn)
		s.logger.Warn("unresolved dependency", "action_id", action.ID, "depends_on", action.DependsOn)
		s.emitError(ctx, err)
	}
}

// iterationSummary records what a non-final iteration produced so the
// next prompt carries the results forward.
func (s *Session) iterationSummary(iteration int, responses []string) string {
	var b strings.Builder
	b.WriteString("[continuing]")
	for _, content := range responses {
		if content != "" {
			b.WriteString("\n")
			b.WriteString(content)
		}
	}
	for _, a := range s.sched.Completed() {
		if a.Status == core.StatusCompleted {
			b.WriteString("\naction ")
			b.WriteString(a.ID)
			if a.Name != "" {
				b.WriteString(" (" + a.Name + ")")
			}
			b.WriteString(" -> ")
			b.WriteString(bindings.Stringify(a.Result))
		} else {
			b.WriteString("\naction ")
			b.WriteString(a.ID)
			b.WriteString(" failed: ")
			b.WriteString(a.Error)
		}
	}
	return b.String()
}

// filterOutput runs guardrail output filters over resolved answer
// content before it is emitted or recorded.
func (s *Session) filterOutput(ctx context.Context, content string) string {
	if s.guard == nil {
		return content
	}
	result := s.guard.FilterOutput(ctx, content)
	if result.Modified {
		s.logger.Info("answer content filtered",
			"session_id", s.id, "redactions", len(result.Redactions))
	}
	return result.Content
}

// errorReply converts a provider failure into a terminal, user-visible
// reply.
func (s *Session) errorReply(ctx context.Context, err error) string {
	s.logger.Error("model call failed, synthesizing error reply", "session_id", s.id, "error", err)
	s.emitError(ctx, err)

	reply := "I ran into an internal error and could not complete your request. Please try again."
	s.emitAnswer(ctx, reply, true)
	s.recordAssistant(ctx, reply)
	return reply
}

// cappedReply terminates a session that hit the iteration cap.
func (s *Session) cappedReply(ctx context.Context) string {
	reply := "I could not reach a final answer within the allowed number of steps."
	s.emitAnswer(ctx, reply, true)
	s.recordAssistant(ctx, reply)
	return reply
}

func (s *Session) recordAssistant(ctx context.Context, content string) {
	if err := s.conversation.AppendMessage(ctx, s.id, memory.ConversationMessage{
		Role:    "assistant",
		Content: content,
	}); err != nil {
		s.logger.Warn("failed to record assistant message", "error", err)
	}
}

// remember stores the exchange for semantic recall, best effort.
func (s *Session) remember(ctx context.Context, input, reply string) {
	if s.recall == nil {
		return
	}
	if err := s.recall.Remember(ctx, s.id, "Q: "+input+"\nA: "+reply); err != nil {
		s.logger.Warn("semantic recall store failed", "error", err)
	}
}

func (s *Session) emitReasoning(ctx context.Context, fragment string) {
	event := core.NewEvent(core.EventReasoning, s.id)
	event.Content = fragment
	s.emitter.Emit(ctx, event)
}

func (s *Session) emitAnswer(ctx context.Context, content string, final bool) {
	event := core.NewEvent(core.EventAnswer, s.id)
	event.Content = content
	event.Final = final
	s.emitter.Emit(ctx, event)
}

func (s *Session) emitError(ctx context.Context, err error) {
	event := core.NewEvent(core.EventError, s.id)
	event.Err = err.Error()
	if we := errors.AsWeftError(err); we != nil {
		event.Payload = map[string]any{"code": string(we.Code)}
	}
	s.emitter.Emit(ctx, event)
}

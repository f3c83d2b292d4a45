// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package parser implements the tokenizer/state machine that turns a
// chunked model stream into structural units: reasoning fragments,
// decoded actions, answer blocks, and context-feed updates. Chunks may
// split tags, attributes, or JSON payloads at any byte.
package parser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

// State is the active region of the state machine. Exactly one state is
// active at any time; transitions happen only on recognized tag
// boundaries. The string values match the protocol tag names.
type State string

const (
	StateIdle        State = "idle"
	StateThought     State = "thought"
	StateAction      State = "action"
	StateResponse    State = "response"
	StateContextFeed State = "context_feed"
)

// Sink receives each structural unit as the parser recognizes it, in
// arrival order. Implementations must not retain the action pointer
// beyond the call unless they own it afterwards (they do: the parser
// never touches an action again once handed over).
type Sink interface {
	OnReasoning(ctx context.Context, fragment string)
	OnAction(ctx context.Context, action *core.Action)
	OnResponse(ctx context.Context, response core.Response)
	OnContextFeed(ctx context.Context, id, content string)
	OnError(ctx context.Context, err error)
}

// SinkFuncs adapts individual functions to the Sink interface. Nil
// fields are no-ops.
type SinkFuncs struct {
	Reasoning   func(ctx context.Context, fragment string)
	Action      func(ctx context.Context, action *core.Action)
	Response    func(ctx context.Context, response core.Response)
	ContextFeed func(ctx context.Context, id, content string)
	Error       func(ctx context.Context, err error)
}

func (s SinkFuncs) OnReasoning(ctx context.Context, fragment string) {
	if s.Reasoning != nil {
		s.Reasoning(ctx, fragment)
	}
}

func (s SinkFuncs) OnAction(ctx context.Context, action *core.Action) {
	if s.Action != nil {
		s.Action(ctx, action)
	}
}

func (s SinkFuncs) OnResponse(ctx context.Context, response core.Response) {
	if s.Response != nil {
		s.Response(ctx, response)
	}
}

func (s SinkFuncs) OnContextFeed(ctx context.Context, id, content string) {
	if s.ContextFeed != nil {
		s.ContextFeed(ctx, id, content)
	}
}

func (s SinkFuncs) OnError(ctx context.Context, err error) {
	if s.Error != nil {
		s.Error(ctx, err)
	}
}

// Resolver substitutes $identifier references with bound values.
// bindings.Environment satisfies it.
type Resolver interface {
	Resolve(text string) string
	ResolveValue(value any) any
}

type noopResolver struct{}

func (noopResolver) Resolve(text string) string { return text }
func (noopResolver) ResolveValue(v any) any     { return v }

const (
	// defaultCoalesce is the reasoning flush threshold in characters.
	defaultCoalesce = 64

	// maxOpenTagLen bounds how long a '<' is held as a possible tag
	// start before being discarded as plain text.
	maxOpenTagLen = 256
)

// Parser is a per-session, single-goroutine stream tokenizer. One
// instance serves one model response; the iteration controller builds a
// fresh one per iteration while keeping the binding environment.
type Parser struct {
	sink     Sink
	resolver Resolver
	coalesce int
	logger   *slog.Logger

	state       State
	buf         string
	region      strings.Builder
	reason      string
	openAttrs   map[string]string
	thoughtOpen bool
	sawTag      bool
	raw         strings.Builder
	closed      bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithResolver sets the substitution resolver applied to action
// parameters at decode time and response content at emission time.
func WithResolver(r Resolver) Option {
	return func(p *Parser) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithCoalesceThreshold sets the reasoning coalescing threshold.
func WithCoalesceThreshold(chars int) Option {
	return func(p *Parser) {
		if chars > 0 {
			p.coalesce = chars
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a parser delivering recognized units to sink.
func New(sink Sink, opts ...Option) *Parser {
	p := &Parser{
		sink:     sink,
		resolver: noopResolver{},
		coalesce: defaultCoalesce,
		logger:   slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the currently active region.
func (p *Parser) State() State { return p.state }

// Feed appends one stream chunk and scans for structural units. It
// never returns an error: malformed input surfaces through the sink's
// OnError and scanning continues.
func (p *Parser) Feed(ctx context.Context, chunk string) {
	if p.closed || chunk == "" {
		return
	}
	p.raw.WriteString(chunk)
	p.buf += chunk
	p.scan(ctx)
}

// Close ends the stream. An unterminated thought or response flushes
// its content; an unterminated action or context_feed region produces
// one error event. If the entire stream carried no recognized tag, the
// whole buffer is emitted as a single final answer: a deliberate
// recovery path for non-compliant model output.
func (p *Parser) Close(ctx context.Context) {
	if p.closed {
		return
	}
	p.closed = true

	switch p.state {
	case StateThought:
		p.appendReasoning(ctx, p.buf)
		p.flushReasoning(ctx)
	case StateResponse:
		p.region.WriteString(p.buf)
		p.finishResponse(ctx, p.openAttrs, p.region.String())
	case StateAction:
		p.sink.OnError(ctx, errors.New(errors.CodeParse, "stream ended inside an unterminated action region", nil).
			WithContext("action_id", p.openAttrs["id"]).
			WithRecoverable(true))
	case StateContextFeed:
		p.sink.OnError(ctx, errors.New(errors.CodeParse, "stream ended inside an unterminated context_feed region", nil).
			WithContext("feed_id", p.openAttrs["id"]).
			WithRecoverable(true))
	case StateIdle:
		if !p.sawTag {
			if text := strings.TrimSpace(stripFences(p.raw.String())); text != "" {
				p.logger.Debug("no protocol tags recognized, recovering stream as plain-text answer",
					"code", string(errors.CodeFallbackPlainText),
					"chars", len(text))
				p.sink.OnError(ctx, errors.New(errors.CodeFallbackPlainText,
					"no protocol tags recognized, recovering stream as plain-text answer", nil).
					WithContext("chars", len(text)).
					WithRecoverable(true))
				p.sink.OnResponse(ctx, core.Response{Content: p.resolver.Resolve(text), Final: true})
			}
		}
	}

	p.buf = ""
	p.region.Reset()
	p.state = StateIdle
}

func (p *Parser) scan(ctx context.Context) {
	for {
		var progressed bool
		switch p.state {
		case StateIdle:
			progressed = p.scanIdle(ctx)
		case StateThought:
			progressed = p.scanThought(ctx)
		default:
			progressed = p.scanRegion(ctx)
		}
		if !progressed {
			return
		}
	}
}

// scanIdle discards untagged content up to the next recognized opening
// tag. A trailing '<' that could still become a tag is retained for the
// next chunk.
func (p *Parser) scanIdle(ctx context.Context) bool {
	lt := strings.IndexByte(p.buf, '<')
	if lt < 0 {
		p.buf = ""
		return false
	}
	p.buf = p.buf[lt:]

	name, attrs, consumed, partial := tryOpenTag(p.buf)
	if partial {
		return false
	}
	if name == "" {
		p.buf = p.buf[1:]
		return true
	}
	p.buf = p.buf[consumed:]
	p.enter(name, attrs)
	return true
}

func (p *Parser) enter(name string, attrs map[string]string) {
	p.sawTag = true
	p.openAttrs = attrs
	switch name {
	case "thought":
		p.state = StateThought
	case "action":
		p.state = StateAction
		p.region.Reset()
	case "response":
		p.state = StateResponse
		p.region.Reset()
	case "context_feed":
		p.state = StateContextFeed
		p.region.Reset()
	}
}

// scanThought accumulates reasoning content until the closing tag. An
// action tag opened inside the thought does not close it: the
// thought-so-far is flushed, the action is processed as a nested unit,
// and reasoning resumes afterwards.
func (p *Parser) scanThought(ctx context.Context) bool {
	const closeTag = "</thought>"

	closeIdx := strings.Index(p.buf, closeTag)
	openIdx := strings.Index(p.buf, "<action")

	if closeIdx >= 0 && (openIdx < 0 || closeIdx < openIdx) {
		p.appendReasoning(ctx, p.buf[:closeIdx])
		p.buf = p.buf[closeIdx+len(closeTag):]
		p.flushReasoning(ctx)
		p.state = StateIdle
		p.thoughtOpen = false
		return true
	}

	if openIdx >= 0 && (closeIdx < 0 || openIdx < closeIdx) {
		p.appendReasoning(ctx, p.buf[:openIdx])
		p.buf = p.buf[openIdx:]

		name, attrs, consumed, partial := tryOpenTag(p.buf)
		if partial {
			return false
		}
		if name != "action" {
			// Looked like an action tag but was not one; keep the '<'
			// as reasoning text.
			p.appendReasoning(ctx, p.buf[:1])
			p.buf = p.buf[1:]
			return true
		}
		p.flushReasoning(ctx)
		p.buf = p.buf[consumed:]
		p.openAttrs = attrs
		p.state = StateAction
		p.thoughtOpen = true
		p.region.Reset()
		return true
	}

	// Neither marker present: hold back a tail that could be the start
	// of one, release the rest as reasoning.
	keep := keepSuffix(p.buf, closeTag, "<action")
	p.appendReasoning(ctx, p.buf[:len(p.buf)-keep])
	p.buf = p.buf[len(p.buf)-keep:]
	return false
}

// scanRegion accumulates content of an open action, response, or
// context_feed region until its closing tag arrives.
func (p *Parser) scanRegion(ctx context.Context) bool {
	closeTag := "</" + string(p.state) + ">"

	idx := strings.Index(p.buf, closeTag)
	if idx < 0 {
		keep := keepSuffix(p.buf, closeTag)
		p.region.WriteString(p.buf[:len(p.buf)-keep])
		p.buf = p.buf[len(p.buf)-keep:]
		return false
	}

	p.region.WriteString(p.buf[:idx])
	p.buf = p.buf[idx+len(closeTag):]

	body := p.region.String()
	p.region.Reset()
	attrs := p.openAttrs
	p.openAttrs = nil
	closedState := p.state

	if closedState == StateAction && p.thoughtOpen {
		p.state = StateThought
	} else {
		p.state = StateIdle
	}

	switch closedState {
	case StateAction:
		p.finishAction(ctx, attrs, body)
	case StateResponse:
		p.finishResponse(ctx, attrs, body)
	case StateContextFeed:
		p.finishFeed(ctx, attrs, body)
	}
	return true
}

func (p *Parser) finishAction(ctx context.Context, attrs map[string]string, body string) {
	action, err := DecodeAction(attrs, body, p.resolver)
	if err != nil {
		p.logger.Warn("action decode failed", "error", err)
		p.sink.OnError(ctx, err)
		return
	}
	action.EmbeddedInThought = p.thoughtOpen
	p.sink.OnAction(ctx, action)
}

func (p *Parser) finishResponse(ctx context.Context, attrs map[string]string, body string) {
	final := true
	if raw, ok := attrs["final"]; ok && strings.EqualFold(strings.TrimSpace(raw), "false") {
		final = false
	}
	content := p.resolver.Resolve(strings.TrimSpace(body))
	p.sink.OnResponse(ctx, core.Response{Content: content, Final: final})
}

func (p *Parser) finishFeed(ctx context.Context, attrs map[string]string, body string) {
	id := strings.TrimSpace(attrs["id"])
	if id == "" {
		p.sink.OnError(ctx, errors.New(errors.CodeParse, "context_feed tag missing id attribute", nil).
			WithRecoverable(true))
		return
	}
	p.sink.OnContextFeed(ctx, id, strings.TrimSpace(body))
}

// appendReasoning buffers thought content and flushes coalesced
// fragments on newline or once the threshold is reached. Chunked, not
// per-character, to avoid event storms.
func (p *Parser) appendReasoning(ctx context.Context, text string) {
	if text == "" {
		return
	}
	p.reason += text
	for {
		if nl := strings.IndexByte(p.reason, '\n'); nl >= 0 {
			p.emitReasoning(ctx, p.reason[:nl+1])
			p.reason = p.reason[nl+1:]
			continue
		}
		if len(p.reason) >= p.coalesce {
			p.emitReasoning(ctx, p.reason)
			p.reason = ""
		}
		return
	}
}

func (p *Parser) flushReasoning(ctx context.Context) {
	p.emitReasoning(ctx, p.reason)
	p.reason = ""
}

func (p *Parser) emitReasoning(ctx context.Context, fragment string) {
	if strings.TrimSpace(fragment) == "" {
		return
	}
	p.sink.OnReasoning(ctx, fragment)
}

var openNames = []string{"thought", "action", "response", "context_feed"}

// tryOpenTag inspects s (which starts with '<') for a recognized
// opening tag. partial reports that s could still become one once more
// bytes arrive.
func tryOpenTag(s string) (name string, attrs map[string]string, consumed int, partial bool) {
	gt := strings.IndexByte(s, '>')
	if gt < 0 {
		if len(s) <= maxOpenTagLen && couldOpen(s[1:]) {
			return "", nil, 0, true
		}
		return "", nil, 0, false
	}

	inside := s[1:gt]
	nm, rest := splitTagName(inside)
	for _, known := range openNames {
		if nm == known {
			return nm, parseAttributes(rest), gt + 1, false
		}
	}
	return "", nil, 0, false
}

// couldOpen reports whether body (the text after '<', no '>' seen yet)
// is still compatible with a recognized opening tag.
func couldOpen(body string) bool {
	nm, rest := splitTagName(body)
	for _, known := range openNames {
		if rest == "" && nm != known {
			// Name still being received; must be a prefix.
			if strings.HasPrefix(known, nm) {
				return true
			}
			continue
		}
		if nm == known {
			return true
		}
	}
	return false
}

func splitTagName(s string) (name, rest string) {
	idx := strings.IndexAny(s, " \t\r\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// keepSuffix returns the length of the longest suffix of s that is a
// proper prefix of any marker, so a tag split across chunks is never
// mistaken for content.
func keepSuffix(s string, markers ...string) int {
	max := 0
	for _, marker := range markers {
		limit := len(marker) - 1
		if limit > len(s) {
			limit = len(s)
		}
		for n := limit; n > max; n-- {
			if strings.HasPrefix(marker, s[len(s)-n:]) {
				max = n
				break
			}
		}
	}
	return max
}

// stripFences drops markdown code-fence lines. Models are not required
// to omit them around protocol output.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/weft-ai/weft/pkg/bindings"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

type recorded struct {
	kind   string
	text   string
	action *core.Action
	resp   core.Response
	feedID string
	err    error
}

type recordingSink struct {
	events []recorded
}

func (r *recordingSink) OnReasoning(_ context.Context, fragment string) {
	r.events = append(r.events, recorded{kind: "reasoning", text: fragment})
}

func (r *recordingSink) OnAction(_ context.Context, action *core.Action) {
	r.events = append(r.events, recorded{kind: "action", action: action})
}

func (r *recordingSink) OnResponse(_ context.Context, resp core.Response) {
	r.events = append(r.events, recorded{kind: "response", resp: resp})
}

func (r *recordingSink) OnContextFeed(_ context.Context, id, content string) {
	r.events = append(r.events, recorded{kind: "feed", feedID: id, text: content})
}

func (r *recordingSink) OnError(_ context.Context, err error) {
	r.events = append(r.events, recorded{kind: "error", err: err})
}

func (r *recordingSink) kinds() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func (r *recordingSink) reasoning() string {
	var b strings.Builder
	for _, e := range r.events {
		if e.kind == "reasoning" {
			b.WriteString(e.text)
		}
	}
	return b.String()
}

func feedAll(t *testing.T, sink Sink, chunks []string, opts ...Option) {
	t.Helper()
	ctx := context.Background()
	p := New(sink, opts...)
	for _, chunk := range chunks {
		p.Feed(ctx, chunk)
	}
	p.Close(ctx)
}

func TestThoughtThenFinalResponse(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<thought>Hi</thought><response final="true">Hello</response>`})

	want := []string{"reasoning", "response"}
	if got := sink.kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("event kinds = %v, want %v", got, want)
	}
	if sink.events[0].text != "Hi" {
		t.Errorf("reasoning = %q, want %q", sink.events[0].text, "Hi")
	}
	if sink.events[1].resp.Content != "Hello" || !sink.events[1].resp.Final {
		t.Errorf("response = %+v, want final Hello", sink.events[1].resp)
	}
}

func TestChunksMaySplitTagsAnywhere(t *testing.T) {
	input := `<thought>thinking hard</thought><response final="false">partial</response>`

	// Byte-at-a-time is the worst case.
	var chunks []string
	for _, r := range input {
		chunks = append(chunks, string(r))
	}

	sink := &recordingSink{}
	feedAll(t, sink, chunks)

	if got := sink.reasoning(); got != "thinking hard" {
		t.Errorf("reasoning = %q", got)
	}
	last := sink.events[len(sink.events)-1]
	if last.kind != "response" || last.resp.Final || last.resp.Content != "partial" {
		t.Errorf("final event = %+v", last)
	}
}

func TestActionDecodedWithAttributes(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{
		`<action type="tool" mode="sync" id="a1" output_key="sum">`,
		`{"name":"add","parameters":{"x":2,"y":3}}`,
		`</action>`,
	})

	if len(sink.events) != 1 || sink.events[0].kind != "action" {
		t.Fatalf("events = %v", sink.kinds())
	}
	a := sink.events[0].action
	if a.ID != "a1" || a.Name != "add" || a.Mode != core.ModeSync || a.OutputKey != "sum" {
		t.Errorf("action = %+v", a)
	}
	if a.Parameters["x"] != float64(2) {
		t.Errorf("parameters = %v", a.Parameters)
	}
}

func TestActionNestedInThought(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{
		`<thought>let me check <action id="a1">{"name":"lookup"}</action> done checking</thought>`,
	})

	kinds := sink.kinds()
	if len(kinds) != 3 || kinds[0] != "reasoning" || kinds[1] != "action" || kinds[2] != "reasoning" {
		t.Fatalf("event kinds = %v, want reasoning,action,reasoning", kinds)
	}
	if !sink.events[1].action.EmbeddedInThought {
		t.Error("nested action should carry EmbeddedInThought")
	}
	if got := sink.reasoning(); got != "let me check  done checking" {
		t.Errorf("reasoning = %q", got)
	}
}

func TestTruncatedActionJSONEmitsOneErrorAndContinues(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{
		`<action id="a1">{"name": "add", "parameters": {"x":</action>`,
		`<response final="true">still here</response>`,
	})

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != "error" || kinds[1] != "response" {
		t.Fatalf("event kinds = %v, want error,response", kinds)
	}
	if errors.CodeOf(sink.events[0].err) != errors.CodePayload {
		t.Errorf("error code = %v", errors.CodeOf(sink.events[0].err))
	}
	if sink.events[1].resp.Content != "still here" {
		t.Errorf("response = %+v", sink.events[1].resp)
	}
}

func TestPlainTextFallbackWhenNoTags(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{"The answer ", "is 42."})

	// The recovery is flagged on the sink before the answer is delivered.
	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != "error" || kinds[1] != "response" {
		t.Fatalf("event kinds = %v, want error,response", kinds)
	}
	if errors.CodeOf(sink.events[0].err) != errors.CodeFallbackPlainText {
		t.Errorf("error code = %v", errors.CodeOf(sink.events[0].err))
	}
	if we := errors.AsWeftError(sink.events[0].err); we == nil || !we.Recoverable {
		t.Errorf("fallback diagnostic must be recoverable, got %v", sink.events[0].err)
	}
	resp := sink.events[1].resp
	if resp.Content != "The answer is 42." || !resp.Final {
		t.Errorf("fallback response = %+v", resp)
	}
}

func TestNoFallbackWhenTagsWereSeen(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<thought>only thinking</thought> trailing junk`})

	for _, e := range sink.events {
		if e.kind == "response" {
			t.Errorf("unexpected response event: %+v", e.resp)
		}
	}
}

func TestCodeFencesStrippedFromFallback(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{"```\njust text\n```"})

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[1] != "response" {
		t.Fatalf("event kinds = %v, want error,response", kinds)
	}
	if sink.events[1].resp.Content != "just text" {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestContextFeedUnit(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<context_feed id="weather">sunny, 29C</context_feed>`})

	if len(sink.events) != 1 || sink.events[0].kind != "feed" {
		t.Fatalf("events = %v", sink.kinds())
	}
	if sink.events[0].feedID != "weather" || sink.events[0].text != "sunny, 29C" {
		t.Errorf("feed = %+v", sink.events[0])
	}
}

func TestContextFeedWithoutIDIsAnError(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<context_feed>orphan</context_feed>`})

	if len(sink.events) != 1 || sink.events[0].kind != "error" {
		t.Fatalf("events = %v", sink.kinds())
	}
	if errors.CodeOf(sink.events[0].err) != errors.CodeParse {
		t.Errorf("error code = %v", errors.CodeOf(sink.events[0].err))
	}
}

func TestUnterminatedActionReportedAtClose(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<action id="a1">{"name":"add"`})

	if len(sink.events) != 1 || sink.events[0].kind != "error" {
		t.Fatalf("events = %v", sink.kinds())
	}
	if errors.CodeOf(sink.events[0].err) != errors.CodeParse {
		t.Errorf("error code = %v", errors.CodeOf(sink.events[0].err))
	}
}

func TestUnterminatedThoughtFlushesAtClose(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<thought>trailing reasoning`})

	if got := sink.reasoning(); got != "trailing reasoning" {
		t.Errorf("reasoning = %q", got)
	}
}

func TestReasoningCoalescedNotPerCharacter(t *testing.T) {
	sink := &recordingSink{}
	long := strings.Repeat("reason ", 40) // ~280 chars, no newline
	var chunks []string
	chunks = append(chunks, "<thought>")
	for _, r := range long {
		chunks = append(chunks, string(r))
	}
	chunks = append(chunks, "</thought>")

	feedAll(t, sink, chunks, WithCoalesceThreshold(64))

	frags := 0
	for _, e := range sink.events {
		if e.kind == "reasoning" {
			frags++
			if len(e.text) > 64+8 {
				t.Errorf("fragment longer than threshold: %d chars", len(e.text))
			}
		}
	}
	if frags < 2 {
		t.Errorf("fragments = %d, want coalesced chunks > 1", frags)
	}
	if frags > 20 {
		t.Errorf("fragments = %d, reasoning should be coalesced", frags)
	}
	if sink.reasoning() != long {
		t.Error("coalescing lost reasoning content")
	}
}

func TestResponseSubstitutionAtEmission(t *testing.T) {
	env := bindings.New()
	env.Bind("sum", 5)

	sink := &recordingSink{}
	feedAll(t, sink, []string{`<response final="true">Result: $sum</response>`}, WithResolver(env))

	if sink.events[0].resp.Content != "Result: 5" {
		t.Errorf("response = %q", sink.events[0].resp.Content)
	}
}

func TestDeterministicEventOrderAcrossChunkings(t *testing.T) {
	input := `<thought>plan</thought>` +
		`<action id="a1" output_key="out">{"name":"run","parameters":{"q":"x"}}</action>` +
		`<response final="true">done</response>`

	chunkings := [][]string{
		{input},
		{input[:7], input[7:40], input[40:]},
	}
	var bytewise []string
	for _, r := range input {
		bytewise = append(bytewise, string(r))
	}
	chunkings = append(chunkings, bytewise)

	var first []string
	for i, chunks := range chunkings {
		sink := &recordingSink{}
		feedAll(t, sink, chunks)
		got := sink.kinds()
		if i == 0 {
			first = got
			continue
		}
		if strings.Join(got, ",") != strings.Join(first, ",") {
			t.Errorf("chunking %d produced %v, want %v", i, got, first)
		}
	}
}

func TestUnrecognizedTagsOutsideRegionsDiscarded(t *testing.T) {
	sink := &recordingSink{}
	feedAll(t, sink, []string{`<think>nope</think><response final="true">ok</response>`})

	if len(sink.events) != 1 || sink.events[0].resp.Content != "ok" {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestFeedAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	ctx := context.Background()
	p := New(sink)
	p.Feed(ctx, `<thought>a</thought>`)
	p.Close(ctx)
	n := len(sink.events)
	p.Feed(ctx, `<response final="true">late</response>`)
	p.Close(ctx)

	if len(sink.events) != n {
		t.Errorf("events after Close = %d, want %d", len(sink.events), n)
	}
}

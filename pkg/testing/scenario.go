// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides a declarative scenario harness for session
// tests: scripted input, an event collector that plugs in as the
// session emitter, and expectations over the reply and the event
// stream.
//
//	collector := weftesting.NewEventCollector()
//	scenario := weftesting.NewScenario("greeting").
//	    WithInput("Hello").
//	    WithCollector(collector).
//	    ExpectNoError().
//	    ExpectOutput(weftesting.Contains("Hello")).
//	    ExpectNoActions()
//
//	scenario.Run(t, session).Assert(t, scenario)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weft-ai/weft/pkg/core"
)

// AgentRunner is anything that can process one input into a reply.
// agent.Session satisfies it.
type AgentRunner interface {
	Run(ctx context.Context, input string) (string, error)
}

// Scenario defines one declarative session test.
type Scenario struct {
	name         string
	input        string
	context      context.Context
	timeout      time.Duration
	collector    *EventCollector
	expectations []Expectation
	setupFuncs   []func() error
	teardownFns  []func() error
}

// Expectation is one condition verified against a scenario result.
type Expectation interface {
	Check(result *ScenarioResult) error
	Description() string
}

// ScenarioResult is the outcome of running a scenario.
type ScenarioResult struct {
	Output   string
	Error    error
	Events   []core.Event
	Duration time.Duration
}

// NewScenario creates a scenario with a 30 second default timeout.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		context: context.Background(),
		timeout: 30 * time.Second,
	}
}

// WithInput sets the user input.
func (s *Scenario) WithInput(input string) *Scenario {
	s.input = input
	return s
}

// WithContext sets the base context.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.context = ctx
	return s
}

// WithTimeout bounds the run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithCollector attaches the event collector whose events feed the
// event expectations. The same collector must be wired into the
// session as its emitter.
func (s *Scenario) WithCollector(c *EventCollector) *Scenario {
	s.collector = c
	return s
}

// WithSetup registers a function to run before the scenario.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setupFuncs = append(s.setupFuncs, fn)
	return s
}

// WithTeardown registers a function to run after the scenario.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardownFns = append(s.teardownFns, fn)
	return s
}

// Expect adds an expectation.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectOutput expects the reply to match.
func (s *Scenario) ExpectOutput(matcher StringMatcher) *Scenario {
	return s.Expect(&outputExpectation{matcher: matcher})
}

// ExpectNoError expects Run to return a nil error.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects Run to fail with a matching error.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectEvent expects at least one event of the given type.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectAction expects an action with the given name to have started.
func (s *Scenario) ExpectAction(name string) *Scenario {
	return s.Expect(&actionExpectation{name: name})
}

// ExpectNoActions expects no action dispatch at all.
func (s *Scenario) ExpectNoActions() *Scenario {
	return s.Expect(&noActionsExpectation{})
}

// ExpectErrorEvent expects an error event carrying the given code.
func (s *Scenario) ExpectErrorEvent(code string) *Scenario {
	return s.Expect(&errorEventExpectation{code: code})
}

// ExpectFeedUpdated expects a feed update for the given feed ID.
func (s *Scenario) ExpectFeedUpdated(feedID string) *Scenario {
	return s.Expect(&feedExpectation{feedID: feedID})
}

// ExpectMaxDuration expects the run to complete within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run executes the scenario and captures the result. Expectations are
// checked separately via Assert so callers can inspect the result
// first.
func (s *Scenario) Run(t *testing.T, agent AgentRunner) *ScenarioResult {
	t.Helper()

	for _, setup := range s.setupFuncs {
		if err := setup(); err != nil {
			t.Fatalf("scenario %q setup failed: %v", s.name, err)
		}
	}
	defer func() {
		for _, teardown := range s.teardownFns {
			if err := teardown(); err != nil {
				t.Errorf("scenario %q teardown failed: %v", s.name, err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(s.context, s.timeout)
	defer cancel()

	start := time.Now()
	output, err := agent.Run(ctx, s.input)
	result := &ScenarioResult{
		Output:   output,
		Error:    err,
		Duration: time.Since(start),
	}
	if s.collector != nil {
		result.Events = s.collector.Events()
	}
	return result
}

// Assert checks every expectation and reports failures.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()
	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", scenario.name, exp.Description(), err)
		}
	}
}

// StringMatcher matches strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains matches strings containing substr.
func Contains(substr string) StringMatcher { return &containsMatcher{substr: substr} }

// Equals matches exact equality.
func Equals(expected string) StringMatcher { return &equalsMatcher{expected: expected} }

// Regex matches against a regular expression. The pattern must be
// valid; Regex panics otherwise so a bad test fails loudly.
func Regex(pattern string) StringMatcher {
	return &regexMatcher{re: regexp.MustCompile(pattern), pattern: pattern}
}

// HasPrefix matches strings starting with prefix.
func HasPrefix(prefix string) StringMatcher { return &prefixMatcher{prefix: prefix} }

type containsMatcher struct{ substr string }

func (m *containsMatcher) Match(s string) bool { return strings.Contains(s, m.substr) }
func (m *containsMatcher) Description() string { return fmt.Sprintf("contains %q", m.substr) }

type equalsMatcher struct{ expected string }

func (m *equalsMatcher) Match(s string) bool { return s == m.expected }
func (m *equalsMatcher) Description() string { return fmt.Sprintf("equals %q", m.expected) }

type regexMatcher struct {
	re      *regexp.Regexp
	pattern string
}

func (m *regexMatcher) Match(s string) bool { return m.re.MatchString(s) }
func (m *regexMatcher) Description() string { return fmt.Sprintf("matches %q", m.pattern) }

type prefixMatcher struct{ prefix string }

func (m *prefixMatcher) Match(s string) bool { return strings.HasPrefix(s, m.prefix) }
func (m *prefixMatcher) Description() string { return fmt.Sprintf("has prefix %q", m.prefix) }

type outputExpectation struct{ matcher StringMatcher }

func (e *outputExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.Output) {
		return fmt.Errorf("output %q does not match: %s", r.Output, e.matcher.Description())
	}
	return nil
}

func (e *outputExpectation) Description() string {
	return "output " + e.matcher.Description()
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string { return "no error" }

type errorExpectation struct{ matcher StringMatcher }

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error matching %s, got nil", e.matcher.Description())
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error.Error(), e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return "error " + e.matcher.Description()
}

type eventExpectation struct{ eventType core.EventType }

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event type %q was not emitted", e.eventType)
}

func (e *eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type actionExpectation struct{ name string }

func (e *actionExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type != core.EventActionStarted {
			continue
		}
		if name, _ := ev.Payload["name"].(string); name == e.name {
			return nil
		}
	}
	return fmt.Errorf("action %q was not dispatched", e.name)
}

func (e *actionExpectation) Description() string {
	return fmt.Sprintf("action %q dispatched", e.name)
}

type noActionsExpectation struct{}

func (e *noActionsExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == core.EventActionStarted {
			name, _ := ev.Payload["name"].(string)
			return fmt.Errorf("expected no actions, got %q (%s)", name, ev.ActionID)
		}
	}
	return nil
}

func (e *noActionsExpectation) Description() string { return "no actions dispatched" }

type errorEventExpectation struct{ code string }

func (e *errorEventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type != core.EventError {
			continue
		}
		if code, _ := ev.Payload["code"].(string); code == e.code {
			return nil
		}
	}
	return fmt.Errorf("no error event with code %q", e.code)
}

func (e *errorEventExpectation) Description() string {
	return fmt.Sprintf("error event with code %q", e.code)
}

type feedExpectation struct{ feedID string }

func (e *feedExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == core.EventFeedUpdated && ev.OutputKey == e.feedID {
			return nil
		}
	}
	return fmt.Errorf("feed %q was not updated", e.feedID)
}

func (e *feedExpectation) Description() string {
	return fmt.Sprintf("feed %q updated", e.feedID)
}

type maxDurationExpectation struct{ max time.Duration }

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}

// EventCollector records events in arrival order. It implements
// core.Emitter so it wires directly into a session.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements core.Emitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of all collected events.
func (c *EventCollector) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByType returns collected events of the given type.
func (c *EventCollector) ByType(eventType core.EventType) []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Has reports whether an event of the given type was collected.
func (c *EventCollector) Has(eventType core.EventType) bool {
	return len(c.ByType(eventType)) > 0
}

// Count returns the number of collected events.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset clears the collector for reuse between scenarios.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

var _ core.Emitter = (*EventCollector)(nil)

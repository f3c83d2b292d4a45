package profile

import (
	"testing"
	"time"

	"github.com/weft-ai/weft/pkg/core"
)

const sampleProfile = `
name: researcher
persona: |
  You are a meticulous research assistant.
actions:
  - name: web_search
    type: tool
    description: Search the web.
    parameters:
      query: the search query
context_feeds:
  - id: weather
    type: on_demand
    source:
      name: get_weather
    cache_ttl: 5m
    max_tokens: 200
  - id: notes
    type: internal
    content: pinned notes
max_iterations: 5
policy:
  - id: no-shell
    effect: deny
    type: tool
    name: shell_*
    reason: shell access is disabled
guardrails:
  block_injection: true
`

func TestParseProfile(t *testing.T) {
	p, err := Parse([]byte(sampleProfile))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "researcher" || p.MaxIterations != 5 {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Actions) != 1 || p.Actions[0].Name != "web_search" {
		t.Errorf("actions = %v", p.Actions)
	}
	if p.Actions[0].Parameters["query"] == "" {
		t.Error("action parameter docs lost")
	}
	if len(p.Policy) != 1 || p.Policy[0].Name != "shell_*" || p.Policy[0].Effect != "deny" {
		t.Errorf("policy = %+v", p.Policy)
	}
	if !p.Guardrails.Enabled() || !p.Guardrails.BlockInjection || p.Guardrails.MaskPII {
		t.Errorf("guardrails = %+v", p.Guardrails)
	}
}

func TestParseRequiresName(t *testing.T) {
	if _, err := Parse([]byte("persona: nameless")); err == nil {
		t.Error("want error for profile without name")
	}
}

func TestFeedsConversion(t *testing.T) {
	p, err := Parse([]byte(sampleProfile))
	if err != nil {
		t.Fatal(err)
	}

	feeds := p.Feeds()
	if len(feeds) != 2 {
		t.Fatalf("feeds = %v", feeds)
	}

	weather := feeds[0]
	if weather.ID != "weather" || weather.Type != core.FeedOnDemand {
		t.Errorf("weather = %+v", weather)
	}
	if weather.CacheTTL != 5*time.Minute || weather.MaxTokens != 200 {
		t.Errorf("weather ttl/max = %v/%d", weather.CacheTTL, weather.MaxTokens)
	}

	notes := feeds[1]
	if notes.Type != core.FeedInternal || notes.Content != "pinned notes" {
		t.Errorf("notes = %+v", notes)
	}
	if notes.FetchedAt.IsZero() {
		t.Error("preset content should count as fetched")
	}
}

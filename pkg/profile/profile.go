// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile loads agent profiles: identity, persona, declared
// actions, and context feeds, defined in YAML.
package profile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weft-ai/weft/pkg/core"
)

// Profile describes one agent: who it is, how it speaks, which actions
// it may dispatch, and which context feeds it starts with.
type Profile struct {
	Name          string        `yaml:"name"`
	Persona       string        `yaml:"persona"`
	Instructions  string        `yaml:"instructions,omitempty"`
	Actions       []ActionDoc   `yaml:"actions,omitempty"`
	ContextFeeds  []FeedSpec    `yaml:"context_feeds,omitempty"`
	MaxIterations int           `yaml:"max_iterations,omitempty"`
	Policy        []PolicyRule  `yaml:"policy,omitempty"`
	Guardrails    GuardrailSpec `yaml:"guardrails,omitempty"`
}

// ActionDoc documents one action for prompt assembly.
type ActionDoc struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Parameters  map[string]string `yaml:"parameters,omitempty"`
}

// FeedSpec declares a context feed registered at session start. The
// TTL is a Go duration string ("30s", "5m").
type FeedSpec struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type,omitempty"`
	Source    map[string]any `yaml:"source,omitempty"`
	Content   string         `yaml:"content,omitempty"`
	CacheTTL  string         `yaml:"cache_ttl,omitempty"`
	MaxTokens int            `yaml:"max_tokens,omitempty"`
}

// PolicyRule declares one action governance rule. Rules are evaluated
// in order and the first match decides.
type PolicyRule struct {
	ID     string `yaml:"id,omitempty"`
	Effect string `yaml:"effect"` // allow or deny
	Type   string `yaml:"type,omitempty"`
	Name   string `yaml:"name,omitempty"` // glob pattern
	Reason string `yaml:"reason,omitempty"`
}

// GuardrailSpec toggles built-in content guardrails for the profile.
type GuardrailSpec struct {
	BlockInjection bool `yaml:"block_injection,omitempty"`
	MaskPII        bool `yaml:"mask_pii,omitempty"`
}

// Enabled reports whether any guardrail is requested.
func (g GuardrailSpec) Enabled() bool {
	return g.BlockInjection || g.MaskPII
}

// Default returns a minimal general-purpose profile.
func Default() *Profile {
	return &Profile{
		Name:    "weft",
		Persona: "You are a helpful, precise assistant.",
	}
}

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML profile data.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("profile requires a name")
	}
	return &p, nil
}

// Feeds converts the declared feed specs into runtime context feeds.
func (p *Profile) Feeds() []*core.ContextFeed {
	out := make([]*core.ContextFeed, 0, len(p.ContextFeeds))
	for _, spec := range p.ContextFeeds {
		feed := &core.ContextFeed{
			ID:        spec.ID,
			Type:      core.ParseFeedType(spec.Type),
			Source:    spec.Source,
			Content:   spec.Content,
			MaxTokens: spec.MaxTokens,
		}
		if spec.CacheTTL != "" {
			if ttl, err := time.ParseDuration(spec.CacheTTL); err == nil {
				feed.CacheTTL = ttl
			}
		}
		if feed.Content != "" {
			feed.FetchedAt = time.Now().UTC()
		}
		out = append(out, feed)
	}
	return out
}

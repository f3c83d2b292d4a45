// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

// Patterns that indicate an attempt to subvert the system prompt or
// the protocol. Kept deliberately narrow; false positives block real
// user input.
var defaultInjectionPatterns = []struct {
	name    string
	pattern string
}{
	{"instruction_override", `(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`},
	{"instruction_override", `(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions?|prompts?|rules?|programming)`},
	{"role_manipulation", `(?i)you\s+are\s+now\s+(a|an|in)\s+\w+\s*(mode)?`},
	{"role_manipulation", `(?i)pretend\s+(to\s+be|you\s+are)\s+(a|an)?\s*\w+\s+without\s+(restrictions?|limits?|rules?)`},
	{"prompt_extraction", `(?i)(repeat|print|show|reveal|output)\s+(your|the)\s+(system\s+)?(prompt|instructions?)`},
	{"jailbreak", `(?i)\b(DAN|jailbreak|developer\s+mode)\b.*\b(mode|enabled|activated)\b`},
	{"delimiter_manipulation", `(?i)</?(system|thought|action|response|context_feed)>`},
}

type injectionPattern struct {
	name    string
	pattern *regexp.Regexp
}

// PromptInjectionDetector blocks input that tries to override the
// runtime's instructions or forge protocol tags.
type PromptInjectionDetector struct {
	patterns []injectionPattern
}

// InjectionOption configures the detector.
type InjectionOption func(*PromptInjectionDetector)

// NewPromptInjectionDetector creates a detector with the default
// pattern set.
func NewPromptInjectionDetector(opts ...InjectionOption) *PromptInjectionDetector {
	d := &PromptInjectionDetector{}
	for _, p := range defaultInjectionPatterns {
		d.patterns = append(d.patterns, injectionPattern{
			name:    p.name,
			pattern: regexp.MustCompile(p.pattern),
		})
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPattern adds a custom detection pattern. Invalid
// patterns are ignored.
func WithInjectionPattern(name, pattern string) InjectionOption {
	return func(d *PromptInjectionDetector) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		d.patterns = append(d.patterns, injectionPattern{name: name, pattern: re})
	}
}

// ID implements InputChecker.
func (d *PromptInjectionDetector) ID() string { return "prompt-injection" }

// CheckInput implements InputChecker.
func (d *PromptInjectionDetector) CheckInput(ctx context.Context, input string) CheckResult {
	if input == "" {
		return CheckResult{}
	}
	for _, p := range d.patterns {
		if ctx.Err() != nil {
			break
		}
		if p.pattern.MatchString(input) {
			return CheckResult{
				Blocked: true,
				Reason:  "possible prompt injection: " + p.name,
			}
		}
	}
	return CheckResult{}
}

// WithInjectionDetection blocks input matching injection patterns.
func WithInjectionDetection(opts ...InjectionOption) Option {
	return WithInputChecker(NewPromptInjectionDetector(opts...))
}

// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// PIIFilterMode determines how detected PII is rewritten.
type PIIFilterMode int

const (
	// PIIFilterMask replaces PII with placeholders like "[EMAIL]".
	PIIFilterMask PIIFilterMode = iota
	// PIIFilterRedact removes PII entirely.
	PIIFilterRedact
	// PIIFilterHash replaces PII with a stable token so repeated
	// values can still be correlated.
	PIIFilterHash
)

// PIIType categorizes detected PII.
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPAddress  PIIType = "ip_address"
)

type piiPattern struct {
	piiType PIIType
	pattern *regexp.Regexp
	mask    string
}

// Conservative, high-precision patterns. Order matters: credit cards
// and SSNs overlap with phone formats and must run first.
var defaultPIIPatterns = []struct {
	piiType PIIType
	pattern string
	mask    string
}{
	{PIITypeCreditCard, `\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`, "[CREDIT_CARD]"},
	{PIITypeSSN, `\b[0-9]{3}[-\s]?[0-9]{2}[-\s]?[0-9]{4}\b`, "[SSN]"},
	{PIITypeEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[EMAIL]"},
	{PIITypePhone, `\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`, "[PHONE]"},
	{PIITypeIPAddress, `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`, "[IP_ADDRESS]"},
}

// PIIFilter masks, redacts, or tokenizes personally identifiable
// information. It serves as both an output filter and an input
// checker.
type PIIFilter struct {
	mode     PIIFilterMode
	patterns []piiPattern
	enabled  map[PIIType]bool
}

// PIIFilterOption configures the filter.
type PIIFilterOption func(*PIIFilter)

// NewPIIFilter creates a PII filter with all default patterns enabled.
func NewPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) *PIIFilter {
	f := &PIIFilter{
		mode:    mode,
		enabled: make(map[PIIType]bool),
	}
	for _, p := range defaultPIIPatterns {
		f.enabled[p.piiType] = true
		f.patterns = append(f.patterns, piiPattern{
			piiType: p.piiType,
			pattern: regexp.MustCompile(p.pattern),
			mask:    p.mask,
		})
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithPIITypes enables only the listed PII types.
func WithPIITypes(types ...PIIType) PIIFilterOption {
	return func(f *PIIFilter) {
		for k := range f.enabled {
			f.enabled[k] = false
		}
		for _, t := range types {
			f.enabled[t] = true
		}
	}
}

// WithCustomPIIPattern adds a custom pattern. Invalid patterns are
// ignored.
func WithCustomPIIPattern(piiType PIIType, pattern, mask string) PIIFilterOption {
	return func(f *PIIFilter) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		f.patterns = append(f.patterns, piiPattern{piiType: piiType, pattern: re, mask: mask})
		f.enabled[piiType] = true
	}
}

// ID implements InputChecker and OutputFilter.
func (f *PIIFilter) ID() string { return "pii-filter" }

// FilterOutput rewrites detected PII according to the filter mode.
func (f *PIIFilter) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	if output == "" {
		return result
	}

	for _, p := range f.patterns {
		if !f.enabled[p.piiType] || ctx.Err() != nil {
			continue
		}
		matches := p.pattern.FindAllStringIndex(result.Content, -1)
		// Reverse order keeps earlier match positions valid.
		for i := len(matches) - 1; i >= 0; i-- {
			match := matches[i]
			original := result.Content[match[0]:match[1]]
			replacement := f.replacement(p, original)

			result.Redactions = append(result.Redactions, Redaction{
				Type:        "pii:" + string(p.piiType),
				Replacement: replacement,
				Position:    match[0],
			})
			result.Content = result.Content[:match[0]] + replacement + result.Content[match[1]:]
			result.Modified = true
		}
	}
	return result
}

// CheckInput blocks input containing any enabled PII type.
func (f *PIIFilter) CheckInput(ctx context.Context, input string) CheckResult {
	if input == "" {
		return CheckResult{}
	}
	for _, p := range f.patterns {
		if !f.enabled[p.piiType] || ctx.Err() != nil {
			continue
		}
		if p.pattern.MatchString(input) {
			return CheckResult{
				Blocked: true,
				Reason:  "PII detected in input: " + string(p.piiType),
			}
		}
	}
	return CheckResult{}
}

func (f *PIIFilter) replacement(p piiPattern, original string) string {
	switch f.mode {
	case PIIFilterRedact:
		return ""
	case PIIFilterHash:
		h := fnv.New32a()
		h.Write([]byte(original))
		if strings.HasSuffix(p.mask, "]") {
			return fmt.Sprintf("%s_%08X]", strings.TrimSuffix(p.mask, "]"), h.Sum32())
		}
		return fmt.Sprintf("%s_%08X", p.mask, h.Sum32())
	default:
		return p.mask
	}
}

// WithPIIFilter adds PII output filtering.
func WithPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) Option {
	return WithOutputFilter(NewPIIFilter(mode, opts...))
}

// WithPIIInputChecker blocks input containing PII.
func WithPIIInputChecker(opts ...PIIFilterOption) Option {
	return WithInputChecker(NewPIIFilter(PIIFilterMask, opts...))
}

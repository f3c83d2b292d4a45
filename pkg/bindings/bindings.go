// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package bindings implements the binding environment: the live name→value
// store of a parsing session, populated by completed action outputs and
// context feeds and consumed by $identifier substitution in later content.
package bindings

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// identPattern matches $name references. Identifiers follow Go ident rules.
var identPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Environment is a single mutable mapping scoped to one conversation
// session. Async action completions bind results from their own
// goroutines while the parse loop resolves references, so every access
// goes through the environment's lock.
type Environment struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty environment.
func New() *Environment {
	return &Environment{values: make(map[string]any)}
}

// Bind stores a value under name, overwriting any previous binding.
func (e *Environment) Bind(name string, value any) {
	e.mu.Lock()
	e.values[name] = value
	e.mu.Unlock()
}

// Lookup returns the bound value and whether the name is bound.
func (e *Environment) Lookup(name string) (any, bool) {
	e.mu.RLock()
	v, ok := e.values[name]
	e.mu.RUnlock()
	return v, ok
}

// Delete removes a binding. Deleting an unbound name is a no-op.
func (e *Environment) Delete(name string) {
	e.mu.Lock()
	delete(e.values, name)
	e.mu.Unlock()
}

// Clear removes every binding.
func (e *Environment) Clear() {
	e.mu.Lock()
	e.values = make(map[string]any)
	e.mu.Unlock()
}

// Len returns the number of bindings.
func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.values)
}

// Snapshot returns a shallow copy of the current bindings.
func (e *Environment) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Resolve replaces every $identifier occurrence in text with the
// stringified bound value. Unbound identifiers are left untouched: the
// runtime deliberately does not error on missing bindings, so a literal
// $name survives until something binds it.
func (e *Environment) Resolve(text string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return identPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1:]
		value, ok := e.values[name]
		if !ok {
			return match
		}
		return Stringify(value)
	})
}

// ResolveValue applies Resolve recursively through a decoded value tree:
// strings are substituted, maps and slices are walked, everything else
// passes through unchanged.
func (e *Environment) ResolveValue(value any) any {
	switch v := value.(type) {
	case string:
		return e.Resolve(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = e.ResolveValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.ResolveValue(item)
		}
		return out
	default:
		return value
	}
}

// Stringify renders a bound value for substitution: strings as-is,
// numbers and bools via strconv, structured values as compact JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// JSON numbers decode as float64; render integral values plainly.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

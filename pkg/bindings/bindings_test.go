package bindings

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestBindOverwrites(t *testing.T) {
	env := New()
	env.Bind("x", 1)
	env.Bind("x", 2)

	v, ok := env.Lookup("x")
	if !ok || v != 2 {
		t.Fatalf("Lookup(x) = %v, %v; want 2, true", v, ok)
	}
	if env.Len() != 1 {
		t.Errorf("Len() = %d, want 1", env.Len())
	}
}

func TestResolveReplacesBoundNames(t *testing.T) {
	env := New()
	env.Bind("sum", 5)
	env.Bind("name", "weft")

	got := env.Resolve("Result: $sum by $name")
	if got != "Result: 5 by weft" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveLeavesUnboundUntouched(t *testing.T) {
	env := New()
	got := env.Resolve("missing $nope stays")
	if got != "missing $nope stays" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveStructuredValue(t *testing.T) {
	env := New()
	env.Bind("result", map[string]any{"a": 1})

	got := env.Resolve("payload $result")
	if got != `payload {"a":1}` {
		t.Errorf("Resolve = %q", got)
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"text", "text"},
		{true, "true"},
		{42, "42"},
		{float64(5), "5"},
		{3.25, "3.25"},
		{nil, ""},
		{[]any{1, "two"}, `[1,"two"]`},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveValueWalksTree(t *testing.T) {
	env := New()
	env.Bind("city", "Valencia")

	in := map[string]any{
		"query": "weather in $city",
		"tags":  []any{"$city", 7},
		"depth": map[string]any{"note": "$city again"},
	}
	got := env.ResolveValue(in)

	want := map[string]any{
		"query": "weather in Valencia",
		"tags":  []any{"Valencia", 7},
		"depth": map[string]any{"note": "Valencia again"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveValue = %#v, want %#v", got, want)
	}
}

func TestClearAndDelete(t *testing.T) {
	env := New()
	env.Bind("a", 1)
	env.Bind("b", 2)
	env.Delete("a")
	if _, ok := env.Lookup("a"); ok {
		t.Error("a should be deleted")
	}
	env.Clear()
	if env.Len() != 0 {
		t.Error("Clear should empty the environment")
	}
}

func TestConcurrentBindAndResolve(t *testing.T) {
	env := New()
	env.Bind("seed", "s0")

	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				env.Bind(fmt.Sprintf("r%d_%d", w, i), i)
			}
		}(w)
	}

	for i := 0; i < writers*rounds; i++ {
		if got := env.Resolve("value of $seed and $r0_0"); got == "" {
			t.Fatal("resolve returned empty text")
		}
		env.ResolveValue(map[string]any{"q": "$seed", "rest": []any{"$r1_1"}})
	}
	wg.Wait()
}

func TestSnapshotIsCopy(t *testing.T) {
	env := New()
	env.Bind("k", "v")
	snap := env.Snapshot()
	snap["k"] = "mutated"

	v, _ := env.Lookup("k")
	if v != "v" {
		t.Error("snapshot mutation leaked into environment")
	}
}

// ABOUTME: Unit tests for the handler registry — no database required.
package worker

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	if _, ok := reg.Resolve("missing"); ok {
		t.Fatal("resolved a never-registered type")
	}

	called := false
	reg.Register("work", func(context.Context, json.RawMessage) error {
		called = true
		return nil
	})

	h, ok := reg.Resolve("work")
	if !ok {
		t.Fatal("registered type not resolvable")
	}
	if err := h(context.Background(), nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Fatal("resolved handler is not the registered one")
	}
}

func TestRegistryReplaceOnDuplicate(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	var got string
	reg.Register("work", func(context.Context, json.RawMessage) error {
		got = "first"
		return nil
	})
	reg.Register("work", func(context.Context, json.RawMessage) error {
		got = "second"
		return nil
	})

	h, _ := reg.Resolve("work")
	_ = h(context.Background(), nil)
	if got != "second" {
		t.Fatalf("duplicate registration did not replace: got %q", got)
	}
	if n := len(reg.Types()); n != 1 {
		t.Fatalf("Types() has %d entries, want 1", n)
	}
}

func TestRegistryTypes(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	nop := func(context.Context, json.RawMessage) error { return nil }
	reg.Register("b", nop)
	reg.Register("a", nop)
	reg.Register("c", nop)

	types := reg.Types()
	sort.Strings(types)
	want := []string{"a", "b", "c"}
	if len(types) != len(want) {
		t.Fatalf("Types() = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", types, want)
		}
	}
}

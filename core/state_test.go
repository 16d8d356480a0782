package core

import (
	"fmt"
	"sync"
	"testing"
)

func TestState_GetSetHas(t *testing.T) {
	s := NewState(map[string]any{"initial": true})

	if v, ok := s.Get("initial"); !ok || v != true {
		t.Fatalf("seeded value missing: %v %v", v, ok)
	}

	s.Set("wallet_address", "did:bid:xyz")
	s.Set("wallet_address", "did:bid:abc")
	if v, _ := s.Get("wallet_address"); v != "did:bid:abc" {
		t.Fatalf("expected last write to win, got %v", v)
	}

	s.Set("blank", "   ")
	if s.Has("blank") {
		t.Error("blank string should not satisfy Has")
	}
	if s.Has("absent") {
		t.Error("absent key should not satisfy Has")
	}
	if !s.Has("wallet_address") {
		t.Error("expected wallet_address to be present")
	}
	if got := s.Missing("initial", "blank", "absent"); got != "blank" {
		t.Errorf("expected first missing key blank, got %q", got)
	}
}

func TestState_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"a": 1}
	s := NewState(seed)
	seed["a"] = 2
	if v, _ := s.Get("a"); v != 1 {
		t.Fatalf("state should not alias seed map, got %v", v)
	}

	snap := s.Snapshot()
	snap["b"] = 3
	if _, ok := s.Get("b"); ok {
		t.Fatal("snapshot should not alias state")
	}
}

func TestState_ConcurrentDisjointWrites(t *testing.T) {
	s := NewState(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set(fmt.Sprintf("k%02d", i), i)
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("expected 50 keys, got %d", s.Len())
	}
	if keys := s.Keys(); keys[0] != "k00" || keys[49] != "k49" {
		t.Fatalf("keys not sorted: %v", keys)
	}
}

func TestIsEmpty(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *int

	cases := []struct {
		v    any
		want bool
	}{
		{nil, true},
		{"", true},
		{" \n", true},
		{"x", false},
		{0, false},
		{false, false},
		{[]string{}, true},
		{[]string{"a"}, false},
		{nilMap, true},
		{map[string]any{"a": 1}, false},
		{nilPtr, true},
	}

	for _, c := range cases {
		if got := IsEmpty(c.v); got != c.want {
			t.Errorf("IsEmpty(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

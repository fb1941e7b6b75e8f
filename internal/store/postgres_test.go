package store

import "testing"

func TestPQStringArray(t *testing.T) {
    if v := pqStringArray(nil); v != "{}" {
        t.Fatalf("nil slice -> empty array literal expected, got %v", v)
    }
    if v := pqStringArray([]string{"a", "b"}); v != `{"a","b"}` {
        t.Fatalf("unexpected literal: %v", v)
    }
    if v := pqStringArray([]string{`x"y`}); v != `{"x\"y"}` {
        t.Fatalf("quote escaping broken: %v", v)
    }
}

func TestMustJSONNilSafe(t *testing.T) {
    if string(mustJSON(nil)) != "null" {
        t.Fatalf("nil should marshal to null")
    }
    if string(mustJSON(map[string]int{"a": 1})) != `{"a":1}` {
        t.Fatalf("unexpected json")
    }
}

func TestNullIfEmpty(t *testing.T) {
    if nullIfEmpty("") != nil {
        t.Fatalf("empty -> nil expected")
    }
    if nullIfEmpty("x") != "x" {
        t.Fatalf("non-empty passthrough expected")
    }
}

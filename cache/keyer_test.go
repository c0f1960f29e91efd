package cache

import (
	"strings"
	"testing"
)

func TestKeyer_DeterministicForMaps(t *testing.T) {
	keyer := NewDefaultKeyer()

	map1 := map[string]any{"b": 2, "a": 1, "c": 3}
	map2 := map[string]any{"a": 1, "c": 3, "b": 2}
	map3 := map[string]any{"c": 3, "b": 2, "a": 1}

	key1, err := keyer.Key("pokemon", map1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("pokemon", map2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key3, err := keyer.Key("pokemon", map3)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 || key2 != key3 {
		t.Errorf("keys differ for same content: %s %s %s", key1, key2, key3)
	}
}

func TestKeyer_ArrayOrderPreserved(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, err := keyer.Key("cards", map[string]any{"ids": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("cards", map[string]any{"ids": []any{3, 2, 1}})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 == key2 {
		t.Errorf("keys should differ for different array order: %s", key1)
	}
}

func TestKeyer_DifferentIdentifiers(t *testing.T) {
	params := map[string]any{"id": 25}

	key1, _ := GenerateKey("pokemon", params)
	key2, _ := GenerateKey("species", params)

	if key1 == key2 {
		t.Errorf("keys should differ for different identifiers: %s", key1)
	}
}

func TestKeyer_KeyFormat(t *testing.T) {
	key, err := GenerateKey("prices", map[string]any{"set": "base1"})
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	prefix := "prices:"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("key %q should have prefix %q", key, prefix)
	}

	hash := strings.TrimPrefix(key, prefix)
	if len(hash) != 16 {
		t.Errorf("hash should be 16 characters, got %d: %q", len(hash), hash)
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("hash should be lowercase hex, got %q in %q", string(c), hash)
			break
		}
	}
}

func TestKeyer_NestedMaps(t *testing.T) {
	nested1 := map[string]any{
		"filter": map[string]any{"z": 26, "a": 1, "m": 13},
		"page":   2,
	}
	nested2 := map[string]any{
		"page":   2,
		"filter": map[string]any{"a": 1, "m": 13, "z": 26},
	}

	key1, err := GenerateKey("search", nested1)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	key2, err := GenerateKey("search", nested2)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if key1 != key2 {
		t.Errorf("keys should match for nested maps with same content:\n  %s\n  %s", key1, key2)
	}
}

func TestKeyer_EmptyParams(t *testing.T) {
	for _, params := range []map[string]any{nil, {}} {
		key, err := GenerateKey("pokemon:25", params)
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		if key != "pokemon:25" {
			t.Errorf("GenerateKey(%v) = %q, want bare identifier", params, key)
		}
	}
}

func TestKeyer_UnencodableParams(t *testing.T) {
	_, err := GenerateKey("bad", map[string]any{"fn": func() {}})
	if err == nil {
		t.Fatal("GenerateKey() should fail for unencodable params")
	}
}

func TestKeyer_ValueTypesMatter(t *testing.T) {
	key1, _ := GenerateKey("pokemon", map[string]any{"id": 25})
	key2, _ := GenerateKey("pokemon", map[string]any{"id": "25"})
	if key1 == key2 {
		t.Error("number and string params should produce different keys")
	}
}

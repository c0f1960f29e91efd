package cache

import (
	"context"
	"encoding/json"
	"testing"
)

func TestDecode(t *testing.T) {
	want := pokemon{ID: 25, Name: "pikachu"}

	tests := []struct {
		name string
		in   any
	}{
		{"same type", want},
		{"raw json", json.RawMessage(`{"id":25,"name":"pikachu"}`)},
		{"bytes", []byte(`{"id":25,"name":"pikachu"}`)},
		{"map", map[string]any{"id": 25, "name": "pikachu"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[pokemon](tt.in)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != want {
				t.Errorf("Decode() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode[pokemon](nil); err == nil {
		t.Error("Decode(nil) should fail")
	}
	if _, err := Decode[pokemon](json.RawMessage(`[1,2]`)); err == nil {
		t.Error("Decode() of mismatched JSON should fail")
	}
	if _, err := Decode[int](func() {}); err == nil {
		t.Error("Decode() of unencodable value should fail")
	}
}

func TestGetAs_ShapeMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{})
	_ = m.Set(ctx, "k", "not a pokemon", SetOptions{})

	if _, ok := GetAs[pokemon](ctx, m, "k", PriorityNormal); ok {
		t.Error("GetAs() with wrong shape should miss")
	}
	if v, ok := GetAs[string](ctx, m, "k", PriorityNormal); !ok || v != "not a pokemon" {
		t.Errorf("GetAs[string]() = %q, %v", v, ok)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/tiercache/observe"
)

// Decode converts a value returned by a tier into T.
//
// A memory hit holds whatever was stored, so a T is returned as is. A
// durable hit holds JSON (json.RawMessage, []byte or string) and is
// unmarshalled. Any other value is round-tripped through JSON, which covers
// a map or struct stored under a different static type.
func Decode[T any](v any) (T, error) {
	var out T
	switch val := v.(type) {
	case T:
		return val, nil
	case json.RawMessage:
		err := json.Unmarshal(val, &out)
		return out, wrapDecode[T](err)
	case []byte:
		err := json.Unmarshal(val, &out)
		return out, wrapDecode[T](err)
	case nil:
		return out, fmt.Errorf("cache: decode nil into %T", out)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return out, wrapDecode[T](err)
		}
		err = json.Unmarshal(b, &out)
		return out, wrapDecode[T](err)
	}
}

func wrapDecode[T any](err error) error {
	if err == nil {
		return nil
	}
	var zero T
	return fmt.Errorf("cache: decode into %T: %w", zero, err)
}

// GetAs reads key through m and decodes the result into T. A value that
// cannot be decoded is reported as a miss.
func GetAs[T any](ctx context.Context, m *Manager, key string, prio Priority) (T, bool) {
	var zero T
	v, ok := m.Get(ctx, key, prio)
	if !ok {
		return zero, false
	}
	out, err := Decode[T](v)
	if err != nil {
		m.logger.Warn(ctx, "cached value has unexpected shape", observe.F("key", key), observe.Err(err))
		return zero, false
	}
	return out, true
}

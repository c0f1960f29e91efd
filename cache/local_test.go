package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonwraymond/tiercache/localstore"
)

func newTestLocal(t *testing.T, store localstore.Store, clock *testClock) *LocalTier {
	t.Helper()
	l, err := NewLocalTier(LocalConfig{Store: store, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewLocalTier() error = %v", err)
	}
	return l
}

type pokemon struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestLocalTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory(0)
	l := newTestLocal(t, store, newTestClock())

	if err := l.Set(ctx, "pokemon:25", pokemon{ID: 25, Name: "pikachu"}, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, ok := l.Get(ctx, "pokemon:25")
	if !ok {
		t.Fatal("Get() should hit")
	}
	raw, isRaw := v.(json.RawMessage)
	if !isRaw {
		t.Fatalf("Get() returned %T, want json.RawMessage", v)
	}
	got, err := Decode[pokemon](raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.ID != 25 || got.Name != "pikachu" {
		t.Errorf("decoded %+v", got)
	}

	// The stored form is a versioned envelope under the prefix.
	stored, ok, _ := store.Get(ctx, DefaultLocalPrefix+"pokemon:25")
	if !ok {
		t.Fatal("envelope not found under prefix")
	}
	var env envelope
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if env.Version != "1.0" || env.Expiry-env.Timestamp != DefaultLocalTTL.Milliseconds() {
		t.Errorf("envelope = %+v", env)
	}
}

func TestLocalTier_Remove(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, localstore.NewMemory(0), newTestClock())

	_ = l.Set(ctx, "pokemon:25", "pikachu", 0)
	if removed, err := l.Remove(ctx, "pokemon:25"); err != nil || !removed {
		t.Fatalf("Remove() = %v, %v, want true", removed, err)
	}
	if removed, err := l.Remove(ctx, "pokemon:25"); err != nil || removed {
		t.Errorf("second Remove() = %v, %v, want false", removed, err)
	}
}

func TestLocalTier_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := localstore.NewMemory(0)
	l := newTestLocal(t, store, clock)

	_ = l.Set(ctx, "k", "v", time.Minute)
	clock.Advance(time.Minute + time.Millisecond)

	if _, ok := l.Get(ctx, "k"); ok {
		t.Fatal("expired entry should miss")
	}
	if _, ok, _ := store.Get(ctx, DefaultLocalPrefix+"k"); ok {
		t.Error("expired entry should be removed on read")
	}
}

func TestLocalTier_CorruptEntryRemoved(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory(0)
	l := newTestLocal(t, store, newTestClock())

	for _, raw := range []string{"not json", `{"version":"1.0"}`} {
		_ = store.Set(ctx, DefaultLocalPrefix+"bad", raw)

		if _, ok := l.Get(ctx, "bad"); ok {
			t.Fatalf("corrupt entry %q should miss", raw)
		}
		if _, ok, _ := store.Get(ctx, DefaultLocalPrefix+"bad"); ok {
			t.Errorf("corrupt entry %q should be removed", raw)
		}
	}
	if got := l.Stats().Misses; got != 2 {
		t.Errorf("Misses = %d, want 2", got)
	}
}

func TestLocalTier_QuotaRecoversAfterCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	// Room for two entries of this shape, not three.
	store := localstore.NewMemory(200)
	l := newTestLocal(t, store, clock)

	_ = l.Set(ctx, "k1", "v", time.Second)
	_ = l.Set(ctx, "k2", "v", time.Second)
	clock.Advance(time.Minute)

	if err := l.Set(ctx, "k3", "v", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok := l.Get(ctx, "k3"); !ok {
		t.Error("k3 should be written after expired entries were swept")
	}
	keys, _ := store.Keys(ctx, DefaultLocalPrefix)
	if len(keys) != 1 {
		t.Errorf("store keys = %v, want only k3", keys)
	}
}

func TestLocalTier_QuotaDropsWrite(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory(200)
	l := newTestLocal(t, store, newTestClock())

	_ = l.Set(ctx, "k1", "v", time.Hour)
	_ = l.Set(ctx, "k2", "v", time.Hour)

	if err := l.Set(ctx, "k3", "v", time.Hour); err != nil {
		t.Fatalf("dropped write should not error, got %v", err)
	}
	if _, ok := l.Get(ctx, "k3"); ok {
		t.Error("k3 should have been dropped")
	}
	for _, k := range []string{"k1", "k2"} {
		if _, ok := l.Get(ctx, k); !ok {
			t.Errorf("%s should survive", k)
		}
	}
}

func TestLocalTier_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory(0)
	l := newTestLocal(t, store, newTestClock())

	_ = store.Set(ctx, "theme", "dark")
	_ = l.Set(ctx, "a", 1, 0)
	_ = l.Set(ctx, "b", 2, 0)
	_, _ = l.Get(ctx, "a")

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if keys, _ := store.Keys(ctx, DefaultLocalPrefix); len(keys) != 0 {
		t.Errorf("prefixed keys left: %v", keys)
	}
	if v, ok, _ := store.Get(ctx, "theme"); !ok || v != "dark" {
		t.Error("foreign key should survive Clear")
	}
	if s := l.Stats(); s.Hits != 0 {
		t.Errorf("Stats() after Clear = %+v", s)
	}
}

func TestLocalTier_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := localstore.NewMemory(0)
	l := newTestLocal(t, store, clock)

	_ = l.Set(ctx, "old", 1, time.Second)
	_ = l.Set(ctx, "fresh", 2, time.Hour)
	_ = store.Set(ctx, DefaultLocalPrefix+"junk", "{")
	clock.Advance(time.Minute)

	n, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Cleanup() removed %d, want 2", n)
	}
	if _, ok := l.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry should survive")
	}
}

func TestLocalTier_RawJSONPassThrough(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, localstore.NewMemory(0), newTestClock())

	if err := l.Set(ctx, "raw", json.RawMessage(`{"id":1}`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, _ := l.Get(ctx, "raw")
	if string(v.(json.RawMessage)) != `{"id":1}` {
		t.Errorf("Get() = %s", v)
	}

	if err := l.Set(ctx, "bad", json.RawMessage(`{`), 0); err == nil {
		t.Error("invalid raw JSON should be rejected")
	}
	if err := l.Set(ctx, "fn", func() {}, 0); err == nil {
		t.Error("unencodable value should be rejected")
	}
}

func TestLocalTier_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	store, err := localstore.OpenSQLite(ctx, path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	l := newTestLocal(t, store, newTestClock())
	_ = l.Set(ctx, "pokemon:1", pokemon{ID: 1, Name: "bulbasaur"}, 0)

	got, err := Decode[pokemon](mustGet(t, l, "pokemon:1"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != "bulbasaur" {
		t.Errorf("Name = %q", got.Name)
	}
	if err := l.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewLocalTier_RequiresStore(t *testing.T) {
	if _, err := NewLocalTier(LocalConfig{}); err == nil {
		t.Fatal("NewLocalTier() without store should fail")
	}
}

func mustGet(t *testing.T, tier Tier, key string) any {
	t.Helper()
	v, ok := tier.Get(context.Background(), key)
	if !ok {
		t.Fatalf("%s.Get(%q) missed", tier.Name(), key)
	}
	return v
}

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/tiercache/localstore"
	"github.com/jonwraymond/tiercache/observe"
)

type managerFixture struct {
	m      *Manager
	memory *MemoryTier
	local  *recordingTier
	remote *recordingTier
	clock  *testClock
	logs   *bytes.Buffer
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	clock := newTestClock()
	logs := &bytes.Buffer{}
	f := &managerFixture{
		memory: NewMemoryTier(MemoryConfig{Capacity: 10, Now: clock.Now}),
		local:  newRecordingTier("local"),
		remote: newRecordingTier("remote"),
		clock:  clock,
		logs:   logs,
	}
	f.m = NewManager(Config{
		Memory: f.memory,
		Local:  f.local,
		Remote: f.remote,
		Logger: observe.NewLoggerWithWriter("debug", logs),
		Now:    clock.Now,
	})
	return f
}

func TestManager_SetPriorityContainment(t *testing.T) {
	tests := []struct {
		prio       Priority
		wantLocal  bool
		wantRemote bool
	}{
		{PriorityNormal, false, false},
		{PriorityHigh, true, false},
		{PriorityCritical, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.prio.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newManagerFixture(t)

			if err := f.m.Set(ctx, "k", "v", SetOptions{Priority: tt.prio}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			if _, ok := f.memory.Peek("k"); !ok {
				t.Error("memory should always be written")
			}
			if _, ok := f.local.mem.Peek("k"); ok != tt.wantLocal {
				t.Errorf("local has key = %v, want %v", ok, tt.wantLocal)
			}
			if _, ok := f.remote.mem.Peek("k"); ok != tt.wantRemote {
				t.Errorf("remote has key = %v, want %v", ok, tt.wantRemote)
			}
		})
	}
}

func TestManager_SetRejectsInvalidKey(t *testing.T) {
	f := newManagerFixture(t)
	if err := f.m.Set(context.Background(), "", 1, SetOptions{}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestManager_GetProbesByPriority(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.remote.Set(ctx, "k", "remote-only", 0)

	if _, ok := f.m.Get(ctx, "k", PriorityNormal); ok {
		t.Error("normal priority should only consult memory")
	}
	if _, ok := f.m.Get(ctx, "k", PriorityHigh); ok {
		t.Error("high priority should not consult remote")
	}
	gets, _, _ := f.remote.counts()
	if gets != 0 {
		t.Errorf("remote consulted %d times below critical priority", gets)
	}

	v, ok := f.m.Get(ctx, "k", PriorityCritical)
	if !ok || v != "remote-only" {
		t.Fatalf("Get(critical) = %v, %v", v, ok)
	}
}

func TestManager_PromotesFromLocal(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.local.Set(ctx, "k", "from-local", 0)

	v, ok := f.m.Get(ctx, "k", PriorityHigh)
	if !ok || v != "from-local" {
		t.Fatalf("Get() = %v, %v", v, ok)
	}
	if got, ok := f.memory.Peek("k"); !ok || got != "from-local" {
		t.Error("local hit should be promoted into memory")
	}

	// The next read is served from memory.
	localGets, _, _ := f.local.counts()
	_, _ = f.m.Get(ctx, "k", PriorityHigh)
	if after, _, _ := f.local.counts(); after != localGets {
		t.Error("second read should not reach local")
	}
}

func TestManager_PromotesFromRemote(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.remote.Set(ctx, "k", "from-remote", 0)

	if _, ok := f.m.Get(ctx, "k", PriorityCritical); !ok {
		t.Fatal("Get(critical) should hit remote")
	}
	if _, ok := f.local.mem.Peek("k"); !ok {
		t.Error("remote hit should be promoted into local")
	}
	if _, ok := f.memory.Peek("k"); !ok {
		t.Error("remote hit should be promoted into memory")
	}
}

func TestManager_WaterfallAfterMemoryDelete(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "k", "v", SetOptions{Priority: PriorityCritical})
	_ = f.memory.Delete(ctx, "k")
	_ = f.local.Delete(ctx, "k")

	if _, ok := f.m.Get(ctx, "k", PriorityCritical); !ok {
		t.Fatal("value should be recovered from remote")
	}
	if _, ok := f.memory.Peek("k"); !ok {
		t.Error("value should be back in memory")
	}

	f.m.Delete(ctx, "k")
	if _, ok := f.m.Get(ctx, "k", PriorityCritical); ok {
		t.Error("Delete should remove the key from every tier")
	}
}

func TestManager_DeleteReportsWhetherHeld(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "k", "v", SetOptions{Priority: PriorityCritical})
	_ = f.memory.Delete(ctx, "k")
	_ = f.local.Delete(ctx, "k")

	if !f.m.Delete(ctx, "k") {
		t.Error("Delete should report a key held only by the remote tier")
	}
	if f.m.Delete(ctx, "k") {
		t.Error("second Delete should report that nothing was held")
	}
	if f.m.Delete(ctx, "never-set") {
		t.Error("Delete of an unknown key should report false")
	}
}

func TestManager_TierFaultIsLoggedNotReturned(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	f.local.setErr = errors.New("disk full")

	if err := f.m.Set(ctx, "k", "v", SetOptions{Priority: PriorityCritical}); err != nil {
		t.Fatalf("Set() error = %v, want nil", err)
	}
	if _, ok := f.memory.Peek("k"); !ok {
		t.Error("memory write should succeed")
	}
	if _, ok := f.remote.mem.Peek("k"); !ok {
		t.Error("remote write should not be blocked by the local failure")
	}

	out := f.logs.String()
	if !strings.Contains(out, "cache tier fault") || !strings.Contains(out, "disk full") {
		t.Errorf("tier fault not logged: %s", out)
	}
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "a", 1, SetOptions{})
	_, _ = f.m.Get(ctx, "a", PriorityNormal)
	_, _ = f.m.Get(ctx, "a", PriorityNormal)
	_, _ = f.m.Get(ctx, "missing", PriorityCritical)

	s := f.m.Stats()
	if s.Requests != 3 || s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("HitRate = %v, want 2/3", s.HitRate)
	}
	if s.Size != 1 || s.Capacity != 10 {
		t.Errorf("Size/Capacity = %d/%d, want 1/10", s.Size, s.Capacity)
	}
	for _, name := range []string{"memory", "local", "remote"} {
		if _, ok := s.Tiers[name]; !ok {
			t.Errorf("Tiers missing %q", name)
		}
	}

	f.m.ResetStats()
	if s := f.m.Stats(); s.Requests != 0 || s.Hits != 0 {
		t.Errorf("Stats() after reset = %+v", s)
	}
}

func TestManager_StatsEntries(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "a", 1, SetOptions{})
	_ = f.m.Set(ctx, "b", 2, SetOptions{})
	_ = f.m.Set(ctx, "c", 3, SetOptions{Priority: PriorityHigh})

	s := f.m.Stats()
	if s.Entries != 3 || s.Entries != s.Size {
		t.Errorf("Entries/Size = %d/%d, want 3/3", s.Entries, s.Size)
	}

	_ = f.m.Delete(ctx, "a")
	if got := f.m.Stats().Entries; got != 2 {
		t.Errorf("Entries after delete = %d, want 2", got)
	}

	b, err := json.Marshal(f.m.Stats())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Contains(b, []byte(`"entries":2`)) {
		t.Errorf("json = %s, want an entries field", b)
	}
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "k", "v", SetOptions{Priority: PriorityCritical})
	_, _ = f.m.Get(ctx, "k", PriorityNormal)

	f.m.Clear(ctx)

	if _, ok := f.m.Get(ctx, "k", PriorityCritical); ok {
		t.Error("Clear should empty every tier")
	}
	if s := f.m.Stats(); s.Requests != 1 || s.Hits != 0 {
		t.Errorf("Stats() = %+v, want only the post-clear request", s)
	}
}

func TestManager_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "short", 1, SetOptions{TTL: time.Second})
	_ = f.m.Set(ctx, "long", 2, SetOptions{TTL: time.Hour})
	f.clock.Advance(time.Minute)

	res := f.m.Cleanup(ctx)
	if res.Removed["memory"] != 1 || res.Total() != 1 {
		t.Errorf("Cleanup() = %+v", res)
	}
	if _, _, cleaned := f.local.counts(); cleaned != 1 {
		t.Errorf("local cleaned %d times, want 1", cleaned)
	}

	// A second sweep has nothing left to do.
	if res := f.m.Cleanup(ctx); res.Total() != 0 {
		t.Errorf("second Cleanup() = %+v", res)
	}
}

func TestManager_StartStop(t *testing.T) {
	f := newManagerFixture(t)
	f.m = NewManager(Config{
		Memory:        f.memory,
		Local:         f.local,
		SweepInterval: time.Second,
	})

	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if !f.m.Running() {
		t.Error("Running() = false after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, cleaned := f.local.counts(); cleaned > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("periodic sweep never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}

	f.m.Stop()
	f.m.Stop()
	if f.m.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestManager_OptionalTiers(t *testing.T) {
	ctx := context.Background()
	var local *LocalTier
	m := NewManager(Config{Local: local})

	if err := m.Set(ctx, "k", 1, SetOptions{Priority: PriorityCritical}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok := m.Get(ctx, "k", PriorityCritical); !ok {
		t.Error("memory-only manager should still serve reads")
	}
	if m.Local() != nil || m.Remote() != nil {
		t.Error("unset tiers should be nil")
	}
	if len(m.Stats().Tiers) != 1 {
		t.Errorf("Tiers = %v, want memory only", m.Stats().Tiers)
	}
}

func TestManager_PriorityOutOfRangeIsClamped(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_ = f.m.Set(ctx, "k", 1, SetOptions{Priority: 0})
	if _, ok := f.local.mem.Peek("k"); ok {
		t.Error("priority 0 should behave as normal")
	}
	_ = f.m.Set(ctx, "j", 1, SetOptions{Priority: 9})
	if _, ok := f.remote.mem.Peek("j"); !ok {
		t.Error("priority above critical should behave as critical")
	}
}

func TestManager_GenerateKey(t *testing.T) {
	m := NewManager(Config{})
	a, err := m.GenerateKey("pokemon", map[string]any{"id": 25, "form": "alola"})
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	b, _ := m.GenerateKey("pokemon", map[string]any{"form": "alola", "id": 25})
	if a != b {
		t.Errorf("GenerateKey() not order independent: %s vs %s", a, b)
	}
}

// The scenario from the package docs: a high-priority write with a one
// second TTL is readable at once and gone after the TTL.
func TestManager_PokemonScenario(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()

	local, err := NewLocalTier(LocalConfig{Store: localstore.NewMemory(0), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewLocalTier() error = %v", err)
	}
	m := NewManager(Config{
		Memory: NewMemoryTier(MemoryConfig{Now: clock.Now}),
		Local:  local,
		Now:    clock.Now,
	})

	_ = m.Set(ctx, "pokemon:25", map[string]any{"name": "pikachu"}, SetOptions{
		Priority: PriorityHigh,
		TTL:      time.Second,
	})

	got, ok := GetAs[pokemon](ctx, m, "pokemon:25", PriorityHigh)
	if !ok || got.Name != "pikachu" {
		t.Fatalf("GetAs() = %+v, %v", got, ok)
	}

	// Drop the memory copy so the read has to come from local.
	_ = m.Memory().Delete(ctx, "pokemon:25")
	got, ok = GetAs[pokemon](ctx, m, "pokemon:25", PriorityHigh)
	if !ok || got.Name != "pikachu" {
		t.Fatalf("GetAs() from local = %+v, %v", got, ok)
	}

	// The promoted copy keeps the remaining lifetime, not the memory default.
	if _, exp, ok := m.Memory().GetEntry(ctx, "pokemon:25"); !ok || exp.After(clock.Now().Add(time.Second)) {
		t.Errorf("promoted expiry = %v, want within the original second", exp)
	}

	clock.Advance(1100 * time.Millisecond)
	if _, ok := m.Get(ctx, "pokemon:25", PriorityHigh); ok {
		t.Error("entry should be gone after its TTL")
	}
}

func TestManager_RemoteIntegration(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBackend(t)
	clock := wallClock()

	remote := newTestRemote(t, b, clock)
	local := newTestLocal(t, localstore.NewMemory(0), clock)
	m := NewManager(Config{
		Memory: NewMemoryTier(MemoryConfig{Now: clock.Now}),
		Local:  local,
		Remote: remote,
		Now:    clock.Now,
	})

	_ = m.Set(ctx, "cards:base1", []string{"alakazam", "blastoise"}, SetOptions{Priority: PriorityCritical})

	// A fresh process sharing only the remote backend.
	other := NewManager(Config{
		Now:    clock.Now,
		Local:  newTestLocal(t, localstore.NewMemory(0), clock),
		Remote: newTestRemote(t, b, clock),
	})
	got, ok := GetAs[[]string](ctx, other, "cards:base1", PriorityCritical)
	if !ok || len(got) != 2 || got[0] != "alakazam" {
		t.Fatalf("GetAs() = %v, %v", got, ok)
	}
	if _, ok := other.Local().Get(ctx, "cards:base1"); !ok {
		t.Error("remote hit should be promoted into local")
	}

	m.Clear(ctx)
	if _, ok := other.Remote().Get(ctx, "cards:base1"); ok {
		t.Error("Clear should purge the shared remote tier")
	}
}

package cache

import (
	"context"
	"sync"
	"time"
)

// testClock is a settable clock shared by tiers under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingTier is a Tier that counts calls and can be made to fail.
type recordingTier struct {
	name string
	mem  *MemoryTier

	mu      sync.Mutex
	gets    int
	sets    int
	setErr  error
	cleaned int
}

func newRecordingTier(name string) *recordingTier {
	return &recordingTier{name: name, mem: NewMemoryTier(MemoryConfig{Name: name, Capacity: 1000})}
}

func (r *recordingTier) Name() string { return r.name }

func (r *recordingTier) Get(ctx context.Context, key string) (any, bool) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.mem.Get(ctx, key)
}

func (r *recordingTier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	r.mu.Lock()
	r.sets++
	err := r.setErr
	r.mu.Unlock()
	if err != nil {
		return tierErr(r.name, "set", err)
	}
	return r.mem.Set(ctx, key, value, ttl)
}

func (r *recordingTier) Delete(ctx context.Context, key string) error {
	return r.mem.Delete(ctx, key)
}

func (r *recordingTier) Remove(ctx context.Context, key string) (bool, error) {
	return r.mem.Remove(ctx, key)
}

func (r *recordingTier) Clear(ctx context.Context) error {
	return r.mem.Clear(ctx)
}

func (r *recordingTier) Cleanup(ctx context.Context) (int, error) {
	r.mu.Lock()
	r.cleaned++
	r.mu.Unlock()
	return r.mem.Cleanup(ctx)
}

func (r *recordingTier) Stats() Stats { return r.mem.Stats() }

func (r *recordingTier) counts() (gets, sets, cleaned int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.sets, r.cleaned
}

var (
	_ Tier    = (*recordingTier)(nil)
	_ Remover = (*recordingTier)(nil)
)

package cache

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"client-portal/contract"
)

// fakeClock is advanced by hand to simulate elapsed time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingMetrics struct {
	NoopMetrics
	mu      sync.Mutex
	hits    int
	misses  int
	expires int
}

func (m *countingMetrics) Hit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) Miss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *countingMetrics) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires++
}

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// implementations runs every contract test against both caches.
func implementations(t *testing.T, clock *fakeClock, metrics Metrics) map[string]contract.Cache {
	return map[string]contract.Cache{
		"memory": NewMemory(slog.Default(), WithClock(clock.Now), WithMetrics(metrics)),
		"badger": NewBadger(openBadger(t), slog.Default(), WithClock(clock.Now), WithMetrics(metrics)),
	}
}

func TestCache_Get_After_Set_Returns_Value(t *testing.T) {
	for name, c := range implementations(t, newFakeClock(), nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			req.True(c.Set("session:abc", "user-1", time.Minute))

			value, ok := c.Get("session:abc")
			req.True(ok)
			req.Equal("user-1", value)
		})
	}
}

func TestCache_Expired_Entry_Is_Absent_And_Not_Resurrected(t *testing.T) {
	clock := newFakeClock()
	for name, c := range implementations(t, clock, nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			// Given an entry living one second
			req.True(c.Set("session:abc123", "user-1", time.Second))

			// When two seconds pass
			clock.Advance(2 * time.Second)

			// Then the entry is gone, and stays gone
			_, ok := c.Get("session:abc123")
			req.False(ok)
			_, ok = c.Get("session:abc123")
			req.False(ok)
		})
	}
}

func TestCache_Expiry_Boundary(t *testing.T) {
	clock := newFakeClock()
	for name, c := range implementations(t, clock, nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			req.True(c.Set(name+":k", "v", 10*time.Second))

			clock.Advance(10*time.Second - time.Nanosecond)
			_, ok := c.Get(name + ":k")
			req.True(ok)

			// now == expiresAt counts as expired
			clock.Advance(time.Nanosecond)
			_, ok = c.Get(name + ":k")
			req.False(ok)
		})
	}
}

func TestCache_Overwrite_Uses_Latest_Value_And_TTL(t *testing.T) {
	clock := newFakeClock()
	for name, c := range implementations(t, clock, nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			req.True(c.Set("k", "v1", time.Second))
			req.True(c.Set("k", "v2", time.Hour))

			value, ok := c.Get("k")
			req.True(ok)
			req.Equal("v2", value)

			// The first TTL no longer applies
			clock.Advance(30 * time.Second)
			value, ok = c.Get("k")
			req.True(ok)
			req.Equal("v2", value)

			clock.Advance(time.Hour)
			_, ok = c.Get("k")
			req.False(ok)
		})
	}
}

func TestCache_Overwrite_Shorter_TTL(t *testing.T) {
	clock := newFakeClock()
	for name, c := range implementations(t, clock, nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			req.True(c.Set("short", "v1", time.Hour))
			req.True(c.Set("short", "v2", time.Second))

			clock.Advance(2 * time.Second)
			_, ok := c.Get("short")
			req.False(ok)
		})
	}
}

func TestCache_Delete_Is_Idempotent(t *testing.T) {
	for name, c := range implementations(t, newFakeClock(), nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			req.True(c.Delete("missing"))

			req.True(c.Set("k", "v", time.Minute))
			req.True(c.Delete("k"))
			req.True(c.Delete("k"))

			_, ok := c.Get("k")
			req.False(ok)
		})
	}
}

func TestCache_Rejects_Non_Positive_TTL(t *testing.T) {
	for name, c := range implementations(t, newFakeClock(), nil) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			req.False(c.Set("k", "v", 0))
			_, ok := c.Get("k")
			req.False(ok)
		})
	}
}

func TestMemory_Lazy_Expiry_Removes_Entry(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	metrics := &countingMetrics{}
	c := NewMemory(slog.Default(), WithClock(clock.Now), WithMetrics(metrics))

	c.Set("a", "1", time.Second)
	c.Set("b", "2", time.Hour)
	clock.Advance(time.Minute)

	// No sweep: the expired entry is still stored until read
	req.Equal(2, c.Len())

	_, ok := c.Get("a")
	req.False(ok)
	req.Equal(1, c.Len())
	req.Equal(1, metrics.expires)

	_, ok = c.Get("b")
	req.True(ok)
	req.Equal(1, metrics.hits)
}

func TestMemory_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	c := NewMemory(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Set("shared", "v", time.Minute)
			c.Get("shared")
			c.Delete("shared")
		}()
	}
	wg.Wait()

	req.True(c.Set("shared", "last", time.Minute))
	value, ok := c.Get("shared")
	req.True(ok)
	req.Equal("last", value)
}

func TestBadger_DecodeEntry_Reads_Persisted_Envelope(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	db := openBadger(t)
	c := NewBadger(db, slog.Default(), WithClock(clock.Now))
	req.True(c.Set("session:abc", "user-1", time.Minute))

	var raw []byte
	req.NoError(db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(BadgerPrefix + "session:abc"))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	}))

	value, expiresAt, err := DecodeEntry(raw)
	req.NoError(err)
	req.Equal("user-1", value)
	req.True(expiresAt.Equal(clock.Now().Add(time.Minute)))

	_, _, err = DecodeEntry([]byte("not an entry"))
	req.Error(err)
}

func TestBadger_Get_Keeps_Value_Written_During_Expiry(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	var (
		c      *Badger
		inject bool
	)
	// The clock is read between the stale lookup and its delete, so a write
	// issued from it lands in exactly that window.
	now := func() time.Time {
		if inject {
			inject = false
			req.True(c.Set("session:abc", "fresh", time.Hour))
		}
		return clock.Now()
	}
	metrics := &countingMetrics{}
	c = NewBadger(openBadger(t), slog.Default(), WithClock(now), WithMetrics(metrics))

	// Given an expired session entry
	req.True(c.Set("session:abc", "stale", time.Second))
	clock.Advance(2 * time.Second)

	// When a fresh value is written while Get is expiring the stale one
	inject = true
	value, ok := c.Get("session:abc")

	// Then the fresh value survives
	req.True(ok)
	req.Equal("fresh", value)
	value, ok = c.Get("session:abc")
	req.True(ok)
	req.Equal("fresh", value)
	req.Equal(0, metrics.expires)
}

func TestBadger_DecodeEntry_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	expiresAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	data := encodeEntry("user-1", expiresAt)
	data = protowire.AppendTag(data, 9, protowire.BytesType)
	data = protowire.AppendString(data, "written by a newer build")

	value, decoded, err := DecodeEntry(data)

	req.NoError(err)
	req.Equal("user-1", value)
	req.True(decoded.Equal(expiresAt))

	_, _, err = DecodeEntry(protowire.AppendString(protowire.AppendTag(nil, fieldValue, protowire.BytesType), "no expiry"))
	req.ErrorIs(err, errNoExpiry)
}

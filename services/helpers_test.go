package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"client-portal/domain"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeClock is advanced by hand to simulate elapsed time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
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

var (
	adminUser  = domain.User{ID: "admin-1", Email: "admin@portal.io", Name: "Portal Team", Role: domain.RoleAdmin}
	clientUser = domain.User{ID: "client-1", Email: "client@acme.io", Name: "Acme", Role: domain.RoleClient}
	otherUser  = domain.User{ID: "client-2", Email: "other@globex.io", Name: "Globex", Role: domain.RoleClient}
)

func as(u domain.User) context.Context {
	return domain.WithActor(context.Background(), domain.ActorOf(u))
}

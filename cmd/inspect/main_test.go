package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"client-portal/cache"
	"client-portal/storage"
)

func TestCollect_Flags_Expired_Cache_Entries(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer func() { _ = db.Close() }()

	// Given a cache entry written at a fixed time and a local storage key
	written := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewBadger(db, slog.Default(), cache.WithClock(func() time.Time { return written }))
	req.True(c.Set("session:abc", "user-1", time.Hour))
	req.NoError(storage.NewLocalStore(db).SetItem(storage.SessionKey, "abc"))

	// When inspecting before the entry expires
	entries, err := collect(db, cache.BadgerPrefix, written.Add(time.Minute))
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal("cache:session:abc", entries[0].Key)
	req.Equal("CACHE", entries[0].Family)
	req.Equal("user-1", entries[0].Detail)
	req.False(entries[0].Expired)

	// Then after the logical expiry it is flagged
	entries, err = collect(db, cache.BadgerPrefix, written.Add(2*time.Hour))
	req.NoError(err)
	req.True(entries[0].Expired)

	// And an empty prefix lists every family
	entries, err = collect(db, "", written)
	req.NoError(err)
	req.Len(entries, 2)
}

func TestRender_Marks_Expired_Rows(t *testing.T) {
	var out bytes.Buffer
	render(&out, []entry{
		{Key: "cache:a", Family: "CACHE", Expires: "2026-01-01T00:00:00Z", Detail: "x", Expired: true},
		{Key: "local:portal.session", Family: "LOCAL", Expires: "-", Detail: "abc"},
	}, false)
	require.Contains(t, out.String(), "(expired)")
	require.Contains(t, out.String(), "local:portal.session")
}

package repositories

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"client-portal/domain"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// feedRecorder captures the change events published by a table.
type feedRecorder struct {
	mu     sync.Mutex
	events map[string][]domain.ChangeEvent
}

func newFeedRecorder() *feedRecorder {
	return &feedRecorder{events: make(map[string][]domain.ChangeEvent)}
}

func (f *feedRecorder) Publish(channel, message string) bool {
	var evt domain.ChangeEvent
	if err := json.Unmarshal([]byte(message), &evt); err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[channel] = append(f.events[channel], evt)
	return true
}

func (f *feedRecorder) on(table string) []domain.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[domain.ChangeChannel(table)]
}

func as(u domain.User) context.Context {
	return domain.WithActor(context.Background(), domain.ActorOf(u))
}

func system() context.Context {
	return domain.WithActor(context.Background(), domain.SystemActor)
}

var testLog = slog.Default()
